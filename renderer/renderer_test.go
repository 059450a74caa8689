package renderer

import (
	"strings"
	"testing"
)

func TestRenderFinalSubstitutesValues(t *testing.T) {
	out, err := RenderFinal("Hello {{name}}", map[string]string{"name": "Alice"})
	if err != nil {
		t.Fatalf("RenderFinal: %v", err)
	}
	if out != "Hello Alice" {
		t.Fatalf("got %q, want %q", out, "Hello Alice")
	}
}

func TestRenderFinalLeavesUnknownTokensLiteral(t *testing.T) {
	out, err := RenderFinal("Dear {{name}}, ref {{missing}}.", map[string]string{"name": "Bob"})
	if err != nil {
		t.Fatalf("RenderFinal: %v", err)
	}
	if out != "Dear Bob, ref {{missing}}." {
		t.Fatalf("got %q", out)
	}
}

func TestRenderFinalDoesNotEscape(t *testing.T) {
	out, err := RenderFinal("{{body}}", map[string]string{"body": "a < b & c"})
	if err != nil {
		t.Fatalf("RenderFinal: %v", err)
	}
	if out != "a < b & c" {
		t.Fatalf("final render must not HTML-escape, got %q", out)
	}
}

func TestRenderPreviewWrapsFilledValues(t *testing.T) {
	out, err := RenderPreview("Hello {{name}}", map[string]string{"name": "Alice"})
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	want := `Hello <span class="df-filled">Alice</span>`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestRenderPreviewWrapsMissingTokenLiteral(t *testing.T) {
	out, err := RenderPreview("Hello {{missing}}", map[string]string{})
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if !strings.Contains(out, `<span class="df-empty">`) {
		t.Fatalf("missing empty marker in %q", out)
	}
	if !strings.Contains(out, "missing") {
		t.Fatalf("literal token should survive in %q", out)
	}
}

func TestRenderPreviewEmptyValueTreatedAsMissing(t *testing.T) {
	out, err := RenderPreview("Hi {{name}}", map[string]string{"name": ""})
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if !strings.Contains(out, `<span class="df-empty">`) {
		t.Fatalf("empty value should produce empty marker, got %q", out)
	}
}

func TestRenderPreviewConvertsNewlines(t *testing.T) {
	cases := []string{"Line1\nLine2", "Line1\r\nLine2", "Line1\rLine2"}
	for _, value := range cases {
		out, err := RenderPreview("{{note}}", map[string]string{"note": value})
		if err != nil {
			t.Fatalf("RenderPreview(%q): %v", value, err)
		}
		want := `<span class="df-filled">Line1<br/>Line2</span>`
		if out != want {
			t.Errorf("value %q: got %q, want %q", value, out, want)
		}
	}
}

func TestRenderPreviewEscapesValues(t *testing.T) {
	out, err := RenderPreview("{{v}}", map[string]string{"v": `<script>`})
	if err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("value not escaped: %q", out)
	}
}

func TestRenderRejectsDanglingToken(t *testing.T) {
	if _, err := RenderFinal("Hello {{name", map[string]string{"name": "x"}); err == nil {
		t.Fatal("expected error for unterminated placeholder")
	}
	if _, err := RenderPreview("Hello {{name", nil); err == nil {
		t.Fatal("expected error for unterminated placeholder")
	}
}

func TestRenderKeepsSingleBraces(t *testing.T) {
	out, err := RenderFinal("a {not a token} b", map[string]string{})
	if err != nil {
		t.Fatalf("RenderFinal: %v", err)
	}
	if out != "a {not a token} b" {
		t.Fatalf("got %q", out)
	}
}

// Package renderer substitutes {{fieldName}} tokens in template content.
// It is pure: no storage, no session, no HTTP.
package renderer

import (
	"errors"
	"html"
	"regexp"
	"strings"
)

var (
	tokenRegexp = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

	// an opening brace pair with no closing pair on the same content
	danglingOpen = regexp.MustCompile(`\{\{[A-Za-z0-9_]*$`)
)

var ErrMalformedTemplate = errors.New("template content has an unterminated placeholder")

const (
	filledOpen = `<span class="df-filled">`
	emptyOpen  = `<span class="df-empty">`
	spanClose  = `</span>`
	lineBreak  = `<br/>`
)

// checkContent rejects content whose tail opens a token that never closes.
// Literal single braces are fine; only a dangling "{{name" is malformed.
func checkContent(content string) error {
	stripped := tokenRegexp.ReplaceAllString(content, "")
	if danglingOpen.MatchString(stripped) {
		return ErrMalformedTemplate
	}
	return nil
}

// RenderPreview produces HTML-oriented markup for the review UI. Filled
// tokens are wrapped in a "filled" span, tokens whose value is empty or
// missing keep the literal token inside an "empty" span so the UI can
// highlight gaps. Values are HTML-escaped and embedded newlines become
// explicit <br/> markers.
func RenderPreview(content string, values map[string]string) (string, error) {
	if err := checkContent(content); err != nil {
		return "", err
	}
	out := tokenRegexp.ReplaceAllStringFunc(content, func(token string) string {
		name := token[2 : len(token)-2]
		value, ok := values[name]
		if !ok || value == "" {
			return emptyOpen + html.EscapeString(token) + spanClose
		}
		return filledOpen + escapeMultiline(value) + spanClose
	})
	return out, nil
}

// RenderFinal produces the persisted document content. Values are
// substituted raw; tokens with no matching field stay literal, signalling an
// incomplete field schema rather than failing the row.
func RenderFinal(content string, values map[string]string) (string, error) {
	if err := checkContent(content); err != nil {
		return "", err
	}
	out := tokenRegexp.ReplaceAllStringFunc(content, func(token string) string {
		name := token[2 : len(token)-2]
		value, ok := values[name]
		if !ok {
			return token
		}
		return value
	})
	return out, nil
}

func escapeMultiline(value string) string {
	escaped := html.EscapeString(value)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	escaped = strings.ReplaceAll(escaped, "\r", "\n")
	return strings.ReplaceAll(escaped, "\n", lineBreak)
}

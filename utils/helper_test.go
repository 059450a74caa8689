package utils

import (
	"testing"
	"time"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1200", "1200", false},
		{"1,200.50", "1200.5", false},
		{" 42 ", "42", false},
		{"", "0", false},
		{"-3.14", "-3.14", false},
		{"abc", "", true},
		{"12..3", "", true},
	}

	for _, tc := range cases {
		d, err := ParseDecimal(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDecimal(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDecimal(%q): %v", tc.in, err)
			continue
		}
		if d.String() != tc.want {
			t.Errorf("ParseDecimal(%q) = %s, want %s", tc.in, d, tc.want)
		}
	}
}

func TestParseDateOnly(t *testing.T) {
	d, err := ParseDateOnly("2026-08-31")
	if err != nil {
		t.Fatalf("ParseDateOnly: %v", err)
	}
	if d.Year() != 2026 || d.Month() != time.August || d.Day() != 31 {
		t.Errorf("got %v", d)
	}
	if _, err := ParseDateOnly("31/08/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestEndOfDayIsInclusiveBoundary(t *testing.T) {
	d, _ := ParseDateOnly("2026-08-31")
	end := EndOfDay(d)
	if end.Day() != 31 || end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
		t.Errorf("got %v", end)
	}
	created := time.Date(2026, 8, 31, 18, 30, 0, 0, time.UTC)
	if created.After(end) {
		t.Error("same-day timestamp fell outside the inclusive boundary")
	}
	nextDay := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if !nextDay.After(end) {
		t.Error("next-day timestamp should be outside the boundary")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Offer Letter", "Offer_Letter"},
		{"report.xlsx", "report.xlsx"},
		{`a/b\c"d`, "a_b_c_d"},
		{"  ", "export"},
		{"___", "export"},
		{"été-2026", "t_-2026"},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := SplitAndTrim(" a, b ,, c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestValidateFieldValue(t *testing.T) {
	cases := []struct {
		name      string
		fieldType string
		value     string
		options   []string
		wantErr   bool
	}{
		{"empty always ok", "number", "", nil, false},
		{"whitespace always ok", "email", "   ", nil, false},
		{"text anything", "text", "{{weird}}", nil, false},
		{"textarea anything", "textarea", "line1\nline2", nil, false},
		{"good number", "number", "1,200.50", nil, false},
		{"bad number", "number", "twelve", nil, true},
		{"good email", "email", "a@b.co", nil, false},
		{"bad email", "email", "not-an-email", nil, true},
		{"iso date", "date", "2026-08-31", nil, false},
		{"slash date", "date", "31/08/2026", nil, false},
		{"bad date", "date", "someday", nil, true},
		{"select hit", "select", "Engineering", []string{"Engineering", "Finance"}, false},
		{"select miss", "select", "Legal", []string{"Engineering", "Finance"}, true},
		{"select without options", "select", "anything", nil, false},
	}

	for _, tc := range cases {
		err := ValidateFieldValue(tc.fieldType, tc.value, tc.options)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: ValidateFieldValue(%s, %q) err=%v, wantErr=%v", tc.name, tc.fieldType, tc.value, err, tc.wantErr)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("got %v", got)
	}
}

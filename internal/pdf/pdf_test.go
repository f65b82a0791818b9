package pdf

import (
	"bytes"
	"strings"
	"testing"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	cases := map[string]string{
		"hello\nworld":            "hello world",
		"a  b\t\tc":               "a b c",
		"  leading and trailing ": "leading and trailing",
		"line1\n\nline2\r\nline3": "line1 line2 line3",
		"":                        "",
	}
	for input, want := range cases {
		got := Normalize(input)
		if got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", input, got, want)
		}
		if strings.Contains(got, "  ") {
			t.Fatalf("normalized text contains consecutive whitespace: %q", got)
		}
		if got != strings.TrimSpace(got) {
			t.Fatalf("normalized text has leading/trailing whitespace: %q", got)
		}
	}
}

func TestExtractRejectsMalformedInput(t *testing.T) {
	if _, err := Extract([]byte("not a pdf at all")); err == nil {
		t.Fatalf("expected error for malformed input")
	}
	if _, err := Extract(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestRenderSummaryProducesPDF(t *testing.T) {
	out, err := RenderSummary("A short summary of the uploaded document.")
	if err != nil {
		t.Fatalf("RenderSummary: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output does not look like a PDF, starts with %q", out[:min(8, len(out))])
	}
}

func TestRenderSummaryIsDeterministic(t *testing.T) {
	first, err := RenderSummary("same input")
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	second, err := RenderSummary("same input")
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("identical input produced different bytes")
	}
}

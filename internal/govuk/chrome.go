// Package govuk holds the canonical GOV.UK page chrome and the marker-based
// normaliser applied to every generated fragment.
package govuk

import (
	_ "embed"
	"strings"
)

const (
	HeaderMarker = "govuk-header"
	FooterMarker = "govuk-footer"
	MainMarker   = "govuk-main-wrapper"
)

var (
	//go:embed fragments/header.html
	header string
	//go:embed fragments/footer.html
	footer string
)

// Header returns the canonical crown header fragment.
func Header() string { return header }

// Footer returns the canonical footer fragment with the licence and
// copyright links.
func Footer() string { return footer }

// StripFences removes markdown code fences a model may wrap its answer in.
func StripFences(s string) string {
	s = strings.ReplaceAll(s, "```html", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// Normalize makes sure a fragment renders inside the standard chrome. Each
// rule looks for its marker substring and leaves the input alone when the
// marker is already there or the splice points cannot be found.
func Normalize(code string) string {
	if !strings.Contains(code, HeaderMarker) {
		code = header + "\n" + code
	}
	if !strings.Contains(code, FooterMarker) {
		code = code + "\n\n" + footer
	}
	if !strings.Contains(code, MainMarker) {
		code = wrapMain(code)
	}
	return code
}

func wrapMain(code string) string {
	h := strings.Index(code, "</header>")
	if h < 0 {
		return code
	}
	start := h + len("</header>")
	end := strings.Index(code, "<footer")
	if end <= start {
		return code
	}

	var b strings.Builder
	b.Grow(len(code) + 160)
	b.WriteString(code[:start])
	b.WriteString("\n<div class=\"govuk-width-container\">\n")
	b.WriteString("  <main class=\"govuk-main-wrapper\" id=\"main-content\" role=\"main\">\n")
	b.WriteString(strings.TrimSpace(code[start:end]))
	b.WriteString("\n  </main>\n</div>\n")
	b.WriteString(code[end:])
	return b.String()
}

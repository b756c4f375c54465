// Package preview renders generated fragments as complete GOV.UK documents
// and resolves the in-preview links between pages.
package preview

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"govgen/internal/govuk"
)

const (
	DefaultStylesheetURL = "https://design-system.service.gov.uk/stylesheets/main-8ac4d8a2fc1f22a06df330c13b616776.css"
	DefaultTitle         = "GOV.UK Preview"

	// MessageType tags the postMessage payload sent to the host window when
	// an internal link is clicked.
	MessageType = "govuk-page-link"
)

const welcomeFragment = `<div class="govuk-width-container">
  <main class="govuk-main-wrapper" id="main-content" role="main">
    <h1 class="govuk-heading-xl">Your page will appear here</h1>
    <p class="govuk-body">Describe the page you need and generate it to see a preview.</p>
  </main>
</div>`

//go:embed document.html.tmpl
var documentSource string

var documentTmpl = template.Must(template.New("document").Parse(documentSource))

type Options struct {
	Title         string
	StylesheetURL string
	// WithChrome adds the standard header and footer when the fragment does
	// not carry its own.
	WithChrome bool
}

type documentData struct {
	Title         string
	StylesheetURL string
	Header        template.HTML
	Content       template.HTML
	Footer        template.HTML
	MessageType   string
}

// Document wraps fragment in the themed shell. An empty fragment renders
// the welcome placeholder.
func Document(fragment string, opts Options) (string, error) {
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = DefaultTitle
	}
	if strings.TrimSpace(opts.StylesheetURL) == "" {
		opts.StylesheetURL = DefaultStylesheetURL
	}

	content := fragment
	if strings.TrimSpace(content) == "" {
		content = welcomeFragment
	}

	data := documentData{
		Title:         opts.Title,
		StylesheetURL: opts.StylesheetURL,
		Content:       template.HTML(content),
		MessageType:   MessageType,
	}
	if opts.WithChrome {
		if !strings.Contains(content, govuk.HeaderMarker) {
			data.Header = template.HTML(govuk.Header())
		}
		if !strings.Contains(content, govuk.FooterMarker) {
			data.Footer = template.HTML(govuk.Footer())
		}
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render preview document: %w", err)
	}
	return buf.String(), nil
}

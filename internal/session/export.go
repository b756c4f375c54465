package session

import (
	"fmt"
	"strings"

	"govgen/internal/pages"
	"govgen/internal/preview"
)

const fallbackFilename = "govuk-generated-page.html"

// ExportFilename derives the download name from a page name: lower case,
// spaces replaced with hyphens, ".html" appended.
func ExportFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fallbackFilename
	}
	r := strings.NewReplacer(" ", "-", "/", "-", `\`, "-")
	return r.Replace(strings.ToLower(name)) + ".html"
}

func (c *Controller) page(pageID string) (pages.Page, error) {
	if pageID == "" {
		pageID = c.pages.CurrentID()
	}
	p, ok := c.pages.Page(pageID)
	if !ok {
		return pages.Page{}, fmt.Errorf("page %q: %w", pageID, pages.ErrNotFound)
	}
	return p, nil
}

// Export returns the page's generated code byte for byte along with its
// download name. An empty id means the current page.
func (c *Controller) Export(pageID string) (string, []byte, error) {
	p, err := c.page(pageID)
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(p.Name), []byte(p.GeneratedCode), nil
}

// StandaloneDocument renders the page inside the themed shell so it can be
// opened on its own.
func (c *Controller) StandaloneDocument(pageID string) (string, error) {
	p, err := c.page(pageID)
	if err != nil {
		return "", err
	}
	opts := c.preview
	opts.Title = p.Name
	return preview.Document(p.GeneratedCode, opts)
}

// Links reports the internal links in a page and the pages they reach.
func (c *Controller) Links(pageID string) ([]preview.Link, error) {
	p, err := c.page(pageID)
	if err != nil {
		return nil, err
	}
	return preview.LinkReport(p.GeneratedCode, c.pages.Pages())
}

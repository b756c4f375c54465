package preview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govgen/internal/govuk"
	"govgen/internal/pages"
)

func TestDocumentWrapsFragment(t *testing.T) {
	doc, err := Document(`<p class="govuk-body">hello</p>`, Options{Title: "Contact", WithChrome: true})
	require.NoError(t, err)

	assert.Contains(t, doc, `<meta charset="utf-8">`)
	assert.Contains(t, doc, `<meta name="viewport"`)
	assert.Contains(t, doc, `href="`+DefaultStylesheetURL+`"`)
	assert.Contains(t, doc, "<title>Contact</title>")
	assert.Contains(t, doc, `<p class="govuk-body">hello</p>`)
	assert.Contains(t, doc, govuk.HeaderMarker)
	assert.Contains(t, doc, govuk.FooterMarker)
	assert.Contains(t, doc, `type: "govuk-page-link"`)
	assert.Contains(t, doc, "postMessage")
}

func TestDocumentSuppressesInternalLinksWithoutParent(t *testing.T) {
	doc, err := Document(`<a href="/next">next</a>`, Options{})
	require.NoError(t, err)

	prevent := strings.Index(doc, "e.preventDefault()")
	parentCheck := strings.Index(doc, "window.parent === window")
	pass := strings.Index(doc, "passThrough.test(href)")
	require.True(t, prevent >= 0 && parentCheck >= 0 && pass >= 0)
	assert.Less(t, pass, prevent, "external links must pass through before suppression")
	assert.Less(t, prevent, parentCheck, "internal links must be suppressed even when not framed")
}

func TestDocumentWithoutChrome(t *testing.T) {
	doc, err := Document(`<p>x</p>`, Options{})
	require.NoError(t, err)
	assert.NotContains(t, doc, `<header class="govuk-header"`)
	assert.NotContains(t, doc, `<footer class="govuk-footer"`)
	assert.Contains(t, doc, "<title>"+DefaultTitle+"</title>")
}

func TestDocumentDoesNotDuplicateChrome(t *testing.T) {
	doc, err := Document(govuk.Normalize("<p>x</p>"), Options{WithChrome: true})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(doc, `<header class="govuk-header"`))
	assert.Equal(t, 1, strings.Count(doc, `<footer class="govuk-footer"`))
}

func TestDocumentEmptyShowsWelcome(t *testing.T) {
	doc, err := Document("   ", Options{})
	require.NoError(t, err)
	assert.Contains(t, doc, "Your page will appear here")
}

func TestDocumentEscapesTitle(t *testing.T) {
	doc, err := Document("<p>x</p>", Options{Title: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.NotContains(t, doc, "<title><script>")
}

func TestPassesThrough(t *testing.T) {
	for _, href := range []string{"https://gov.uk", "http://x", "//cdn", "mailto:a@b", "tel:123", "#top", "HTTPS://X"} {
		assert.True(t, PassesThrough(href), href)
	}
	for _, href := range []string{"/contact", "contact.html", "./start", ""} {
		assert.False(t, PassesThrough(href), href)
	}
}

func TestNavigationToken(t *testing.T) {
	cases := map[string]string{
		"/contact":           "contact",
		"//":                 "",
		"contact.html":       "contact",
		"/Contact%20Us.HTML": "Contact Us",
		"/start?step=2#top":  "start",
		"///apply.html":      "apply",
		"/":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NavigationToken(in), in)
	}
}

func TestResolve(t *testing.T) {
	all := []pages.Page{{ID: "1", Name: "Home"}, {ID: "2", Name: "Contact Us"}}

	p, ok := Resolve("/contact%20us.html", all)
	require.True(t, ok)
	assert.Equal(t, "2", p.ID)

	p, ok = Resolve("home", all)
	require.True(t, ok)
	assert.Equal(t, "1", p.ID)

	_, ok = Resolve("/", all)
	assert.False(t, ok)
	_, ok = Resolve("/missing", all)
	assert.False(t, ok)
}

func TestLinkReport(t *testing.T) {
	code := `<a href="/contact">c</a><a href="https://gov.uk">g</a><a href="/contact">again</a><a href="apply.html">a</a><a href="#main">skip</a>`
	all := []pages.Page{{ID: "2", Name: "Contact"}}

	links, err := LinkReport(code, all)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, Link{Href: "/contact", PageID: "2", PageName: "Contact"}, links[0])
	assert.Equal(t, Link{Href: "apply.html", Dangling: true}, links[1])
}

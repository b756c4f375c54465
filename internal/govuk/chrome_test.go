package govuk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```html\n<div>ok</div>\n```": "<div>ok</div>",
		"```\n<p>x</p>```":            "<p>x</p>",
		"  <p>plain</p>  ":            "<p>plain</p>",
		"":                            "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripFences(in), "input %q", in)
	}
}

func TestNormalizeWrapsBareFragment(t *testing.T) {
	out := Normalize("<div>ok</div>")

	require.Contains(t, out, HeaderMarker)
	require.Contains(t, out, FooterMarker)
	require.Contains(t, out, MainMarker)

	header := strings.Index(out, "</header>")
	main := strings.Index(out, `<main class="govuk-main-wrapper"`)
	body := strings.Index(out, "<div>ok</div>")
	closeMain := strings.Index(out, "</main>")
	footer := strings.Index(out, "<footer")
	assert.True(t, header < main && main < body && body < closeMain && closeMain < footer,
		"unexpected order: header=%d main=%d body=%d /main=%d footer=%d", header, main, body, closeMain, footer)
}

func TestNormalizeKeepsCompleteDocument(t *testing.T) {
	in := Header() + `<main class="govuk-main-wrapper"><p>x</p></main>` + Footer()
	assert.Equal(t, in, Normalize(in))
}

func TestNormalizeSkipsMainWithoutClosingHeader(t *testing.T) {
	in := `<div class="govuk-header">custom</div><p>x</p><footer class="govuk-footer"></footer>`
	assert.Equal(t, in, Normalize(in))
}

func TestNormalizeSkipsMainWhenFooterPrecedesHeader(t *testing.T) {
	in := `<footer class="govuk-footer"></footer><header class="govuk-header"></header><p>x</p>`
	assert.Equal(t, in, Normalize(in))
}

func TestNormalizeSkipsMainWhenFooterFollowsHeaderDirectly(t *testing.T) {
	in := `<header class="govuk-header"></header><footer class="govuk-footer"></footer>`
	out := Normalize(in)
	assert.Equal(t, in, out)
	assert.NotContains(t, out, MainMarker)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize("<h1 class=\"govuk-heading-xl\">Hi</h1>")
	assert.Equal(t, once, Normalize(once))
}

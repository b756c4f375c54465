package preview

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"govgen/internal/pages"
)

// PassesThrough reports whether a link is left to the browser instead of
// being turned into page navigation.
func PassesThrough(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	for _, prefix := range []string{"http", "//", "mailto:", "tel:", "#"} {
		if strings.HasPrefix(h, prefix) {
			return true
		}
	}
	return false
}

// NavigationToken reduces an internal href to the page name it points at:
// "/contact-us.html?x=1" becomes "contact-us".
func NavigationToken(href string) string {
	t := strings.TrimSpace(href)
	if i := strings.IndexAny(t, "?#"); i >= 0 {
		t = t[:i]
	}
	if u, err := url.PathUnescape(t); err == nil {
		t = u
	}
	t = strings.TrimLeft(t, "/")
	if len(t) >= len(".html") && strings.EqualFold(t[len(t)-len(".html"):], ".html") {
		t = t[:len(t)-len(".html")]
	}
	return strings.TrimSpace(t)
}

// Resolve finds the page an internal href names, comparing names without
// regard to case.
func Resolve(href string, all []pages.Page) (pages.Page, bool) {
	token := NavigationToken(href)
	if token == "" {
		return pages.Page{}, false
	}
	for _, p := range all {
		if strings.EqualFold(strings.TrimSpace(p.Name), token) {
			return p, true
		}
	}
	return pages.Page{}, false
}

// InternalLinks lists the distinct internal hrefs in a document, in order
// of first appearance.
func InternalLinks(doc string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := map[string]bool{}
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				href := strings.TrimSpace(a.Val)
				if href != "" && !PassesThrough(href) && !seen[href] {
					seen[href] = true
					out = append(out, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out, nil
}

type Link struct {
	Href     string `json:"href"`
	PageID   string `json:"pageId,omitempty"`
	PageName string `json:"pageName,omitempty"`
	Dangling bool   `json:"dangling"`
}

// LinkReport resolves every internal link in code against the known pages.
func LinkReport(code string, all []pages.Page) ([]Link, error) {
	hrefs, err := InternalLinks(code)
	if err != nil {
		return nil, err
	}
	out := make([]Link, 0, len(hrefs))
	for _, h := range hrefs {
		l := Link{Href: h}
		if p, ok := Resolve(h, all); ok {
			l.PageID, l.PageName = p.ID, p.Name
		} else {
			l.Dangling = true
		}
		out = append(out, l)
	}
	return out, nil
}

package textpolicy

import (
	"html"
	"strings"
)

// Link is one social network entry of the footer.
type Link struct {
	Label string
	URL   string
}

// FooterConfig describes how to render the visible footer.
type FooterConfig struct {
	// Text overrides everything else when set. It is used as-is.
	Text    string
	Header  string
	Links   []Link
	Linked  bool
	OneLine bool
	HTML    bool
}

// BuildFooter renders the footer. Links without a URL are skipped.
func BuildFooter(c FooterConfig) string {
	if strings.TrimSpace(c.Text) != "" {
		return strings.TrimSpace(c.Text)
	}
	parts := make([]string, 0, len(c.Links))
	for _, l := range c.Links {
		if l.URL == "" {
			continue
		}
		parts = append(parts, renderLink(l, c.Linked, c.HTML))
	}
	header := c.Header
	if c.HTML {
		header = html.EscapeString(header)
	}
	if len(parts) == 0 {
		return header
	}
	sep := "\n"
	if c.OneLine {
		sep = " "
	}
	if header == "" {
		return strings.Join(parts, " | ")
	}
	return header + sep + strings.Join(parts, " | ")
}

func renderLink(l Link, linked, isHTML bool) string {
	if !isHTML {
		return l.Label + ": " + l.URL
	}
	if linked {
		return `<a href="` + html.EscapeString(l.URL) + `">` + html.EscapeString(l.Label) + "</a>"
	}
	return html.EscapeString(l.Label + ": " + l.URL)
}

package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// dropElements are never rendered: neither their text nor their links
// are extracted.
var dropElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
}

// chromeElements hold site chrome. Their links are kept but their text
// is left out of content and sections.
var chromeElements = map[atom.Atom]bool{
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

type page struct {
	title       string
	description string
	sections    []Section
	links       []Link
	text        string
}

type extractor struct {
	base *url.URL

	text     strings.Builder
	sections []Section
	current  *strings.Builder
	links    []Link
	seen     map[string]bool
}

// extractHTML parses raw and extracts structured content. Relative
// links resolve against base.
func extractHTML(raw string, base *url.URL) page {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return page{sections: []Section{}, links: []Link{}, text: stripTags(raw)}
	}

	e := &extractor{base: base, seen: make(map[string]bool)}
	root := findElement(doc, atom.Body)
	if root == nil {
		root = doc
	}
	e.walk(root, false)
	e.flushSection()

	p := page{
		title:       collapse(textContent(findElement(doc, atom.Title))),
		description: metaDescription(doc),
		sections:    e.sections,
		links:       e.links,
		text:        cleanWhitespace(e.text.String()),
	}
	if p.sections == nil {
		p.sections = []Section{}
	}
	if p.links == nil {
		p.links = []Link{}
	}
	return p
}

func (e *extractor) walk(n *html.Node, chrome bool) {
	switch n.Type {
	case html.TextNode:
		if chrome {
			return
		}
		text := strings.TrimSpace(n.Data)
		if text == "" {
			return
		}
		e.text.WriteString(text)
		e.text.WriteByte(' ')
		if e.current != nil {
			e.current.WriteString(text)
			e.current.WriteByte(' ')
		}
		return
	case html.ElementNode:
		if dropElements[n.DataAtom] {
			return
		}
		if chromeElements[n.DataAtom] {
			chrome = true
		}
		if n.DataAtom == atom.A {
			e.addLink(n)
		}
		if level, ok := headingLevels[n.DataAtom]; ok && !chrome {
			e.startSection(n, level)
			return
		}
		if isBlockElement(n.DataAtom) && !chrome {
			e.text.WriteString("\n\n")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c, chrome)
	}

	if n.Type == html.ElementNode && !chrome && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		e.text.WriteByte('\n')
	}
}

// startSection closes the open section and opens one for heading n.
// Links inside the heading are still collected.
func (e *extractor) startSection(n *html.Node, level int) {
	e.flushSection()
	heading := collapse(textContent(n))
	e.text.WriteString("\n\n")
	e.text.WriteString(heading)
	e.text.WriteString("\n\n")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.collectLinks(c)
	}
	if heading == "" {
		return
	}
	e.sections = append(e.sections, Section{Heading: heading, Level: level})
	e.current = &strings.Builder{}
}

func (e *extractor) flushSection() {
	if e.current == nil || len(e.sections) == 0 {
		return
	}
	e.sections[len(e.sections)-1].Text = collapse(e.current.String())
	e.current = nil
}

func (e *extractor) collectLinks(n *html.Node) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		e.addLink(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.collectLinks(c)
	}
}

// addLink records an anchor's resolved href. Fragment-only, script and
// non-http links are dropped, and each href is kept once.
func (e *extractor) addLink(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	ref, err := url.Parse(href)
	if err != nil {
		return
	}
	abs := ref
	if e.base != nil {
		abs = e.base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return
	}
	abs.Fragment = ""
	key := abs.String()
	if e.seen[key] {
		return
	}
	e.seen[key] = true
	text := collapse(textContent(n))
	if text == "" {
		text = collapse(attr(n, "title"))
	}
	e.links = append(e.links, Link{Text: text, Href: key})
}

func metaDescription(doc *html.Node) string {
	var desc, og string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			if strings.EqualFold(attr(n, "name"), "description") {
				desc = attr(n, "content")
			}
			if strings.EqualFold(attr(n, "property"), "og:description") {
				og = attr(n, "content")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	if desc == "" {
		desc = og
	}
	return collapse(desc)
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the concatenated text below n, skipping dropped
// elements.
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && dropElements[n.DataAtom] {
		return ""
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
		b.WriteByte(' ')
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Table,
		atom.Tr, atom.Dl, atom.Dd, atom.Dt, atom.Figcaption, atom.Figure,
		atom.Details, atom.Summary, atom.Hr:
		return true
	}
	return false
}

// cleanWhitespace collapses spaces within lines and runs of blank lines.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = collapse(line)
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// stripTags keeps only text tokens; used when the document does not parse.
func stripTags(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

package docread

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	pageBreakStyle = regexp.MustCompile(`(?i)page-break-(?:before|after)\s*:\s*always`)
	msoTabCount    = regexp.MustCompile(`(?i)mso-tab-count\s*:\s*(\d+)`)
	msoTocClass    = regexp.MustCompile(`(?i)^MsoToc(\d)$`)
)

// ReadHTMLFile reads a Word "Save as Web Page" export.
func ReadHTMLFile(filename string) (*Document, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open html %s: %w", filename, err)
	}
	defer f.Close()
	return ReadHTML(f)
}

// ReadHTML parses HTML into paragraphs. Headings h1..h6 get the styles
// "Heading 1".."Heading 6"; table content is skipped.
func ReadHTML(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc := &Document{}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Head:
				title = findTitle(n)
				return
			case atom.Table, atom.Script, atom.Style:
				return
			case atom.Header:
				doc.Header = append(doc.Header, blockLines(n)...)
				return
			case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Li, atom.Pre, atom.Blockquote:
				doc.Paragraphs = append(doc.Paragraphs, paragraphOf(n))
				return
			case atom.Div:
				if !hasBlockChild(n) {
					if p := paragraphOf(n); strings.TrimSpace(p.Text) != "" || p.PageBreak {
						doc.Paragraphs = append(doc.Paragraphs, p)
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if len(doc.Header) == 0 && title != "" {
		doc.Header = []string{title}
	}
	return doc, nil
}

func findTitle(head *html.Node) string {
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Title {
			return strings.TrimSpace(textOf(c))
		}
	}
	return ""
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Ul, atom.Ol, atom.Li, atom.Table, atom.Pre, atom.Blockquote, atom.Header:
			return true
		}
	}
	return false
}

func styleOf(n *html.Node) string {
	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return "Heading " + n.Data[1:]
	}
	for _, class := range strings.Fields(getAttr(n, "class")) {
		if m := msoTocClass.FindStringSubmatch(class); m != nil {
			return "toc " + m[1]
		}
	}
	return "Normal"
}

func paragraphOf(n *html.Node) Paragraph {
	p := Paragraph{Style: styleOf(n)}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(collapseSpace(c.Data))
			return
		case html.ElementNode:
			style := getAttr(c, "style")
			if pageBreakStyle.MatchString(style) {
				p.PageBreak = true
			}
			if m := msoTabCount.FindStringSubmatch(style); m != nil {
				n, err := strconv.Atoi(m[1])
				if err != nil || n < 1 {
					n = 1
				}
				sb.WriteString(strings.Repeat("\t", n))
				return
			}
			if c.DataAtom == atom.Br {
				if !pageBreakStyle.MatchString(style) {
					sb.WriteByte('\n')
				}
				return
			}
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	if pageBreakStyle.MatchString(getAttr(n, "style")) {
		p.PageBreak = true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}
	p.Text = strings.TrimSpace(strings.ReplaceAll(sb.String(), "\u00a0", " "))
	return p
}

func blockLines(n *html.Node) []string {
	var out []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			if t := paragraphOf(c).Text; t != "" {
				out = append(out, t)
			}
		} else if t := strings.TrimSpace(c.Data); c.Type == html.TextNode && t != "" {
			out = append(out, t)
		}
	}
	return out
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return sb.String()
}

// collapseSpace folds source line breaks and indentation to single spaces,
// as a browser would. Tabs produced by mso-tab-count spans are added
// separately.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\n', '\r', '\t':
			if !space {
				sb.WriteByte(' ')
			}
			space = true
		default:
			sb.WriteRune(r)
			space = false
		}
	}
	return sb.String()
}

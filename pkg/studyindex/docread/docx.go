package docread

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	documentPart = "word/document.xml"
	stylesPart   = "word/styles.xml"
	relsPart     = "word/_rels/document.xml.rels"
)

// ReadDocx reads a WordprocessingML package. Only body paragraphs are
// returned; paragraphs inside tables and text boxes are skipped.
func ReadDocx(filename string) (*Document, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open docx %s: %w", filename, err)
	}
	defer zr.Close()
	return readDocxZip(&zr.Reader)
}

func readDocxZip(zr *zip.Reader) (*Document, error) {
	parts := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		parts[f.Name] = f
	}

	main, ok := parts[documentPart]
	if !ok {
		return nil, errors.New("docx: missing " + documentPart)
	}

	styles := map[string]string{}
	if f, ok := parts[stylesPart]; ok {
		s, err := withPart(f, readStyles)
		if err != nil {
			return nil, err
		}
		styles = s
	}

	body, err := withPart(main, func(r io.Reader) (bodyResult, error) { return readBody(r, styles) })
	if err != nil {
		return nil, err
	}
	doc := &Document{Paragraphs: body.paragraphs}

	headerPart := ""
	if body.headerRel != "" {
		if f, ok := parts[relsPart]; ok {
			rels, err := withPart(f, readRels)
			if err != nil {
				return nil, err
			}
			if target, ok := rels[body.headerRel]; ok {
				headerPart = path.Join("word", target)
			}
		}
	}
	if _, ok := parts[headerPart]; !ok {
		headerPart = "word/header1.xml"
	}
	if f, ok := parts[headerPart]; ok {
		hdr, err := withPart(f, func(r io.Reader) (bodyResult, error) { return readParagraphs(r, styles, true) })
		if err != nil {
			return nil, err
		}
		for _, p := range hdr.paragraphs {
			doc.Header = append(doc.Header, p.Text)
		}
	}
	return doc, nil
}

func withPart[T any](f *zip.File, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	rc, err := f.Open()
	if err != nil {
		return zero, fmt.Errorf("docx %s: %w", f.Name, err)
	}
	defer rc.Close()
	v, err := read(rc)
	if err != nil {
		return zero, fmt.Errorf("docx %s: %w", f.Name, err)
	}
	return v, nil
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// readStyles maps style ids to display names.
func readStyles(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	dec := xml.NewDecoder(r)
	current := ""
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "style":
			current = attr(se, "styleId")
		case "name":
			if current != "" {
				out[current] = displayStyleName(attr(se, "val"))
			}
		}
	}
}

// displayStyleName capitalizes built-in lower-case names such as
// "heading 1" the way Word shows them.
func displayStyleName(name string) string {
	if name == "" || strings.ToLower(name) != name {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// readRels maps relationship ids to part targets.
func readRels(r io.Reader) (map[string]string, error) {
	out := make(map[string]string)
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "Relationship" {
			out[attr(se, "Id")] = attr(se, "Target")
		}
	}
}

type bodyResult struct {
	paragraphs []Paragraph
	headerRel  string
}

func readBody(r io.Reader, styles map[string]string) (bodyResult, error) {
	return readParagraphs(r, styles, false)
}

// paragraph containers that keep a paragraph in the main flow
var flowContainers = map[string]bool{
	"body": true, "sdt": true, "sdtContent": true, "hdr": true, "ftr": true,
	"customXml": true, "ins": true,
}

// readParagraphs walks WordprocessingML and collects paragraphs whose
// ancestors are all flow containers. With all set, every paragraph is kept
// (used for header parts).
func readParagraphs(r io.Reader, styles map[string]string, all bool) (bodyResult, error) {
	var (
		res   bodyResult
		stack []string
		cur   *Paragraph
		sb    strings.Builder
		inRun int
	)
	dec := xml.NewDecoder(r)

	inFlow := func() bool {
		if all {
			return true
		}
		for _, name := range stack {
			if name == "document" {
				continue
			}
			if !flowContainers[name] {
				return false
			}
		}
		return true
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case name == "p" && cur == nil && inFlow():
				cur = &Paragraph{Style: "Normal"}
				sb.Reset()
			case name == "headerReference" && res.headerRel == "" && attr(t, "type") == "default":
				res.headerRel = attr(t, "id")
			case cur != nil:
				switch name {
				case "r":
					inRun++
				case "pStyle":
					if id := attr(t, "val"); id != "" {
						if display, ok := styles[id]; ok {
							cur.Style = display
						} else {
							cur.Style = id
						}
					}
				case "tab":
					if inRun > 0 {
						sb.WriteByte('\t')
					}
				case "br", "cr":
					if attr(t, "type") == "page" {
						cur.PageBreak = true
					} else if inRun > 0 {
						sb.WriteByte('\n')
					}
				case "lastRenderedPageBreak":
					cur.PageBreak = true
				case "noBreakHyphen":
					sb.WriteByte('-')
				}
			}
			stack = append(stack, name)

		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if cur == nil {
				continue
			}
			switch t.Name.Local {
			case "r":
				inRun--
			case "p":
				if inFlow() {
					cur.Text = sb.String()
					res.paragraphs = append(res.paragraphs, *cur)
					cur = nil
					inRun = 0
				}
			}

		case xml.CharData:
			if cur != nil && len(stack) > 0 && stack[len(stack)-1] == "t" {
				sb.Write(t)
			}
		}
	}
}

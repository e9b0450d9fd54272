package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// OOXML document model for the run splicer.
//
// The model interprets only what the splicer needs to touch: paragraphs,
// their runs, and the tables that hold more paragraphs. Everything else
// (section properties, bookmarks, drawings, the document's root element and
// its namespace declarations) is captured as verbatim byte ranges of the
// original word/document.xml and written back untouched. That keeps the
// splicer's preservation invariant at the byte level instead of depending on
// how faithfully a struct model can round-trip arbitrary markup.

// Document represents the parsed word/document.xml.
type Document struct {
	prologue []byte // up to and including the body start tag
	epilogue []byte // from the body end tag to EOF
	Elements []BodyElement
}

// BodyElement is any element that can appear in the document body or inside
// a table cell.
type BodyElement interface {
	isBodyElement()
}

// RawElement is a body-level element the splicer has no business touching,
// preserved verbatim.
type RawElement struct {
	XML []byte
}

func (*RawElement) isBodyElement() {}

// Paragraph is an ordered sequence of runs whose concatenated text is the
// paragraph's rendered content.
type Paragraph struct {
	tag        []byte // original start tag, nil for constructed paragraphs
	Properties []byte // raw w:pPr element, nil when absent
	Runs       []Run
}

func (*Paragraph) isBodyElement() {}

// Run is an atomic span of text with one uniform style. A run whose Opaque
// field is set is not a text run at all but some other paragraph child
// (bookmark, proofing mark) that must keep its position among the runs.
type Run struct {
	tag        []byte
	Properties []byte // raw w:rPr element, nil means ambient style
	Text       *Text
	Break      *Break
	Extra      [][]byte // unrecognized run children, e.g. drawings
	Opaque     []byte
}

// IsOpaque reports whether the run is a verbatim non-run paragraph child.
func (r *Run) IsOpaque() bool { return r.Opaque != nil }

// spliceable reports whether the run carries plain text the splicer may
// search, split, and merge.
func (r *Run) spliceable() bool {
	return !r.IsOpaque() && r.Text != nil && r.Break == nil && len(r.Extra) == 0
}

// Text represents a w:t element.
type Text struct {
	Space   string // the xml:space attribute, if any
	Content string
}

// Break represents a w:br element.
type Break struct {
	Type string
}

// Table represents a w:tbl element.
type Table struct {
	tag   []byte
	Extra [][]byte // tblPr, tblGrid
	Rows  []TableRow
}

func (*Table) isBodyElement() {}

// TableRow represents a w:tr element.
type TableRow struct {
	tag   []byte
	Extra [][]byte // trPr
	Cells []TableCell
}

// TableCell represents a w:tc element. Cells hold body elements so nested
// tables keep their paragraphs reachable.
type TableCell struct {
	tag      []byte
	Extra    [][]byte // tcPr
	Elements []BodyElement
}

// GetText returns the text content of a run.
func (r *Run) GetText() string {
	if r.Text == nil {
		return ""
	}
	return r.Text.Content
}

// GetText returns the concatenated text of all runs in a paragraph.
func (p *Paragraph) GetText() string {
	var b strings.Builder
	for i := range p.Runs {
		b.WriteString(p.Runs[i].GetText())
	}
	return b.String()
}

// Paragraphs returns every paragraph in the document: body paragraphs and
// the paragraphs inside every table cell, tables nested or not.
func (d *Document) Paragraphs() []*Paragraph {
	return collectParagraphs(d.Elements)
}

func collectParagraphs(elements []BodyElement) []*Paragraph {
	var out []*Paragraph
	for _, elem := range elements {
		switch e := elem.(type) {
		case *Paragraph:
			out = append(out, e)
		case *Table:
			for i := range e.Rows {
				for j := range e.Rows[i].Cells {
					out = append(out, collectParagraphs(e.Rows[i].Cells[j].Elements)...)
				}
			}
		}
	}
	return out
}

// docParser walks the decoder and slices raw byte ranges out of the source.
type docParser struct {
	dec *xml.Decoder
	src []byte
}

// ParseDocument parses the raw bytes of a word/document.xml.
func ParseDocument(src []byte) (*Document, error) {
	p := &docParser{
		dec: xml.NewDecoder(bytes.NewReader(src)),
		src: src,
	}
	doc := &Document{}

	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("document has no body element")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "body" {
			continue
		}
		doc.prologue = src[:p.dec.InputOffset()]
		break
	}

	for {
		off := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to parse document body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			elem, err := p.parseBodyElement(t, off)
			if err != nil {
				return nil, err
			}
			doc.Elements = append(doc.Elements, elem)
		case xml.EndElement:
			if t.Name.Local == "body" {
				doc.epilogue = src[off:]
				return doc, nil
			}
		}
	}
}

func (p *docParser) parseBodyElement(start xml.StartElement, off int64) (BodyElement, error) {
	switch start.Name.Local {
	case "p":
		return p.parseParagraph(off)
	case "tbl":
		return p.parseTable(off)
	default:
		raw, err := p.skipRaw(off)
		if err != nil {
			return nil, err
		}
		return &RawElement{XML: raw}, nil
	}
}

// startTag returns the original bytes of the start tag that was just
// consumed, rewritten as an open tag when the source element was
// self-closing so a matching end tag can be appended at marshal time.
func (p *docParser) startTag(off int64) []byte {
	tag := p.src[off:p.dec.InputOffset()]
	if bytes.HasSuffix(tag, []byte("/>")) {
		open := make([]byte, 0, len(tag)-1)
		open = append(open, tag[:len(tag)-2]...)
		open = append(open, '>')
		return open
	}
	return tag
}

// skipRaw consumes the rest of the current element and returns its complete
// original bytes, start tag included.
func (p *docParser) skipRaw(off int64) ([]byte, error) {
	if err := p.dec.Skip(); err != nil {
		return nil, err
	}
	return p.src[off:p.dec.InputOffset()], nil
}

func (p *docParser) parseParagraph(off int64) (*Paragraph, error) {
	para := &Paragraph{tag: p.startTag(off)}
	for {
		coff := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "pPr":
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				para.Properties = raw
			case "r":
				run, err := p.parseRun(coff)
				if err != nil {
					return nil, err
				}
				para.Runs = append(para.Runs, *run)
			default:
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				para.Runs = append(para.Runs, Run{Opaque: raw})
			}
		case xml.EndElement:
			return para, nil
		}
	}
}

func (p *docParser) parseRun(off int64) (*Run, error) {
	run := &Run{tag: p.startTag(off)}
	for {
		coff := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "rPr":
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				run.Properties = raw
			case "t":
				text := &Text{}
				for _, attr := range t.Attr {
					if attr.Name.Local == "space" {
						text.Space = attr.Value
					}
				}
				var body struct {
					Content string `xml:",chardata"`
				}
				if err := p.dec.DecodeElement(&body, &t); err != nil {
					return nil, err
				}
				text.Content = body.Content
				run.Text = text
			case "br":
				br := &Break{}
				for _, attr := range t.Attr {
					if attr.Name.Local == "type" {
						br.Type = attr.Value
					}
				}
				if err := p.dec.Skip(); err != nil {
					return nil, err
				}
				run.Break = br
			default:
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				run.Extra = append(run.Extra, raw)
			}
		case xml.EndElement:
			return run, nil
		}
	}
}

func (p *docParser) parseTable(off int64) (*Table, error) {
	table := &Table{tag: p.startTag(off)}
	for {
		coff := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "tr" {
				row, err := p.parseTableRow(coff)
				if err != nil {
					return nil, err
				}
				table.Rows = append(table.Rows, *row)
			} else {
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				table.Extra = append(table.Extra, raw)
			}
		case xml.EndElement:
			return table, nil
		}
	}
}

func (p *docParser) parseTableRow(off int64) (*TableRow, error) {
	row := &TableRow{tag: p.startTag(off)}
	for {
		coff := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "tc" {
				cell, err := p.parseTableCell(coff)
				if err != nil {
					return nil, err
				}
				row.Cells = append(row.Cells, *cell)
			} else {
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				row.Extra = append(row.Extra, raw)
			}
		case xml.EndElement:
			return row, nil
		}
	}
}

func (p *docParser) parseTableCell(off int64) (*TableCell, error) {
	cell := &TableCell{tag: p.startTag(off)}
	for {
		coff := p.dec.InputOffset()
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para, err := p.parseParagraph(coff)
				if err != nil {
					return nil, err
				}
				cell.Elements = append(cell.Elements, para)
			case "tbl":
				nested, err := p.parseTable(coff)
				if err != nil {
					return nil, err
				}
				cell.Elements = append(cell.Elements, nested)
			default:
				raw, err := p.skipRaw(coff)
				if err != nil {
					return nil, err
				}
				cell.Extra = append(cell.Extra, raw)
			}
		case xml.EndElement:
			return cell, nil
		}
	}
}

// Marshal serializes the document back into the bytes of a complete
// word/document.xml. Untouched content is emitted from the captured byte
// ranges; only paragraphs and runs are re-rendered.
func (d *Document) Marshal() []byte {
	var b bytes.Buffer
	b.Write(d.prologue)
	writeElements(&b, d.Elements)
	b.Write(d.epilogue)
	return b.Bytes()
}

func writeElements(b *bytes.Buffer, elements []BodyElement) {
	for _, elem := range elements {
		switch e := elem.(type) {
		case *Paragraph:
			writeParagraph(b, e)
		case *Table:
			writeTable(b, e)
		case *RawElement:
			b.Write(e.XML)
		}
	}
}

func writeParagraph(b *bytes.Buffer, p *Paragraph) {
	writeStartTag(b, p.tag, "<w:p>")
	b.Write(p.Properties)
	for i := range p.Runs {
		writeRun(b, &p.Runs[i])
	}
	b.WriteString("</w:p>")
}

func writeRun(b *bytes.Buffer, r *Run) {
	if r.IsOpaque() {
		b.Write(r.Opaque)
		return
	}
	writeStartTag(b, r.tag, "<w:r>")
	b.Write(r.Properties)
	if r.Text != nil {
		writeText(b, r.Text)
	}
	if r.Break != nil {
		if r.Break.Type != "" {
			fmt.Fprintf(b, `<w:br w:type="%s"/>`, escapeAttr(r.Break.Type))
		} else {
			b.WriteString("<w:br/>")
		}
	}
	for _, extra := range r.Extra {
		b.Write(extra)
	}
	b.WriteString("</w:r>")
}

func writeText(b *bytes.Buffer, t *Text) {
	space := t.Space
	if space == "" && needsSpacePreserve(t.Content) {
		space = "preserve"
	}
	if space != "" {
		fmt.Fprintf(b, `<w:t xml:space="%s">`, escapeAttr(space))
	} else {
		b.WriteString("<w:t>")
	}
	if err := xml.EscapeText(b, []byte(t.Content)); err != nil {
		// EscapeText only fails on writer errors, which bytes.Buffer
		// never produces.
		b.WriteString(t.Content)
	}
	b.WriteString("</w:t>")
}

// needsSpacePreserve reports whether Word would trim the text without an
// explicit xml:space="preserve".
func needsSpacePreserve(s string) bool {
	return s != strings.TrimSpace(s)
}

func writeTable(b *bytes.Buffer, t *Table) {
	writeStartTag(b, t.tag, "<w:tbl>")
	for _, extra := range t.Extra {
		b.Write(extra)
	}
	for i := range t.Rows {
		writeTableRow(b, &t.Rows[i])
	}
	b.WriteString("</w:tbl>")
}

func writeTableRow(b *bytes.Buffer, r *TableRow) {
	writeStartTag(b, r.tag, "<w:tr>")
	for _, extra := range r.Extra {
		b.Write(extra)
	}
	for i := range r.Cells {
		writeTableCell(b, &r.Cells[i])
	}
	b.WriteString("</w:tr>")
}

func writeTableCell(b *bytes.Buffer, c *TableCell) {
	writeStartTag(b, c.tag, "<w:tc>")
	for _, extra := range c.Extra {
		b.Write(extra)
	}
	writeElements(b, c.Elements)
	b.WriteString("</w:tc>")
}

func writeStartTag(b *bytes.Buffer, original []byte, fallback string) {
	if len(original) > 0 {
		b.Write(original)
		return
	}
	b.WriteString(fallback)
}

package report

import (
	"bytes"
	"strings"
	"testing"
)

const docHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
	`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">`

// wrapDoc builds a complete word/document.xml around the given body markup.
func wrapDoc(body string) []byte {
	return []byte(docHeader + `<w:body>` + body + `</w:body></w:document>`)
}

func parseDoc(t *testing.T, body string) *Document {
	t.Helper()
	doc, err := ParseDocument(wrapDoc(body))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	return doc
}

func TestParseDocumentRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "plain paragraph",
			body: `<w:p><w:r><w:t>Hello</w:t></w:r></w:p>`,
		},
		{
			name: "styled runs and properties",
			body: `<w:p><w:pPr><w:jc w:val="center"/></w:pPr>` +
				`<w:r><w:rPr><w:b/><w:color w:val="FF0000"/></w:rPr><w:t xml:space="preserve">Bold </w:t></w:r>` +
				`<w:r><w:t>plain</w:t></w:r></w:p>`,
		},
		{
			name: "bookmarks and section properties preserved",
			body: `<w:p><w:bookmarkStart w:id="0" w:name="top"/><w:r><w:t>x</w:t></w:r><w:bookmarkEnd w:id="0"/></w:p>` +
				`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/></w:sectPr>`,
		},
		{
			name: "table with nested content",
			body: `<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid><w:gridCol w:w="4788"/></w:tblGrid>` +
				`<w:tr><w:trPr><w:trHeight w:val="240"/></w:trPr>` +
				`<w:tc><w:tcPr><w:tcW w:w="4788" w:type="dxa"/></w:tcPr><w:p><w:r><w:t>cell</w:t></w:r></w:p></w:tc>` +
				`</w:tr></w:tbl>`,
		},
		{
			name: "break and drawing content",
			body: `<w:p><w:r><w:t>a</w:t></w:r><w:r><w:br w:type="page"/></w:r>` +
				`<w:r><w:drawing><wp:inline xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"/></w:drawing></w:r></w:p>`,
		},
		{
			name: "empty self closing paragraph",
			body: `<w:p/><w:p><w:r><w:t>after</w:t></w:r></w:p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := wrapDoc(tt.body)
			doc, err := ParseDocument(src)
			if err != nil {
				t.Fatalf("ParseDocument() error = %v", err)
			}
			got := doc.Marshal()
			want := normalizeFixture(src)
			if !bytes.Equal(got, want) {
				t.Errorf("round trip changed the document\n got: %s\nwant: %s", got, want)
			}
		})
	}
}

// normalizeFixture rewrites the fixture the way the marshaller does for the
// elements it re-renders: self-closing paragraph tags become open/close
// pairs. Everything else must survive byte for byte.
func normalizeFixture(src []byte) []byte {
	return bytes.ReplaceAll(src, []byte("<w:p/>"), []byte("<w:p></w:p>"))
}

func TestDocumentParagraphs(t *testing.T) {
	doc := parseDoc(t,
		`<w:p><w:r><w:t>body</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>outer cell</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>nested cell</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`</w:tc></w:tr></w:tbl>`)

	paras := doc.Paragraphs()
	var texts []string
	for _, p := range paras {
		texts = append(texts, p.GetText())
	}
	want := []string{"body", "outer cell", "nested cell"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("paragraph texts = %v, want %v", texts, want)
	}
}

func TestCoalesceRuns(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantRuns int
		wantText string
	}{
		{
			name: "same properties merge",
			body: `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>Hel</w:t></w:r>` +
				`<w:r><w:rPr><w:b/></w:rPr><w:t>lo</w:t></w:r></w:p>`,
			wantRuns: 1,
			wantText: "Hello",
		},
		{
			name: "different properties stay split",
			body: `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>a</w:t></w:r>` +
				`<w:r><w:rPr><w:i/></w:rPr><w:t>b</w:t></w:r></w:p>`,
			wantRuns: 2,
			wantText: "ab",
		},
		{
			name: "ambient runs merge",
			body: `<w:p><w:r><w:t>a</w:t></w:r><w:r><w:t>b</w:t></w:r><w:r><w:t>c</w:t></w:r></w:p>`,
			wantRuns: 1,
			wantText: "abc",
		},
		{
			name: "break is a barrier",
			body: `<w:p><w:r><w:t>a</w:t></w:r><w:r><w:br/></w:r><w:r><w:t>b</w:t></w:r></w:p>`,
			wantRuns: 3,
			wantText: "ab",
		},
		{
			name: "bookmark is a barrier",
			body: `<w:p><w:r><w:t>a</w:t></w:r><w:bookmarkStart w:id="0" w:name="m"/><w:r><w:t>b</w:t></w:r></w:p>`,
			wantRuns: 3,
			wantText: "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, tt.body)
			p := doc.Paragraphs()[0]
			coalesceRuns(p)
			if len(p.Runs) != tt.wantRuns {
				t.Errorf("run count after coalesce = %d, want %d", len(p.Runs), tt.wantRuns)
			}
			if got := p.GetText(); got != tt.wantText {
				t.Errorf("paragraph text = %q, want %q", got, tt.wantText)
			}
		})
	}
}

func TestFillDocumentPlainTokens(t *testing.T) {
	res := resolutionWith(t, map[string]interface{}{
		"rev":    1234567.0,
		"region": "West",
	})

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "plain reference",
			body: `<w:p><w:r><w:t>Region: ` + "`region`" + `</w:t></w:r></w:p>`,
			want: "Region: West",
		},
		{
			name: "modifier reference",
			body: `<w:p><w:r><w:t>Revenue: ` + "`rev`[MK]" + `</w:t></w:r></w:p>`,
			want: "Revenue: 1M",
		},
		{
			name: "multiple tokens in one run",
			body: `<w:p><w:r><w:t>` + "`region`: `rev`[,]" + `</w:t></w:r></w:p>`,
			want: "West: 1,234,567",
		},
		{
			name: "token split across same style runs",
			body: `<w:p><w:r><w:t>Revenue: ` + "`re" + `</w:t></w:r><w:r><w:t>` + "gion`" + `</w:t></w:r></w:p>`,
			want: "Revenue: West",
		},
		{
			name: "undefined token left in place",
			body: `<w:p><w:r><w:t>` + "`missing`" + ` stays</w:t></w:r></w:p>`,
			want: "`missing` stays",
		},
		{
			name: "token in table cell",
			body: `<w:tbl><w:tr><w:tc><w:p><w:r><w:t>` + "`region`" + `</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`,
			want: "West",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDoc(t, tt.body)
			FillDocument(doc, nil, res, NopReporter{})
			if got := doc.Paragraphs()[0].GetText(); got != tt.want {
				t.Errorf("paragraph text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFillDocumentStyledTemplate(t *testing.T) {
	res := resolutionWith(t, map[string]interface{}{"rev": 2500000.0})
	formats := map[string]RunTemplate{
		"rev": {
			{Text: "a gain of "},
			{Text: "2.5M", Style: Style{Bold: true, Color: "00FF00"}},
		},
	}

	doc := parseDoc(t, `<w:p><w:r><w:rPr><w:i/></w:rPr><w:t>Result: `+"`rev`"+` overall.</w:t></w:r></w:p>`)
	FillDocument(doc, formats, res, NopReporter{})

	p := doc.Paragraphs()[0]
	if got := p.GetText(); got != "Result: a gain of 2.5M overall." {
		t.Fatalf("paragraph text = %q", got)
	}
	if len(p.Runs) != 4 {
		t.Fatalf("run count = %d, want 4 (pre, two template spans, post)", len(p.Runs))
	}

	// Pre and post text keep the host run's italic properties.
	italic := []byte(`<w:rPr><w:i/></w:rPr>`)
	if !bytes.Equal(p.Runs[0].Properties, italic) || !bytes.Equal(p.Runs[3].Properties, italic) {
		t.Error("surrounding text lost the host run's properties")
	}
	// The ambient template span carries no properties of its own; the host
	// run's style must not bleed into it.
	if p.Runs[1].Properties != nil {
		t.Errorf("ambient template span properties = %s, want none", p.Runs[1].Properties)
	}
	// The styled span gets its own explicit properties.
	props := string(p.Runs[2].Properties)
	if !strings.Contains(props, "<w:b/>") || !strings.Contains(props, `w:val="00FF00"`) {
		t.Errorf("styled span properties = %s", props)
	}
}

func TestFillDocumentUnformattedVariableUsesDefaultStyle(t *testing.T) {
	// A resolved variable with no styled format is substituted in the
	// document's default typography, not the host run's, with a warning.
	res := resolutionWith(t, map[string]interface{}{"v": 42.0})

	var warnings []Event
	rec := reporterFunc(func(e Event) {
		if e.Severity == SeverityWarning {
			warnings = append(warnings, e)
		}
	})

	doc := parseDoc(t, `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t>total: `+"`v`"+` units</w:t></w:r></w:p>`)
	FillDocument(doc, nil, res, rec)

	p := doc.Paragraphs()[0]
	if got := p.GetText(); got != "total: 42 units" {
		t.Fatalf("paragraph text = %q", got)
	}
	if len(p.Runs) != 3 {
		t.Fatalf("run count = %d, want 3 (pre, value, post)", len(p.Runs))
	}

	bold := []byte(`<w:rPr><w:b/></w:rPr>`)
	if !bytes.Equal(p.Runs[0].Properties, bold) || !bytes.Equal(p.Runs[2].Properties, bold) {
		t.Error("surrounding text lost the host run's properties")
	}
	if p.Runs[1].Properties != nil {
		t.Errorf("substituted value properties = %s, want none", p.Runs[1].Properties)
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "no formatting") {
		t.Errorf("warnings = %+v, want one about missing formatting", warnings)
	}
}

func TestFillDocumentModifierTokenSkipsTemplate(t *testing.T) {
	// A token that carries modifiers is formatted numerically even when the
	// variable also has a styled format.
	res := resolutionWith(t, map[string]interface{}{"rev": 2500000.0})
	formats := map[string]RunTemplate{
		"rev": {{Text: "styled", Style: Style{Bold: true}}},
	}

	doc := parseDoc(t, `<w:p><w:r><w:t>`+"`rev`[MK]"+`</w:t></w:r></w:p>`)
	FillDocument(doc, formats, res, NopReporter{})
	if got := doc.Paragraphs()[0].GetText(); got != "3M" {
		t.Errorf("paragraph text = %q, want %q", got, "3M")
	}
}

func TestFillDocumentPreservesUntouchedContent(t *testing.T) {
	res := resolutionWith(t, map[string]interface{}{"v": 1.0})

	body := `<w:p><w:pPr><w:jc w:val="right"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t>untouched</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>value: ` + "`v`" + `</w:t></w:r></w:p>` +
		`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/></w:sectPr>`

	doc := parseDoc(t, body)
	FillDocument(doc, nil, res, NopReporter{})
	out := string(doc.Marshal())

	for _, want := range []string{
		`<w:p><w:pPr><w:jc w:val="right"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t>untouched</w:t></w:r></w:p>`,
		`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/></w:sectPr>`,
		`<w:t>value: 1</w:t>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\noutput: %s", want, out)
		}
	}
}

func TestFillDocumentIdempotentWithoutTokens(t *testing.T) {
	res := NewResolution()
	body := `<w:p><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">No tokens here. </w:t></w:r></w:p>`
	src := wrapDoc(body)

	doc, err := ParseDocument(src)
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	FillDocument(doc, nil, res, NopReporter{})
	if got := doc.Marshal(); !bytes.Equal(got, src) {
		t.Errorf("token-free document changed\n got: %s\nwant: %s", got, src)
	}
}

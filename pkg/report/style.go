package report

import (
	"fmt"
	"strings"
)

// Style describes the visual attributes of a span of text. The zero value
// means "ambient": the text inherits whatever the surrounding paragraph or
// document default provides.
//
// Styles are plain comparable values. Two runs carry the same typography
// exactly when their Styles compare equal, which is what run coalescing
// relies on.
type Style struct {
	// Font is the font family name, e.g. "Calibri". Empty means inherited.
	Font string
	// Size is the font size in points. Zero means inherited.
	Size      float64
	Bold      bool
	Italic    bool
	Underline bool
	// Color is the text color as an RRGGBB hex string without the leading
	// '#'. Empty means inherited.
	Color string
	// Name is the identifier of a named document style this run derives
	// from, if any.
	Name string
}

// IsAmbient reports whether the style carries no explicit attributes.
func (s Style) IsAmbient() bool {
	return s == Style{}
}

// runPropertiesXML renders the style as the inner XML of a w:rPr element.
// An ambient style renders to nothing so the run stays property-free.
func (s Style) runPropertiesXML() []byte {
	if s.IsAmbient() {
		return nil
	}
	var b strings.Builder
	b.WriteString("<w:rPr>")
	if s.Name != "" {
		fmt.Fprintf(&b, `<w:rStyle w:val="%s"/>`, escapeAttr(s.Name))
	}
	if s.Font != "" {
		fmt.Fprintf(&b, `<w:rFonts w:ascii="%s" w:hAnsi="%s"/>`, escapeAttr(s.Font), escapeAttr(s.Font))
	}
	if s.Bold {
		b.WriteString("<w:b/>")
	}
	if s.Italic {
		b.WriteString("<w:i/>")
	}
	if s.Color != "" {
		fmt.Fprintf(&b, `<w:color w:val="%s"/>`, escapeAttr(s.Color))
	}
	if s.Size > 0 {
		// OOXML measures font size in half-points.
		fmt.Fprintf(&b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/>`, int(s.Size*2), int(s.Size*2))
	}
	if s.Underline {
		b.WriteString(`<w:u w:val="single"/>`)
	}
	b.WriteString("</w:rPr>")
	return []byte(b.String())
}

// StyledText is a span of template text with one uniform Style. Format rules
// produce ordered lists of these.
type StyledText struct {
	Text  string
	Style Style
}

// RunTemplate is the output shape of a format rule: an ordered list of
// (text-with-placeholders, style) pairs. Once its placeholders have been
// resolved by the format evaluator, the splicer turns it into document runs.
type RunTemplate []StyledText

// Text returns the concatenated text of the template.
func (rt RunTemplate) Text() string {
	var b strings.Builder
	for _, st := range rt {
		b.WriteString(st.Text)
	}
	return b.String()
}

func escapeAttr(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}

package report

import (
	"bytes"
)

// Run splicer: replaces placeholder tokens in a parsed document with
// resolved text while leaving everything it does not touch byte for byte
// intact. Word editors routinely split one visual span of text across
// several identically styled runs (spell-check and revision artifacts), so
// the splicer first coalesces adjacent same-style runs to reassemble tokens
// that were split mid-placeholder.

// FillDocument resolves every placeholder token in the document: body
// paragraphs and the paragraphs of every table cell, nested tables
// included. formats maps variable names to their already-selected and
// resolved styled templates.
func FillDocument(doc *Document, formats map[string]RunTemplate, res *Resolution, rep Reporter) {
	for _, p := range doc.Paragraphs() {
		coalesceRuns(p)
		fillParagraph(p, formats, res, rep)
	}
}

// coalesceRuns merges adjacent plain-text runs whose run properties are
// byte-identical. Opaque children, breaks and runs carrying non-text
// content act as barriers and are never merged across.
func coalesceRuns(p *Paragraph) {
	if len(p.Runs) < 2 {
		return
	}
	out := p.Runs[:0]
	for i := range p.Runs {
		run := p.Runs[i]
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.spliceable() && run.spliceable() && bytes.Equal(prev.Properties, run.Properties) {
				prev.Text.Content += run.Text.Content
				if run.Text.Space == "preserve" {
					prev.Text.Space = "preserve"
				}
				continue
			}
		}
		out = append(out, run)
	}
	p.Runs = out
}

// fillParagraph scans the paragraph's runs in order and replaces each
// placeholder token it finds. A bare token naming a Formats row expands
// into the styled runs of its template. A bare token without a Formats row
// is substituted in the document's default typography, with a warning.
// Tokens carrying modifiers are rewritten as text inside their host run.
func fillParagraph(p *Paragraph, formats map[string]RunTemplate, res *Resolution, rep Reporter) {
	for i := 0; i < len(p.Runs); i++ {
		run := &p.Runs[i]
		if !run.spliceable() {
			continue
		}
		from := 0
		for {
			tok, ok := findFirstPlaceholder(run.Text.Content, from)
			if !ok {
				break
			}
			if tok.Modifiers == "" {
				if tpl, found := formats[tok.Name]; found {
					inserted, next := spliceTemplate(p, i, tok, tpl)
					i += inserted
					run = &p.Runs[i]
					from = next
					continue
				}
				if value, resolved := res.Get(tok.Name); resolved {
					reportf(rep, SeverityWarning, -1,
						"no formatting specified for variable %q, substituting in the document default style", tok.Name)
					text := plainString(value)
					if run.Properties != nil {
						inserted, next := spliceTemplate(p, i, tok, RunTemplate{{Text: text}})
						i += inserted
						run = &p.Runs[i]
						from = next
						continue
					}
					run.Text.Content = run.Text.Content[:tok.Start] + text + run.Text.Content[tok.End:]
					from = tok.Start + len(text)
					continue
				}
			}
			text := formattedValue(tok, res, rep)
			run.Text.Content = run.Text.Content[:tok.Start] + text + run.Text.Content[tok.End:]
			from = tok.Start + len(text)
		}
	}
	pruneEmptyRuns(p)
}

// pruneEmptyRuns drops text runs the splicer created that ended up empty.
// Runs parsed from the source keep their original start tag and are never
// pruned, so a template's own empty runs survive untouched.
func pruneEmptyRuns(p *Paragraph) {
	out := p.Runs[:0]
	for i := range p.Runs {
		run := p.Runs[i]
		if run.tag == nil && !run.IsOpaque() && run.Text != nil && run.Text.Content == "" {
			continue
		}
		out = append(out, run)
	}
	p.Runs = out
}

// spliceTemplate replaces the token span inside run i with one run per
// styled template span. Text before and after the token keeps the host
// run's properties. It returns how many runs were inserted before the tail
// run and the scan offset within the tail run.
func spliceTemplate(p *Paragraph, i int, tok Placeholder, tpl RunTemplate) (int, int) {
	host := p.Runs[i]
	pre := host.Text.Content[:tok.Start]
	post := host.Text.Content[tok.End:]

	replacement := make([]Run, 0, len(tpl)+2)
	if pre != "" {
		replacement = append(replacement, textRun(host, pre))
	}
	for _, span := range tpl {
		if span.Text == "" {
			continue
		}
		replacement = append(replacement, templateRun(span))
	}
	// The tail run carries the remaining paragraph text so later tokens in
	// it are still found by the caller's scan.
	replacement = append(replacement, textRun(host, post))

	runs := make([]Run, 0, len(p.Runs)+len(replacement)-1)
	runs = append(runs, p.Runs[:i]...)
	runs = append(runs, replacement...)
	runs = append(runs, p.Runs[i+1:]...)
	p.Runs = runs

	return len(replacement) - 1, 0
}

// textRun makes a run with the host run's exact properties.
func textRun(host Run, text string) Run {
	return Run{
		Properties: host.Properties,
		Text:       &Text{Content: text},
	}
}

// templateRun makes a run for one styled template span. The run carries
// only the styles the span itself declares; an ambient span renders
// property-free so the surrounding runs' styles never bleed into it.
func templateRun(span StyledText) Run {
	var props []byte
	if !span.Style.IsAmbient() {
		props = span.Style.runPropertiesXML()
	}
	return Run{
		Properties: props,
		Text:       &Text{Content: span.Text},
	}
}

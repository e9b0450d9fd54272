// Package report fills rich-text Word (DOCX) report templates with values
// computed from a tabular definitions workbook.
//
// The definitions workbook carries five sheets: Files and Queries name the
// external data sources, Sources maps variables to an initial value in one
// of them, Values derives further variables from conditional expressions,
// and Formats attaches conditional styled text to variables. The template
// document references variables with backtick placeholders:
//
//	Revenue was `rev` this week.
//	Revenue was `rev`[MK,+-] this week.
//
// A run looks like:
//
//	cfg := report.DefaultConfig()
//	rep := report.NewWriterReporter(os.Stderr, report.SeverityInfo)
//	p := report.NewPipeline(cfg, nil, rep)
//	err := p.Run(ctx, "template.docx", "definitions.xlsx", "out.docx")
//
// The pipeline is strictly sequential: it loads and validates the tables,
// fetches initial values, resolves the formula-defined variables in
// dependency order, selects each variable's styled format, and splices the
// results into the document. Everything the splicer does not touch is
// copied into the output byte for byte. A fatal error at any stage halts
// the run with no output written; warnings stream through the Reporter.
package report

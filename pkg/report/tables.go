package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// The definitions workbook has a fixed schema of five sheets. Column order
// and naming are part of the contract and are validated before the pipeline
// runs.
const (
	sheetFiles   = "Files"
	sheetQueries = "Queries"
	sheetSources = "Sources"
	sheetValues  = "Values"
	sheetFormats = "Formats"
)

// QuerySpec is one row of the Queries sheet.
type QuerySpec struct {
	Name     string
	Server   string
	Database string
	SQL      string
}

// SourceSpec is one row of the Sources sheet: where a variable's initial
// value comes from. Either File+Worksheet+Cell or Query+Row+Col is set.
type SourceSpec struct {
	VarName   string
	File      string
	Worksheet string
	Cell      string
	Query     string
	Row       int
	Col       int
}

// ValueBranch is one (value expression, condition expression) pair of a
// variable definition, in declared order.
type ValueBranch struct {
	Value           string
	Condition       string
	ValueColumn     string
	ConditionColumn string
}

// VariableDefinition is one row of the Values sheet: an ordered sequence of
// conditional branches plus the mandatory default expression.
type VariableDefinition struct {
	Name     string
	Branches []ValueBranch
	Else     string
}

// expressions returns every expression string of the definition, used for
// dependency extraction.
func (d *VariableDefinition) expressions() []string {
	out := make([]string, 0, 2*len(d.Branches)+1)
	for _, b := range d.Branches {
		out = append(out, b.Value, b.Condition)
	}
	return append(out, d.Else)
}

// FormatBranch is one (run template, condition expression) pair of a format
// definition.
type FormatBranch struct {
	Template        RunTemplate
	Condition       string
	TemplateColumn  string
	ConditionColumn string
}

// FormatDefinition is one row of the Formats sheet. Its branches select a
// RunTemplate instead of a scalar expression.
type FormatDefinition struct {
	Name     string
	Branches []FormatBranch
	Else     RunTemplate
}

// Tables holds the five loaded definition tables.
type Tables struct {
	Files   map[string]string // file name -> path pattern
	Queries map[string]QuerySpec
	Sources []SourceSpec
	Values  []VariableDefinition
	Formats []FormatDefinition
}

// ValueDefinition returns the Values row for a variable, if any.
func (t *Tables) ValueDefinition(name string) (*VariableDefinition, bool) {
	for i := range t.Values {
		if t.Values[i].Name == name {
			return &t.Values[i], true
		}
	}
	return nil, false
}

// FormatFor returns the Formats row for a variable, if any.
func (t *Tables) FormatFor(name string) (*FormatDefinition, bool) {
	for i := range t.Formats {
		if t.Formats[i].Name == name {
			return &t.Formats[i], true
		}
	}
	return nil, false
}

// LoadTables reads and validates the five definition tables from the
// workbook at path.
func LoadTables(path string) (*Tables, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, NewDocumentError("open", path, err)
	}
	defer f.Close()
	return loadTables(f)
}

func loadTables(f *excelize.File) (*Tables, error) {
	for _, sheet := range []string{sheetFiles, sheetQueries, sheetSources, sheetValues, sheetFormats} {
		if !sheetExists(f, sheet) {
			return nil, NewSchemaError(sheet, "the variables workbook does not contain this sheet")
		}
	}

	t := &Tables{
		Files:   make(map[string]string),
		Queries: make(map[string]QuerySpec),
	}

	if err := loadFiles(f, t); err != nil {
		return nil, err
	}
	if err := loadQueries(f, t); err != nil {
		return nil, err
	}
	if err := loadSources(f, t); err != nil {
		return nil, err
	}
	if err := loadValues(f, t); err != nil {
		return nil, err
	}
	if err := loadFormats(f, t); err != nil {
		return nil, err
	}
	return t, nil
}

func sheetExists(f *excelize.File, name string) bool {
	for _, s := range f.GetSheetList() {
		if s == name {
			return true
		}
	}
	return false
}

// cell returns the trimmed value of column i in a row, tolerating the short
// rows excelize produces when trailing cells are empty.
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func checkHeader(sheet string, got []string, want []string) error {
	for i, col := range want {
		if cell(got, i) != col {
			return NewSchemaError(sheet, "has incorrect columns: [%s], they should be: [%s]",
				strings.Join(got, ", "), strings.Join(want, ", "))
		}
	}
	if len(got) > len(want) && !rowEmpty(got[len(want):]) {
		return NewSchemaError(sheet, "has incorrect columns: [%s], they should be: [%s]",
			strings.Join(got, ", "), strings.Join(want, ", "))
	}
	return nil
}

func loadFiles(f *excelize.File, t *Tables) error {
	rows, err := f.GetRows(sheetFiles)
	if err != nil {
		return NewSchemaError(sheetFiles, "could not be read: %v", err)
	}
	if len(rows) == 0 {
		return NewSchemaError(sheetFiles, "is empty")
	}
	if err := checkHeader(sheetFiles, rows[0], []string{"File", "Pattern"}); err != nil {
		return err
	}
	for _, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		name := cell(row, 0)
		if _, dup := t.Files[name]; dup {
			return NewSchemaError(sheetFiles, "contains a duplicate entry: %q", name)
		}
		t.Files[name] = cell(row, 1)
	}
	return nil
}

func loadQueries(f *excelize.File, t *Tables) error {
	rows, err := f.GetRows(sheetQueries)
	if err != nil {
		return NewSchemaError(sheetQueries, "could not be read: %v", err)
	}
	if len(rows) == 0 {
		return NewSchemaError(sheetQueries, "is empty")
	}
	if err := checkHeader(sheetQueries, rows[0], []string{"Query", "Server", "Database", "SQL"}); err != nil {
		return err
	}
	for _, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		q := QuerySpec{
			Name:     cell(row, 0),
			Server:   cell(row, 1),
			Database: cell(row, 2),
			SQL:      cell(row, 3),
		}
		if _, dup := t.Queries[q.Name]; dup {
			return NewSchemaError(sheetQueries, "contains a duplicate entry: %q", q.Name)
		}
		t.Queries[q.Name] = q
	}
	return nil
}

func loadSources(f *excelize.File, t *Tables) error {
	rows, err := f.GetRows(sheetSources)
	if err != nil {
		return NewSchemaError(sheetSources, "could not be read: %v", err)
	}
	if len(rows) == 0 {
		return NewSchemaError(sheetSources, "is empty")
	}
	want := []string{"VarName", "File", "Worksheet", "Cell", "Query", "Row", "Col"}
	if err := checkHeader(sheetSources, rows[0], want); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		s := SourceSpec{
			VarName:   cell(row, 0),
			File:      cell(row, 1),
			Worksheet: cell(row, 2),
			Cell:      cell(row, 3),
			Query:     cell(row, 4),
		}
		if seen[s.VarName] {
			return NewSchemaError(sheetSources, "contains a duplicate entry: %q", s.VarName)
		}
		seen[s.VarName] = true
		if v := cell(row, 5); v != "" {
			s.Row, err = strconv.Atoi(v)
			if err != nil {
				return NewSchemaError(sheetSources, "has a non-numeric Row for variable %q: %q", s.VarName, v)
			}
		}
		if v := cell(row, 6); v != "" {
			s.Col, err = strconv.Atoi(v)
			if err != nil {
				return NewSchemaError(sheetSources, "has a non-numeric Col for variable %q: %q", s.VarName, v)
			}
		}
		t.Sources = append(t.Sources, s)
	}
	return nil
}

// validateBranchHeader checks the paired NameN/IfN column layout shared by
// the Values and Formats sheets, returning the number of branch pairs.
func validateBranchHeader(sheet, prefix, elseCol string, header []string) (int, error) {
	if cell(header, 0) != "VarName" {
		return 0, NewSchemaError(sheet, "has invalid first column: %q, it should be \"VarName\"", cell(header, 0))
	}
	if cell(header, 1) != prefix+"1" {
		return 0, NewSchemaError(sheet, "has invalid second column: %q, it should be %q", cell(header, 1), prefix+"1")
	}
	if cell(header, 2) != "If1" {
		return 0, NewSchemaError(sheet, "has invalid third column: %q, it should be \"If1\"", cell(header, 2))
	}

	seen := make(map[string]bool)
	pairs := 0
	hasElse := false
	for i := 0; i < len(header); i++ {
		col := cell(header, i)
		if col == "" {
			continue
		}
		if seen[col] {
			return 0, NewSchemaError(sheet, "contains duplicate column names")
		}
		seen[col] = true

		switch {
		case i == 0:
			// VarName, checked above
		case col == elseCol:
			hasElse = true
			if !rowEmpty(header[i+1:]) {
				return 0, NewSchemaError(sheet, "has a %s column, but it is not the last column in the sheet", elseCol)
			}
		case strings.HasPrefix(col, prefix) && isNumeric(col[len(prefix):]):
			n := col[len(prefix):]
			if cell(header, i+1) != "If"+n {
				return 0, NewSchemaError(sheet, "has a %s column that does not precede a corresponding If column: %s", prefix, col)
			}
			pairs++
		case strings.HasPrefix(col, "If") && isNumeric(col[2:]):
			// consumed by the preceding value column
		default:
			return 0, NewSchemaError(sheet, "has an invalid column: %q", col)
		}
	}
	if !hasElse {
		return 0, NewSchemaError(sheet, "does not contain a %s column", elseCol)
	}
	return pairs, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func loadValues(f *excelize.File, t *Tables) error {
	rows, err := f.GetRows(sheetValues)
	if err != nil {
		return NewSchemaError(sheetValues, "could not be read: %v", err)
	}
	if len(rows) == 0 {
		return NewSchemaError(sheetValues, "is empty")
	}
	pairs, err := validateBranchHeader(sheetValues, "Value", "ValueElse", rows[0])
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		def := VariableDefinition{Name: cell(row, 0)}
		if seen[def.Name] {
			return NewSchemaError(sheetValues, "contains a duplicate entry: %q", def.Name)
		}
		seen[def.Name] = true
		for i := 0; i < pairs; i++ {
			def.Branches = append(def.Branches, ValueBranch{
				Value:           cell(row, 1+2*i),
				Condition:       cell(row, 2+2*i),
				ValueColumn:     fmt.Sprintf("Value%d", i+1),
				ConditionColumn: fmt.Sprintf("If%d", i+1),
			})
		}
		def.Else = cell(row, 1+2*pairs)
		t.Values = append(t.Values, def)
	}
	return nil
}

func loadFormats(f *excelize.File, t *Tables) error {
	rows, err := f.GetRows(sheetFormats)
	if err != nil {
		return NewSchemaError(sheetFormats, "could not be read: %v", err)
	}
	if len(rows) == 0 {
		return NewSchemaError(sheetFormats, "is empty")
	}
	pairs, err := validateBranchHeader(sheetFormats, "Format", "FormatElse", rows[0])
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for r, row := range rows[1:] {
		if rowEmpty(row) {
			continue
		}
		def := FormatDefinition{Name: cell(row, 0)}
		if seen[def.Name] {
			return NewSchemaError(sheetFormats, "contains a duplicate entry: %q", def.Name)
		}
		seen[def.Name] = true
		for i := 0; i < pairs; i++ {
			tpl, err := readRunTemplate(f, r+2, 2+2*i)
			if err != nil {
				return err
			}
			def.Branches = append(def.Branches, FormatBranch{
				Template:        tpl,
				Condition:       cell(row, 2+2*i),
				TemplateColumn:  fmt.Sprintf("Format%d", i+1),
				ConditionColumn: fmt.Sprintf("If%d", i+1),
			})
		}
		def.Else, err = readRunTemplate(f, r+2, 2+2*pairs)
		if err != nil {
			return err
		}
		t.Formats = append(t.Formats, def)
	}
	return nil
}

// readRunTemplate reads a Formats cell as a list of styled spans. Rich text
// runs keep their font; plain cells and runs without an explicit font fall
// back to the cell's own style so the template still carries the author's
// typography.
func readRunTemplate(f *excelize.File, row, col int) (RunTemplate, error) {
	addr, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil, NewSchemaError(sheetFormats, "has an unaddressable cell at row %d column %d: %v", row, col, err)
	}

	base := cellBaseStyle(f, sheetFormats, addr)

	runs, err := f.GetCellRichText(sheetFormats, addr)
	if err == nil && len(runs) > 0 {
		tpl := make(RunTemplate, 0, len(runs))
		for _, run := range runs {
			st := base
			if run.Font != nil {
				st = fontStyle(run.Font)
			}
			tpl = append(tpl, StyledText{Text: run.Text, Style: st})
		}
		return tpl, nil
	}

	value, err := f.GetCellValue(sheetFormats, addr)
	if err != nil {
		return nil, NewSchemaError(sheetFormats, "cell %s could not be read: %v", addr, err)
	}
	if value == "" {
		return nil, nil
	}
	return RunTemplate{{Text: value, Style: base}}, nil
}

// cellBaseStyle resolves the font of the cell's own style, which covers the
// text not wrapped in an explicit rich text run.
func cellBaseStyle(f *excelize.File, sheet, addr string) Style {
	styleID, err := f.GetCellStyle(sheet, addr)
	if err != nil || styleID == 0 {
		return Style{}
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil || style.Font == nil {
		return Style{}
	}
	return fontStyle(style.Font)
}

func fontStyle(font *excelize.Font) Style {
	return Style{
		Font:      font.Family,
		Size:      font.Size,
		Bold:      font.Bold,
		Italic:    font.Italic,
		Underline: font.Underline != "" && font.Underline != "none",
		Color:     strings.ToUpper(strings.TrimPrefix(font.Color, "#")),
	}
}

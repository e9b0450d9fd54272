package report

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/xuri/excelize/v2"
)

// Provider fetches the initial values named by the Sources sheet.
type Provider interface {
	Fetch(ctx context.Context, tables *Tables, rep Reporter) (map[string]interface{}, error)
}

// SourceReader is the default Provider. It reads xlsx and csv workbook
// cells and runs SQL Server queries, caching files by path and query
// results by query name so shared sources are fetched once per run.
type SourceReader struct {
	cfg       *Config
	fillins   map[string]string
	workbooks *workbookCache
	queries   map[string]*queryResult
	dbs       map[connKey]*sql.DB

	// connect is replaceable in tests.
	connect func(ctx context.Context, server, database string) (*sql.DB, error)
}

type connKey struct {
	server   string
	database string
}

type queryResult struct {
	columns []string
	rows    [][]interface{}
}

// NewSourceReader creates a source reader for one pipeline run. The file
// pattern fill-ins are frozen at the given time.
func NewSourceReader(cfg *Config, now time.Time) *SourceReader {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &SourceReader{
		cfg:       cfg,
		fillins:   filePatternFillins(now),
		workbooks: newWorkbookCache(cfg.SourceCacheSize),
		queries:   make(map[string]*queryResult),
		dbs:       make(map[connKey]*sql.DB),
		connect:   connectSQLServer,
	}
}

// Close releases cached workbooks and database connections.
func (r *SourceReader) Close() error {
	err := r.workbooks.Close()
	for key, db := range r.dbs {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = cerr
		}
		delete(r.dbs, key)
	}
	return err
}

// Fetch resolves every Sources row to an initial value. A row listing both
// a File and a Query reads from the File with a warning, unless strict
// source checking promotes that to an error.
func (r *SourceReader) Fetch(ctx context.Context, tables *Tables, rep Reporter) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(tables.Sources))
	for _, src := range tables.Sources {
		if src.File != "" && src.Query != "" {
			if r.cfg.StrictSource {
				return nil, NewDataSourceError(src.VarName, "",
					"has both a File and a Query listed on the Sources sheet")
			}
			reportf(rep, SeverityWarning, -1,
				"both File and Query are listed as a source for variable %q, defaulting to reading from the specified File",
				src.VarName)
		}

		var value interface{}
		var err error
		switch {
		case src.File != "":
			value, err = r.fromFile(tables, src, rep)
		case src.Query != "":
			value, err = r.fromQuery(ctx, tables, src, rep)
		default:
			err = NewDataSourceError(src.VarName, "",
				"does not have a File or Query listed on the Sources sheet")
		}
		if err != nil {
			return nil, err
		}
		values[src.VarName] = value
	}
	return values, nil
}

func (r *SourceReader) fromFile(tables *Tables, src SourceSpec, rep Reporter) (interface{}, error) {
	pattern, ok := tables.Files[src.File]
	if !ok {
		return nil, NewDataSourceError(src.VarName, src.File,
			"references a File that does not exist on the Files sheet")
	}
	path, err := expandPattern(pattern, r.fillins)
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: src.File,
			Message: "has an invalid file pattern", Cause: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return r.workbookCell(path, src, rep)
	case ".csv":
		return r.csvCell(path, src, rep)
	default:
		return nil, NewDataSourceError(src.VarName, path,
			"is of an invalid file type and cannot be read")
	}
}

func (r *SourceReader) workbookCell(path string, src SourceSpec, rep Reporter) (interface{}, error) {
	f, err := r.workbooks.get(path, func() (*excelize.File, error) {
		reportf(rep, SeverityInfo, -1, "reading file %q on worksheet %q", path, src.Worksheet)
		return excelize.OpenFile(path)
	})
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: path,
			Message: "could not be opened", Cause: err}
	}

	if idx, err := f.GetSheetIndex(src.Worksheet); err != nil || idx < 0 {
		return nil, NewDataSourceError(src.VarName, path,
			"does not contain worksheet %q", src.Worksheet)
	}
	raw, err := f.GetCellValue(src.Worksheet, src.Cell)
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: path,
			Message: fmt.Sprintf("cell %q could not be read", src.Cell), Cause: err}
	}
	if raw == "" {
		return nil, NewDataSourceError(src.VarName, path,
			"cell %q contains no data", src.Cell)
	}
	return cellValue(raw), nil
}

func (r *SourceReader) csvCell(path string, src SourceSpec, rep Reporter) (interface{}, error) {
	reportf(rep, SeverityInfo, -1, "reading file %q", path)
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: path,
			Message: "could not be opened", Cause: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: path,
			Message: "could not be parsed as csv", Cause: err}
	}

	row, col, err := cellToIndex(src.Cell)
	if err != nil {
		return nil, &DataSourceError{Variable: src.VarName, Source: path,
			Message: fmt.Sprintf("has an invalid Cell %q", src.Cell), Cause: err}
	}
	if row >= len(records) || col >= len(records[row]) {
		return nil, NewDataSourceError(src.VarName, path,
			"cell %q contains no data", src.Cell)
	}
	return cellValue(records[row][col]), nil
}

func (r *SourceReader) fromQuery(ctx context.Context, tables *Tables, src SourceSpec, rep Reporter) (interface{}, error) {
	spec, ok := tables.Queries[src.Query]
	if !ok {
		return nil, NewDataSourceError(src.VarName, src.Query,
			"references a Query that does not exist on the Queries sheet")
	}

	result, ok := r.queries[src.Query]
	if !ok {
		var err error
		result, err = r.runQuery(ctx, spec, rep)
		if err != nil {
			return nil, &DataSourceError{Variable: src.VarName, Source: src.Query,
				Message: "query failed", Cause: err}
		}
		r.queries[src.Query] = result
	}

	row, col := src.Row, src.Col
	if row == 0 && col == 0 {
		row, col = 1, 1
	}
	if row < 1 || col < 1 {
		return nil, NewDataSourceError(src.VarName, src.Query,
			"has an invalid Row and Col: %d, %d", src.Row, src.Col)
	}
	if row > len(result.rows) || col > len(result.columns) {
		return nil, NewDataSourceError(src.VarName, src.Query,
			"row and column %d, %d do not exist in the query result", row, col)
	}
	return result.rows[row-1][col-1], nil
}

func (r *SourceReader) runQuery(ctx context.Context, spec QuerySpec, rep Reporter) (*queryResult, error) {
	key := connKey{server: spec.Server, database: spec.Database}
	db, ok := r.dbs[key]
	if !ok {
		reportf(rep, SeverityInfo, -1, "connecting to %q on %q", spec.Database, spec.Server)
		var err error
		db, err = r.connect(ctx, spec.Server, spec.Database)
		if err != nil {
			return nil, err
		}
		r.dbs[key] = db
	}

	reportf(rep, SeverityInfo, -1, "running query %q", spec.Name)
	rows, err := db.QueryContext(ctx, spec.SQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &queryResult{columns: columns}
	for rows.Next() {
		cells := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, cell := range cells {
			if b, ok := cell.([]byte); ok {
				cells[i] = cellValue(string(b))
			}
		}
		result.rows = append(result.rows, cells)
	}
	return result, rows.Err()
}

// connectSQLServer opens a SQL Server connection using the caller's own
// credentials (integrated authentication).
func connectSQLServer(ctx context.Context, server, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("server=%s;database=%s;trusted_connection=yes", server, database)
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// cellValue converts a raw cell string into the value the expression
// evaluator should see: a float64 when the text is numeric, the text
// otherwise.
func cellValue(raw string) interface{} {
	if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return f
	}
	return raw
}

var fillinPattern = regexp.MustCompile(`\{([^{}]*)\}`)

// expandPattern substitutes {name} fill-ins inside a file pattern.
func expandPattern(pattern string, fillins map[string]string) (string, error) {
	var badName string
	out := fillinPattern.ReplaceAllStringFunc(pattern, func(m string) string {
		name := m[1 : len(m)-1]
		value, ok := fillins[name]
		if !ok && badName == "" {
			badName = name
		}
		return value
	})
	if badName != "" {
		return "", fmt.Errorf("unknown fill-in {%s}", badName)
	}
	return out, nil
}

// filePatternFillins builds the date fill-ins usable inside file patterns:
// {day}, {month}, {year}, {truncyear}, weekday name variants, and the same
// set prefixed with tomorrow, yesterday, and weekending (the next
// Saturday).
func filePatternFillins(now time.Time) map[string]string {
	fillins := make(map[string]string)

	add := func(prefix string, base time.Time) {
		day := fmt.Sprintf("%02d", base.Day())
		if prefix == "" {
			fillins["day"] = day
		} else {
			fillins[prefix] = day
		}

		nameKey := prefix
		if nameKey == "" {
			nameKey = "today"
		}
		name := base.Weekday().String()
		fillins[nameKey+"nameupper"] = name
		fillins[nameKey+"namelower"] = strings.ToLower(name)
		fillins[nameKey+"nametruncupper"] = name[:3]
		fillins[nameKey+"nametrunclower"] = strings.ToLower(name[:3])

		fillins[prefix+"month"] = fmt.Sprintf("%02d", int(base.Month()))
		year := strconv.Itoa(base.Year())
		fillins[prefix+"year"] = year
		fillins[prefix+"truncyear"] = year[len(year)-2:]
	}

	add("", now)
	add("tomorrow", now.AddDate(0, 0, 1))
	add("yesterday", now.AddDate(0, 0, -1))
	add("weekending", nextSaturday(now))

	return fillins
}

// nextSaturday returns the first Saturday strictly after t.
func nextSaturday(t time.Time) time.Time {
	days := (int(time.Saturday) - int(t.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return t.AddDate(0, 0, days)
}

// cellToIndex converts an A1-style cell reference to zero-based row and
// column indexes.
func cellToIndex(cell string) (row, col int, err error) {
	split := -1
	for i, c := range cell {
		if c >= '0' && c <= '9' {
			split = i
			break
		}
	}
	if split <= 0 {
		return 0, 0, fmt.Errorf("malformed cell reference %q", cell)
	}
	for _, c := range strings.ToUpper(cell[:split]) {
		if c < 'A' || c > 'Z' {
			return 0, 0, fmt.Errorf("malformed cell reference %q", cell)
		}
		col = col*26 + int(c-'A') + 1
	}
	n, err := strconv.Atoi(cell[split:])
	if err != nil || n < 1 {
		return 0, 0, fmt.Errorf("malformed cell reference %q", cell)
	}
	return n - 1, col - 1, nil
}

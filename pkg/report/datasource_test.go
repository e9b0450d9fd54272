package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

func TestFilePatternFillins(t *testing.T) {
	// Tuesday, March 9th 2021.
	now := time.Date(2021, 3, 9, 15, 0, 0, 0, time.UTC)
	fillins := filePatternFillins(now)

	tests := []struct {
		key  string
		want string
	}{
		{key: "day", want: "09"},
		{key: "month", want: "03"},
		{key: "year", want: "2021"},
		{key: "truncyear", want: "21"},
		{key: "todaynameupper", want: "Tuesday"},
		{key: "todaynamelower", want: "tuesday"},
		{key: "todaynametruncupper", want: "Tue"},
		{key: "todaynametrunclower", want: "tue"},
		{key: "tomorrow", want: "10"},
		{key: "tomorrownameupper", want: "Wednesday"},
		{key: "yesterday", want: "08"},
		{key: "yesterdaynameupper", want: "Monday"},
		{key: "weekending", want: "13"},
		{key: "weekendingnameupper", want: "Saturday"},
		{key: "weekendingmonth", want: "03"},
		{key: "weekendingyear", want: "2021"},
	}
	for _, tt := range tests {
		if got := fillins[tt.key]; got != tt.want {
			t.Errorf("fillins[%q] = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNextSaturday(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want int // day of month
	}{
		{name: "midweek", from: time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC), want: 13},
		{name: "friday", from: time.Date(2021, 3, 12, 0, 0, 0, 0, time.UTC), want: 13},
		{name: "saturday rolls a full week", from: time.Date(2021, 3, 13, 0, 0, 0, 0, time.UTC), want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextSaturday(tt.from)
			if got.Weekday() != time.Saturday || got.Day() != tt.want {
				t.Errorf("nextSaturday(%v) = %v, want Saturday the %dth", tt.from, got, tt.want)
			}
		})
	}
}

func TestExpandPattern(t *testing.T) {
	fillins := map[string]string{"year": "2021", "month": "03", "day": "09"}

	tests := []struct {
		name    string
		pattern string
		want    string
		wantErr bool
	}{
		{name: "no fillins", pattern: "C:/reports/sales.xlsx", want: "C:/reports/sales.xlsx"},
		{name: "single fillin", pattern: "sales_{year}.xlsx", want: "sales_2021.xlsx"},
		{name: "several fillins", pattern: "sales_{year}-{month}-{day}.xlsx", want: "sales_2021-03-09.xlsx"},
		{name: "unknown fillin", pattern: "sales_{quarter}.xlsx", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPattern(tt.pattern, fillins)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expandPattern(%q) expected an error", tt.pattern)
				}
				return
			}
			if err != nil {
				t.Fatalf("expandPattern(%q) error = %v", tt.pattern, err)
			}
			if got != tt.want {
				t.Errorf("expandPattern(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestCellToIndex(t *testing.T) {
	tests := []struct {
		cell    string
		row     int
		col     int
		wantErr bool
	}{
		{cell: "A1", row: 0, col: 0},
		{cell: "B17", row: 16, col: 1},
		{cell: "Z3", row: 2, col: 25},
		{cell: "AA1", row: 0, col: 26},
		{cell: "AF86", row: 85, col: 31},
		{cell: "17", wantErr: true},
		{cell: "B", wantErr: true},
		{cell: "B0", wantErr: true},
		{cell: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.cell, func(t *testing.T) {
			row, col, err := cellToIndex(tt.cell)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("cellToIndex(%q) expected an error", tt.cell)
				}
				return
			}
			if err != nil {
				t.Fatalf("cellToIndex(%q) error = %v", tt.cell, err)
			}
			if row != tt.row || col != tt.col {
				t.Errorf("cellToIndex(%q) = (%d, %d), want (%d, %d)", tt.cell, row, col, tt.row, tt.col)
			}
		})
	}
}

type SourceReaderSuite struct {
	suite.Suite
	dir string
}

func TestSourceReaderSuite(t *testing.T) {
	suite.Run(t, new(SourceReaderSuite))
}

func (s *SourceReaderSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

// writeSourceWorkbook creates an xlsx data file with the given cell values
// on a "Data" worksheet.
func (s *SourceReaderSuite) writeSourceWorkbook(name string, cells map[string]interface{}) string {
	f := excelize.NewFile()
	_, err := f.NewSheet("Data")
	s.Require().NoError(err)
	for addr, value := range cells {
		s.Require().NoError(f.SetCellValue("Data", addr, value))
	}
	path := filepath.Join(s.dir, name)
	s.Require().NoError(f.SaveAs(path))
	s.Require().NoError(f.Close())
	return path
}

func (s *SourceReaderSuite) tablesFor(pattern string, sources ...SourceSpec) *Tables {
	return &Tables{
		Files:   map[string]string{"data": pattern},
		Queries: map[string]QuerySpec{},
		Sources: sources,
	}
}

func (s *SourceReaderSuite) TestFetchFromWorkbook() {
	path := s.writeSourceWorkbook("data.xlsx", map[string]interface{}{
		"B2": 1234.5,
		"C3": "West",
	})
	tables := s.tablesFor(path,
		SourceSpec{VarName: "rev", File: "data", Worksheet: "Data", Cell: "B2"},
		SourceSpec{VarName: "region", File: "data", Worksheet: "Data", Cell: "C3"},
	)

	reader := NewSourceReader(DefaultConfig(), time.Now())
	defer reader.Close()

	values, err := reader.Fetch(context.Background(), tables, NopReporter{})
	s.Require().NoError(err)
	s.Equal(1234.5, values["rev"])
	s.Equal("West", values["region"])
}

func (s *SourceReaderSuite) TestFetchExpandsPattern() {
	now := time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC)
	path := s.writeSourceWorkbook("sales_2021-03-09.xlsx", map[string]interface{}{"A1": 7})
	pattern := filepath.Join(s.dir, "sales_{year}-{month}-{day}.xlsx")

	tables := s.tablesFor(pattern,
		SourceSpec{VarName: "n", File: "data", Worksheet: "Data", Cell: "A1"})

	reader := NewSourceReader(DefaultConfig(), now)
	defer reader.Close()

	values, err := reader.Fetch(context.Background(), tables, NopReporter{})
	s.Require().NoError(err)
	s.Equal(7.0, values["n"])
	_ = path
}

func (s *SourceReaderSuite) TestFetchFromCSV() {
	path := filepath.Join(s.dir, "data.csv")
	s.Require().NoError(os.WriteFile(path, []byte("h1,h2\n10,West\n"), 0o644))

	tables := s.tablesFor(path,
		SourceSpec{VarName: "n", File: "data", Cell: "A2"},
		SourceSpec{VarName: "region", File: "data", Cell: "B2"},
	)

	reader := NewSourceReader(DefaultConfig(), time.Now())
	defer reader.Close()

	values, err := reader.Fetch(context.Background(), tables, NopReporter{})
	s.Require().NoError(err)
	s.Equal(10.0, values["n"])
	s.Equal("West", values["region"])
}

func (s *SourceReaderSuite) TestFileAndQueryPrefersFileWithWarning() {
	path := s.writeSourceWorkbook("data.xlsx", map[string]interface{}{"A1": 5})
	tables := s.tablesFor(path,
		SourceSpec{VarName: "n", File: "data", Worksheet: "Data", Cell: "A1", Query: "weekly"})

	var warnings []string
	rec := reporterFunc(func(e Event) {
		if e.Severity == SeverityWarning {
			warnings = append(warnings, e.Message)
		}
	})

	reader := NewSourceReader(DefaultConfig(), time.Now())
	defer reader.Close()

	values, err := reader.Fetch(context.Background(), tables, rec)
	s.Require().NoError(err)
	s.Equal(5.0, values["n"])
	s.Require().Len(warnings, 1)
	s.Contains(warnings[0], "defaulting to reading from the specified File")
}

func (s *SourceReaderSuite) TestStrictSourceRejectsAmbiguousRow() {
	cfg := DefaultConfig()
	cfg.StrictSource = true
	tables := s.tablesFor("unused.xlsx",
		SourceSpec{VarName: "n", File: "data", Worksheet: "Data", Cell: "A1", Query: "weekly"})

	reader := NewSourceReader(cfg, time.Now())
	defer reader.Close()

	_, err := reader.Fetch(context.Background(), tables, NopReporter{})
	s.Require().Error(err)
	derr, ok := err.(*DataSourceError)
	s.Require().True(ok, "error = %v, want *DataSourceError", err)
	s.Equal("n", derr.Variable)
}

func (s *SourceReaderSuite) TestFetchErrors() {
	path := s.writeSourceWorkbook("data.xlsx", map[string]interface{}{"A1": 5})

	tests := []struct {
		name   string
		tables *Tables
	}{
		{
			name: "unknown file reference",
			tables: &Tables{
				Files:   map[string]string{},
				Queries: map[string]QuerySpec{},
				Sources: []SourceSpec{{VarName: "n", File: "nope", Worksheet: "Data", Cell: "A1"}},
			},
		},
		{
			name: "missing worksheet",
			tables: s.tablesFor(path,
				SourceSpec{VarName: "n", File: "data", Worksheet: "Nope", Cell: "A1"}),
		},
		{
			name: "empty cell",
			tables: s.tablesFor(path,
				SourceSpec{VarName: "n", File: "data", Worksheet: "Data", Cell: "J9"}),
		},
		{
			name: "unknown query reference",
			tables: &Tables{
				Files:   map[string]string{},
				Queries: map[string]QuerySpec{},
				Sources: []SourceSpec{{VarName: "n", Query: "nope"}},
			},
		},
		{
			name: "neither file nor query",
			tables: &Tables{
				Files:   map[string]string{},
				Queries: map[string]QuerySpec{},
				Sources: []SourceSpec{{VarName: "n"}},
			},
		},
		{
			name: "invalid file type",
			tables: s.tablesFor(filepath.Join(s.dir, "data.txt"),
				SourceSpec{VarName: "n", File: "data", Cell: "A1"}),
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			reader := NewSourceReader(DefaultConfig(), time.Now())
			defer reader.Close()

			_, err := reader.Fetch(context.Background(), tt.tables, NopReporter{})
			s.Require().Error(err)
			_, ok := err.(*DataSourceError)
			s.Require().True(ok, "error = %v, want *DataSourceError", err)
		})
	}
}

func TestWorkbookCacheSharesHandles(t *testing.T) {
	opens := 0
	cache := newWorkbookCache(4)
	defer cache.Close()

	open := func() (*excelize.File, error) {
		opens++
		return excelize.NewFile(), nil
	}

	if _, err := cache.get("a.xlsx", open); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.get("a.xlsx", open); err != nil {
		t.Fatal(err)
	}
	if opens != 1 {
		t.Errorf("open count = %d, want 1", opens)
	}
}

func TestWorkbookCacheEvictsLRU(t *testing.T) {
	opens := make(map[string]int)
	cache := newWorkbookCache(2)
	defer cache.Close()

	open := func(key string) func() (*excelize.File, error) {
		return func() (*excelize.File, error) {
			opens[key]++
			return excelize.NewFile(), nil
		}
	}

	require.NoError(t, errOf(cache.get("a", open("a"))))
	require.NoError(t, errOf(cache.get("b", open("b"))))
	require.NoError(t, errOf(cache.get("a", open("a")))) // refresh a
	require.NoError(t, errOf(cache.get("c", open("c")))) // evicts b
	require.NoError(t, errOf(cache.get("b", open("b")))) // re-open

	if opens["a"] != 1 || opens["b"] != 2 || opens["c"] != 1 {
		t.Errorf("open counts = %v, want a:1 b:2 c:1", opens)
	}
}

func errOf(_ *excelize.File, err error) error { return err }

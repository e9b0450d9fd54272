package report

import (
	"context"
	"time"
)

// Progress checkpoints emitted after each pipeline stage.
const (
	progressTablesLoaded   = 10
	progressSourcesFetched = 50
	progressValuesResolved = 70
	progressFormatsBuilt   = 90
	progressDone           = 100
)

// Pipeline sequences one report run: load and validate the definition
// tables, fetch initial values, resolve the formula-defined variables,
// build the styled formats, and splice the results into the template. Any
// fatal error halts the remaining stages; no partial document is written.
type Pipeline struct {
	cfg      *Config
	provider Provider
	rep      Reporter
}

// NewPipeline creates a pipeline. A nil provider gets the default
// SourceReader; a nil reporter discards events.
func NewPipeline(cfg *Config, provider Provider, rep Reporter) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if rep == nil {
		rep = NopReporter{}
	}
	return &Pipeline{cfg: cfg, provider: provider, rep: rep}
}

// Run fills the template at templatePath using the definitions workbook at
// definitionsPath and writes the finished report to outputPath.
func (p *Pipeline) Run(ctx context.Context, templatePath, definitionsPath, outputPath string) error {
	rep := p.rep

	reportf(rep, SeverityInfo, -1, "loading definition tables from %q", definitionsPath)
	tables, err := LoadTables(definitionsPath)
	if err != nil {
		return p.fail(err)
	}
	tpl, err := OpenTemplate(templatePath)
	if err != nil {
		return p.fail(err)
	}
	reportf(rep, SeverityInfo, progressTablesLoaded, "definition tables validated")

	provider := p.provider
	if provider == nil {
		reader := NewSourceReader(p.cfg, time.Now())
		defer reader.Close()
		provider = reader
	}
	initial, err := provider.Fetch(ctx, tables, rep)
	if err != nil {
		return p.fail(err)
	}
	reportf(rep, SeverityInfo, progressSourcesFetched, "fetched %d initial values", len(initial))

	res, err := EvaluateVariables(tables, initial, rep)
	if err != nil {
		return p.fail(err)
	}
	reportf(rep, SeverityInfo, progressValuesResolved, "resolved %d variables", res.Len())

	formats, err := BuildFormats(tables, res, rep)
	if err != nil {
		return p.fail(err)
	}
	reportf(rep, SeverityInfo, progressFormatsBuilt, "built %d formats", len(formats))

	FillDocument(tpl.Document(), formats, res, rep)
	if err := tpl.Save(outputPath); err != nil {
		return p.fail(err)
	}
	reportf(rep, SeverityInfo, progressDone, "report written to %q", outputPath)
	return nil
}

func (p *Pipeline) fail(err error) error {
	reportf(p.rep, SeverityError, -1, "%v", err)
	return err
}

// EvaluateVariables seeds the resolution map with the provider-supplied
// initial values, then resolves every formula-defined variable in
// dependency order. Referenced names with no definition stay as provider
// leaves. A variable that is both seeded and defined keeps its source
// value; its Values row is never evaluated.
func EvaluateVariables(tables *Tables, initial map[string]interface{}, rep Reporter) (*Resolution, error) {
	res := NewResolution()
	for name, value := range initial {
		if err := res.Set(name, value); err != nil {
			return nil, err
		}
	}

	order, err := OrderVariables(tables.Values)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		if res.Has(name) {
			continue
		}
		def, ok := tables.ValueDefinition(name)
		if !ok {
			continue
		}
		value, err := selectValue(def, res)
		if err != nil {
			return nil, err
		}
		if err := res.Set(name, value); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// BuildFormats selects and resolves the styled template of every Formats
// row against the completed resolution map.
func BuildFormats(tables *Tables, res *Resolution, rep Reporter) (map[string]RunTemplate, error) {
	out := make(map[string]RunTemplate, len(tables.Formats))
	for i := range tables.Formats {
		def := &tables.Formats[i]
		tpl, err := selectFormat(def, res)
		if err != nil {
			return nil, err
		}
		out[def.Name] = resolveTemplate(tpl, res, rep)
	}
	return out, nil
}

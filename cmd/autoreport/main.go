package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/trevor-pope/AutoReport/pkg/report"
)

func main() {
	output := flag.String("o", "", "output path (default: <template> with a \" - filled\" suffix)")
	level := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Usage = usage
	flag.Parse()

	cfg := report.ConfigFromEnvironment()
	if *level != "" {
		cfg.LogLevel = *level
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	templatePath, definitionsPath, err := inputPaths(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(2)
	}

	outputPath := *output
	if outputPath == "" {
		outputPath = defaultOutputPath(templatePath)
	}

	rep := report.NewWriterReporter(os.Stderr, report.ParseSeverity(cfg.LogLevel))
	pipeline := report.NewPipeline(cfg, nil, rep)
	if err := pipeline.Run(context.Background(), templatePath, definitionsPath, outputPath); err != nil {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: autoreport [flags] <template.docx> <definitions.xlsx>\n\n")
	fmt.Fprintf(os.Stderr, "Fills the template's backtick placeholders with values computed from the\n")
	fmt.Fprintf(os.Stderr, "definitions workbook. With no arguments the two paths are prompted for.\n\n")
	flag.PrintDefaults()
}

// inputPaths returns the template and definitions paths from the command
// line, prompting interactively when none were given.
func inputPaths(args []string) (string, string, error) {
	switch len(args) {
	case 2:
		return args[0], args[1], nil
	case 0:
		return promptPaths()
	default:
		return "", "", fmt.Errorf("expected a template and a definitions path, got %d arguments", len(args))
	}
}

func promptPaths() (string, string, error) {
	in := bufio.NewReader(os.Stdin)
	template, err := prompt(in, "Template document (.docx): ")
	if err != nil {
		return "", "", err
	}
	definitions, err := prompt(in, "Definitions workbook (.xlsx): ")
	if err != nil {
		return "", "", err
	}
	return template, definitions, nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	path := strings.TrimSpace(line)
	if path == "" {
		return "", fmt.Errorf("no path given")
	}
	return path, nil
}

func defaultOutputPath(templatePath string) string {
	ext := ".docx"
	base := strings.TrimSuffix(templatePath, ext)
	if base == templatePath {
		return templatePath + " - filled.docx"
	}
	return base + " - filled" + ext
}

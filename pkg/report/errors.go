package report

import (
	"fmt"
	"strings"
)

// SchemaError reports a malformed definition table: wrong columns, a missing
// Else column, or duplicate keys. It is raised before the pipeline runs.
type SchemaError struct {
	Sheet   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s sheet: %s", e.Sheet, e.Message)
}

// NewSchemaError creates a new schema validation error for a sheet.
func NewSchemaError(sheet, format string, args ...interface{}) error {
	return &SchemaError{Sheet: sheet, Message: fmt.Sprintf(format, args...)}
}

// UndefinedVariableError reports a placeholder that references a name with no
// resolved value at the point of evaluation.
type UndefinedVariableError struct {
	Variable string // the variable whose expression triggered the failure
	Ref      string // the undefined name that was referenced
	Column   string
	Sheet    string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("%q column on the %s sheet for variable %q references an undefined variable: %q",
		e.Column, e.Sheet, e.Variable, e.Ref)
}

// CircularDependencyError reports a reference cycle among variable
// definitions. Members lists the cycle's variables in discovery order.
type CircularDependencyError struct {
	Members []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Members, " -> "))
}

// ExpressionSyntaxError reports an expression that could not be parsed.
type ExpressionSyntaxError struct {
	Variable string
	Column   string
	Sheet    string
	Expr     string
	Cause    error
}

func (e *ExpressionSyntaxError) Error() string {
	return fmt.Sprintf("error in syntax for %q in column %q on the %s sheet: %v",
		e.Variable, e.Column, e.Sheet, e.Cause)
}

func (e *ExpressionSyntaxError) Unwrap() error { return e.Cause }

// ExpressionTypeError reports an operator applied across incompatible types,
// for example adding a number and a string.
type ExpressionTypeError struct {
	Variable string
	Column   string
	Sheet    string
	Expr     string
	Cause    error
}

func (e *ExpressionTypeError) Error() string {
	return fmt.Sprintf("%q column on the %s sheet for variable %q contains an invalid operation: %v",
		e.Column, e.Sheet, e.Variable, e.Cause)
}

func (e *ExpressionTypeError) Unwrap() error { return e.Cause }

// DataSourceError reports a failure while fetching an initial variable value:
// a missing file, worksheet, cell, row, column, query, or connection.
type DataSourceError struct {
	Variable string
	Source   string // the file pattern or query name involved
	Message  string
	Cause    error
}

func (e *DataSourceError) Error() string {
	msg := e.Message
	if e.Source != "" {
		msg = fmt.Sprintf("%s (source %q)", msg, e.Source)
	}
	if e.Variable != "" {
		msg = fmt.Sprintf("variable %q: %s", e.Variable, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *DataSourceError) Unwrap() error { return e.Cause }

// NewDataSourceError creates a new data source error.
func NewDataSourceError(variable, source, format string, args ...interface{}) error {
	return &DataSourceError{Variable: variable, Source: source, Message: fmt.Sprintf(format, args...)}
}

// DocumentError represents an error during template document I/O.
type DocumentError struct {
	Operation string
	Path      string
	Cause     error
}

func (e *DocumentError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("document error during %s of %q: %v", e.Operation, e.Path, e.Cause)
	}
	return fmt.Sprintf("document error during %s: %v", e.Operation, e.Cause)
}

func (e *DocumentError) Unwrap() error { return e.Cause }

// NewDocumentError creates a new document error.
func NewDocumentError(operation, path string, cause error) error {
	return &DocumentError{Operation: operation, Path: path, Cause: cause}
}

// IsSchemaError checks if an error is a schema validation error.
func IsSchemaError(err error) bool {
	_, ok := err.(*SchemaError)
	return ok
}

// IsCircularDependencyError checks if an error reports a definition cycle.
func IsCircularDependencyError(err error) bool {
	_, ok := err.(*CircularDependencyError)
	return ok
}

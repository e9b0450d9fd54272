package report

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
)

// Expression evaluation for the Values and Formats sheets.
//
// User expressions are compiled with a deliberately restricted grammar:
// literals, arithmetic, comparison, and/or/not, parentheses, and a small
// whitelisted function set. There is no field access, no statements, and no
// way to reach the host program. Placeholders are substituted with literal
// values before the expression ever reaches the compiler, so the compiled
// program is fully self-contained.

// exprSite identifies where an expression came from, for error context.
type exprSite struct {
	Variable string
	Column   string
	Sheet    string
}

var exprOptions = []expr.Option{
	expr.Env(map[string]interface{}{}),
	expr.DisableAllBuiltins(),
	expr.Function("abs", func(params ...interface{}) (interface{}, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("abs expects 1 argument, got %d", len(params))
		}
		f, ok := asFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("abs expects a number, got %T", params[0])
		}
		return math.Abs(f), nil
	}),
	expr.Function("round", func(params ...interface{}) (interface{}, error) {
		if len(params) < 1 || len(params) > 2 {
			return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(params))
		}
		f, ok := asFloat(params[0])
		if !ok {
			return nil, fmt.Errorf("round expects a number, got %T", params[0])
		}
		digits := 0.0
		if len(params) == 2 {
			d, ok := asFloat(params[1])
			if !ok {
				return nil, fmt.Errorf("round expects a numeric digit count, got %T", params[1])
			}
			digits = d
		}
		scale := math.Pow(10, digits)
		return math.Round(f*scale) / scale, nil
	}),
}

// normalizeExpression undoes the "smart" punctuation spreadsheet editors
// substitute into expression text.
func normalizeExpression(s string) string {
	r := strings.NewReplacer(
		"“", `"`, // left double quote
		"”", `"`, // right double quote
		"‘", "'", // left single quote
		"’", "'", // right single quote
	)
	return r.Replace(s)
}

// substitutePlaceholders replaces every `name` occurrence with the literal
// representation of the resolved value for name. The first unresolved name
// is returned so the caller can raise UndefinedVariableError.
func substitutePlaceholders(src string, res *Resolution) (string, string) {
	tokens := findPlaceholders(src)
	if len(tokens) == 0 {
		return src, ""
	}
	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		value, ok := res.Get(tok.Name)
		if !ok {
			return "", tok.Name
		}
		b.WriteString(src[last:tok.Start])
		b.WriteString(literal(value))
		last = tok.End
	}
	b.WriteString(src[last:])
	return b.String(), ""
}

// evalExpr compiles and runs one expression string against the resolution
// map, classifying failures into the error taxonomy.
func evalExpr(src string, res *Resolution, site exprSite) (interface{}, error) {
	substituted, missing := substitutePlaceholders(normalizeExpression(src), res)
	if missing != "" {
		return nil, &UndefinedVariableError{
			Variable: site.Variable,
			Ref:      missing,
			Column:   site.Column,
			Sheet:    site.Sheet,
		}
	}

	program, err := expr.Compile(substituted, exprOptions...)
	if err != nil {
		return nil, classifyExprError(err, src, site)
	}
	out, err := expr.Run(program, map[string]interface{}{})
	if err != nil {
		return nil, classifyExprError(err, src, site)
	}
	return out, nil
}

// classifyExprError splits compiler/runtime failures into type errors and
// syntax errors. The compiler type-checks the substituted literals, so an
// operator applied across incompatible types surfaces as an "invalid
// operation" or "mismatched types" message.
func classifyExprError(err error, src string, site exprSite) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid operation") ||
		strings.Contains(msg, "mismatched types") ||
		strings.Contains(msg, "cannot use") {
		return &ExpressionTypeError{
			Variable: site.Variable,
			Column:   site.Column,
			Sheet:    site.Sheet,
			Expr:     src,
			Cause:    err,
		}
	}
	return &ExpressionSyntaxError{
		Variable: site.Variable,
		Column:   site.Column,
		Sheet:    site.Sheet,
		Expr:     src,
		Cause:    err,
	}
}

// evalCondition evaluates a condition expression. An empty or
// whitespace-only condition is false without attempting a parse.
func evalCondition(src string, res *Resolution, site exprSite) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return false, nil
	}
	out, err := evalExpr(src, res, site)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

// evalValue evaluates a value expression to a typed scalar.
func evalValue(src string, res *Resolution, site exprSite) (interface{}, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &ExpressionSyntaxError{
			Variable: site.Variable,
			Column:   site.Column,
			Sheet:    site.Sheet,
			Expr:     src,
			Cause:    errors.New("empty expression"),
		}
	}
	return evalExpr(src, res, site)
}

// selectValue applies the ordered selection policy to a variable definition:
// conditions are evaluated in declared order, the first truthy one selects
// its paired value expression, and the default is the no-condition fallback.
// Later branches are never evaluated once a match is found.
func selectValue(def *VariableDefinition, res *Resolution) (interface{}, error) {
	for _, branch := range def.Branches {
		matched, err := evalCondition(branch.Condition, res, exprSite{
			Variable: def.Name,
			Column:   branch.ConditionColumn,
			Sheet:    sheetValues,
		})
		if err != nil {
			return nil, err
		}
		if matched {
			return evalValue(branch.Value, res, exprSite{
				Variable: def.Name,
				Column:   branch.ValueColumn,
				Sheet:    sheetValues,
			})
		}
	}
	return evalValue(def.Else, res, exprSite{
		Variable: def.Name,
		Column:   "ValueElse",
		Sheet:    sheetValues,
	})
}

func truthy(v interface{}) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case string:
		return n != ""
	default:
		if f, ok := asFloat(v); ok {
			return f != 0
		}
		return true
	}
}

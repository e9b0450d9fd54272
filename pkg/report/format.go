package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Display formatting for resolved values. A placeholder may carry a modifier
// string whose tokens are combinable and order-independent:
//
//	,    thousands separator
//	+-   force an explicit sign
//	$    currency decoration
//	%    multiply by 100 and append %
//	MK   scale to millions or thousands with an M/K suffix
//	.N   override decimal precision to N digits

type modifiers struct {
	thousands bool
	forceSign bool
	currency  bool
	percent   bool
	magnitude bool // MK
	precision int
	hasPrec   bool
	precErr   bool // a '.' was present but not followed by digits
}

func parseModifiers(s string) modifiers {
	var m modifiers
	m.thousands = strings.Contains(s, ",")
	m.forceSign = strings.Contains(s, "+-")
	m.currency = strings.Contains(s, "$")
	m.percent = strings.Contains(s, "%")
	m.magnitude = strings.Contains(s, "MK")

	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		digits := s[dot+1:]
		end := 0
		for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
			end++
		}
		if end == 0 {
			m.precErr = true
		} else if p, err := strconv.Atoi(digits[:end]); err == nil {
			m.precision = p
			m.hasPrec = true
		}
	}
	return m
}

// FormatValue renders a numeric value according to a modifier string.
// Processing order: scale adjustment, rounding to the resolved precision,
// separator/sign rendering, then currency/percent/magnitude decoration.
func FormatValue(value float64, mods string) string {
	m := parseModifiers(mods)
	original := value

	// Scale adjustment.
	switch {
	case m.magnitude:
		if math.Abs(value) >= 1e6 {
			value /= 1e6
		} else {
			value /= 1e3
		}
	case m.percent:
		value *= 100
	}

	// Resolve precision: an explicit .N always wins, otherwise each
	// decoration has its own default.
	precision := 0
	hasPrecision := true
	switch {
	case m.hasPrec:
		precision = m.precision
	case m.precErr:
		precision = 1
	case m.magnitude:
		if math.Abs(original) >= 1e6 {
			precision = 0
		} else {
			precision = 1
		}
	case m.percent:
		precision = 1
	case m.currency:
		precision = 2
	default:
		hasPrecision = false
	}

	var out string
	if hasPrecision {
		scale := math.Pow(10, float64(precision))
		rounded := math.Round(value*scale) / scale
		out = strconv.FormatFloat(rounded, 'f', precision, 64)
	} else {
		out = formatFloat(value)
	}

	if m.thousands {
		out = groupThousands(out)
	}
	if m.forceSign && !strings.HasPrefix(out, "-") {
		out = "+" + out
	}

	// Decorations.
	if m.currency {
		switch {
		case strings.HasPrefix(out, "-"):
			out = "-$" + out[1:]
		case strings.HasPrefix(out, "+"):
			out = "+$" + out[1:]
		default:
			out = "$" + out
		}
	}
	if m.percent {
		out += "%"
	}
	if m.magnitude {
		if math.Abs(original) >= 1e6 {
			out += "M"
		} else {
			out += "K"
		}
	}
	return out
}

// groupThousands inserts comma separators into the integer part of a
// formatted number, leaving any sign and decimal part alone.
func groupThousands(s string) string {
	sign := ""
	if len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}

// selectFormat applies the ordered selection policy to a format definition,
// returning the chosen run template. The policy mirrors selectValue; the
// only difference is that a branch selects styled text instead of a scalar.
func selectFormat(def *FormatDefinition, res *Resolution) (RunTemplate, error) {
	for _, branch := range def.Branches {
		matched, err := evalCondition(branch.Condition, res, exprSite{
			Variable: def.Name,
			Column:   branch.ConditionColumn,
			Sheet:    sheetFormats,
		})
		if err != nil {
			return nil, err
		}
		if matched {
			return branch.Template, nil
		}
	}
	return def.Else, nil
}

// resolveTemplate replaces every placeholder inside a chosen run template
// with the literal formatted text of the referenced variable. A variable
// carrying modifiers but holding a non-numeric value keeps its plain string
// form with a warning; a wholly undefined variable leaves the token in place
// with a warning.
func resolveTemplate(tpl RunTemplate, res *Resolution, rep Reporter) RunTemplate {
	out := make(RunTemplate, 0, len(tpl))
	for _, span := range tpl {
		out = append(out, StyledText{
			Text:  resolveText(span.Text, res, rep),
			Style: span.Style,
		})
	}
	return out
}

func resolveText(text string, res *Resolution, rep Reporter) string {
	tokens := findPlaceholders(text)
	if len(tokens) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	for _, tok := range tokens {
		b.WriteString(text[last:tok.Start])
		b.WriteString(formattedValue(tok, res, rep))
		last = tok.End
	}
	b.WriteString(text[last:])
	return b.String()
}

// formattedValue renders one placeholder's replacement text, or the token
// itself when the variable is undefined.
func formattedValue(tok Placeholder, res *Resolution, rep Reporter) string {
	value, ok := res.Get(tok.Name)
	if !ok {
		reportf(rep, SeverityWarning, -1,
			"template references variable %q that is not defined", tok.Name)
		return placeholderToken(tok)
	}
	if tok.Modifiers == "" {
		return plainString(value)
	}
	f, numeric := asFloat(value)
	if !numeric {
		reportf(rep, SeverityWarning, -1,
			"non-numeric variable %q has formatting modifiers, ignoring them", tok.Name)
		return plainString(value)
	}
	if parseModifiers(tok.Modifiers).precErr {
		reportf(rep, SeverityWarning, -1,
			"invalid precision in modifiers %q for variable %q, defaulting to one decimal place",
			tok.Modifiers, tok.Name)
	}
	return FormatValue(f, tok.Modifiers)
}

func placeholderToken(tok Placeholder) string {
	if tok.Modifiers != "" {
		return fmt.Sprintf("`%s`[%s]", tok.Name, tok.Modifiers)
	}
	return fmt.Sprintf("`%s`", tok.Name)
}

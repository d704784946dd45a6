package coerce

import (
	"regexp"
	"strconv"
	"strings"
)

var spreadsheetErrors = map[string]bool{
	"#N/A":    true,
	"#REF!":   true,
	"#VALUE!": true,
	"#DIV/0!": true,
	"#NAME?":  true,
	"#NULL!":  true,
	"#NUM!":   true,
	"#SPILL!": true,
	"#CALC!":  true,
}

var formulaRe = regexp.MustCompile(`^=\s*[A-Za-z(]`)

// IsSpreadsheetError reports whether v is an error literal left behind by a spreadsheet
// export, such as "#N/A" or "#REF!".
func IsSpreadsheetError(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return spreadsheetErrors[strings.ToUpper(strings.TrimSpace(s))]
}

// LooksLikeFormula reports whether v is an unevaluated formula ("=SUM(A1:A3)").
func LooksLikeFormula(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return formulaRe.MatchString(strings.TrimSpace(s))
}

// LooksLikeSerialDate reports whether v is a number, or a numeric string, inside
// the serial-date window. Used to flag date columns that were exported as raw day counts.
func LooksLikeSerialDate(v any) bool {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && IsSerialDateNumber(f)
	}
	f, ok := toFloat(v)
	return ok && IsSerialDateNumber(f)
}

// Suspect returns a short description of why v looks like spreadsheet debris, or "".
func Suspect(v any) string {
	switch {
	case IsSpreadsheetError(v):
		return "spreadsheet error value " + strconv.Quote(strings.TrimSpace(v.(string)))
	case LooksLikeFormula(v):
		return "unevaluated formula " + strconv.Quote(strings.TrimSpace(v.(string)))
	}
	return ""
}

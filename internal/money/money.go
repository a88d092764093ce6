// money.go - Exact integer-cent parsing of printed money text

package money

import (
	"regexp"
	"strconv"
	"strings"
)

// IllegibleSentinel is what the extraction prompt instructs the model to emit
// when a printed amount cannot be read.
const IllegibleSentinel = "no legible"

// amountPattern matches money-shaped substrings in a free-text transcript
// line: a digit run with an explicit two-digit decimal part, optionally with
// thousands groups and a trailing minus. Bare integers are excluded on
// purpose; quantities and folio numbers are printed without decimals.
var amountPattern = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})*[.,]\d{2}-?|\d+[.,]\d{1,2}-?`)

// ParseToCents converts heterogeneous printed money text into exact integer
// cents. It accepts currency symbols, mixed thousands/decimal separators,
// trailing-minus and parenthetical negatives, and the illegible sentinel.
// It never fails: anything unparsable degrades to 0 so a single malformed
// token cannot abort a receipt.
func ParseToCents(text string) int64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(s), IllegibleSentinel) {
		return 0
	}

	negative := false

	// Parenthetical negative: "(12.00)"
	if open := strings.IndexByte(s, '('); open != -1 {
		if close := strings.LastIndexByte(s, ')'); close > open {
			negative = true
			s = s[open+1 : close]
		}
	}

	firstDigit := strings.IndexAny(s, "0123456789")
	if firstDigit == -1 {
		return 0
	}
	lastDigit := strings.LastIndexAny(s, "0123456789")

	// Leading minus before the first digit, or a trailing minus anywhere
	// after the last digit ("85.90-", "85.90 -B").
	if strings.ContainsRune(s[:firstDigit], '-') || strings.ContainsRune(s[lastDigit+1:], '-') {
		negative = true
	}

	// Keep only digits and separators from the numeric run.
	var b strings.Builder
	for _, ch := range s[firstDigit : lastDigit+1] {
		switch {
		case ch >= '0' && ch <= '9', ch == '.', ch == ',':
			b.WriteRune(ch)
		case ch == ' ':
			// Thin-space thousands grouping on some printers; drop it.
		default:
			// Any other character inside the run means this is not a
			// clean amount token. Degrade rather than guess.
			return 0
		}
	}
	digits := b.String()
	if digits == "" {
		return 0
	}

	intPart, fracPart := splitDecimal(digits)

	intVal, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0
	}

	var fracVal int64
	switch len(fracPart) {
	case 0:
		fracVal = 0
	case 1:
		fracVal = int64(fracPart[0]-'0') * 10
	default:
		v, err := strconv.ParseInt(fracPart[:2], 10, 64)
		if err != nil {
			return 0
		}
		fracVal = v
	}

	cents := intVal*100 + fracVal
	if negative {
		cents = -cents
	}
	return cents
}

// splitDecimal disambiguates thousands from decimal separators. The trailing
// group decides: 1-2 digits after the last separator is a decimal part, a
// 3-digit group is thousands grouping ("1,234" == 1234.00).
func splitDecimal(digits string) (intPart, fracPart string) {
	lastSep := strings.LastIndexAny(digits, ".,")
	if lastSep == -1 {
		return digits, ""
	}

	tail := digits[lastSep+1:]
	if n := len(tail); n >= 1 && n <= 2 && !strings.ContainsAny(tail, ".,") {
		intPart = stripSeparators(digits[:lastSep])
		return intPart, tail
	}

	return stripSeparators(digits), ""
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ".", "")
	if s == "" {
		return "0"
	}
	return s
}

// LastAmountInText extracts the last money-shaped substring from a free-text
// transcript line, or "" when the line holds no amount. Used to recover an
// item total from its raw line without inventing a value the text does not
// contain.
func LastAmountInText(line string) string {
	matches := amountPattern.FindAllString(line, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}

// FormatCents renders integer cents as a caller-visible decimal string.
// This is the only place cents become a decimal representation.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + strconv.FormatInt(cents/100, 10) + "." + pad2(cents%100)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}

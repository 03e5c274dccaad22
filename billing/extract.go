package billing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/fakeman1232/Contract-Ledger-app/model"
)

// ExtractedFacts is what a single statement yielded. Every field is optional;
// an empty string means the pattern did not match.
type ExtractedFacts = model.Facts

// amountPattern matches a number such as 1,234,567.89.
const amountPattern = `([0-9,]+\.?\d*)`

var (
	supplierRe       = regexp.MustCompile(`分包方[：:]\s*(\S+?)(?:\s*计价编号|\s*\z)`)
	contractNumberRe = regexp.MustCompile(`计价编号[：:]\s*(\S+)`)
	periodRe         = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月`)
	periodAmountRe   = regexp.MustCompile(`本期计价金额\s*` + amountPattern + `\s*元`)
	yearToDateRe     = regexp.MustCompile(`本年开累计价金额\s*` + amountPattern + `\s*元`)
	cumulativeRe     = regexp.MustCompile(`开累计价金额\s*` + amountPattern + `\s*元`)
)

// yearToDatePrefix turns a cumulative label into the year-to-date label.
const yearToDatePrefix = "本年"

// Extract pulls billing facts out of statement text. Each rule runs on its
// own, so any subset of fields may be filled.
func Extract(text string) ExtractedFacts {
	var facts ExtractedFacts
	text = asciiSpaces(text)

	if m := supplierRe.FindStringSubmatch(text); m != nil {
		facts.Supplier = strings.TrimSpace(m[1])
	}
	if m := contractNumberRe.FindStringSubmatch(text); m != nil {
		facts.ContractNumber = strings.TrimSpace(m[1])
	}
	facts.Period = extractPeriod(text)
	if m := periodAmountRe.FindStringSubmatch(text); m != nil {
		facts.PeriodAmount = m[1]
	}

	// Year-to-date runs first. The cumulative label is a suffix of the
	// year-to-date label, so cumulative skips matches claimed by it.
	if m := yearToDateRe.FindStringSubmatch(text); m != nil {
		facts.YearToDateAmount = m[1]
	}
	facts.CumulativeAmount = extractCumulative(text)

	return facts
}

// asciiSpaces turns Unicode space separators such as U+3000 and U+00A0 into
// plain spaces, which is all \s matches.
func asciiSpaces(text string) string {
	return strings.Map(func(r rune) rune {
		if r != ' ' && unicode.Is(unicode.Zs, r) {
			return ' '
		}
		return r
	}, text)
}

func extractPeriod(text string) string {
	for _, m := range periodRe.FindAllStringSubmatch(text, -1) {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			continue
		}
		return fmt.Sprintf("%04d-%02d", year, month)
	}
	return ""
}

func extractCumulative(text string) string {
	matches := cumulativeRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, loc := range matches {
		if strings.HasSuffix(text[:loc[0]], yearToDatePrefix) {
			continue
		}
		return text[loc[2]:loc[3]]
	}
	// Only the year-to-date phrasing is present; fall back to it.
	first := matches[0]
	return text[first[2]:first[3]]
}

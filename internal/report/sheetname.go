package report

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// maxSheetNameLength is the spreadsheet limit on sheet name length, in characters.
	maxSheetNameLength = 31
	defaultSheetName   = "Sheet"
)

// SheetName derives a valid sheet name from "{cat1Name} {cat1Code} {date}".
func SheetName(cat1Name, cat1Code, date string) string {
	return sanitizeSheetName(fmt.Sprintf("%s %s %s", cat1Name, cat1Code, date))
}

func sanitizeSheetName(value string) string {
	builder := strings.Builder{}
	for _, r := range value {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		if r < 0x20 {
			continue
		}
		builder.WriteRune(r)
	}
	result := strings.Join(strings.Fields(builder.String()), " ")
	result = strings.Trim(result, "' ")
	result = truncateRunes(result, maxSheetNameLength)
	result = strings.TrimRight(result, "' ")
	if result == "" {
		return defaultSheetName
	}
	return result
}

func truncateRunes(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit])
}

// nameRegistry hands out workbook-unique sheet names. Names compare
// case-insensitively, as spreadsheet applications do.
type nameRegistry struct {
	used map[string]struct{}
}

func newNameRegistry() *nameRegistry {
	return &nameRegistry{used: make(map[string]struct{})}
}

func (r *nameRegistry) claim(name string) string {
	candidate := name
	for n := 2; ; n++ {
		key := strings.ToLower(candidate)
		if _, taken := r.used[key]; !taken {
			r.used[key] = struct{}{}
			return candidate
		}
		suffix := fmt.Sprintf(" (%d)", n)
		candidate = truncateRunes(name, maxSheetNameLength-utf8.RuneCountInString(suffix)) + suffix
	}
}

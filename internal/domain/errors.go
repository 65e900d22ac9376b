package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrDataFormat matches any *DataFormatError.
	ErrDataFormat = errors.New("malformed source data")
	// ErrDictionaryIntegrity matches any *DictionaryIntegrityError.
	ErrDictionaryIntegrity = errors.New("ambiguous code dictionary")
	// ErrUnresolvedLabel matches any *UnresolvedLabelError.
	ErrUnresolvedLabel = errors.New("unresolved labels")
	// ErrExport matches any *ExportError.
	ErrExport = errors.New("report export failed")
)

// DataFormatError reports a date or numeric field that could not be parsed.
type DataFormatError struct {
	Field string
	Value string
	Key   GroupKey
	// Row is the 1-based source position of the record, 0 when unknown.
	Row int
	Err error
}

func (e *DataFormatError) Error() string {
	msg := fmt.Sprintf("invalid %s %q for group %s", e.Field, e.Value, e.Key)
	if e.Row > 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataFormatError) Is(target error) bool { return target == ErrDataFormat }

func (e *DataFormatError) Unwrap() error { return e.Err }

// DictionaryIntegrityError reports names that map to more than one code.
type DictionaryIntegrityError struct {
	Domain DictionaryDomain
	// Duplicates maps each ambiguous name to every code it appeared with, in load order.
	Duplicates map[string][]string
}

func (e *DictionaryIntegrityError) Error() string {
	names := make([]string, 0, len(e.Duplicates))
	for name := range e.Duplicates {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, e.Duplicates[name]))
	}
	return fmt.Sprintf("duplicate names found in %s dictionary: %s", e.Domain, strings.Join(parts, ", "))
}

func (e *DictionaryIntegrityError) Is(target error) bool { return target == ErrDictionaryIntegrity }

// UnresolvedLabelError lists, per domain, every label of a batch without a code.
type UnresolvedLabelError struct {
	Missing map[DictionaryDomain][]string
}

// Labels returns the sorted unresolved labels for d.
func (e *UnresolvedLabelError) Labels(d DictionaryDomain) []string {
	return e.Missing[d]
}

func (e *UnresolvedLabelError) Error() string {
	lines := []string{"mapping errors:"}
	for _, d := range AllDomains {
		labels := e.Missing[d]
		if len(labels) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("missing %s codes for values: %s", d, strings.Join(labels, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (e *UnresolvedLabelError) Is(target error) bool { return target == ErrUnresolvedLabel }

// ExportError aborts a report export; no partial workbook is produced.
type ExportError struct {
	Sheet string
	Err   error
}

func (e *ExportError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("export sheet %q: %v", e.Sheet, e.Err)
	}
	return fmt.Sprintf("export: %v", e.Err)
}

func (e *ExportError) Is(target error) bool { return target == ErrExport }

func (e *ExportError) Unwrap() error { return e.Err }

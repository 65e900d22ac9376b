package domain

import "sort"

// DictionaryDomain names one of the four categorical label families.
type DictionaryDomain string

const (
	DomainCategory1 DictionaryDomain = "cat1"
	DomainCategory2 DictionaryDomain = "cat2"
	DomainModel     DictionaryDomain = "model"
	DomainProcess   DictionaryDomain = "process"
	// DomainWorker holds worker codes; quotas never reference it.
	DomainWorker DictionaryDomain = "worker"
)

// AllDomains lists the dictionary domains in reporting order.
var AllDomains = []DictionaryDomain{DomainCategory1, DomainCategory2, DomainModel, DomainProcess}

// DictionaryEntry is one name/code row as read from a reference store.
type DictionaryEntry struct {
	Name string
	Code string
}

// CodeDictionary is an immutable name <-> code mapping for one domain.
type CodeDictionary struct {
	domain DictionaryDomain
	byName map[string]string
	byCode map[string]string
}

// NewCodeDictionary builds a dictionary and rejects any name listed more than once.
func NewCodeDictionary(d DictionaryDomain, entries []DictionaryEntry) (*CodeDictionary, error) {
	seen := make(map[string][]string, len(entries))
	for _, entry := range entries {
		seen[entry.Name] = append(seen[entry.Name], entry.Code)
	}

	duplicates := map[string][]string{}
	for name, codes := range seen {
		if len(codes) > 1 {
			duplicates[name] = codes
		}
	}
	if len(duplicates) > 0 {
		return nil, &DictionaryIntegrityError{Domain: d, Duplicates: duplicates}
	}

	dict := &CodeDictionary{
		domain: d,
		byName: make(map[string]string, len(entries)),
		byCode: make(map[string]string, len(entries)),
	}
	for _, entry := range entries {
		dict.byName[entry.Name] = entry.Code
		if _, exists := dict.byCode[entry.Code]; !exists {
			dict.byCode[entry.Code] = entry.Name
		}
	}
	return dict, nil
}

// MustCodeDictionary builds a dictionary from a name -> code map. A Go map cannot
// carry duplicate names, so construction never fails.
func MustCodeDictionary(d DictionaryDomain, codes map[string]string) *CodeDictionary {
	entries := make([]DictionaryEntry, 0, len(codes))
	for name, code := range codes {
		entries = append(entries, DictionaryEntry{Name: name, Code: code})
	}
	dict, err := NewCodeDictionary(d, entries)
	if err != nil {
		panic(err)
	}
	return dict
}

func (c *CodeDictionary) Domain() DictionaryDomain { return c.domain }

func (c *CodeDictionary) Len() int { return len(c.byName) }

// Code returns the code registered for name.
func (c *CodeDictionary) Code(name string) (string, bool) {
	code, ok := c.byName[name]
	return code, ok
}

// Name returns the first name registered for code.
func (c *CodeDictionary) Name(code string) (string, bool) {
	name, ok := c.byCode[code]
	return name, ok
}

// Names returns every name in ascending order.
func (c *CodeDictionary) Names() []string {
	names := make([]string, 0, len(c.byName))
	for name := range c.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reverse returns a fresh code -> name map.
func (c *CodeDictionary) Reverse() map[string]string {
	out := make(map[string]string, len(c.byCode))
	for code, name := range c.byCode {
		out[code] = name
	}
	return out
}

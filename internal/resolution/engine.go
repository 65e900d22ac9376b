// Package resolution maps categorical labels of validity intervals to dictionary codes.
package resolution

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rpattn/quotanorm/internal/domain"
)

// Dictionaries bundles the four reference dictionaries used by one batch.
type Dictionaries struct {
	Category1 *domain.CodeDictionary
	Category2 *domain.CodeDictionary
	Model     *domain.CodeDictionary
	Process   *domain.CodeDictionary
}

// NewDictionaries builds all four dictionaries. Every integrity problem is
// reported before any record is looked at.
func NewDictionaries(entries map[domain.DictionaryDomain][]domain.DictionaryEntry) (Dictionaries, error) {
	var (
		dicts Dictionaries
		errs  []error
	)
	for _, d := range domain.AllDomains {
		dict, err := domain.NewCodeDictionary(d, entries[d])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		dicts.set(d, dict)
	}
	if len(errs) > 0 {
		return Dictionaries{}, errors.Join(errs...)
	}
	return dicts, nil
}

func (d *Dictionaries) set(dom domain.DictionaryDomain, dict *domain.CodeDictionary) {
	switch dom {
	case domain.DomainCategory1:
		d.Category1 = dict
	case domain.DomainCategory2:
		d.Category2 = dict
	case domain.DomainModel:
		d.Model = dict
	case domain.DomainProcess:
		d.Process = dict
	}
}

// For returns the dictionary of one domain.
func (d Dictionaries) For(dom domain.DictionaryDomain) *domain.CodeDictionary {
	switch dom {
	case domain.DomainCategory1:
		return d.Category1
	case domain.DomainCategory2:
		return d.Category2
	case domain.DomainModel:
		return d.Model
	case domain.DomainProcess:
		return d.Process
	default:
		return nil
	}
}

func (d Dictionaries) validate() error {
	for _, dom := range domain.AllDomains {
		if d.For(dom) == nil {
			return fmt.Errorf("%s dictionary is not loaded", dom)
		}
	}
	return nil
}

// Engine resolves batches of intervals.
type Engine struct {
	now       func() time.Time
	createdBy int
}

type Option func(*Engine)

// WithClock overrides the source of the batch timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCreatedBy overrides the audit user stamped on every row.
func WithCreatedBy(id int) Option {
	return func(e *Engine) {
		e.createdBy = id
	}
}

func NewEngine(opts ...Option) *Engine {
	engine := &Engine{now: time.Now, createdBy: domain.DefaultCreatedBy}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Resolve resolves intervals with a default engine.
func Resolve(intervals []domain.ValidityInterval, dicts Dictionaries) ([]domain.ResolvedQuotaRow, error) {
	return NewEngine().Resolve(intervals, dicts)
}

// Resolve replaces the four labels of every interval with their codes. The whole
// batch is scanned before failing so that every missing label is reported at once.
func (e *Engine) Resolve(intervals []domain.ValidityInterval, dicts Dictionaries) ([]domain.ResolvedQuotaRow, error) {
	if err := dicts.validate(); err != nil {
		return nil, err
	}

	missing := map[domain.DictionaryDomain]map[string]struct{}{}
	lookup := func(dom domain.DictionaryDomain, label string) string {
		code, ok := dicts.For(dom).Code(label)
		if !ok {
			if missing[dom] == nil {
				missing[dom] = map[string]struct{}{}
			}
			missing[dom][label] = struct{}{}
		}
		return code
	}

	createdAt := e.now()
	rows := make([]domain.ResolvedQuotaRow, 0, len(intervals))
	for _, interval := range intervals {
		rows = append(rows, domain.ResolvedQuotaRow{
			Cat1Code:      lookup(domain.DomainCategory1, interval.Category1),
			Cat2Code:      lookup(domain.DomainCategory2, interval.Category2),
			ModelCode:     lookup(domain.DomainModel, interval.Model),
			ProcessCode:   lookup(domain.DomainProcess, interval.Process),
			UnitPrice:     interval.UnitPrice,
			EffectiveDate: interval.EffectiveFrom,
			ObsoleteDate:  interval.ObsoleteDate,
			CreatedBy:     e.createdBy,
			CreatedAt:     createdAt,
		})
	}

	if len(missing) > 0 {
		unresolved := &domain.UnresolvedLabelError{Missing: make(map[domain.DictionaryDomain][]string, len(missing))}
		for dom, labels := range missing {
			sorted := make([]string, 0, len(labels))
			for label := range labels {
				sorted = append(sorted, label)
			}
			sort.Strings(sorted)
			unresolved.Missing[dom] = sorted
		}
		return nil, unresolved
	}
	return rows, nil
}

// Unresolve maps the codes of resolved rows back to their dictionary names.
func Unresolve(rows []domain.ResolvedQuotaRow, dicts Dictionaries) ([]domain.ValidityInterval, error) {
	if err := dicts.validate(); err != nil {
		return nil, err
	}
	name := func(dom domain.DictionaryDomain, code string) (string, error) {
		n, ok := dicts.For(dom).Name(code)
		if !ok {
			return "", fmt.Errorf("no %s name for code %q", dom, code)
		}
		return n, nil
	}

	out := make([]domain.ValidityInterval, 0, len(rows))
	for _, row := range rows {
		var (
			record domain.QuotaRecord
			err    error
		)
		if record.Category1, err = name(domain.DomainCategory1, row.Cat1Code); err != nil {
			return nil, err
		}
		if record.Category2, err = name(domain.DomainCategory2, row.Cat2Code); err != nil {
			return nil, err
		}
		if record.Model, err = name(domain.DomainModel, row.ModelCode); err != nil {
			return nil, err
		}
		if record.Process, err = name(domain.DomainProcess, row.ProcessCode); err != nil {
			return nil, err
		}
		record.UnitPrice = row.UnitPrice
		record.EffectiveFrom = row.EffectiveDate
		out = append(out, domain.ValidityInterval{QuotaRecord: record, ObsoleteDate: row.ObsoleteDate})
	}
	return out, nil
}

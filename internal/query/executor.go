// Package query implements the best-effort query execution path. A fixed set
// of textual patterns is recognized; unrecognized constructs are silently
// ignored rather than rejected, and execution never returns an error.
package query

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"patientcore/internal/metrics"
	"patientcore/pkg/domain"
)

// View is the read-only slice of the local store the executor runs against.
type View interface {
	ListPatients() []domain.Patient
	ListAllergies() []domain.Allergy
	ListSavedQueries() []domain.SavedQuery
}

// Result carries the rows produced by one execution plus timing metadata.
// Time is elapsed wall time in fractional seconds at millisecond precision.
type Result struct {
	Results []any   `json:"results"`
	Time    float64 `json:"time"`
	Count   int     `json:"count"`
}

var (
	dobPattern    = regexp.MustCompile(`date_of_birth\s*<\s*'([^']+)'`)
	genderPattern = regexp.MustCompile(`gender\s*=\s*'([^']+)'`)
)

// Executor classifies and runs query text against a store view.
type Executor struct {
	view View
	col  *collate.Collator
}

// New constructs an executor over the given view.
func New(view View) *Executor {
	return &Executor{
		view: view,
		col:  collate.New(language.English, collate.Loose),
	}
}

// Execute interprets queryText and returns the matching rows. Only queries
// beginning with "select" (case-insensitive, after trimming) are processed;
// anything else, and any internal failure, yields an empty zero-time result.
func (e *Executor) Execute(queryText string) (res Result) {
	start := time.Now()
	res = Result{Results: []any{}}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Results: []any{}}
		}
		metrics.RecordQuery(time.Since(start))
	}()

	// The whole query is lowercased before classification, so extracted
	// literals compare in lowercase as well.
	q := strings.ToLower(strings.TrimSpace(queryText))
	if !strings.HasPrefix(q, "select") {
		return res
	}

	switch {
	case strings.Contains(q, "from patients"):
		res.Results = e.patientRows(q)
	case strings.Contains(q, "from allergies"):
		for _, a := range e.view.ListAllergies() {
			res.Results = append(res.Results, a)
		}
	case strings.Contains(q, "from saved_queries"):
		for _, sq := range e.view.ListSavedQueries() {
			res.Results = append(res.Results, sq)
		}
	}

	res.Count = len(res.Results)
	res.Time = roundMillis(time.Since(start).Seconds())
	return res
}

func (e *Executor) patientRows(q string) []any {
	// Sorting happens in place, so work on a copy of the view's rows.
	patients := append([]domain.Patient(nil), e.view.ListPatients()...)

	if strings.Contains(q, "where") {
		if strings.Contains(q, "where date_of_birth <") {
			if m := dobPattern.FindStringSubmatch(q); m != nil {
				patients = filterPatients(patients, func(p domain.Patient) bool {
					return p.DOB < m[1]
				})
			}
		}
		if strings.Contains(q, "where gender =") {
			if m := genderPattern.FindStringSubmatch(q); m != nil {
				patients = filterPatients(patients, func(p domain.Patient) bool {
					return p.Gender != nil && *p.Gender == m[1]
				})
			}
		}
	}

	if strings.Contains(q, "order by") {
		asc := !strings.Contains(q, "desc")
		if strings.Contains(q, "order by last_name") {
			sortPatients(patients, func(a, b domain.Patient) bool {
				if asc {
					return e.col.CompareString(a.LastName, b.LastName) < 0
				}
				return e.col.CompareString(b.LastName, a.LastName) < 0
			})
		}
		if strings.Contains(q, "order by registration_date") {
			sortPatients(patients, func(a, b domain.Patient) bool {
				if asc {
					return a.RegistrationDate.Before(b.RegistrationDate)
				}
				return b.RegistrationDate.Before(a.RegistrationDate)
			})
		}
	}

	rows := make([]any, 0, len(patients))
	for _, p := range patients {
		rows = append(rows, p)
	}
	return rows
}

func filterPatients(in []domain.Patient, keep func(domain.Patient) bool) []domain.Patient {
	out := in[:0:0]
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortPatients(in []domain.Patient, less func(a, b domain.Patient) bool) {
	sort.SliceStable(in, func(i, j int) bool { return less(in[i], in[j]) })
}

func roundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}

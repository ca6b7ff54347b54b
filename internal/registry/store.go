// Package registry implements the client-local data layer: the canonical
// in-tab copy of the patient, allergy, and saved-query collections with CRUD,
// search, and filter operations. Every mutation serializes the full affected
// collection back to durable storage before returning and fans exactly one
// change event out to the other execution contexts on the broadcast channel.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"patientcore/internal/metrics"
	"patientcore/pkg/domain"
)

type state struct {
	patients     []domain.Patient
	allergies    []domain.Allergy
	savedQueries []domain.SavedQuery
}

// Store is the sole authority, within one execution context, for reading and
// writing the three collections. Construct it with Open; callers hold the
// returned handle rather than reaching into package globals, so independent
// instances can coexist (and be isolated in tests).
//
// The error policy is deliberately asymmetric and mirrors the system this
// layer is compatible with: Create propagates storage failures, while Update
// and Delete swallow them into a not-found/false result after logging.
type Store struct {
	mu        sync.RWMutex
	state     state
	driver    domain.Driver
	publisher domain.Publisher
	nowFn     func() time.Time
	log       zerolog.Logger
}

// Options configures a Store handle.
type Options struct {
	// Driver persists each collection as a single blob. Required.
	Driver domain.Driver
	// Publisher receives one change event per committed mutation. Optional;
	// a nil publisher disables fan-out.
	Publisher domain.Publisher
	// Logger used for swallowed storage failures and hydration notices.
	Logger zerolog.Logger
	// Now overrides the timestamp source. Defaults to time.Now UTC.
	Now func() time.Time
}

// Open constructs a store handle and hydrates it from durable storage.
// Collections whose storage key has never been written are lazily
// initialized as empty.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("registry: driver is required")
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	s := &Store{
		driver:    opts.Driver,
		publisher: opts.Publisher,
		nowFn:     nowFn,
		log:       opts.Logger,
	}
	if err := s.hydrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) hydrate(ctx context.Context) error {
	for _, table := range domain.Tables() {
		payload, ok, err := s.driver.Load(ctx, table.StorageKey())
		if err != nil {
			return fmt.Errorf("load %s: %w", table.StorageKey(), err)
		}
		if !ok {
			s.log.Debug().Str("table", string(table)).Msg("initializing empty collection")
			if err := s.driver.Save(ctx, table.StorageKey(), []byte("[]")); err != nil {
				return fmt.Errorf("initialize %s: %w", table.StorageKey(), err)
			}
			continue
		}
		if len(payload) == 0 {
			continue
		}
		switch table {
		case domain.TablePatients:
			if err := json.Unmarshal(payload, &s.state.patients); err != nil {
				return fmt.Errorf("decode %s: %w", table.StorageKey(), err)
			}
		case domain.TableAllergies:
			if err := json.Unmarshal(payload, &s.state.allergies); err != nil {
				return fmt.Errorf("decode %s: %w", table.StorageKey(), err)
			}
		case domain.TableSavedQueries:
			if err := json.Unmarshal(payload, &s.state.savedQueries); err != nil {
				return fmt.Errorf("decode %s: %w", table.StorageKey(), err)
			}
		}
	}
	return nil
}

// persist serializes the named collections back to durable storage. The full
// collection is the unit of persistence; there are no incremental writes.
func (s *Store) persist(ctx context.Context, st state, tables ...domain.Table) error {
	for _, table := range tables {
		var (
			payload []byte
			err     error
		)
		switch table {
		case domain.TablePatients:
			payload, err = json.Marshal(nonNilPatients(st.patients))
		case domain.TableAllergies:
			payload, err = json.Marshal(nonNilAllergies(st.allergies))
		case domain.TableSavedQueries:
			payload, err = json.Marshal(nonNilSavedQueries(st.savedQueries))
		}
		if err != nil {
			return fmt.Errorf("encode %s: %w", table.StorageKey(), err)
		}
		if err := s.driver.Save(ctx, table.StorageKey(), payload); err != nil {
			metrics.RecordStorageFailure(string(table))
			return fmt.Errorf("save %s: %w", table.StorageKey(), err)
		}
	}
	return nil
}

func nonNilPatients(in []domain.Patient) []domain.Patient {
	if in == nil {
		return []domain.Patient{}
	}
	return in
}

func nonNilAllergies(in []domain.Allergy) []domain.Allergy {
	if in == nil {
		return []domain.Allergy{}
	}
	return in
}

func nonNilSavedQueries(in []domain.SavedQuery) []domain.SavedQuery {
	if in == nil {
		return []domain.SavedQuery{}
	}
	return in
}

func (s *Store) publish(event domain.ChangeEvent) {
	metrics.RecordMutation(string(event.Table), string(event.Type))
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func intPtr(v int) *int { return &v }

// nextID assigns max(existing)+1, or 1 for an empty collection. Not
// collision-safe when two contexts create concurrently; the broadcast
// protocol carries no coordination (accepted limitation).
func nextPatientID(patients []domain.Patient) int {
	max := 0
	for _, p := range patients {
		if p.ID > max {
			max = p.ID
		}
	}
	return max + 1
}

func nextAllergyID(allergies []domain.Allergy) int {
	max := 0
	for _, a := range allergies {
		if a.ID > max {
			max = a.ID
		}
	}
	return max + 1
}

func nextSavedQueryID(queries []domain.SavedQuery) int {
	max := 0
	for _, q := range queries {
		if q.ID > max {
			max = q.ID
		}
	}
	return max + 1
}

// Patients -------------------------------------------------------------------

// ListPatients returns all patients ordered by registration date descending
// (newest first).
func (s *Store) ListPatients() []domain.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedPatients(s.state.patients)
}

func sortedPatients(in []domain.Patient) []domain.Patient {
	out := append([]domain.Patient(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RegistrationDate.After(out[j].RegistrationDate)
	})
	return out
}

// GetPatientByID returns the patient or ok=false when the id is unknown.
func (s *Store) GetPatientByID(id int) (domain.Patient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.state.patients {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Patient{}, false
}

// CreatePatient assigns a new identifier, stamps the registration date,
// appends the record, persists the collection, and emits an insert event.
// The payload is assumed to have passed schema validation at the form
// boundary; the store does not re-validate.
func (s *Store) CreatePatient(ctx context.Context, ins domain.PatientInsert) (domain.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := domain.Patient{
		ID:                nextPatientID(s.state.patients),
		FirstName:         ins.FirstName,
		LastName:          ins.LastName,
		DOB:               ins.DOB,
		Gender:            ins.Gender,
		Email:             ins.Email,
		Phone:             ins.Phone,
		Address:           ins.Address,
		InsuranceProvider: ins.InsuranceProvider,
		MedicalHistory:    ins.MedicalHistory,
		RegistrationDate:  s.nowFn(),
	}
	next := s.state
	next.patients = append(append([]domain.Patient(nil), s.state.patients...), created)
	if err := s.persist(ctx, next, domain.TablePatients); err != nil {
		return domain.Patient{}, err
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionInsert, Table: domain.TablePatients, Data: created})
	return created, nil
}

// UpdatePatient applies mutate to a copy of the stored record. Fields the
// mutator leaves alone are unchanged; the identifier and registration date
// are reinstated afterwards so they cannot drift. Returns ok=false when the
// id is unknown, the mutator fails, or the durable write fails (the write
// failure is logged, not returned).
func (s *Store) UpdatePatient(ctx context.Context, id int, mutate func(*domain.Patient) error) (domain.Patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.state.patients {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Patient{}, false
	}
	updated := s.state.patients[idx]
	if err := mutate(&updated); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("patient update mutator failed")
		return domain.Patient{}, false
	}
	updated.ID = id
	updated.RegistrationDate = s.state.patients[idx].RegistrationDate

	next := s.state
	next.patients = append([]domain.Patient(nil), s.state.patients...)
	next.patients[idx] = updated
	if err := s.persist(ctx, next, domain.TablePatients); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("patient update not persisted")
		return domain.Patient{}, false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionUpdate, Table: domain.TablePatients, Data: updated, ID: intPtr(id)})
	return updated, true
}

// DeletePatient removes the patient and cascades to every allergy owned by
// it. Deleting an unknown id is a no-op that still persists and emits the
// delete event, so the call is idempotent from the caller's view. Only the
// patient delete event fires; cascaded allergies emit nothing. Returns false
// only when the durable write fails.
func (s *Store) DeletePatient(ctx context.Context, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.patients = make([]domain.Patient, 0, len(s.state.patients))
	for _, p := range s.state.patients {
		if p.ID != id {
			next.patients = append(next.patients, p)
		}
	}
	next.allergies = make([]domain.Allergy, 0, len(s.state.allergies))
	for _, a := range s.state.allergies {
		if a.PatientID != id {
			next.allergies = append(next.allergies, a)
		}
	}
	if err := s.persist(ctx, next, domain.TablePatients, domain.TableAllergies); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("patient delete not persisted")
		return false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionDelete, Table: domain.TablePatients, ID: intPtr(id)})
	return true
}

// SearchPatients matches term case-insensitively as a substring of the
// searchable fields. An empty or whitespace-only term returns the full list
// in the default order.
func (s *Store) SearchPatients(term string) []domain.Patient {
	patients := s.ListPatients()
	if strings.TrimSpace(term) == "" {
		return patients
	}
	needle := strings.ToLower(term)
	matches := func(field *string) bool {
		return field != nil && strings.Contains(strings.ToLower(*field), needle)
	}
	out := make([]domain.Patient, 0, len(patients))
	for _, p := range patients {
		if strings.Contains(strings.ToLower(p.FirstName), needle) ||
			strings.Contains(strings.ToLower(p.LastName), needle) ||
			matches(p.Email) ||
			strings.Contains(strings.ToLower(p.Phone), needle) ||
			matches(p.Address) ||
			matches(p.InsuranceProvider) {
			out = append(out, p)
		}
	}
	return out
}

// FilterPatients applies the supplied criteria, AND-combined; omitted
// criteria are not applied. Bounds are inclusive.
func (s *Store) FilterPatients(criteria domain.FilterCriteria) []domain.Patient {
	patients := s.ListPatients()
	now := s.nowFn()
	out := make([]domain.Patient, 0, len(patients))
	for _, p := range patients {
		if !matchesCriteria(p, criteria, now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesCriteria(p domain.Patient, c domain.FilterCriteria, now time.Time) bool {
	if c.AgeMin != nil || c.AgeMax != nil {
		// An unparseable date of birth never disqualifies.
		if age, ok := calendarAge(p.DOB, now); ok {
			if c.AgeMin != nil && age < *c.AgeMin {
				return false
			}
			if c.AgeMax != nil && age > *c.AgeMax {
				return false
			}
		}
	}
	if len(c.Genders) > 0 {
		if p.Gender == nil {
			return false
		}
		found := false
		for _, g := range c.Genders {
			if *p.Gender == g {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.RegistrationStart != nil && p.RegistrationDate.Before(*c.RegistrationStart) {
		return false
	}
	if c.RegistrationEnd != nil && p.RegistrationDate.After(*c.RegistrationEnd) {
		return false
	}
	if c.InsuranceProvider != nil && *c.InsuranceProvider != "" {
		if p.InsuranceProvider == nil || *p.InsuranceProvider != *c.InsuranceProvider {
			return false
		}
	}
	return true
}

// calendarAge computes whole years elapsed since dob, decrementing when the
// birthday has not yet been reached this year.
func calendarAge(dob string, now time.Time) (int, bool) {
	d, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return 0, false
	}
	age := now.Year() - d.Year()
	if now.Month() < d.Month() || (now.Month() == d.Month() && now.Day() < d.Day()) {
		age--
	}
	return age, true
}

// Allergies ------------------------------------------------------------------

// ListAllergies returns every allergy ordered by creation date descending.
func (s *Store) ListAllergies() []domain.Allergy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedAllergies(s.state.allergies)
}

func sortedAllergies(in []domain.Allergy) []domain.Allergy {
	out := append([]domain.Allergy(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListAllergiesByPatient returns the patient's allergies, newest first.
func (s *Store) ListAllergiesByPatient(patientID int) []domain.Allergy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Allergy, 0)
	for _, a := range s.state.allergies {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetAllergyByID returns the allergy or ok=false when the id is unknown.
func (s *Store) GetAllergyByID(id int) (domain.Allergy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.state.allergies {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Allergy{}, false
}

// CreateAllergy appends a new allergy record for a patient.
func (s *Store) CreateAllergy(ctx context.Context, ins domain.AllergyInsert) (domain.Allergy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := domain.Allergy{
		ID:        nextAllergyID(s.state.allergies),
		PatientID: ins.PatientID,
		Name:      ins.Name,
		Severity:  ins.Severity,
		CreatedAt: s.nowFn(),
	}
	next := s.state
	next.allergies = append(append([]domain.Allergy(nil), s.state.allergies...), created)
	if err := s.persist(ctx, next, domain.TableAllergies); err != nil {
		return domain.Allergy{}, err
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionInsert, Table: domain.TableAllergies, Data: created})
	return created, nil
}

// UpdateAllergy applies mutate to a copy of the stored record, preserving
// the identifier, owning patient, and creation timestamp.
func (s *Store) UpdateAllergy(ctx context.Context, id int, mutate func(*domain.Allergy) error) (domain.Allergy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, a := range s.state.allergies {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.Allergy{}, false
	}
	updated := s.state.allergies[idx]
	if err := mutate(&updated); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("allergy update mutator failed")
		return domain.Allergy{}, false
	}
	updated.ID = id
	updated.PatientID = s.state.allergies[idx].PatientID
	updated.CreatedAt = s.state.allergies[idx].CreatedAt

	next := s.state
	next.allergies = append([]domain.Allergy(nil), s.state.allergies...)
	next.allergies[idx] = updated
	if err := s.persist(ctx, next, domain.TableAllergies); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("allergy update not persisted")
		return domain.Allergy{}, false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionUpdate, Table: domain.TableAllergies, Data: updated, ID: intPtr(id)})
	return updated, true
}

// DeleteAllergy removes the allergy. Idempotent like DeletePatient; returns
// false only on storage failure.
func (s *Store) DeleteAllergy(ctx context.Context, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.allergies = make([]domain.Allergy, 0, len(s.state.allergies))
	for _, a := range s.state.allergies {
		if a.ID != id {
			next.allergies = append(next.allergies, a)
		}
	}
	if err := s.persist(ctx, next, domain.TableAllergies); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("allergy delete not persisted")
		return false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionDelete, Table: domain.TableAllergies, ID: intPtr(id)})
	return true
}

// Saved queries --------------------------------------------------------------

// ListSavedQueries returns all saved queries ordered by creation date
// descending.
func (s *Store) ListSavedQueries() []domain.SavedQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.SavedQuery(nil), s.state.savedQueries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// GetSavedQueryByID returns the saved query or ok=false when the id is
// unknown.
func (s *Store) GetSavedQueryByID(id int) (domain.SavedQuery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.state.savedQueries {
		if q.ID == id {
			return q, true
		}
	}
	return domain.SavedQuery{}, false
}

// CreateSavedQuery appends a new saved query.
func (s *Store) CreateSavedQuery(ctx context.Context, ins domain.SavedQueryInsert) (domain.SavedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := domain.SavedQuery{
		ID:          nextSavedQueryID(s.state.savedQueries),
		Name:        ins.Name,
		Query:       ins.Query,
		Description: ins.Description,
		CreatedAt:   s.nowFn(),
	}
	next := s.state
	next.savedQueries = append(append([]domain.SavedQuery(nil), s.state.savedQueries...), created)
	if err := s.persist(ctx, next, domain.TableSavedQueries); err != nil {
		return domain.SavedQuery{}, err
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionInsert, Table: domain.TableSavedQueries, Data: created})
	return created, nil
}

// UpdateSavedQuery applies mutate to a copy of the stored record, preserving
// the identifier and creation timestamp.
func (s *Store) UpdateSavedQuery(ctx context.Context, id int, mutate func(*domain.SavedQuery) error) (domain.SavedQuery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, q := range s.state.savedQueries {
		if q.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return domain.SavedQuery{}, false
	}
	updated := s.state.savedQueries[idx]
	if err := mutate(&updated); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("saved query update mutator failed")
		return domain.SavedQuery{}, false
	}
	updated.ID = id
	updated.CreatedAt = s.state.savedQueries[idx].CreatedAt

	next := s.state
	next.savedQueries = append([]domain.SavedQuery(nil), s.state.savedQueries...)
	next.savedQueries[idx] = updated
	if err := s.persist(ctx, next, domain.TableSavedQueries); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("saved query update not persisted")
		return domain.SavedQuery{}, false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionUpdate, Table: domain.TableSavedQueries, Data: updated, ID: intPtr(id)})
	return updated, true
}

// DeleteSavedQuery removes the saved query. Idempotent; returns false only
// on storage failure.
func (s *Store) DeleteSavedQuery(ctx context.Context, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	next.savedQueries = make([]domain.SavedQuery, 0, len(s.state.savedQueries))
	for _, q := range s.state.savedQueries {
		if q.ID != id {
			next.savedQueries = append(next.savedQueries, q)
		}
	}
	if err := s.persist(ctx, next, domain.TableSavedQueries); err != nil {
		s.log.Error().Err(err).Int("id", id).Msg("saved query delete not persisted")
		return false
	}
	s.state = next
	s.publish(domain.ChangeEvent{Type: domain.ActionDelete, Table: domain.TableSavedQueries, ID: intPtr(id)})
	return true
}

// Snapshots ------------------------------------------------------------------

// ExportState returns a copy of all three collections in insertion order.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{
		Patients:     append([]domain.Patient(nil), s.state.patients...),
		Allergies:    append([]domain.Allergy(nil), s.state.allergies...),
		SavedQueries: append([]domain.SavedQuery(nil), s.state.savedQueries...),
	}
}

// ImportState replaces the in-memory collections without persisting or
// emitting events. Intended for driver hydration and tests.
func (s *Store) ImportState(snapshot domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state{
		patients:     append([]domain.Patient(nil), snapshot.Patients...),
		allergies:    append([]domain.Allergy(nil), snapshot.Allergies...),
		savedQueries: append([]domain.SavedQuery(nil), snapshot.SavedQueries...),
	}
}

// Package domain defines the persistent entities, change events, and
// rule evaluation primitives shared by the patient registry core.
package domain

import "time"

// Table identifies one of the three persisted collections. The values double
// as broadcast-event table names and as the logical suffix of the durable
// storage keys.
type Table string

// Persisted collection identifiers.
const (
	// TablePatients holds patient demographic records.
	TablePatients Table = "patients"
	// TableAllergies holds per-patient allergy records.
	TableAllergies Table = "allergies"
	// TableSavedQueries holds user-saved query text.
	TableSavedQueries Table = "saved_queries"
)

// StorageKey returns the durable-storage key under which the collection's
// serialized blob lives. Absence of the key means an empty collection.
func (t Table) StorageKey() string {
	switch t {
	case TablePatients:
		return "patients_data"
	case TableAllergies:
		return "allergies_data"
	case TableSavedQueries:
		return "saved_queries_data"
	}
	return string(t) + "_data"
}

// Tables lists every persisted collection in storage order.
func Tables() []Table {
	return []Table{TablePatients, TableAllergies, TableSavedQueries}
}

// Patient is a registered patient. Identifiers are positive integers assigned
// by the store; RegistrationDate is stamped once at creation and never
// mutated. JSON field names match the serialized collection format.
type Patient struct {
	ID                int       `json:"id"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	DOB               string    `json:"dob"` // calendar date, YYYY-MM-DD
	Gender            *string   `json:"gender"`
	Email             *string   `json:"email"`
	Phone             string    `json:"phone"`
	Address           *string   `json:"address"`
	InsuranceProvider *string   `json:"insuranceProvider"`
	MedicalHistory    *string   `json:"medicalHistory"`
	RegistrationDate  time.Time `json:"registrationDate"`
}

// PatientInsert carries the caller-supplied fields for a new patient.
type PatientInsert struct {
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	DOB               string  `json:"dob"`
	Gender            *string `json:"gender"`
	Email             *string `json:"email"`
	Phone             string  `json:"phone"`
	Address           *string `json:"address"`
	InsuranceProvider *string `json:"insuranceProvider"`
	MedicalHistory    *string `json:"medicalHistory"`
}

// Allergy belongs to exactly one patient and is removed when that patient is
// deleted.
type Allergy struct {
	ID        int       `json:"id"`
	PatientID int       `json:"patientId"`
	Name      string    `json:"name"`
	Severity  *string   `json:"severity"`
	CreatedAt time.Time `json:"createdAt"`
}

// AllergyInsert carries the caller-supplied fields for a new allergy.
type AllergyInsert struct {
	PatientID int     `json:"patientId"`
	Name      string  `json:"name"`
	Severity  *string `json:"severity"`
}

// SavedQuery stores verbatim query text with an independent lifecycle.
type SavedQuery struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Query       string    `json:"query"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SavedQueryInsert carries the caller-supplied fields for a new saved query.
type SavedQueryInsert struct {
	Name        string  `json:"name"`
	Query       string  `json:"query"`
	Description *string `json:"description"`
}

// FilterCriteria describes independently AND-combined patient filters.
// A nil/empty criterion is not applied. Age and registration-date bounds are
// inclusive; age is true calendar age as of "now".
type FilterCriteria struct {
	AgeMin            *int
	AgeMax            *int
	Genders           []string
	RegistrationStart *time.Time
	RegistrationEnd   *time.Time
	InsuranceProvider *string
}

// Action indicates the type of mutation described by a change event.
type Action string

// Change actions enumerate the mutations fanned out to other contexts.
const (
	// ActionInsert indicates a record was created.
	ActionInsert Action = "insert"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ChangeEvent describes one committed mutation. It is published to every
// other execution context sharing the broadcast channel; there is no
// acknowledgment, ordering guarantee across senders, or replay.
type ChangeEvent struct {
	Type  Action `json:"type"`
	Table Table  `json:"table"`
	Data  any    `json:"data,omitempty"`
	ID    *int   `json:"id,omitempty"`
}

// Publisher fans a committed mutation out to other execution contexts.
// Implementations are fire-and-forget and must not block the store.
type Publisher interface {
	Publish(event ChangeEvent)
}

// Snapshot captures a point-in-time copy of all three collections, each in
// insertion order. It is the unit of import/export between the store and a
// persistence driver.
type Snapshot struct {
	Patients     []Patient    `json:"patients"`
	Allergies    []Allergy    `json:"allergies"`
	SavedQueries []SavedQuery `json:"savedQueries"`
}

package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ladleio/ladle/pkg/hsds"
)

// ProcessingStatus tracks a content record through the pipeline
type ProcessingStatus string

const (
	StatusNew       ProcessingStatus = "new"
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// EntityKind identifies a canonical entity table
type EntityKind string

const (
	KindOrganization EntityKind = "organization"
	KindLocation     EntityKind = "location"
	KindService      EntityKind = "service"
)

// LockClass returns the advisory lock class for the entity kind.
// Lock keys are (class, hash-of-match-key) pairs so organizations
// and locations never contend on the same key space.
func (k EntityKind) LockClass() int32 {
	switch k {
	case KindOrganization:
		return 1
	case KindLocation:
		return 2
	case KindService:
		return 3
	default:
		return 0
	}
}

// SourceMetadata describes where a scraped payload came from
type SourceMetadata struct {
	ScraperID string    `json:"scraper_id"`
	SourceURL string    `json:"source_url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// ContentRecord is the dedup index row for one scraped payload
type ContentRecord struct {
	Hash      string           `db:"hash" json:"hash"`
	Status    ProcessingStatus `db:"status" json:"status"`
	JobID     string           `db:"job_id" json:"job_id"`
	ScraperID string           `db:"scraper_id" json:"scraper_id"`
	SourceURL string           `db:"source_url" json:"source_url,omitempty"`
	ScrapedAt time.Time        `db:"scraped_at" json:"scraped_at"`
	ByteSize  int64            `db:"byte_size" json:"byte_size"`
	OutputRef string           `db:"output_ref" json:"output_ref,omitempty"`
	ErrorKind string           `db:"error_kind" json:"error_kind,omitempty"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// SubmitResult is returned by the content store for each submitted payload
type SubmitResult struct {
	JobID  string `json:"job_id"`
	Hash   string `json:"hash"`
	WasNew bool   `json:"was_new"`
}

// ContentStats summarizes the content store for the stats endpoint
type ContentStats struct {
	Total     int64 `json:"total"`
	New       int64 `json:"new"`
	Pending   int64 `json:"pending"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Bytes     int64 `json:"bytes"`
}

// Organization is a canonical HSDS organization record
type Organization struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	NormalizedName string    `db:"normalized_name" json:"-"`
	AlternateName  string    `db:"alternate_name" json:"alternate_name,omitempty"`
	Description    string    `db:"description" json:"description,omitempty"`
	Email          string    `db:"email" json:"email,omitempty"`
	Website        string    `db:"website" json:"website,omitempty"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Location is a canonical HSDS location record. Latitude and longitude
// are pointers because absent coordinates are meaningful to the
// validator (missing coordinates score differently from (0,0)).
type Location struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name,omitempty"`
	Address1       string    `db:"address_1" json:"address_1,omitempty"`
	Address2       string    `db:"address_2" json:"address_2,omitempty"`
	City           string    `db:"city" json:"city,omitempty"`
	StateProvince  string    `db:"state_province" json:"state_province,omitempty"`
	PostalCode     string    `db:"postal_code" json:"postal_code,omitempty"`
	Country        string    `db:"country" json:"country,omitempty"`
	Latitude       *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude      *float64  `db:"longitude" json:"longitude,omitempty"`
	GeoProvider    string    `db:"geo_provider" json:"geo_provider,omitempty"`
	GeoPrecision   string    `db:"geo_precision" json:"geo_precision,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// HasCoordinates reports whether both coordinates are present
func (l *Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// Service is a canonical HSDS service record
type Service struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Name           string    `db:"name" json:"name"`
	NormalizedName string    `db:"normalized_name" json:"-"`
	AlternateName  string    `db:"alternate_name" json:"alternate_name,omitempty"`
	Description    string    `db:"description" json:"description,omitempty"`
	Status         string    `db:"status" json:"status"`
	Phone          string    `db:"phone" json:"phone,omitempty"`
	Email          string    `db:"email" json:"email,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// ServiceAtLocation links a service to a location where it is offered
type ServiceAtLocation struct {
	ID         string    `db:"id" json:"id"`
	ServiceID  string    `db:"service_id" json:"service_id"`
	LocationID string    `db:"location_id" json:"location_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Schedule is an HSDS schedule row (iCal RRULE-flavored fields)
type Schedule struct {
	ID          string    `db:"id" json:"id"`
	ServiceID   *string   `db:"service_id" json:"service_id,omitempty"`
	LocationID  *string   `db:"location_id" json:"location_id,omitempty"`
	Freq        string    `db:"freq" json:"freq,omitempty"`
	Byday       string    `db:"byday" json:"byday,omitempty"`
	OpensAt     string    `db:"opens_at" json:"opens_at,omitempty"`
	ClosesAt    string    `db:"closes_at" json:"closes_at,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FieldMap stores one source's field observations as JSONB
type FieldMap map[string]string

// Value implements driver.Valuer for JSONB columns
func (m FieldMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONB columns
func (m *FieldMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into FieldMap", src)
	}
}

// SourceRecord tracks one scraper's latest view of a canonical entity.
// The majority-vote merge reads all SourceRecords for an entity to
// decide each canonical field value.
type SourceRecord struct {
	ID          int64      `db:"id" json:"id"`
	EntityKind  EntityKind `db:"entity_kind" json:"entity_kind"`
	CanonicalID string     `db:"canonical_id" json:"canonical_id"`
	ScraperID   string     `db:"scraper_id" json:"scraper_id"`
	SourceID    string     `db:"source_id" json:"source_id"`
	Fields      FieldMap   `db:"fields" json:"fields"`
	FirstSeenAt time.Time  `db:"first_seen_at" json:"first_seen_at"`
	LastSeenAt  time.Time  `db:"last_seen_at" json:"last_seen_at"`
}

// VersionEntry is one field-level change in the append-only audit history
type VersionEntry struct {
	ID          int64      `db:"id" json:"id"`
	EntityKind  EntityKind `db:"entity_kind" json:"entity_kind"`
	CanonicalID string     `db:"canonical_id" json:"canonical_id"`
	FieldName   string     `db:"field_name" json:"field_name"`
	OldValue    string     `db:"old_value" json:"old_value"`
	NewValue    string     `db:"new_value" json:"new_value"`
	Source      string     `db:"source" json:"source"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// RuleOutcome is a single validation deduction
type RuleOutcome struct {
	Rule      string `json:"rule"`
	Deduction int    `json:"deduction"`
	Detail    string `json:"detail,omitempty"`
}

// RuleOutcomes stores validation outcomes as JSONB
type RuleOutcomes []RuleOutcome

// Value implements driver.Valuer for JSONB columns
func (o RuleOutcomes) Value() (driver.Value, error) {
	if o == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner for JSONB columns
func (o *RuleOutcomes) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*o = nil
		return nil
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	default:
		return fmt.Errorf("cannot scan %T into RuleOutcomes", src)
	}
}

// ValidationSummary travels with a record from validator to reconciler
type ValidationSummary struct {
	Score        int          `json:"score"`
	Accepted     bool         `json:"accepted"`
	TestData     bool         `json:"test_data"`
	Outcomes     RuleOutcomes `json:"outcomes,omitempty"`
	GeoProvider  string       `json:"geo_provider,omitempty"`
	GeoPrecision string       `json:"geo_precision,omitempty"`
}

// Rejection records a payload that failed validation
type Rejection struct {
	ID        int64           `db:"id" json:"id"`
	JobID     string          `db:"job_id" json:"job_id"`
	ScraperID string          `db:"scraper_id" json:"scraper_id"`
	Score     int             `db:"score" json:"score"`
	TestData  bool            `db:"test_data" json:"test_data"`
	Outcomes  RuleOutcomes    `db:"outcomes" json:"outcomes"`
	Record    json.RawMessage `db:"record" json:"record,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// IntakeJob is the scrape_intake queue payload. Payload bytes are
// base64-encoded by the JSON codec.
type IntakeJob struct {
	Payload []byte         `json:"payload"`
	Meta    SourceMetadata `json:"meta"`
}

// AlignJob is the llm queue payload. The raw payload stays in the
// content store; only the hash travels through the broker.
type AlignJob struct {
	JobID       string `json:"job_id"`
	ContentHash string `json:"content_hash"`
	ScraperID   string `json:"scraper_id"`
	SourceURL   string `json:"source_url,omitempty"`
}

// ValidateJob is the validator queue payload
type ValidateJob struct {
	JobID     string             `json:"job_id"`
	ScraperID string             `json:"scraper_id"`
	SourceURL string             `json:"source_url,omitempty"`
	Record    hsds.AlignedRecord `json:"record"`
}

// ReconcileJob is the reconciler queue payload
type ReconcileJob struct {
	JobID      string             `json:"job_id"`
	ScraperID  string             `json:"scraper_id"`
	SourceURL  string             `json:"source_url,omitempty"`
	Record     hsds.AlignedRecord `json:"record"`
	Validation ValidationSummary  `json:"validation"`
}

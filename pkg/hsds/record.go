package hsds

import "strconv"

// Organization is the organization block of an aligned record
type Organization struct {
	Name          string `json:"name"`
	AlternateName string `json:"alternate_name,omitempty"`
	Description   string `json:"description,omitempty"`
	Email         string `json:"email,omitempty"`
	Website       string `json:"website,omitempty"`
	Phone         string `json:"phone,omitempty"`
	SourceID      string `json:"source_id,omitempty"`
}

// Location is the location block of an aligned record. Coordinates are
// pointers so "absent" survives the round trip through JSON.
type Location struct {
	Name          string   `json:"name,omitempty"`
	Address1      string   `json:"address_1,omitempty"`
	Address2      string   `json:"address_2,omitempty"`
	City          string   `json:"city,omitempty"`
	StateProvince string   `json:"state_province,omitempty"`
	PostalCode    string   `json:"postal_code,omitempty"`
	Country       string   `json:"country,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// Service is one service block of an aligned record
type Service struct {
	Name          string `json:"name"`
	AlternateName string `json:"alternate_name,omitempty"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
}

// Schedule is one schedule block. ServiceIndex links the schedule to an
// entry in the services array; nil means the schedule applies to the
// location as a whole.
type Schedule struct {
	Freq         string `json:"freq,omitempty"`
	Byday        string `json:"byday,omitempty"`
	OpensAt      string `json:"opens_at,omitempty"`
	ClosesAt     string `json:"closes_at,omitempty"`
	Description  string `json:"description,omitempty"`
	ServiceIndex *int   `json:"service_index,omitempty"`
}

// AlignedRecord is the normalized output of LLM alignment: one
// organization with an optional location and any number of services
// and schedules.
type AlignedRecord struct {
	Organization Organization `json:"organization"`
	Location     *Location    `json:"location,omitempty"`
	Services     []Service    `json:"services,omitempty"`
	Schedules    []Schedule   `json:"schedules,omitempty"`
}

// HasCoordinates reports whether the record's location carries both
// coordinates
func (r *AlignedRecord) HasCoordinates() bool {
	return r.Location != nil && r.Location.Latitude != nil && r.Location.Longitude != nil
}

// Fields flattens the organization block for field-level merging.
// Empty values are omitted so a scraper that never saw a field does
// not vote against scrapers that did.
func (o Organization) Fields() map[string]string {
	m := make(map[string]string)
	put(m, "name", o.Name)
	put(m, "alternate_name", o.AlternateName)
	put(m, "description", o.Description)
	put(m, "email", o.Email)
	put(m, "website", o.Website)
	put(m, "phone", o.Phone)
	return m
}

// Fields flattens the location block for field-level merging
func (l Location) Fields() map[string]string {
	m := make(map[string]string)
	put(m, "name", l.Name)
	put(m, "address_1", l.Address1)
	put(m, "address_2", l.Address2)
	put(m, "city", l.City)
	put(m, "state_province", l.StateProvince)
	put(m, "postal_code", l.PostalCode)
	put(m, "country", l.Country)
	if l.Latitude != nil {
		m["latitude"] = strconv.FormatFloat(*l.Latitude, 'f', -1, 64)
	}
	if l.Longitude != nil {
		m["longitude"] = strconv.FormatFloat(*l.Longitude, 'f', -1, 64)
	}
	return m
}

// Fields flattens a service block for field-level merging
func (s Service) Fields() map[string]string {
	m := make(map[string]string)
	put(m, "name", s.Name)
	put(m, "alternate_name", s.AlternateName)
	put(m, "description", s.Description)
	put(m, "status", s.Status)
	put(m, "phone", s.Phone)
	put(m, "email", s.Email)
	return m
}

func put(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

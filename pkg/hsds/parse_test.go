package hsds

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validOutput = `{
  "organization": {
    "name": "Brooklyn Community Fridge",
    "description": "Neighborhood fridge stocked by volunteers",
    "phone": "718-555-0100"
  },
  "location": {
    "address_1": "123 Dekalb Ave",
    "city": "Brooklyn",
    "state_province": "NY",
    "postal_code": "11201",
    "latitude": 40.6892,
    "longitude": -73.9766
  },
  "services": [
    {"name": "Free Food Fridge", "status": "active"}
  ],
  "schedules": [
    {"freq": "WEEKLY", "byday": "MO,WE,FR", "opens_at": "09:00", "closes_at": "17:00", "service_index": 0}
  ]
}`

func TestParseValidRecord(t *testing.T) {
	rec, err := Parse(validOutput)
	require.NoError(t, err)

	assert.Equal(t, "Brooklyn Community Fridge", rec.Organization.Name)
	require.NotNil(t, rec.Location)
	assert.Equal(t, "Brooklyn", rec.Location.City)
	require.NotNil(t, rec.Location.Latitude)
	assert.InDelta(t, 40.6892, *rec.Location.Latitude, 0.0001)
	require.Len(t, rec.Services, 1)
	assert.Equal(t, "Free Food Fridge", rec.Services[0].Name)
	require.Len(t, rec.Schedules, 1)
	require.NotNil(t, rec.Schedules[0].ServiceIndex)
	assert.Equal(t, 0, *rec.Schedules[0].ServiceIndex)
	assert.True(t, rec.HasCoordinates())
}

func TestParseStripsMarkdownFences(t *testing.T) {
	fenced := "```json\n" + validOutput + "\n```"
	rec, err := Parse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn Community Fridge", rec.Organization.Name)

	// Fence without a language tag
	fenced = "```\n" + validOutput + "\n```"
	rec, err = Parse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Brooklyn Community Fridge", rec.Organization.Name)
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := Parse("The record is: {name: pantry")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJSON))

	_, err = Parse("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidJSON))
}

func TestParseSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing organization", `{"location": {"city": "Austin"}}`},
		{"missing organization name", `{"organization": {"description": "no name"}}`},
		{"blank organization name", `{"organization": {"name": ""}}`},
		{"unknown top-level field", `{"organization": {"name": "A"}, "funding": []}`},
		{"unknown org field", `{"organization": {"name": "A", "tax_id": "12-345"}}`},
		{"string latitude", `{"organization": {"name": "A"}, "location": {"latitude": "40.1"}}`},
		{"bad service status", `{"organization": {"name": "A"}, "services": [{"name": "S", "status": "open"}]}`},
		{"bad schedule freq", `{"organization": {"name": "A"}, "schedules": [{"freq": "DAILY"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaViolation), "expected schema violation, got: %v", err)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("  {\"a\":1}  "))
	assert.Equal(t, `{"a":1}`, StripFences("```{\"a\":1}```"))
}

func TestOrganizationFieldsOmitsEmpty(t *testing.T) {
	org := Organization{Name: "Food Bank", Phone: "512-555-0100"}
	fields := org.Fields()

	assert.Equal(t, "Food Bank", fields["name"])
	assert.Equal(t, "512-555-0100", fields["phone"])
	_, ok := fields["website"]
	assert.False(t, ok)
}

func TestLocationFieldsFormatsCoordinates(t *testing.T) {
	lat, lng := 30.2672, -97.7431
	loc := Location{City: "Austin", Latitude: &lat, Longitude: &lng}
	fields := loc.Fields()

	assert.Equal(t, "30.2672", fields["latitude"])
	assert.Equal(t, "-97.7431", fields["longitude"])
	assert.Equal(t, "Austin", fields["city"])
}

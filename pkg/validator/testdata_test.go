package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ladleio/ladle/pkg/hsds"
)

func named(name string) *hsds.AlignedRecord {
	return &hsds.AlignedRecord{Organization: hsds.Organization{Name: name}}
}

func TestIsTestDataNames(t *testing.T) {
	flagged := []string{
		"Test Pantry",
		"TEST ORGANIZATION",
		"Sample Food Bank",
		"Demo Kitchen",
		"Example Org",
		"Fake Pantry 7",
		"asdf",
		"Lorem Ipsum Services",
	}
	for _, name := range flagged {
		assert.True(t, IsTestData(named(name)), "%q should be flagged", name)
	}

	// "Protest" and "Demopolis" contain pattern words only as substrings
	clean := []string{
		"Central Texas Food Bank",
		"Protest Kitchen",
		"Attleboro Food Cupboard",
		"Demopolis Food Pantry",
		"Mock Community Pantry",
	}
	for _, name := range clean {
		assert.False(t, IsTestData(named(name)), "%q should pass", name)
	}
}

func TestIsTestDataServiceNames(t *testing.T) {
	rec := named("Riverside Community Services")
	rec.Services = []hsds.Service{{Name: "Test Meal Program"}}
	assert.True(t, IsTestData(rec))
}

func TestHasPlaceholderAddress(t *testing.T) {
	rec := named("Riverside Pantry")
	rec.Location = &hsds.Location{Address1: "123  Main St."}
	assert.True(t, HasPlaceholderAddress(rec))

	rec.Location.Address1 = "6500 Metropolis Dr"
	assert.False(t, HasPlaceholderAddress(rec))

	rec.Location.Address1 = "N/A"
	assert.True(t, HasPlaceholderAddress(rec))

	rec.Location = nil
	assert.False(t, HasPlaceholderAddress(rec))
}

func TestNormalizeAddressLine(t *testing.T) {
	assert.Equal(t, "123 main st", normalizeAddressLine("  123  MAIN   St. "))
	assert.Equal(t, "tbd", normalizeAddressLine("TBD"))
	assert.Equal(t, "", normalizeAddressLine("   "))
}

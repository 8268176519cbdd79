package reconciler

import (
	"strconv"

	"github.com/ladleio/ladle/pkg/types"
)

// Canonical entities flatten to the same field names the hsds blocks
// use, so stored votes and live observations compare directly.

func organizationFields(org *types.Organization) map[string]string {
	m := make(map[string]string)
	putField(m, "name", org.Name)
	putField(m, "alternate_name", org.AlternateName)
	putField(m, "description", org.Description)
	putField(m, "email", org.Email)
	putField(m, "website", org.Website)
	putField(m, "phone", org.Phone)
	return m
}

func applyOrganizationChanges(org *types.Organization, changes []Change) {
	for _, c := range changes {
		switch c.Field {
		case "name":
			org.Name = c.New
			org.NormalizedName = NormalizeName(c.New)
		case "alternate_name":
			org.AlternateName = c.New
		case "description":
			org.Description = c.New
		case "email":
			org.Email = c.New
		case "website":
			org.Website = c.New
		case "phone":
			org.Phone = c.New
		}
	}
}

func locationFields(loc *types.Location) map[string]string {
	m := make(map[string]string)
	putField(m, "name", loc.Name)
	putField(m, "address_1", loc.Address1)
	putField(m, "address_2", loc.Address2)
	putField(m, "city", loc.City)
	putField(m, "state_province", loc.StateProvince)
	putField(m, "postal_code", loc.PostalCode)
	putField(m, "country", loc.Country)
	if loc.Latitude != nil {
		m["latitude"] = strconv.FormatFloat(*loc.Latitude, 'f', -1, 64)
	}
	if loc.Longitude != nil {
		m["longitude"] = strconv.FormatFloat(*loc.Longitude, 'f', -1, 64)
	}
	return m
}

func applyLocationChanges(loc *types.Location, changes []Change) {
	for _, c := range changes {
		switch c.Field {
		case "name":
			loc.Name = c.New
		case "address_1":
			loc.Address1 = c.New
		case "address_2":
			loc.Address2 = c.New
		case "city":
			loc.City = c.New
		case "state_province":
			loc.StateProvince = c.New
		case "postal_code":
			loc.PostalCode = c.New
		case "country":
			loc.Country = c.New
		case "latitude":
			if v, err := strconv.ParseFloat(c.New, 64); err == nil {
				loc.Latitude = &v
			}
		case "longitude":
			if v, err := strconv.ParseFloat(c.New, 64); err == nil {
				loc.Longitude = &v
			}
		}
	}
}

func serviceFields(svc *types.Service) map[string]string {
	m := make(map[string]string)
	putField(m, "name", svc.Name)
	putField(m, "alternate_name", svc.AlternateName)
	putField(m, "description", svc.Description)
	putField(m, "status", svc.Status)
	putField(m, "phone", svc.Phone)
	putField(m, "email", svc.Email)
	return m
}

func applyServiceChanges(svc *types.Service, changes []Change) {
	for _, c := range changes {
		switch c.Field {
		case "name":
			svc.Name = c.New
			svc.NormalizedName = NormalizeName(c.New)
		case "alternate_name":
			svc.AlternateName = c.New
		case "description":
			svc.Description = c.New
		case "status":
			svc.Status = c.New
		case "phone":
			svc.Phone = c.New
		case "email":
			svc.Email = c.New
		}
	}
}

func putField(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"

	// Nominatim's usage policy requires an identifying agent
	nominatimUserAgent = "ladle-pipeline/1.0 (data@ladle.io)"
)

// Nominatim is the OpenStreetMap geocoding provider
type Nominatim struct {
	baseURL string
	client  *http.Client
}

// NewNominatim returns a Nominatim provider. An empty baseURL selects
// the public endpoint.
func NewNominatim(baseURL string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	return &Nominatim{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Nominatim) Name() string      { return ProviderNominatim }
func (g *Nominatim) Precision() string { return PrecisionMid }

// Geocode searches for the address, restricted to the US
func (g *Nominatim) Geocode(ctx context.Context, addr Address) (*Result, error) {
	q := url.Values{}
	q.Set("q", addr.OneLine())
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	q.Set("countrycodes", "us")

	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := g.get(ctx, "/search", q, &hits); err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrNoMatch
	}
	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad latitude %q", hits[0].Lat)
	}
	lng, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad longitude %q", hits[0].Lon)
	}
	return &Result{
		Latitude:  lat,
		Longitude: lng,
		Provider:  ProviderNominatim,
		Precision: PrecisionMid,
	}, nil
}

// Reverse resolves an address for the coordinates
func (g *Nominatim) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "jsonv2")

	var resp struct {
		Address struct {
			HouseNumber string `json:"house_number"`
			Road        string `json:"road"`
			City        string `json:"city"`
			Town        string `json:"town"`
			State       string `json:"state"`
			Postcode    string `json:"postcode"`
		} `json:"address"`
		Error string `json:"error"`
	}
	if err := g.get(ctx, "/reverse", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" || resp.Address.State == "" {
		return nil, ErrNoMatch
	}
	city := resp.Address.City
	if city == "" {
		city = resp.Address.Town
	}
	line1 := resp.Address.Road
	if resp.Address.HouseNumber != "" && line1 != "" {
		line1 = resp.Address.HouseNumber + " " + line1
	}
	return &Address{
		Line1:      line1,
		City:       city,
		State:      resp.Address.State,
		PostalCode: resp.Address.Postcode,
	}, nil
}

func (g *Nominatim) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("nominatim: building request: %w", err)
	}
	req.Header.Set("User-Agent", nominatimUserAgent)
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim: decoding response: %w", err)
	}
	return nil
}

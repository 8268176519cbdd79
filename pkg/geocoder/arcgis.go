package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultArcGISURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer"

// ArcGIS is the primary geocoding provider, a thin client for the
// World GeocodeServer REST API.
type ArcGIS struct {
	baseURL string
	client  *http.Client
}

// NewArcGIS returns an ArcGIS provider. An empty baseURL selects the
// public endpoint.
func NewArcGIS(baseURL string, timeout time.Duration) *ArcGIS {
	if baseURL == "" {
		baseURL = defaultArcGISURL
	}
	return &ArcGIS{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *ArcGIS) Name() string      { return ProviderArcGIS }
func (g *ArcGIS) Precision() string { return PrecisionHigh }

// Geocode calls findAddressCandidates and returns the top candidate
func (g *ArcGIS) Geocode(ctx context.Context, addr Address) (*Result, error) {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("singleLine", addr.OneLine())
	q.Set("maxLocations", "1")
	q.Set("outFields", "Match_addr")

	var resp struct {
		Candidates []struct {
			Location struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"location"`
			Score float64 `json:"score"`
		} `json:"candidates"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := g.get(ctx, "/findAddressCandidates", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("arcgis: %s", resp.Error.Message)
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoMatch
	}
	c := resp.Candidates[0]
	return &Result{
		Latitude:  c.Location.Y,
		Longitude: c.Location.X,
		Provider:  ProviderArcGIS,
		Precision: PrecisionHigh,
	}, nil
}

// Reverse calls reverseGeocode for the coordinates
func (g *ArcGIS) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	q := url.Values{}
	q.Set("f", "json")
	q.Set("location", fmt.Sprintf("%f,%f", lng, lat))

	var resp struct {
		Address struct {
			Address string `json:"Address"`
			City    string `json:"City"`
			Region  string `json:"Region"`
			Postal  string `json:"Postal"`
		} `json:"address"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := g.get(ctx, "/reverseGeocode", q, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil || resp.Address.Region == "" {
		return nil, ErrNoMatch
	}
	return &Address{
		Line1:      resp.Address.Address,
		City:       resp.Address.City,
		State:      resp.Address.Region,
		PostalCode: resp.Address.Postal,
	}, nil
}

func (g *ArcGIS) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("arcgis: building request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("arcgis: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("arcgis: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("arcgis: decoding response: %w", err)
	}
	return nil
}

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

const defaultCensusURL = "https://geocoding.geo.census.gov/geocoder"

// Census is the US Census Bureau geocoding provider. US addresses
// only, which is all this pipeline carries.
type Census struct {
	baseURL string
	client  *http.Client
}

// NewCensus returns a Census provider. An empty baseURL selects the
// public endpoint.
func NewCensus(baseURL string, timeout time.Duration) *Census {
	if baseURL == "" {
		baseURL = defaultCensusURL
	}
	return &Census{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *Census) Name() string      { return ProviderCensus }
func (g *Census) Precision() string { return PrecisionLow }

// Geocode resolves the address through onelineaddress
func (g *Census) Geocode(ctx context.Context, addr Address) (*Result, error) {
	q := url.Values{}
	q.Set("address", addr.OneLine())
	q.Set("benchmark", "Public_AR_Current")
	q.Set("format", "json")

	var resp struct {
		Result struct {
			AddressMatches []struct {
				Coordinates struct {
					X float64 `json:"x"`
					Y float64 `json:"y"`
				} `json:"coordinates"`
			} `json:"addressMatches"`
		} `json:"result"`
	}
	if err := g.get(ctx, "/locations/onelineaddress", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result.AddressMatches) == 0 {
		return nil, ErrNoMatch
	}
	m := resp.Result.AddressMatches[0]
	return &Result{
		Latitude:  m.Coordinates.Y,
		Longitude: m.Coordinates.X,
		Provider:  ProviderCensus,
		Precision: PrecisionLow,
	}, nil
}

// Reverse resolves coordinates through the geographies endpoint
func (g *Census) Reverse(ctx context.Context, lat, lng float64) (*Address, error) {
	q := url.Values{}
	q.Set("x", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("y", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("benchmark", "Public_AR_Current")
	q.Set("vintage", "Current_Current")
	q.Set("format", "json")

	var resp struct {
		Result struct {
			Geographies struct {
				States []struct {
					Stusab string `json:"STUSAB"`
				} `json:"States"`
			} `json:"geographies"`
		} `json:"result"`
	}
	if err := g.get(ctx, "/geographies/coordinates", q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Result.Geographies.States) == 0 {
		return nil, ErrNoMatch
	}
	return &Address{State: resp.Result.Geographies.States[0].Stusab}, nil
}

func (g *Census) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("census: building request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("census: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("census: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("census: decoding response: %w", err)
	}
	return nil
}

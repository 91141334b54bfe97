// Package geocode resolves spoken delivery addresses through a
// Nominatim-compatible HTTP endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNoMatch means the service answered but found nothing for the query.
var ErrNoMatch = errors.New("geocode: no match for address")

// Request is one address lookup. Landmark and Pincode narrow the query when
// the caller mentioned them.
type Request struct {
	Description string
	Landmark    string
	Pincode     string
}

// Result is the resolved address.
type Result struct {
	Lat              float64           `json:"lat"`
	Lng              float64           `json:"lng"`
	FormattedAddress string            `json:"formatted_address"`
	Components       map[string]string `json:"components,omitempty"`
}

// Client queries the /search endpoint of a Nominatim-compatible service.
type Client struct {
	baseURL string
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify resolves a spoken address to coordinates and a formatted address.
// ErrNoMatch means the address was not found; anything else is a transport
// failure.
func (c *Client) Verify(ctx context.Context, req Request) (Result, error) {
	query := strings.TrimSpace(req.Description)
	if query == "" {
		return Result{}, fmt.Errorf("geocode: empty address description")
	}
	if lm := strings.TrimSpace(req.Landmark); lm != "" {
		query += ", " + lm
	}
	if pin := strings.TrimSpace(req.Pincode); pin != "" {
		query += ", " + pin
	}

	params := url.Values{
		"q":              []string{query},
		"format":         []string{"jsonv2"},
		"limit":          []string{"1"},
		"addressdetails": []string{"1"},
	}
	endpoint := c.baseURL + "/search?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: lookup: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return Result{}, fmt.Errorf("geocode: http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	// Nominatim encodes coordinates as strings.
	var hits []struct {
		Lat         string            `json:"lat"`
		Lon         string            `json:"lon"`
		DisplayName string            `json:"display_name"`
		Address     map[string]string `json:"address"`
	}
	if err := json.NewDecoder(res.Body).Decode(&hits); err != nil {
		return Result{}, fmt.Errorf("geocode: parse response: %w", err)
	}
	if len(hits) == 0 {
		return Result{}, ErrNoMatch
	}

	hit := hits[0]
	lat, err := strconv.ParseFloat(hit.Lat, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: bad latitude %q", hit.Lat)
	}
	lng, err := strconv.ParseFloat(hit.Lon, 64)
	if err != nil {
		return Result{}, fmt.Errorf("geocode: bad longitude %q", hit.Lon)
	}

	return Result{
		Lat:              lat,
		Lng:              lng,
		FormattedAddress: hit.DisplayName,
		Components:       hit.Address,
	}, nil
}

// Package geo resolves birth places to coordinates (Nominatim search) and
// coordinates to IANA zones (TimezoneDB).
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matrimony-api/internal/domain"
)

type Location struct {
	Latitude  float64
	Longitude float64
}

type Client struct {
	httpClient  *http.Client
	geocoderURL string
	userAgent   string
	timezoneURL string
	timezoneKey string
}

func NewClient(geocoderURL, userAgent, timezoneURL, timezoneKey string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		geocoderURL: strings.TrimRight(geocoderURL, "/"),
		userAgent:   userAgent,
		timezoneURL: strings.TrimRight(timezoneURL, "/"),
		timezoneKey: timezoneKey,
	}
}

// Geocode returns the first search result for place.
func (c *Client) Geocode(ctx context.Context, place string) (*Location, error) {
	q := url.Values{"q": {place}, "format": {"json"}, "limit": {"1"}}
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := c.getJSON(ctx, c.geocoderURL+"/search?"+q.Encode(), &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no geocoding result for %q: %w", place, domain.ErrUpstream)
	}
	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder latitude %q: %w", results[0].Lat, domain.ErrUpstream)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("geocoder longitude %q: %w", results[0].Lon, domain.ErrUpstream)
	}
	return &Location{Latitude: lat, Longitude: lon}, nil
}

// Zone returns the IANA zone name covering the coordinates.
func (c *Client) Zone(ctx context.Context, loc Location) (string, error) {
	q := url.Values{
		"key":    {c.timezoneKey},
		"format": {"json"},
		"by":     {"position"},
		"lat":    {strconv.FormatFloat(loc.Latitude, 'f', -1, 64)},
		"lng":    {strconv.FormatFloat(loc.Longitude, 'f', -1, 64)},
	}
	var out struct {
		Status   string `json:"status"`
		Message  string `json:"message"`
		ZoneName string `json:"zoneName"`
	}
	if err := c.getJSON(ctx, c.timezoneURL+"/get-time-zone?"+q.Encode(), &out); err != nil {
		return "", err
	}
	if out.ZoneName == "" {
		return "", fmt.Errorf("timezone lookup failed (%s %s): %w", out.Status, out.Message, domain.ErrUpstream)
	}
	return out.ZoneName, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("geo lookup: %w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("geo lookup status %d: %w", resp.StatusCode, domain.ErrUpstream)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode geo response: %w", domain.ErrUpstream)
	}
	return nil
}

// Package fpbase fetches fluorophore emission spectra from the FPBase
// spectra API (https://www.fpbase.org). It is the spectrum provider
// feeding unmix.BuildReferenceMatrix; the core itself never performs
// network I/O.
package fpbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"unmix"
)

// DefaultBaseURL is the public FPBase instance.
const DefaultBaseURL = "https://www.fpbase.org"

// Client queries the FPBase spectra endpoint. The zero value is not
// usable; construct with NewClient and override fields as needed.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client against the public FPBase instance.
func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// proteinRecord mirrors the relevant part of the spectra API response.
type proteinRecord struct {
	Name    string `json:"name"`
	Spectra []struct {
		State string      `json:"state"`
		Data  [][]float64 `json:"data"`
	} `json:"spectra"`
}

// Fetch retrieves the emission spectrum of one fluorophore by name.
// An unknown name yields unmix.ErrLookupFailure.
func (c *Client) Fetch(ctx context.Context, name string) (unmix.Spectrum, error) {
	u := fmt.Sprintf("%s/api/proteins/spectra/?name__iexact=%s&format=json",
		strings.TrimRight(c.BaseURL, "/"), url.QueryEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return unmix.Spectrum{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return unmix.Spectrum{}, fmt.Errorf("fpbase: fetching %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return unmix.Spectrum{}, fmt.Errorf("%w: fluorophore %q not found", unmix.ErrLookupFailure, name)
	}
	if resp.StatusCode != http.StatusOK {
		return unmix.Spectrum{}, fmt.Errorf("fpbase: fetching %q: unexpected status %s", name, resp.Status)
	}

	var records []proteinRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return unmix.Spectrum{}, fmt.Errorf("fpbase: decoding response for %q: %w", name, err)
	}
	if len(records) == 0 {
		return unmix.Spectrum{}, fmt.Errorf("%w: fluorophore %q not found", unmix.ErrLookupFailure, name)
	}

	rec := records[0]
	for _, sp := range rec.Spectra {
		if !strings.HasSuffix(sp.State, "em") {
			continue
		}
		out := unmix.Spectrum{Name: rec.Name}
		for _, pair := range sp.Data {
			if len(pair) != 2 {
				return unmix.Spectrum{}, fmt.Errorf("fpbase: malformed sample %v in spectrum of %q", pair, name)
			}
			out.Wavelengths = append(out.Wavelengths, pair[0])
			out.Intensities = append(out.Intensities, pair[1])
		}
		return out, nil
	}
	return unmix.Spectrum{}, fmt.Errorf("%w: fluorophore %q has no emission spectrum", unmix.ErrLookupFailure, name)
}

// FetchAll retrieves spectra for all names, preserving order so the
// resulting reference-matrix columns line up with the request.
func (c *Client) FetchAll(ctx context.Context, names []string) ([]unmix.Spectrum, error) {
	out := make([]unmix.Spectrum, 0, len(names))
	for _, name := range names {
		s, err := c.Fetch(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

package station

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

// ErrRateLimited is returned when the service throttles this station.
var ErrRateLimited = errors.New("station is scanning too fast")

// Scanner is what the terminal needs from the manifest service.
type Scanner interface {
	Scan(ctx context.Context, manifestID uuid.UUID, token string) (manifest.ScanResponse, error)
	Manifest(ctx context.Context, manifestID uuid.UUID) (*manifest.Manifest, error)
}

// Client talks to the manifest service HTTP API on behalf of one station.
type Client struct {
	baseURL   string
	http      *http.Client
	staffID   string
	stationID string
	source    manifest.ScanSource
}

func NewClient(baseURL, staffID, stationID string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 5 * time.Second},
		staffID:   staffID,
		stationID: stationID,
		source:    manifest.SourceScanner,
	}
}

func (c *Client) Scan(ctx context.Context, manifestID uuid.UUID, token string) (manifest.ScanResponse, error) {
	body, err := json.Marshal(manifest.ScanRequest{
		Token:     token,
		Source:    c.source,
		StaffID:   c.staffID,
		StationID: c.stationID,
	})
	if err != nil {
		return manifest.ScanResponse{}, errors.Wrap(err, "could not encode scan")
	}
	url := fmt.Sprintf("%s/api/v1/manifests/%s/scan", c.baseURL, manifestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return manifest.ScanResponse{}, errors.Wrap(err, "could not build scan request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return manifest.ScanResponse{}, errors.Wrap(err, "could not reach manifest service")
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusInternalServerError:
		// Both carry a ScanResponse; SYSTEM_ERROR comes back as a 500.
	case http.StatusTooManyRequests:
		return manifest.ScanResponse{}, ErrRateLimited
	default:
		return manifest.ScanResponse{}, errors.Errorf("scan rejected with HTTP %d: %s", res.StatusCode, apiError(res))
	}

	var out manifest.ScanResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return manifest.ScanResponse{}, errors.Wrap(err, "could not decode scan response")
	}
	return out, nil
}

func (c *Client) Manifest(ctx context.Context, manifestID uuid.UUID) (*manifest.Manifest, error) {
	url := fmt.Sprintf("%s/api/v1/manifests/%s", c.baseURL, manifestID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build manifest request")
	}
	c.setHeaders(req)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not reach manifest service")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("could not load manifest %s: HTTP %d: %s", manifestID, res.StatusCode, apiError(res))
	}

	var m manifest.Manifest
	if err := json.NewDecoder(res.Body).Decode(&m); err != nil {
		return nil, errors.Wrap(err, "could not decode manifest")
	}
	return &m, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.staffID != "" {
		req.Header.Set("X-Staff-ID", c.staffID)
	}
	if c.stationID != "" {
		req.Header.Set("X-Station-ID", c.stationID)
	}
}

func apiError(res *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil || body.Error == "" {
		return http.StatusText(res.StatusCode)
	}
	return body.Error
}

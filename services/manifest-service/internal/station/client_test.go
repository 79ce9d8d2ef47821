package station

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
)

func TestClientScan(t *testing.T) {
	id := uuid.New()
	var got manifest.ScanRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/manifests/"+id.String()+"/scan", r.URL.Path)
		assert.Equal(t, "IMF-DOCK-2", r.Header.Get("X-Station-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(manifest.ScanResponse{Success: true, AWBNumber: "TAC20260001"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "staff-1", "IMF-DOCK-2")
	resp, err := c.Scan(context.Background(), id, "TAC20260001")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "TAC20260001", got.Token)
	assert.Equal(t, manifest.SourceScanner, got.Source)
	assert.Equal(t, "staff-1", got.StaffID)
}

func TestClientScanErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, resp manifest.ScanResponse, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, func(t *testing.T, _ manifest.ScanResponse, err error) {
			assert.True(t, errors.Is(err, ErrRateLimited))
		}},
		{"system error carries a response", http.StatusInternalServerError, `{"success":false,"error":"SYSTEM_ERROR"}`, func(t *testing.T, resp manifest.ScanResponse, err error) {
			require.NoError(t, err)
			assert.Equal(t, manifest.ScanErrSystem, resp.Error)
		}},
		{"bad request", http.StatusBadRequest, `{"error":"invalid manifest id","code":"InvalidArgument"}`, func(t *testing.T, _ manifest.ScanResponse, err error) {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid manifest id")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL, "", "").Scan(context.Background(), uuid.New(), "TAC20260001")
			tt.check(t, resp, err)
		})
	}
}

func TestClientManifest(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/manifests/"+id.String() {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"manifest not found"}`))
			return
		}
		json.NewEncoder(w).Encode(manifest.Manifest{ID: id, ManifestNo: "MAN-20261016-093000"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "staff-1", "")
	m, err := c.Manifest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "MAN-20261016-093000", m.ManifestNo)

	_, err = c.Manifest(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest not found")
}

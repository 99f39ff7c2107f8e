package netctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestgate/pkg/domain"
)

func TestAuthorizeDevicePostsPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.AuthorizeDevice(context.Background(), domain.MAC("aa:bb:cc:dd:ee:ff"), 14400, 2<<30)
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/devices/authorize", gotPath)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", gotBody["mac"])
	assert.Equal(t, float64(14400), gotBody["duration_seconds"])
	assert.Equal(t, float64(2<<30), gotBody["quota_bytes"])
}

func TestBlockDevicePostsReason(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.BlockDevice(context.Background(), domain.MAC("aa:bb:cc:dd:ee:ff"), "excessive failed attempts (3)")
	require.NoError(t, err)

	assert.Equal(t, "/api/v1/devices/block", gotPath)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", gotBody["mac"])
	assert.Equal(t, "excessive failed attempts (3)", gotBody["reason"])
}

func TestBlockDeviceReportsUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.BlockDevice(context.Background(), domain.MAC("aa:bb:cc:dd:ee:ff"), "abuse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestUnblockDeviceUnreachableController(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	err := client.UnblockDevice(context.Background(), domain.MAC("aa:bb:cc:dd:ee:ff"))
	assert.Error(t, err)
}

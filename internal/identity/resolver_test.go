package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestgate/pkg/domain"
	domainerrors "guestgate/pkg/domain-errors"
)

func TestResolvePrefersHeaderOrder(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Client-MAC", "11:22:33:44:55:66")
	req.Header.Set("X-Device-MAC", "aa:bb:cc:dd:ee:ff")

	mac, err := NewResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, domain.MAC("aa:bb:cc:dd:ee:ff"), mac)
}

func TestResolveSkipsInvalidCandidates(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Device-MAC", "not-a-mac")
	req.Header.Set("X-Calling-Station-Id", "AA-BB-CC-DD-EE-FF")

	mac, err := NewResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, domain.MAC("aa:bb:cc:dd:ee:ff"), mac)
}

func TestResolveFailsClosedWithoutMAC(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:41000"

	_, err := NewResolver().Resolve(req)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeIdentificationRequired))
}

func TestResolveWithFallbackUsesSourceIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/generate_204", nil)
	req.RemoteAddr = "10.0.0.5:41000"

	id, err := NewResolver().ResolveWithFallback(req)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", id)
}

func TestResolveWithFallbackRejectsLoopback(t *testing.T) {
	req := httptest.NewRequest("GET", "/generate_204", nil)
	req.RemoteAddr = "127.0.0.1:41000"

	_, err := NewResolver().ResolveWithFallback(req)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeIdentificationRequired))
}

func TestSourceIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "172.16.0.1:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 172.16.0.1")

	assert.Equal(t, "203.0.113.7", SourceIP(req))
}

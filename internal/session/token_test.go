package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "guestgate/pkg/domain-errors"
)

func TestMintAndParseRoundTrip(t *testing.T) {
	minter, err := NewTokenMinter([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)

	userID := uuid.New()
	deviceID := uuid.New()

	raw, err := minter.Mint(userID, deviceID, "silver")
	require.NoError(t, err)

	claims, err := minter.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, deviceID.String(), claims.DeviceID)
	assert.Equal(t, "silver", claims.Tier)
	assert.Equal(t, TokenTypeGuest, claims.Type)
}

func TestParseRejectsWrongKey(t *testing.T) {
	minter, err := NewTokenMinter([]byte("key-one"), time.Hour)
	require.NoError(t, err)
	other, err := NewTokenMinter([]byte("key-two"), time.Hour)
	require.NoError(t, err)

	raw, err := minter.Mint(uuid.New(), uuid.New(), "bronze")
	require.NoError(t, err)

	_, err = other.Parse(raw)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}

func TestParseRejectsExpiredToken(t *testing.T) {
	minter, err := NewTokenMinter([]byte("test-signing-key"), time.Minute)
	require.NoError(t, err)
	minter.now = func() time.Time { return time.Now().Add(-time.Hour) }

	raw, err := minter.Mint(uuid.New(), uuid.New(), "bronze")
	require.NoError(t, err)

	minter.now = time.Now
	_, err = minter.Parse(raw)
	require.Error(t, err)
	assert.True(t, domainerrors.HasCode(err, domainerrors.CodeUnauthorized))
}

func TestNewTokenMinterValidation(t *testing.T) {
	_, err := NewTokenMinter(nil, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenMinter([]byte("key"), 0)
	assert.Error(t, err)
}

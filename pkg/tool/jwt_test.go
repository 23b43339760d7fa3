package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDJToken_RoundTrip(t *testing.T) {
	tok, err := SignDJToken("secret", "dj-1", time.Now(), time.Hour)
	require.NoError(t, err)

	sub, err := ParseDJToken("secret", tok)
	require.NoError(t, err)
	require.Equal(t, "dj-1", sub)
}

func TestParseDJToken_Rejects(t *testing.T) {
	tok, err := SignDJToken("secret", "dj-1", time.Now(), time.Hour)
	require.NoError(t, err)

	_, err = ParseDJToken("other", tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignDJToken("secret", "dj-1", time.Now().Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = ParseDJToken("secret", expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseDJToken("secret", "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	noSub, err := SignDJToken("secret", "", time.Now(), time.Hour)
	require.NoError(t, err)
	_, err = ParseDJToken("secret", noSub)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = SignDJToken("", "dj-1", time.Now(), time.Hour)
	require.ErrorIs(t, err, ErrInvalidToken)
}

package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)

	token, expires, err := signer.Generate("scan-1", "exam-1/scan-1.png")
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	scanID, relPath, _, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "scan-1", scanID)
	assert.Equal(t, "exam-1/scan-1.png", relPath)
}

func TestSignedURLTamperDetection(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("scan-1", "exam-1/scan-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token + "x")
	assert.Error(t, err)

	other := NewSignedURLSigner("different", time.Minute)
	_, _, _, err = other.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	signer.ttl = -time.Minute
	token, _, err := signer.Generate("scan-1", "exam-1/scan-1.png")
	require.NoError(t, err)

	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}

package mirror

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func signedHeader(payload []byte, secret string, ts int64) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(ts, payload, secret))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"charge.succeeded"}`)
	secret := "whsec_test"
	now := time.Now().Unix()

	assert.True(t, VerifySignature(payload, signedHeader(payload, secret, now), secret, DefaultSignatureTolerance))
	assert.False(t, VerifySignature(payload, signedHeader(payload, "whsec_other", now), secret, DefaultSignatureTolerance))
	assert.False(t, VerifySignature([]byte(`{"tampered":true}`), signedHeader(payload, secret, now), secret, DefaultSignatureTolerance))
}

func TestVerifySignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	old := time.Now().Add(-10 * time.Minute).Unix()

	assert.False(t, VerifySignature(payload, signedHeader(payload, secret, old), secret, DefaultSignatureTolerance))
	// Zero tolerance disables the replay check.
	assert.True(t, VerifySignature(payload, signedHeader(payload, secret, old), secret, 0))
}

func TestVerifySignatureMalformedHeader(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"

	assert.False(t, VerifySignature(payload, "", secret, 0))
	assert.False(t, VerifySignature(payload, "v1=deadbeef", secret, 0))
	assert.False(t, VerifySignature(payload, "t=notanumber,v1=deadbeef", secret, 0))
	assert.False(t, VerifySignature(payload, fmt.Sprintf("t=%d", time.Now().Unix()), secret, 0))
	assert.False(t, VerifySignature(payload, signedHeader(payload, secret, time.Now().Unix()), "", 0))
}

func TestVerifySignatureMultipleCandidates(t *testing.T) {
	payload := []byte(`{}`)
	secret := "whsec_test"
	ts := time.Now().Unix()

	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", ts, ComputeSignature(ts, payload, secret))
	assert.True(t, VerifySignature(payload, header, secret, DefaultSignatureTolerance))
}

package mirror

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// DefaultSignatureTolerance bounds how old a signed timestamp may be before
// the delivery is rejected as a replay.
const DefaultSignatureTolerance = 5 * time.Minute

// ComputeSignature computes the provider's v1 HMAC-SHA256 signature over
// "{timestamp}.{payload}".
func ComputeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a "t={timestamp},v1={signature}" header against the
// raw request body and shared secret. A tolerance of zero disables the
// timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration) bool {
	header = strings.TrimSpace(header)
	secret = strings.TrimSpace(secret)
	if header == "" || secret == "" {
		return false
	}

	var timestamp int64 = -1
	var candidates [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return false
			}
			timestamp = ts
		case "v1":
			decoded, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			candidates = append(candidates, decoded)
		}
	}
	if timestamp < 0 || len(candidates) == 0 {
		return false
	}

	if tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return false
		}
	}

	expected, err := hex.DecodeString(ComputeSignature(timestamp, payload, secret))
	if err != nil {
		return false
	}
	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return true
		}
	}
	return false
}

// Package counter accumulates webhook processing counters in Redis hashes,
// keyed by event type. Counter failures are never fatal to request handling.
package counter

import (
	"context"
	"strconv"

	"github.com/gridmirror/gridmirror/internal/pkg/cache"
)

const (
	processedKey = "webhook:counters:processed"
	failedKey    = "webhook:counters:failed"
	skippedKey   = "webhook:counters:skipped"
	rejectedKey  = "webhook:counters:rejected"
)

// AddProcessed increments the processed counter for an event type
func AddProcessed(eventType string) error {
	return increment(processedKey, eventType)
}

// AddFailed increments the failed counter for an event type
func AddFailed(eventType string) error {
	return increment(failedKey, eventType)
}

// AddSkipped increments the duplicate-delivery counter for an event type
func AddSkipped(eventType string) error {
	return increment(skippedKey, eventType)
}

// AddRejected increments the signature-rejection counter
func AddRejected() error {
	return increment(rejectedKey, "invalid_signature")
}

func increment(key, field string) error {
	ctx := context.Background()
	if field == "" {
		field = "unknown"
	}
	return cache.GetClient().HIncrBy(ctx, key, field, 1).Err()
}

// Totals returns all counters grouped by outcome then event type.
func Totals() (map[string]map[string]int64, error) {
	ctx := context.Background()
	out := make(map[string]map[string]int64, 4)
	for name, key := range map[string]string{
		"processed": processedKey,
		"failed":    failedKey,
		"skipped":   skippedKey,
		"rejected":  rejectedKey,
	} {
		raw, err := cache.GetClient().HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		counts := make(map[string]int64, len(raw))
		for field, value := range raw {
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				counts[field] = n
			}
		}
		out[name] = counts
	}
	return out, nil
}

// Package id provides fallback generation IDs for render jobs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Generate creates a generation ID derived from the current time.
// Format: gen-<YYYYMMDD>-<HHMMSS>-<random>
// Example: gen-20240101-120000-a1b2c3d4
func Generate() string {
	return FromTime(time.Now())
}

// FromTime creates a generation ID derived from t.
func FromTime(t time.Time) string {
	stamp := t.UTC().Format("20060102-150405")
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("gen-%s-%d", stamp, t.UnixNano())
	}
	return fmt.Sprintf("gen-%s-%s", stamp, hex.EncodeToString(random))
}

// Package hashing derives the exact and perceptual signatures of a captured label photo.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FingerprintSamples is the number of sampled positions, one bit each.
const FingerprintSamples = 64

// FingerprintLen is the hex length of a fingerprint.
const FingerprintLen = FingerprintSamples / 4

// Hashes bundles both signatures of one image buffer.
type Hashes struct {
	Content    string `json:"content_hash"`
	Perceptual string `json:"perceptual_hash"`
}

// Compute returns the content hash and the perceptual fingerprint of b.
func Compute(b []byte) Hashes {
	return Hashes{
		Content:    ContentHash(b),
		Perceptual: Fingerprint(b),
	}
}

// ContentHash is the lowercase hex SHA-256 of the full buffer.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Fingerprint samples the buffer at a regular stride and thresholds every
// sample against the sample mean. Near-identical re-captures of the same label
// tend to keep most bits, which makes it a coarse similarity proxy. It is not
// collision resistant.
func Fingerprint(b []byte) string {
	if len(b) == 0 {
		return zeroFingerprint
	}

	stride := len(b) / FingerprintSamples
	if stride < 1 {
		stride = 1
	}

	var samples [FingerprintSamples]byte
	var sum int
	for i := range samples {
		samples[i] = b[(i*stride)%len(b)]
		sum += int(samples[i])
	}

	// compare scaled values so the mean never gets truncated
	var bits uint64
	for i, s := range samples {
		if int(s)*FingerprintSamples > sum {
			bits |= 1 << uint(FingerprintSamples-1-i)
		}
	}

	return fmt.Sprintf("%0*x", FingerprintLen, bits)
}

var zeroFingerprint = strings.Repeat("0", FingerprintLen)

// Similarity returns the percentage (0..100) of positions at which a and b
// hold the same character. Fingerprints of different or zero length are
// incomparable and score 0.
func Similarity(a, b string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	same := 0
	for i := 0; i < len(a); i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) * 100 / float64(len(a))
}

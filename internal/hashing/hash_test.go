package hashing

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash_KnownVector(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentHash(nil))
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		ContentHash([]byte("abc")))
}

func TestFingerprint_Shape(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{name: "empty", in: nil},
		{name: "single byte", in: []byte{7}},
		{name: "shorter than sample count", in: []byte("label")},
		{name: "large buffer", in: bytes.Repeat([]byte{0, 10, 200, 45, 90}, 4000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := Fingerprint(tt.in)
			require.Len(t, fp, FingerprintLen)
			assert.Equal(t, strings.ToLower(fp), fp)
		})
	}
}

func TestFingerprint_EmptyIsZero(t *testing.T) {
	assert.Equal(t, strings.Repeat("0", FingerprintLen), Fingerprint(nil))
}

func TestFingerprint_ChangesWithContent(t *testing.T) {
	dark := bytes.Repeat([]byte{10, 250}, 512)
	light := bytes.Repeat([]byte{250, 10}, 512)
	assert.NotEqual(t, Fingerprint(dark), Fingerprint(light))
}

func TestFingerprint_StableUnderSmallEdit(t *testing.T) {
	img := make([]byte, 64*100)
	for i := range img {
		img[i] = byte((i * 37) % 251)
	}
	edited := append([]byte(nil), img...)
	edited[len(edited)-1] ^= 0xFF // a byte that is never sampled

	assert.Equal(t, 100.0, Similarity(Fingerprint(img), Fingerprint(edited)))
	assert.NotEqual(t, ContentHash(img), ContentHash(edited))
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "abcd", b: "abcd", want: 100},
		{name: "one of four differs", a: "abcd", b: "abce", want: 75},
		{name: "all differ", a: "aaaa", b: "bbbb", want: 0},
		{name: "unequal length", a: "abc", b: "abcd", want: 0},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "ten percent differs", a: "0123456789", b: "0123456780", want: 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("same bytes always yield the same hashes", prop.ForAll(
		func(b []byte) bool {
			first := Compute(b)
			second := Compute(append([]byte(nil), b...))
			return first == second
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestSimilarity_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	hexString := gen.SliceOfN(FingerprintLen, gen.IntRange(0, 15)).Map(func(digits []int) string {
		var sb strings.Builder
		for _, d := range digits {
			sb.WriteByte("0123456789abcdef"[d])
		}
		return sb.String()
	})

	properties.Property("similarity is symmetric", prop.ForAll(
		func(a, b string) bool {
			return Similarity(a, b) == Similarity(b, a)
		},
		hexString, hexString,
	))

	properties.Property("a fingerprint is fully similar to itself", prop.ForAll(
		func(a string) bool {
			return Similarity(a, a) == 100
		},
		hexString,
	))

	properties.Property("unequal lengths score zero", prop.ForAll(
		func(a, b string) bool {
			return Similarity(a, b+"0") == 0
		},
		hexString, hexString,
	))

	properties.TestingRun(t)
}

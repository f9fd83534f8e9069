package testutil

import (
	"math/rand"

	"github.com/google/gofuzz"
	. "github.com/onsi/ginkgo"
)

// Rand is not safe for concurrent use. Goroutines should make own rand.Rand
// seeded from it.
var RandSource = rand.NewSource(GinkgoRandomSeed())
var Rand = rand.New(RandSource)
var Fuzzer = func() *fuzz.Fuzzer {
	f := fuzz.New()
	f.RandSource(RandSource)
	return f
}()
var Fuzz = Fuzzer.Fuzz

// RandKey returns random key that valid for text protocol.
func RandKey(r *rand.Rand, maxLen int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-:."
	key := make([]byte, 1+r.Intn(maxLen))
	for i := range key {
		key[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(key)
}

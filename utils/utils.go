package utils

import "math/rand"

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

// RandomAlphabetString returns a random lowercase string of the given length.
func RandomAlphabetString(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

package referral

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	GeneratedCodeLen = 8
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4,32}$`)

// GenerateCode returns a random GeneratedCodeLen-character code drawn from
// [A-Z0-9].
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, GeneratedCodeLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidFormat reports whether a normalised code is 4-32 characters of [A-Z0-9].
func ValidFormat(code string) bool {
	return codePattern.MatchString(code)
}

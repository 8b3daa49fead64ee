package verify

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// CodeDigits is the length of a session verification code.
const CodeDigits = 6

// bytes at or above this are discarded so every digit is equally likely
const uniformLimit = 250

// GenerateCode returns a random 6-digit numeric code, e.g. "042517".
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(r io.Reader) (string, error) {
	s := make([]byte, 0, CodeDigits)
	buf := make([]byte, CodeDigits)
	for len(s) < CodeDigits {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= uniformLimit {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == CodeDigits {
				break
			}
		}
	}
	return string(s), nil
}

// Equal compares two codes in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package devicecode

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

// userCodeAlphabet excludes 0, 1, O, I and L so codes survive being read
// aloud or copied from a TV screen.
const userCodeAlphabet = "BCDFGHJKMNPQRSTVWXZ23456789"

// userCodeLength is the number of alphabet characters, excluding the
// separator.
const userCodeLength = 8

// GenerateUserCode produces a code like "WDJB-MJHT".
func GenerateUserCode() (string, error) {
	chars := make([]byte, userCodeLength)
	max := big.NewInt(int64(len(userCodeAlphabet)))
	for i := range chars {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate user code: %w", err)
		}
		chars[i] = userCodeAlphabet[n.Int64()]
	}
	return string(chars[:4]) + "-" + string(chars[4:]), nil
}

// NormalizeUserCode canonicalizes user input to the displayed form:
// uppercase, non-alphanumerics stripped, re-grouped as XXXX-XXXX.
func NormalizeUserCode(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(input) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	stripped := b.String()
	if len(stripped) != userCodeLength {
		return stripped
	}
	return stripped[:4] + "-" + stripped[4:]
}

// GenerateDeviceCode produces an opaque high-entropy device code.
func GenerateDeviceCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate device code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

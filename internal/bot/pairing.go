package bot

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// PairingTTL is how long a generated pairing code stays valid.
const PairingTTL = 48 * time.Hour

const pairingBytes = 4

// parsePairingCode accepts a code with or without its dash and in any case,
// and returns it in the canonical XXXX-XXXX form.
func parsePairingCode(text string) (string, bool) {
	raw := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(text))
	if len(raw) != 2*pairingBytes || strings.Count(text, "-") > 1 {
		return "", false
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return "", false
	}
	return formatPairingCode(b), true
}

func formatPairingCode(b []byte) string {
	s := strings.ToUpper(hex.EncodeToString(b))
	return s[:pairingBytes] + "-" + s[pairingBytes:]
}

// GeneratePairingCode returns a random code in the XXXX-XXXX hex format.
func GeneratePairingCode() (string, error) {
	b := make([]byte, pairingBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return formatPairingCode(b), nil
}

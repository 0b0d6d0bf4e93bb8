package identity

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	dErrors "stablegate/pkg/domain-errors"
)

// HashIBAN derives the opaque IBAN fingerprint stored on the record. The raw
// IBAN is hashed at the trust boundary and discarded; only the hash crosses
// into the engine.
func HashIBAN(iban string) (string, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(normalized) < 15 || len(normalized) > 34 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "IBAN length out of range")
	}
	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

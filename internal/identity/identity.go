// Package identity turns the principals the transports authenticate into the
// ledger identities used as keys.
package identity

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

// MaxLen bounds identities so they stay usable as key segments.
const MaxLen = 128

// Normalize canonicalizes a principal. Hex account addresses are rewritten in
// EIP-55 checksummed form so that "0xabc..." and "0xABC..." share one ledger
// record; any other non-empty printable name is kept as is.
func Normalize(raw string) (ledger.Identity, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("identity: empty")
	}
	if len(s) > MaxLen {
		return "", fmt.Errorf("identity: longer than %d bytes", MaxLen)
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !common.IsHexAddress(s) {
			return "", fmt.Errorf("identity: malformed address %q", s)
		}
		return ledger.Identity(common.HexToAddress(s).Hex()), nil
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("identity: non-printable character in %q", s)
		}
	}
	return ledger.Identity(s), nil
}

// IsAddress reports whether id is a checksummed account address.
func IsAddress(id ledger.Identity) bool {
	return common.IsHexAddress(string(id)) && common.HexToAddress(string(id)).Hex() == string(id)
}

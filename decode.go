package pyth

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var errAttrOverrun = errors.New("attribute string runs past end of data")

// readKey copies the fixed-width public key at off. An all-zero key stays the
// zero PublicKey, which is how absent keys are represented throughout.
func readKey(data []byte, off int) (solana.PublicKey, int) {
	var key solana.PublicKey
	copy(key[:], data[off:off+solana.PublicKeyLength])
	return key, off + solana.PublicKeyLength
}

// readAttrString decodes a length-prefixed attribute string at off. A zero
// length byte means the string is absent; the returned offset then equals off
// so callers can detect list termination. Invalid UTF-8 is replaced, never
// rejected; a length that crosses the end of data is an error.
func readAttrString(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", off, errAttrOverrun
	}
	length := int(data[off])
	if length == 0 {
		return "", off, nil
	}
	end := off + 1 + length
	if end > len(data) {
		return "", off, errAttrOverrun
	}
	return strings.ToValidUTF8(string(data[off+1:end]), "�"), end, nil
}

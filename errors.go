package pyth

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrNotLoaded is returned when a product's price accounts are accessed
// before any refresh has populated them.
var ErrNotLoaded = errors.New("pyth: price accounts not loaded")

// FormatError reports account data that does not match the on-chain layout:
// bad magic, unsupported version, a declared size larger than the buffer, a
// type tag that does not match the decoder invoked, or a truncated table or
// string. It is fatal to the single decode attempt and never retried.
type FormatError struct {
	Key solana.PublicKey // the offending account, for diagnostics
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("pyth: account %s: %v", e.Key, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrf(key solana.PublicKey, format string, args ...interface{}) error {
	return &FormatError{Key: key, Err: fmt.Errorf(format, args...)}
}

// ConsistencyError reports a price account that does not sit at the chain
// position a pre-validated sequence expects. Got is zero when the sequence
// ended while the chain still pointed at Expected; Expected is zero when the
// chain ended but the sequence kept going.
type ConsistencyError struct {
	Product  solana.PublicKey
	Expected solana.PublicKey
	Got      solana.PublicKey
}

func (e *ConsistencyError) Error() string {
	switch {
	case e.Got.IsZero():
		return fmt.Sprintf("pyth: product %s: expected price account %s but end of list reached", e.Product, e.Expected)
	case e.Expected.IsZero():
		return fmt.Sprintf("pyth: product %s: expected end of list, got price account %s", e.Product, e.Got)
	default:
		return fmt.Sprintf("pyth: product %s: expected price account %s, got %s", e.Product, e.Expected, e.Got)
	}
}

package pyth

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// AccountData is one fetched account: the slot the node served it at and the
// raw account payload. Data is nil when a batch fetch found no account for
// the requested key.
type AccountData struct {
	Slot uint64
	Data []byte
}

// AccountSource fetches raw account data from a node. FetchBatch returns one
// entry per requested key in request order, with nil Data for keys that have
// no account; Fetch fails instead when the account does not exist. Transport
// errors are returned as-is, the decoding layers never wrap them.
type AccountSource interface {
	Fetch(ctx context.Context, key solana.PublicKey) (AccountData, error)
	FetchBatch(ctx context.Context, keys []solana.PublicKey) ([]AccountData, error)
}

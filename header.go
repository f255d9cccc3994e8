package pyth

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// Magic is the little-endian marker at the start of every oracle account.
const Magic = 0xa1b2c3d4

// Supported on-chain structure versions.
const (
	Version1 = 1
	Version2 = 2
)

// headerLen is the fixed size of the account header: magic, version,
// account type and payload size, each a little-endian uint32.
const headerLen = 16

// AccountType identifies the payload layout of an oracle account.
type AccountType uint32

const (
	AccountTypeUnknown AccountType = iota
	AccountTypeMapping
	AccountTypeProduct
	AccountTypePrice
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeMapping:
		return "mapping"
	case AccountTypeProduct:
		return "product"
	case AccountTypePrice:
		return "price"
	default:
		return "unknown"
	}
}

// parseHeader validates the 16-byte account header and returns the declared
// account type, the payload size (header included) and the structure version.
// The size is guaranteed to fit within data.
func parseHeader(key solana.PublicKey, data []byte) (AccountType, int, uint32, error) {
	if len(data) < headerLen {
		return 0, 0, 0, formatErrf(key, "account data too short: %d bytes", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	version := binary.LittleEndian.Uint32(data[4:8])
	typ := binary.LittleEndian.Uint32(data[8:12])
	size := binary.LittleEndian.Uint32(data[12:16])
	if int64(size) > int64(len(data)) {
		return 0, 0, 0, formatErrf(key, "declared size %d exceeds account data length %d", size, len(data))
	}
	if size < headerLen {
		return 0, 0, 0, formatErrf(key, "declared size %d smaller than account header", size)
	}
	if magic != Magic {
		return 0, 0, 0, formatErrf(key, "invalid magic 0x%08x", magic)
	}
	if version != Version1 && version != Version2 {
		return 0, 0, 0, formatErrf(key, "unsupported version %d", version)
	}
	return AccountType(typ), int(size), version, nil
}

package pyth

import (
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	priceInfoLen      = 32
	priceComponentLen = solana.PublicKeyLength + 2*priceInfoLen
)

// PriceInfo is a single quoted price: the raw fixed-point price and
// confidence interval, the trading status and the slot the quote was
// published at. Exponent is shared from the owning price account.
type PriceInfo struct {
	RawPrice      int64
	RawConfidence uint64
	Status        PriceStatus
	PubSlot       uint64
	Exponent      int32
}

// Price returns RawPrice scaled by 10^Exponent.
func (p PriceInfo) Price() decimal.Decimal {
	return decimal.New(p.RawPrice, p.Exponent)
}

// Confidence returns RawConfidence scaled by 10^Exponent.
func (p PriceInfo) Confidence() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(p.RawConfidence), p.Exponent)
}

// decodePriceInfo reads the 32-byte quote at off: price i64, confidence u64,
// status u32, corporate action u32 (unused), publish slot u64.
func decodePriceInfo(data []byte, off int, exponent int32) (PriceInfo, int) {
	info := PriceInfo{
		RawPrice:      int64(binary.LittleEndian.Uint64(data[off : off+8])),
		RawConfidence: binary.LittleEndian.Uint64(data[off+8 : off+16]),
		Status:        PriceStatus(binary.LittleEndian.Uint32(data[off+16 : off+20])),
		PubSlot:       binary.LittleEndian.Uint64(data[off+24 : off+32]),
		Exponent:      exponent,
	}
	return info, off + priceInfoLen
}

// PriceComponent carries one publisher's quotes: the price that went into the
// last on-chain aggregate and the latest price seen from that publisher.
type PriceComponent struct {
	Publisher solana.PublicKey
	Aggregate PriceInfo
	Latest    PriceInfo
}

func decodePriceComponent(data []byte, off int, exponent int32) (PriceComponent, int) {
	var c PriceComponent
	c.Publisher, off = readKey(data, off)
	c.Aggregate, off = decodePriceInfo(data, off, exponent)
	c.Latest, off = decodePriceInfo(data, off, exponent)
	return c, off
}

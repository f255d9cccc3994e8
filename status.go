package pyth

// PriceStatus is the trading status attached to every price.
type PriceStatus uint32

const (
	PriceStatusUnknown PriceStatus = iota // publisher is down or the market has not opened
	PriceStatusTrading                    // price is live
	PriceStatusHalted                     // trading is suspended, e.g. an expired contract
	PriceStatusAuction                    // price discovery auction in progress
)

func (s PriceStatus) String() string {
	switch s {
	case PriceStatusTrading:
		return "trading"
	case PriceStatusHalted:
		return "halted"
	case PriceStatusAuction:
		return "auction"
	default:
		return "unknown"
	}
}

// PriceType distinguishes the price accounts chained to one product.
type PriceType uint32

const (
	PriceTypeUnknown PriceType = iota
	PriceTypePrice
	// TWAP and volatility accounts stopped appearing on-chain after the
	// move to version 2; the tags remain decodable.
	PriceTypeTWAP
	PriceTypeVolatility
)

func (t PriceType) String() string {
	switch t {
	case PriceTypePrice:
		return "price"
	case PriceTypeTWAP:
		return "twap"
	case PriceTypeVolatility:
		return "volatility"
	default:
		return "unknown"
	}
}

// EmaType keys the time-weighted EMA accumulators of a version 2 price
// account. On the wire the accumulator array index is the tag value minus
// one; only the TWAP and TWAC values are retained after decoding.
type EmaType uint32

const (
	EmaTypeUnknown EmaType = iota
	EmaTypeTWAPValue
	EmaTypeTWAPNumerator
	EmaTypeTWAPDenominator
	EmaTypeTWACValue
	EmaTypeTWACNumerator
	EmaTypeTWACDenominator
)

func (t EmaType) String() string {
	switch t {
	case EmaTypeTWAPValue:
		return "twap_value"
	case EmaTypeTWAPNumerator:
		return "twap_numerator"
	case EmaTypeTWAPDenominator:
		return "twap_denominator"
	case EmaTypeTWACValue:
		return "twac_value"
	case EmaTypeTWACNumerator:
		return "twac_numerator"
	case EmaTypeTWACDenominator:
		return "twac_denominator"
	default:
		return "unknown"
	}
}

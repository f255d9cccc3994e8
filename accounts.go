package pyth

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	mappingPrefixLen = 4 + 4 + solana.PublicKeyLength // count, unused, next page key

	pricePrefixV1Len = 128
	pricePrefixV2Len = 160

	maxComponentsV1 = 16
	maxComponentsV2 = 32
)

// Account is implemented by every decoded oracle account.
type Account interface {
	Type() AccountType
}

// accountBody validates the header, checks the type tag against want and
// returns the payload trimmed to the declared size, header excluded.
func accountBody(key solana.PublicKey, data []byte, want AccountType) ([]byte, uint32, error) {
	typ, size, version, err := parseHeader(key, data)
	if err != nil {
		return nil, 0, err
	}
	if typ != want {
		return nil, 0, formatErrf(key, "expected %s account, got %s", want, typ)
	}
	return data[headerLen:size], version, nil
}

// MappingAccount is one page of the product directory: an ordered list of
// product account keys plus the key of the next page, zero on the last page.
type MappingAccount struct {
	Key     solana.PublicKey
	Slot    uint64
	Entries []solana.PublicKey
	NextKey solana.PublicKey
}

func (a *MappingAccount) Type() AccountType { return AccountTypeMapping }

func (a *MappingAccount) String() string {
	return fmt.Sprintf("MappingAccount(%s)", a.Key)
}

// DecodeMappingAccount decodes a mapping account from raw account data.
func DecodeMappingAccount(key solana.PublicKey, acc AccountData) (*MappingAccount, error) {
	return decodeMapping(logrus.StandardLogger(), key, acc)
}

func decodeMapping(log logrus.FieldLogger, key solana.PublicKey, acc AccountData) (*MappingAccount, error) {
	body, _, err := accountBody(key, acc.Data, AccountTypeMapping)
	if err != nil {
		return nil, err
	}
	if len(body) < mappingPrefixLen {
		return nil, formatErrf(key, "mapping account body too short: %d bytes", len(body))
	}
	count := binary.LittleEndian.Uint32(body[0:4])
	next, off := readKey(body, 8)

	// the count field governs the loop; entries beyond the declared size are
	// malformed rather than silently truncated
	if int64(off)+int64(count)*solana.PublicKeyLength > int64(len(body)) {
		return nil, formatErrf(key, "mapping account declares %d products but only %d bytes remain", count, len(body)-off)
	}
	entries := make([]solana.PublicKey, 0, count)
	seen := make(map[solana.PublicKey]struct{}, count)
	for i := uint32(0); i < count; i++ {
		var entry solana.PublicKey
		entry, off = readKey(body, off)
		if entry.IsZero() {
			log.Warningf("Null key seen in mapping account %s", key)
			continue
		}
		if _, ok := seen[entry]; ok {
			log.Warningf("Duplicate key %s seen in mapping account %s", entry, key)
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}
	return &MappingAccount{Key: key, Slot: acc.Slot, Entries: entries, NextKey: next}, nil
}

// ProductAccount describes one product: its attribute table and the head of
// its price account chain. The decoded price set is cached on the product and
// replaced wholesale by the refresh operations on Client; every other field
// is immutable once decoded.
type ProductAccount struct {
	Key           solana.PublicKey
	Slot          uint64
	FirstPriceKey solana.PublicKey
	Attrs         map[string]string

	prices map[PriceType]*PriceAccount // nil until loaded
}

func (a *ProductAccount) Type() AccountType { return AccountTypeProduct }

func (a *ProductAccount) String() string {
	return fmt.Sprintf("ProductAccount(%s %s)", a.Symbol(), a.Key)
}

// Symbol returns the product's symbol attribute, or "Unknown" when the
// attribute is missing.
func (a *ProductAccount) Symbol() string {
	if s, ok := a.Attrs["symbol"]; ok {
		return s
	}
	return "Unknown"
}

// Prices returns the cached price set, keyed by price type. It returns
// ErrNotLoaded until the set has been loaded by Client.GetPrices,
// Client.RefreshPrices or UsePriceAccounts.
func (a *ProductAccount) Prices() (map[PriceType]*PriceAccount, error) {
	if a.prices == nil {
		return nil, ErrNotLoaded
	}
	return a.prices, nil
}

// UsePriceAccounts installs a pre-fetched price account chain as the cached
// price set. The sequence must start at FirstPriceKey and every account must
// be the one the previous account links to; a mismatch or a sequence that
// ends before the chain does is a ConsistencyError and leaves the cached set
// unchanged.
func (a *ProductAccount) UsePriceAccounts(prices []*PriceAccount) error {
	set := make(map[PriceType]*PriceAccount, len(prices))
	expected := a.FirstPriceKey
	for _, price := range prices {
		if price.Key != expected {
			return &ConsistencyError{Product: a.Key, Expected: expected, Got: price.Key}
		}
		set[price.PriceType] = price
		expected = price.NextPriceKey
	}
	if !expected.IsZero() {
		return &ConsistencyError{Product: a.Key, Expected: expected}
	}
	a.prices = set
	return nil
}

func (a *ProductAccount) setPrices(prices map[PriceType]*PriceAccount) {
	a.prices = prices
}

// DecodeProductAccount decodes a product account from raw account data. An
// all-zero first price key marks a product without prices: the cached price
// set starts out loaded and empty instead of unloaded.
func DecodeProductAccount(key solana.PublicKey, acc AccountData) (*ProductAccount, error) {
	body, _, err := accountBody(key, acc.Data, AccountTypeProduct)
	if err != nil {
		return nil, err
	}
	if len(body) < solana.PublicKeyLength {
		return nil, formatErrf(key, "product account body too short: %d bytes", len(body))
	}
	first, off := readKey(body, 0)

	attrs := make(map[string]string)
	for off < len(body) {
		name, next, err := readAttrString(body, off)
		if err != nil {
			return nil, formatErrf(key, "reading attribute name at offset %d: %v", off, err)
		}
		if next == off {
			// zero-length name terminates the list even if bytes remain
			break
		}
		off = next
		var value string
		value, off, err = readAttrString(body, off)
		if err != nil {
			return nil, formatErrf(key, "reading value of attribute %q at offset %d: %v", name, off, err)
		}
		attrs[name] = value
	}

	product := &ProductAccount{Key: key, Slot: acc.Slot, FirstPriceKey: first, Attrs: attrs}
	if first.IsZero() {
		product.prices = map[PriceType]*PriceAccount{}
	}
	return product, nil
}

// PriceAccount is one link of a product's price chain: the aggregate price of
// one price type plus the per-publisher components it was computed from.
// ProductKey is a back-reference to the owning product; NextPriceKey is zero
// on the last link. Derivations is only populated for version 2 accounts.
type PriceAccount struct {
	Key           solana.PublicKey
	Slot          uint64
	Version       uint32
	PriceType     PriceType
	Exponent      int32
	NumComponents uint32 // declared on-chain count; may differ from len(Components)
	LastSlot      uint64
	ValidSlot     uint64
	ProductKey    solana.PublicKey
	NextPriceKey  solana.PublicKey
	Aggregate     PriceInfo
	Components    []PriceComponent
	Derivations   map[EmaType]int64
}

func (a *PriceAccount) Type() AccountType { return AccountTypePrice }

func (a *PriceAccount) String() string {
	return fmt.Sprintf("PriceAccount(%s %s)", a.PriceType, a.Key)
}

// DecodePriceAccount decodes a price account from raw account data, selecting
// the layout by the header's version field.
func DecodePriceAccount(key solana.PublicKey, acc AccountData) (*PriceAccount, error) {
	body, version, err := accountBody(key, acc.Data, AccountTypePrice)
	if err != nil {
		return nil, err
	}

	price := &PriceAccount{Key: key, Slot: acc.Slot, Version: version}
	var off, maxComponents int
	switch version {
	case Version2:
		if len(body) < pricePrefixV2Len {
			return nil, formatErrf(key, "price account body too short for version 2: %d bytes", len(body))
		}
		price.decodePrefix(body)
		price.Derivations = map[EmaType]int64{
			EmaTypeTWAPValue: int64(binary.LittleEndian.Uint64(body[32:40])),
			EmaTypeTWACValue: int64(binary.LittleEndian.Uint64(body[56:64])),
		}
		price.ProductKey, _ = readKey(body, 96)
		price.NextPriceKey, _ = readKey(body, 128)
		off = pricePrefixV2Len
		maxComponents = maxComponentsV2
	case Version1:
		if len(body) < pricePrefixV1Len {
			return nil, formatErrf(key, "price account body too short for version 1: %d bytes", len(body))
		}
		price.decodePrefix(body)
		price.ProductKey, _ = readKey(body, 32)
		price.NextPriceKey, _ = readKey(body, 64)
		// 32 bytes aggregator key, not retained
		off = pricePrefixV1Len
		maxComponents = maxComponentsV1
	default:
		return nil, formatErrf(key, "unsupported version %d", version)
	}

	if len(body) < off+priceInfoLen {
		return nil, formatErrf(key, "price account truncated before aggregate price")
	}
	price.Aggregate, off = decodePriceInfo(body, off, price.Exponent)

	// the declared component count never bounds this scan; the list ends at
	// an all-zero publisher key, the end of the buffer or the version cap
	for len(price.Components) < maxComponents && off+solana.PublicKeyLength <= len(body) {
		publisher, _ := readKey(body, off)
		if publisher.IsZero() {
			break
		}
		if off+priceComponentLen > len(body) {
			return nil, formatErrf(key, "truncated price component at offset %d", off)
		}
		var component PriceComponent
		component, off = decodePriceComponent(body, off, price.Exponent)
		price.Components = append(price.Components, component)
	}
	return price, nil
}

// decodePrefix reads the 32 bytes both versions share: price type, exponent,
// declared component count, unused u32, then the two slot fields.
func (a *PriceAccount) decodePrefix(body []byte) {
	a.PriceType = PriceType(binary.LittleEndian.Uint32(body[0:4]))
	a.Exponent = int32(binary.LittleEndian.Uint32(body[4:8]))
	a.NumComponents = binary.LittleEndian.Uint32(body[8:12])
	a.LastSlot = binary.LittleEndian.Uint64(body[16:24])
	a.ValidSlot = binary.LittleEndian.Uint64(body[24:32])
}

// DecodeAccount decodes any oracle account, dispatching on the type tag in
// its header.
func DecodeAccount(key solana.PublicKey, acc AccountData) (Account, error) {
	typ, _, _, err := parseHeader(key, acc.Data)
	if err != nil {
		return nil, err
	}
	switch typ {
	case AccountTypeMapping:
		return DecodeMappingAccount(key, acc)
	case AccountTypeProduct:
		return DecodeProductAccount(key, acc)
	case AccountTypePrice:
		return DecodePriceAccount(key, acc)
	default:
		return nil, formatErrf(key, "unsupported account type %d", uint32(typ))
	}
}

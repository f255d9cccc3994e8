package pyth

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// zeroKey is the absent-key sentinel.
var zeroKey solana.PublicKey

// pk returns a deterministic non-zero test key.
func pk(b byte) solana.PublicKey {
	var key solana.PublicKey
	key[0] = b
	key[31] = b
	return key
}

// accountBuilder assembles synthetic little-endian account buffers, header
// included. build patches the declared size to the final length; buildSize
// declares whatever the test needs.
type accountBuilder struct {
	buf []byte
}

func newAccount(typ AccountType, version uint32) *accountBuilder {
	b := &accountBuilder{}
	return b.u32(Magic).u32(version).u32(uint32(typ)).u32(0)
}

func (b *accountBuilder) u32(v uint32) *accountBuilder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *accountBuilder) i32(v int32) *accountBuilder {
	return b.u32(uint32(v))
}

func (b *accountBuilder) u64(v uint64) *accountBuilder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
	return b
}

func (b *accountBuilder) i64(v int64) *accountBuilder {
	return b.u64(uint64(v))
}

func (b *accountBuilder) key(k solana.PublicKey) *accountBuilder {
	b.buf = append(b.buf, k[:]...)
	return b
}

func (b *accountBuilder) raw(p []byte) *accountBuilder {
	b.buf = append(b.buf, p...)
	return b
}

// attr appends a length-prefixed attribute string.
func (b *accountBuilder) attr(s string) *accountBuilder {
	b.buf = append(b.buf, byte(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// info appends a 32-byte price info: price, confidence, status, corporate
// action (zero), publish slot.
func (b *accountBuilder) info(price int64, conf uint64, status PriceStatus, slot uint64) *accountBuilder {
	return b.i64(price).u64(conf).u32(uint32(status)).u32(0).u64(slot)
}

// component appends a 96-byte price component with identical aggregate and
// latest quotes.
func (b *accountBuilder) component(publisher solana.PublicKey, price int64, conf uint64, slot uint64) *accountBuilder {
	b.key(publisher)
	b.info(price, conf, PriceStatusTrading, slot)
	return b.info(price, conf, PriceStatusTrading, slot)
}

func (b *accountBuilder) build() []byte {
	return b.buildSize(uint32(len(b.buf)))
}

func (b *accountBuilder) buildSize(size uint32) []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	binary.LittleEndian.PutUint32(out[12:16], size)
	return out
}

// mappingData builds a complete mapping account. The declared count is
// len(entries); tests that need a lying count use the builder directly.
func mappingData(next solana.PublicKey, entries ...solana.PublicKey) AccountData {
	b := newAccount(AccountTypeMapping, Version2)
	b.u32(uint32(len(entries))).u32(0).key(next)
	for _, e := range entries {
		b.key(e)
	}
	return AccountData{Slot: 1, Data: b.build()}
}

// productData builds a complete product account from alternating
// name, value attribute pairs.
func productData(first solana.PublicKey, attrs ...string) AccountData {
	if len(attrs)%2 != 0 {
		panic("productData wants name/value pairs")
	}
	b := newAccount(AccountTypeProduct, Version2)
	b.key(first)
	for _, s := range attrs {
		b.attr(s)
	}
	return AccountData{Slot: 1, Data: b.build()}
}

// priceV2Data builds a minimal version 2 price account with one component
// and a sentinel terminator.
func priceV2Data(typ PriceType, expo int32, product, next solana.PublicKey, raw int64) AccountData {
	b := newAccount(AccountTypePrice, Version2)
	b.u32(uint32(typ)).i32(expo).u32(1).u32(0)
	b.u64(100).u64(99)
	for i := 0; i < 8; i++ {
		b.i64(int64(i))
	}
	b.key(product).key(next)
	b.info(raw, 7, PriceStatusTrading, 98)
	b.component(pk(0xee), raw, 7, 98)
	b.key(solana.PublicKey{})
	return AccountData{Slot: 1, Data: b.build()}
}

// fakeSource serves accounts from memory and records every request.
type fakeSource struct {
	accounts map[solana.PublicKey]AccountData
	failOn   map[solana.PublicKey]error

	fetched []solana.PublicKey
	batches [][]solana.PublicKey
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		accounts: make(map[solana.PublicKey]AccountData),
		failOn:   make(map[solana.PublicKey]error),
	}
}

func (s *fakeSource) set(key solana.PublicKey, acc AccountData) {
	s.accounts[key] = acc
}

func (s *fakeSource) Fetch(_ context.Context, key solana.PublicKey) (AccountData, error) {
	s.fetched = append(s.fetched, key)
	if err := s.failOn[key]; err != nil {
		return AccountData{}, err
	}
	acc, ok := s.accounts[key]
	if !ok {
		return AccountData{}, fmt.Errorf("no account %s", key)
	}
	return acc, nil
}

func (s *fakeSource) FetchBatch(_ context.Context, keys []solana.PublicKey) ([]AccountData, error) {
	s.batches = append(s.batches, keys)
	out := make([]AccountData, len(keys))
	for i, key := range keys {
		if err := s.failOn[key]; err != nil {
			return nil, err
		}
		if acc, ok := s.accounts[key]; ok {
			out[i] = acc
		}
	}
	return out, nil
}

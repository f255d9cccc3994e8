package pyth

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// priceV1Builder starts a version 1 price account with the given prefix
// fields; the caller appends the aggregate info and components.
func priceV1Builder(typ PriceType, expo int32, numComponents uint32, product, next, aggregator solana.PublicKey) *accountBuilder {
	b := newAccount(AccountTypePrice, Version1)
	b.u32(uint32(typ)).i32(expo).u32(numComponents).u32(0)
	b.u64(100).u64(99)
	return b.key(product).key(next).key(aggregator)
}

func TestDecodePriceAccountV2(t *testing.T) {
	acc := priceV2Data(PriceTypePrice, -2, pk(7), pk(8), 12345)
	price, err := DecodePriceAccount(pk(1), acc)
	require.NoError(t, err)

	assert.Equal(t, pk(1), price.Key)
	assert.Equal(t, uint64(1), price.Slot)
	assert.Equal(t, uint32(Version2), price.Version)
	assert.Equal(t, PriceTypePrice, price.PriceType)
	assert.Equal(t, int32(-2), price.Exponent)
	assert.Equal(t, uint32(1), price.NumComponents)
	assert.Equal(t, uint64(100), price.LastSlot)
	assert.Equal(t, uint64(99), price.ValidSlot)
	assert.Equal(t, pk(7), price.ProductKey)
	assert.Equal(t, pk(8), price.NextPriceKey)

	assert.Equal(t, int64(12345), price.Aggregate.RawPrice)
	assert.Equal(t, uint64(7), price.Aggregate.RawConfidence)
	assert.Equal(t, PriceStatusTrading, price.Aggregate.Status)
	assert.Equal(t, uint64(98), price.Aggregate.PubSlot)
	assert.Equal(t, int32(-2), price.Aggregate.Exponent)

	require.Len(t, price.Components, 1)
	assert.Equal(t, pk(0xee), price.Components[0].Publisher)
	assert.Equal(t, int64(12345), price.Components[0].Aggregate.RawPrice)
	assert.Equal(t, int64(12345), price.Components[0].Latest.RawPrice)

	// the builder fills the accumulators with their array index
	assert.Equal(t, map[EmaType]int64{
		EmaTypeTWAPValue: 0,
		EmaTypeTWACValue: 3,
	}, price.Derivations)
}

func TestDecodePriceAccountV1(t *testing.T) {
	b := priceV1Builder(PriceTypePrice, -2, 1, pk(7), pk(8), pk(0xaa)).
		info(12345, 7, PriceStatusTrading, 98).
		component(pk(0xee), 12345, 7, 98)
	price, err := DecodePriceAccount(pk(1), AccountData{Slot: 5, Data: b.build()})
	require.NoError(t, err)

	assert.Equal(t, uint32(Version1), price.Version)
	assert.Equal(t, PriceTypePrice, price.PriceType)
	assert.Equal(t, int32(-2), price.Exponent)
	assert.Equal(t, uint64(100), price.LastSlot)
	assert.Equal(t, uint64(99), price.ValidSlot)
	assert.Equal(t, pk(7), price.ProductKey)
	assert.Equal(t, pk(8), price.NextPriceKey)
	assert.Nil(t, price.Derivations, "version 1 has no EMA accumulators")
	assert.Equal(t, int64(12345), price.Aggregate.RawPrice)
	require.Len(t, price.Components, 1)
}

func TestPriceVersionsDecodeEquivalently(t *testing.T) {
	v1 := priceV1Builder(PriceTypePrice, -2, 2, pk(7), zeroKey, pk(0xaa)).
		info(12345, 50, PriceStatusTrading, 98).
		component(pk(0xe1), 12300, 40, 97).
		component(pk(0xe2), 12400, 60, 98)
	v2 := func() *accountBuilder {
		b := newAccount(AccountTypePrice, Version2)
		b.u32(uint32(PriceTypePrice)).i32(-2).u32(2).u32(0)
		b.u64(100).u64(99)
		for i := 0; i < 8; i++ {
			b.i64(0)
		}
		b.key(pk(7)).key(zeroKey)
		b.info(12345, 50, PriceStatusTrading, 98)
		b.component(pk(0xe1), 12300, 40, 97)
		return b.component(pk(0xe2), 12400, 60, 98)
	}()

	first, err := DecodePriceAccount(pk(1), AccountData{Data: v1.build()})
	require.NoError(t, err)
	second, err := DecodePriceAccount(pk(1), AccountData{Data: v2.build()})
	require.NoError(t, err)

	assert.True(t, first.Aggregate.Price().Equal(second.Aggregate.Price()))
	assert.True(t, first.Aggregate.Confidence().Equal(second.Aggregate.Confidence()))
	assert.Equal(t, len(first.Components), len(second.Components))
	assert.Equal(t, first.PriceType, second.PriceType)
}

func TestPriceScaling(t *testing.T) {
	tests := []struct {
		name     string
		raw      int64
		conf     uint64
		expo     int32
		want     string
		wantConf string
	}{
		{name: "negative exponent", raw: 12345, conf: 5, expo: -2, want: "123.45", wantConf: "0.05"},
		{name: "positive exponent", raw: 100, conf: 1, expo: 3, want: "100000", wantConf: "1000"},
		{name: "zero", raw: 0, conf: 0, expo: -8, want: "0", wantConf: "0"},
		{name: "negative price", raw: -250, conf: 10, expo: -1, want: "-25", wantConf: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := PriceInfo{RawPrice: tt.raw, RawConfidence: tt.conf, Exponent: tt.expo}
			assert.Equal(t, tt.want, info.Price().String())
			assert.Equal(t, tt.wantConf, info.Confidence().String())
		})
	}
}

func TestPriceComponentScan(t *testing.T) {
	t.Run("sentinel ends the list", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 3, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1).
			component(pk(0xe1), 1, 1, 1).
			key(zeroKey). // sentinel
			component(pk(0xe2), 2, 2, 2)
		price, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		require.NoError(t, err)
		require.Len(t, price.Components, 1)
		assert.Equal(t, pk(0xe1), price.Components[0].Publisher)
	})

	t.Run("end of buffer ends the list", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 2, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1).
			component(pk(0xe1), 1, 1, 1).
			component(pk(0xe2), 2, 2, 2)
		price, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		require.NoError(t, err)
		assert.Len(t, price.Components, 2)
	})

	t.Run("declared count does not bound the scan", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 1, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1).
			component(pk(0xe1), 1, 1, 1).
			component(pk(0xe2), 2, 2, 2).
			component(pk(0xe3), 3, 3, 3)
		price, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		require.NoError(t, err)
		assert.Equal(t, uint32(1), price.NumComponents)
		assert.Len(t, price.Components, 3, "scan follows the data, not the count")
	})

	t.Run("version cap bounds the scan", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 0, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1)
		for i := 0; i < maxComponentsV1+2; i++ {
			b.component(pk(byte(0x20+i)), int64(i), 1, 1)
		}
		price, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		require.NoError(t, err)
		assert.Len(t, price.Components, maxComponentsV1)
	})

	t.Run("partial component with data is malformed", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 1, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1).
			key(pk(0xe1)).
			raw([]byte{1, 2, 3}) // key present but the two quotes are not
		_, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		var formatErr *FormatError
		require.ErrorAs(t, err, &formatErr)
		assert.Contains(t, err.Error(), "truncated price component")
	})

	t.Run("short tail after last component is ignored", func(t *testing.T) {
		b := priceV1Builder(PriceTypePrice, -2, 1, pk(7), zeroKey, pk(0xaa)).
			info(1, 1, PriceStatusTrading, 1).
			component(pk(0xe1), 1, 1, 1).
			raw([]byte{0xff, 0xee}) // not even a full key
		price, err := DecodePriceAccount(pk(1), AccountData{Data: b.build()})
		require.NoError(t, err)
		assert.Len(t, price.Components, 1)
	})
}

func TestDecodePriceAccountTruncated(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr string
	}{
		{
			name:    "version 2 body below prefix",
			data:    newAccount(AccountTypePrice, Version2).u32(uint32(PriceTypePrice)).build(),
			wantErr: "too short for version 2",
		},
		{
			name:    "version 1 body below prefix",
			data:    newAccount(AccountTypePrice, Version1).u32(uint32(PriceTypePrice)).build(),
			wantErr: "too short for version 1",
		},
		{
			name: "missing aggregate",
			data: priceV1Builder(PriceTypePrice, -2, 0, pk(7), zeroKey, pk(0xaa)).
				raw([]byte{1, 2, 3}).build(),
			wantErr: "truncated before aggregate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePriceAccount(pk(1), AccountData{Data: tt.data})
			var formatErr *FormatError
			require.ErrorAs(t, err, &formatErr)
			assert.Equal(t, pk(1), formatErr.Key)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodePriceAccountIdempotent(t *testing.T) {
	acc := priceV2Data(PriceTypePrice, -5, pk(7), pk(8), 424242)
	first, err := DecodePriceAccount(pk(1), acc)
	require.NoError(t, err)
	second, err := DecodePriceAccount(pk(1), acc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

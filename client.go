package pyth

import (
	"context"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Client walks the oracle account graph: mapping pages to products, products
// to their price chains. All account bytes come from the AccountSource; the
// client keeps no state of its own beyond the price set cached on each
// product it refreshes.
type Client struct {
	source AccountSource
	log    logrus.FieldLogger
}

// NewClient returns a client reading accounts from source. A nil log falls
// back to the logrus standard logger.
func NewClient(source AccountSource, log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		source: source,
		log:    log,
	}
}

// GetMappingAccount fetches and decodes one page of the product directory.
func (c *Client) GetMappingAccount(ctx context.Context, key solana.PublicKey) (*MappingAccount, error) {
	acc, err := c.source.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeMapping(c.log, key, acc)
}

// GetMappingChain follows next-page keys from first until the chain ends.
// The chain is trusted to terminate; there is no cycle detection.
func (c *Client) GetMappingChain(ctx context.Context, first solana.PublicKey) ([]*MappingAccount, error) {
	var chain []*MappingAccount
	for key := first; !key.IsZero(); {
		mapping, err := c.GetMappingAccount(ctx, key)
		if err != nil {
			return nil, err
		}
		chain = append(chain, mapping)
		key = mapping.NextKey
	}
	return chain, nil
}

// GetProductAccount fetches and decodes one product account.
func (c *Client) GetProductAccount(ctx context.Context, key solana.PublicKey) (*ProductAccount, error) {
	acc, err := c.source.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodeProductAccount(key, acc)
}

// GetPriceAccount fetches and decodes one price account.
func (c *Client) GetPriceAccount(ctx context.Context, key solana.PublicKey) (*PriceAccount, error) {
	acc, err := c.source.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return DecodePriceAccount(key, acc)
}

// GetAllProducts walks the mapping chain from first and returns every product
// it lists, fetching each page's products in a single batch round trip.
// Products listed by a page but absent from the node are skipped with a
// warning.
func (c *Client) GetAllProducts(ctx context.Context, first solana.PublicKey) ([]*ProductAccount, error) {
	var products []*ProductAccount
	for key := first; !key.IsZero(); {
		mapping, err := c.GetMappingAccount(ctx, key)
		if err != nil {
			return nil, err
		}
		if len(mapping.Entries) > 0 {
			batch, err := c.fetchBatch(ctx, mapping.Entries)
			if err != nil {
				return nil, err
			}
			for i, acc := range batch {
				if acc.Data == nil {
					c.log.Warningf("No account data for product %s listed in mapping account %s", mapping.Entries[i], key)
					continue
				}
				product, err := DecodeProductAccount(mapping.Entries[i], acc)
				if err != nil {
					return nil, err
				}
				products = append(products, product)
			}
		}
		key = mapping.NextKey
	}
	return products, nil
}

// RefreshPrices walks product's price chain from its first price key and
// replaces the product's cached price set with the result, keyed by price
// type. The cached set is only replaced once the whole walk has succeeded.
func (c *Client) RefreshPrices(ctx context.Context, product *ProductAccount) (map[PriceType]*PriceAccount, error) {
	prices, _, err := c.walkChain(ctx, product.Key, product.FirstPriceKey, nil)
	if err != nil {
		return nil, err
	}
	product.setPrices(prices)
	return prices, nil
}

// GetPrices returns the product's cached price set, loading it on first use.
func (c *Client) GetPrices(ctx context.Context, product *ProductAccount) (map[PriceType]*PriceAccount, error) {
	if prices, err := product.Prices(); err == nil {
		return prices, nil
	}
	return c.RefreshPrices(ctx, product)
}

// CheckPriceChanges re-walks product's price chain and reports which price
// accounts appeared and disappeared since the last load. With updateAccounts
// set, the product and every previously known price account are refreshed in
// one batch round trip before the walk, so only newly discovered accounts
// cost an extra fetch; the freshly decoded product supplies the walk's
// starting key. Added accounts are reported in walk order, removed accounts
// in ascending price type order. The first call on a product whose price set
// has never been loaded reports the whole chain as added.
func (c *Client) CheckPriceChanges(ctx context.Context, product *ProductAccount, updateAccounts bool) (added, removed []*PriceAccount, err error) {
	old, errLoaded := product.Prices()
	if errLoaded != nil {
		byType, walked, err := c.walkChain(ctx, product.Key, product.FirstPriceKey, nil)
		if err != nil {
			return nil, nil, err
		}
		product.setPrices(byType)
		return walked, nil, nil
	}

	types := make([]PriceType, 0, len(old))
	for t := range old {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	known := make(map[solana.PublicKey]*PriceAccount, len(old))
	for _, price := range old {
		known[price.Key] = price
	}

	first := product.FirstPriceKey
	if updateAccounts {
		keys := make([]solana.PublicKey, 0, len(old)+1)
		keys = append(keys, product.Key)
		for _, t := range types {
			keys = append(keys, old[t].Key)
		}
		batch, err := c.fetchBatch(ctx, keys)
		if err != nil {
			return nil, nil, err
		}
		// a key the node no longer has keeps its stale record; the walk
		// decides whether it survives
		if batch[0].Data != nil {
			fresh, err := DecodeProductAccount(product.Key, batch[0])
			if err != nil {
				return nil, nil, err
			}
			first = fresh.FirstPriceKey
		}
		for i, acc := range batch[1:] {
			if acc.Data == nil {
				continue
			}
			fresh, err := DecodePriceAccount(keys[i+1], acc)
			if err != nil {
				return nil, nil, err
			}
			known[fresh.Key] = fresh
		}
	}

	byType, added, err := c.walkChain(ctx, product.Key, first, known)
	if err != nil {
		return nil, nil, err
	}

	removed = make([]*PriceAccount, 0, len(known))
	for _, price := range known {
		removed = append(removed, price)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].PriceType < removed[j].PriceType })

	product.setPrices(byType)
	return added, removed, nil
}

// walkChain walks a price chain from first, fetching and decoding one account
// per hop. Keys present in prefetched are consumed from it instead of being
// fetched; every other decoded account is also returned in walk order. Two
// chain links sharing a price type are an anomaly, not an error: the later
// one wins the type slot.
func (c *Client) walkChain(ctx context.Context, productKey, first solana.PublicKey, prefetched map[solana.PublicKey]*PriceAccount) (map[PriceType]*PriceAccount, []*PriceAccount, error) {
	byType := make(map[PriceType]*PriceAccount)
	var fetched []*PriceAccount
	for key := first; !key.IsZero(); {
		price, ok := prefetched[key]
		if ok {
			delete(prefetched, key)
		} else {
			var err error
			price, err = c.GetPriceAccount(ctx, key)
			if err != nil {
				return nil, nil, err
			}
			fetched = append(fetched, price)
		}
		if prev, ok := byType[price.PriceType]; ok {
			c.log.Warningf("Price type %s repeated in chain of product %s: %s replaces %s", price.PriceType, productKey, price.Key, prev.Key)
		}
		byType[price.PriceType] = price
		key = price.NextPriceKey
	}
	return byType, fetched, nil
}

// fetchBatch wraps AccountSource.FetchBatch with the one result-shape check
// every caller relies on.
func (c *Client) fetchBatch(ctx context.Context, keys []solana.PublicKey) ([]AccountData, error) {
	batch, err := c.source.FetchBatch(ctx, keys)
	if err != nil {
		return nil, err
	}
	if len(batch) != len(keys) {
		return nil, fmt.Errorf("pyth: account source returned %d entries for %d keys", len(batch), len(keys))
	}
	return batch, nil
}

package solanarpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
	"golang.org/x/time/rate"

	pyth "pythclient"
)

// Client reads oracle accounts from a Solana node over HTTP JSON-RPC using
// getAccountInfo and getMultipleAccounts with base64 payloads. It implements
// pyth.AccountSource and is safe for concurrent use.
type Client struct {
	endpoint   string
	http       *http.Client
	commitment string
	limiter    *rate.Limiter
	id         uint64
	log        logrus.FieldLogger
}

// ClientOpts configures the optional behavior of a Client.
type ClientOpts struct {
	// Commitment is the commitment level sent with every read. Empty means
	// CommitmentConfirmed.
	Commitment string

	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client

	// RequestsPerSecond caps outgoing requests client-side. Zero disables
	// the limiter.
	RequestsPerSecond float64

	// Burst is the limiter burst size; it defaults to 1 when the limiter is
	// enabled.
	Burst int

	// Log receives request warnings. Nil falls back to the logrus standard
	// logger.
	Log logrus.FieldLogger
}

// NewClient returns a client for the given HTTP JSON-RPC endpoint with
// default options.
func NewClient(endpoint string) *Client {
	return NewClientWithOpts(endpoint, nil)
}

// NewClientWithOpts returns a client for the given HTTP JSON-RPC endpoint.
// A nil opts behaves like the zero ClientOpts.
func NewClientWithOpts(endpoint string, opts *ClientOpts) *Client {
	if opts == nil {
		opts = &ClientOpts{}
	}
	c := &Client{
		endpoint:   endpoint,
		http:       opts.HTTPClient,
		commitment: opts.Commitment,
		log:        opts.Log,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.commitment == "" {
		c.commitment = CommitmentConfirmed
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

func (c *Client) requestID() int {
	return int(atomic.AddUint64(&c.id, 1))
}

// call sends one JSON-RPC request and returns the decoded response. RPC
// errors reported by the node are returned as *jsonrpc.RPCError.
func (c *Client) call(ctx context.Context, method string, params ...interface{}) (*jsonrpc.RPCResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	request := jsonrpc.NewRequest(method, params...)
	request.ID = c.requestID()
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Content-Type", "application/json")

	httpResponse, err := c.http.Do(httpRequest)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()
	if httpResponse.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected HTTP status %s", method, httpResponse.Status)
	}

	response := new(jsonrpc.RPCResponse)
	if err := json.NewDecoder(httpResponse.Body).Decode(response); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if response.ID != request.ID {
		return nil, fmt.Errorf("%s: response ID %d does not match request ID %d", method, response.ID, request.ID)
	}
	if response.Error != nil {
		return nil, response.Error
	}
	return response, nil
}

func (c *Client) callOptions() callOptions {
	return callOptions{Encoding: encodingBase64, Commitment: c.commitment}
}

// Fetch returns the raw data of one account at the slot the node served it.
// A key with no account on the node is an error; use FetchBatch to probe for
// accounts that may not exist.
func (c *Client) Fetch(ctx context.Context, key solana.PublicKey) (pyth.AccountData, error) {
	response, err := c.call(ctx, "getAccountInfo", key.String(), c.callOptions())
	if err != nil {
		return pyth.AccountData{}, err
	}

	var result accountInfoResult
	if err := mapstructure.Decode(response.Result, &result); err != nil {
		return pyth.AccountData{}, fmt.Errorf("getAccountInfo: decoding result: %w", err)
	}
	if result.Value == nil {
		return pyth.AccountData{}, fmt.Errorf("no account %s", key)
	}

	acc, err := decodeAccountValue(result.Context.Slot, result.Value)
	if err != nil {
		return pyth.AccountData{}, fmt.Errorf("account %s: %w", key, err)
	}
	return acc, nil
}

// FetchBatch returns the raw data of every account in keys in one round
// trip, order preserved. Keys the node has no account for yield an entry
// with nil Data.
func (c *Client) FetchBatch(ctx context.Context, keys []solana.PublicKey) ([]pyth.AccountData, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	encoded := make([]string, len(keys))
	for i, key := range keys {
		encoded[i] = key.String()
	}

	response, err := c.call(ctx, "getMultipleAccounts", encoded, c.callOptions())
	if err != nil {
		return nil, err
	}

	var result multipleAccountsResult
	if err := mapstructure.Decode(response.Result, &result); err != nil {
		return nil, fmt.Errorf("getMultipleAccounts: decoding result: %w", err)
	}
	if len(result.Value) != len(keys) {
		return nil, fmt.Errorf("getMultipleAccounts: got %d accounts for %d keys", len(result.Value), len(keys))
	}

	batch := make([]pyth.AccountData, len(keys))
	for i, value := range result.Value {
		acc, err := decodeAccountValue(result.Context.Slot, value)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", keys[i], err)
		}
		batch[i] = acc
	}
	return batch, nil
}

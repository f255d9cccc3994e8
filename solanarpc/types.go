package solanarpc

import (
	"encoding/base64"
	"fmt"

	pyth "pythclient"
)

// Commitment levels accepted by Solana nodes for read requests.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

const encodingBase64 = "base64"

// callOptions is the configuration object sent as the second parameter of
// every account read.
type callOptions struct {
	Encoding   string `json:"encoding"`
	Commitment string `json:"commitment,omitempty"`
}

type rpcContext struct {
	Slot uint64 `mapstructure:"slot" json:"slot"`
}

// accountValue is the account object the node returns for getAccountInfo,
// getMultipleAccounts and account notifications. Data is a two-element
// [payload, encoding] tuple; the whole value is null for missing accounts.
type accountValue struct {
	Data       []string `mapstructure:"data" json:"data"`
	Executable bool     `mapstructure:"executable" json:"executable"`
	Lamports   uint64   `mapstructure:"lamports" json:"lamports"`
	Owner      string   `mapstructure:"owner" json:"owner"`
}

type accountInfoResult struct {
	Context rpcContext    `mapstructure:"context" json:"context"`
	Value   *accountValue `mapstructure:"value" json:"value"`
}

type multipleAccountsResult struct {
	Context rpcContext      `mapstructure:"context" json:"context"`
	Value   []*accountValue `mapstructure:"value" json:"value"`
}

// subscriptionNotification is the jsonrpc envelope of accountNotification
// frames pushed by the node over the websocket connection.
type subscriptionNotification struct {
	Jsonrpc string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  subscriptionParams `json:"params"`
}

type subscriptionParams struct {
	Result       accountInfoResult `mapstructure:"result" json:"result"`
	Subscription int               `mapstructure:"subscription" json:"subscription"`
}

// decodeAccountValue converts the node's account object into raw account
// bytes. A nil value means the account does not exist and maps to an
// AccountData with nil Data, which is how pyth.AccountSource reports holes
// in a batch.
func decodeAccountValue(slot uint64, value *accountValue) (pyth.AccountData, error) {
	if value == nil {
		return pyth.AccountData{Slot: slot}, nil
	}
	if len(value.Data) != 2 {
		return pyth.AccountData{}, fmt.Errorf("malformed account data tuple of length %d", len(value.Data))
	}
	if value.Data[1] != encodingBase64 {
		return pyth.AccountData{}, fmt.Errorf("unexpected account data encoding %q", value.Data[1])
	}
	raw, err := base64.StdEncoding.DecodeString(value.Data[0])
	if err != nil {
		return pyth.AccountData{}, fmt.Errorf("decoding account data: %w", err)
	}
	return pyth.AccountData{Slot: slot, Data: raw}, nil
}

// Package rpc wraps a Solana JSON-RPC node: account/transaction lookups over
// HTTP and account-change/log-stream subscriptions over WebSocket.
package rpc

import (
	"encoding/json"
	"fmt"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// AccountInfo is the decoded state of an on-chain account.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// accountInfoResult is the getAccountInfo / accountNotification payload.
// Value is null when the account does not exist.
type accountInfoResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *AccountInfo `json:"value"`
}

// TransactionDetail is the decoded result of a transaction lookup.
type TransactionDetail struct {
	Slot         uint64
	BlockTime    int64
	Failed       bool
	Fee          uint64
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	LogMessages  []string
}

// accountKey tolerates both encodings providers use for account keys:
// a bare string, or an object with a "pubkey" field (jsonParsed).
type accountKey struct {
	Key string
}

func (k *accountKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		k.Key = s
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	k.Key = obj.Pubkey
	return nil
}

// txResult is the raw getTransaction result.
type txResult struct {
	Slot      uint64 `json:"slot"`
	BlockTime int64  `json:"blockTime"`
	Meta      *struct {
		Err          json.RawMessage `json:"err"`
		Fee          uint64          `json:"fee"`
		PreBalances  []uint64        `json:"preBalances"`
		PostBalances []uint64        `json:"postBalances"`
		LogMessages  []string        `json:"logMessages"`
	} `json:"meta"`
	Transaction *struct {
		Message struct {
			AccountKeys []accountKey `json:"accountKeys"`
		} `json:"message"`
	} `json:"transaction"`
}

// detail flattens the raw result into a TransactionDetail.
func (r *txResult) detail() *TransactionDetail {
	d := &TransactionDetail{
		Slot:      r.Slot,
		BlockTime: r.BlockTime,
	}
	if r.Meta != nil {
		d.Failed = len(r.Meta.Err) > 0 && string(r.Meta.Err) != "null"
		d.Fee = r.Meta.Fee
		d.PreBalances = r.Meta.PreBalances
		d.PostBalances = r.Meta.PostBalances
		d.LogMessages = r.Meta.LogMessages
	}
	if r.Transaction != nil {
		for _, k := range r.Transaction.Message.AccountKeys {
			if k.Key != "" {
				d.AccountKeys = append(d.AccountKeys, k.Key)
			}
		}
	}
	return d
}

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime int64           `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction errored on-chain.
func (s SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// AccountUpdate is an account-change notification. Account is nil when the
// account no longer exists.
type AccountUpdate struct {
	Slot    uint64
	Account *AccountInfo
}

// LogsUpdate is a log-stream notification for one transaction.
type LogsUpdate struct {
	Signature string
	Failed    bool
	Logs      []string
}

// wsMessage is the loose shape of an inbound WebSocket frame: either a
// response to one of our requests (ID set) or a subscription notification
// (Method set).
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *struct {
		Subscription uint64          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// logsNotificationValue is the logsNotification payload value.
type logsNotificationValue struct {
	Signature string          `json:"signature"`
	Err       json.RawMessage `json:"err"`
	Logs      []string        `json:"logs"`
}

// parseAccountUpdate decodes an accountNotification result.
func parseAccountUpdate(data []byte) (AccountUpdate, error) {
	var res accountInfoResult
	if err := json.Unmarshal(data, &res); err != nil {
		return AccountUpdate{}, fmt.Errorf("decode accountNotification: %w", err)
	}
	return AccountUpdate{Slot: res.Context.Slot, Account: res.Value}, nil
}

// parseLogsUpdate decodes a logsNotification result.
func parseLogsUpdate(data []byte) (LogsUpdate, error) {
	var res struct {
		Context struct {
			Slot uint64 `json:"slot"`
		} `json:"context"`
		Value logsNotificationValue `json:"value"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return LogsUpdate{}, fmt.Errorf("decode logsNotification: %w", err)
	}
	return LogsUpdate{
		Signature: res.Value.Signature,
		Failed:    len(res.Value.Err) > 0 && string(res.Value.Err) != "null",
		Logs:      res.Value.Logs,
	}, nil
}

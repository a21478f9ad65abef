package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rpcServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":` + "1" + `,"result":` + result + `}`))
	}))
}

func TestGetAccountInfoPresent(t *testing.T) {
	srv := rpcServer(t, `{"context":{"slot":100},"value":{"lamports":5000000000,"owner":"11111111111111111111111111111111","executable":false,"rentEpoch":361}}`)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	info, err := c.GetAccountInfo(context.Background(), "some-address")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, uint64(5_000_000_000), info.Lamports)
	assert.Equal(t, "11111111111111111111111111111111", info.Owner)
}

func TestGetAccountInfoAbsent(t *testing.T) {
	srv := rpcServer(t, `{"context":{"slot":100},"value":null}`)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	info, err := c.GetAccountInfo(context.Background(), "some-address")
	require.NoError(t, err)
	assert.Nil(t, info, "a missing account is (nil, nil), not an error")
}

func TestGetTransactionUnknown(t *testing.T) {
	srv := rpcServer(t, `null`)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	detail, err := c.GetTransaction(context.Background(), "sig-unknown")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestGetTransactionDecodesMeta(t *testing.T) {
	srv := rpcServer(t, `{
		"slot": 12345,
		"blockTime": 1700000000,
		"meta": {
			"err": {"InstructionError":[0,"Custom"]},
			"fee": 5000,
			"preBalances": [2000000000, 0],
			"postBalances": [0, 1999995000],
			"logMessages": ["Program 11111111111111111111111111111111 invoke [1]"]
		},
		"transaction": {"message": {"accountKeys": ["keyA", {"pubkey": "keyB"}]}}
	}`)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	detail, err := c.GetTransaction(context.Background(), "sig-1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.True(t, detail.Failed)
	assert.Equal(t, uint64(5000), detail.Fee)
	assert.Equal(t, []string{"keyA", "keyB"}, detail.AccountKeys, "both key encodings tolerated")
	assert.Equal(t, []uint64{2_000_000_000, 0}, detail.PreBalances)
}

func TestTransportFailureIsProviderUnavailable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := c.GetAccountInfo(context.Background(), "addr")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestNonOKStatusIsProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GetAccountInfo(context.Background(), "addr")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestGetSignatures(t *testing.T) {
	srv := rpcServer(t, `[
		{"signature":"sig-new","slot":200,"blockTime":1700000100,"err":null},
		{"signature":"sig-old","slot":100,"blockTime":1700000000,"err":{"InstructionError":[0,"Custom"]}}
	]`)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	sigs, err := c.GetSignatures(context.Background(), "addr", 10)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.False(t, sigs[0].Failed())
	assert.True(t, sigs[1].Failed())
}

func TestParseLogsUpdate(t *testing.T) {
	raw := []byte(`{
		"context": {"slot": 5208469},
		"value": {
			"signature": "sig-x",
			"err": null,
			"logs": ["Program 11111111111111111111111111111111 invoke [1]", "Program 11111111111111111111111111111111 success"]
		}
	}`)

	update, err := parseLogsUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, "sig-x", update.Signature)
	assert.False(t, update.Failed)
	assert.Len(t, update.Logs, 2)
}

func TestParseAccountUpdateNullValue(t *testing.T) {
	raw := []byte(`{"context":{"slot":42},"value":null}`)

	update, err := parseAccountUpdate(raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), update.Slot)
	assert.Nil(t, update.Account, "closed account arrives as a null value")
}

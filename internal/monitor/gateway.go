// Package monitor coordinates the live monitoring pipeline: it owns the
// watch/unwatch lifecycle, routes provider events through the scorer, and
// reconciles every wallet on a periodic sweep.
package monitor

import (
	"context"

	"github.com/solsentry/engine/internal/enrich"
	"github.com/solsentry/engine/internal/rpc"
	"github.com/solsentry/engine/internal/scorer"
	"github.com/solsentry/engine/internal/watchlist"
)

// Gateway is the provider surface the coordinator needs. *rpc.Client plus
// *rpc.Subscriber satisfy it in production; tests substitute a fake.
type Gateway interface {
	GetAccountInfo(ctx context.Context, address string) (*rpc.AccountInfo, error)
	GetTransaction(ctx context.Context, signature string) (*rpc.TransactionDetail, error)
	GetSignatures(ctx context.Context, address string, limit int) ([]rpc.SignatureInfo, error)

	SubscribeAccount(ctx context.Context, address string, handler func(rpc.AccountUpdate)) (uint64, error)
	SubscribeLogs(ctx context.Context, address string, handler func(rpc.LogsUpdate)) (uint64, error)
	Unsubscribe(ctx context.Context, handle uint64) error
	Connected() bool
}

// Enricher is the optional second-opinion service.
type Enricher interface {
	Enrich(ctx context.Context, address string, eval scorer.Evaluation, txCtx enrich.TxContext, profile *watchlist.Profile) (*enrich.Result, bool)
}

// rpcGateway bundles the HTTP client and the WebSocket subscriber into one
// Gateway.
type rpcGateway struct {
	*rpc.Client
	*rpc.Subscriber
}

// NewGateway combines an RPC client and subscriber into a Gateway.
func NewGateway(client *rpc.Client, sub *rpc.Subscriber) Gateway {
	return &rpcGateway{Client: client, Subscriber: sub}
}

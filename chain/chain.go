package chain

import (
	"context"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the subset of the Ethereum RPC client used by the indexer.
// The production implementation is *ethclient.Client; tests substitute a
// client backed by the mock chain node.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

func DialRPCNode(nodeURL *url.URL) (*ethclient.Client, error) {
	return ethclient.Dial(nodeURL.String())
}

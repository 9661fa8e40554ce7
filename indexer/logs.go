package indexer

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"flowpay-indexer/aggregator"
	"flowpay-indexer/boff"
	"flowpay-indexer/config"
	"flowpay-indexer/indexer/abi"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// collectEvents fetches the logs of both tracked contracts for the
// block range [start, stop], resolves the timestamps of the blocks
// containing them and decodes them into typed events ordered by
// (block number, log index). The returned map holds the resolved block
// timestamps.
func (ci *BlockIndexer) collectEvents(ctx context.Context, start, stop uint64) ([]aggregator.Event, map[uint64]uint64, error) {
	logs, err := ci.requestLogs(ctx, start, stop)
	if err != nil {
		return nil, nil, errors.Wrap(err, "collectEvents")
	}

	timestamps, err := ci.requestTimestamps(ctx, logs)
	if err != nil {
		return nil, nil, errors.Wrap(err, "collectEvents")
	}

	events := make([]aggregator.Event, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		if len(log.Topics) == 0 {
			continue
		}

		// The Transfer signature is only meaningful on the payment
		// token; the delegation events only on the manager.
		if log.Address == ci.token && log.Topics[0] != abi.TransferTopic {
			continue
		}
		if log.Address == ci.delegationManager && log.Topics[0] == abi.TransferTopic {
			continue
		}

		event, err := abi.ParseLog(log, timestamps[log.BlockNumber])
		if err != nil {
			return nil, nil, errors.Wrap(err, "collectEvents")
		}
		if event == nil {
			continue
		}
		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i].Meta(), events[j].Meta()
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		return a.LogIndex < b.LogIndex
	})

	return events, timestamps, nil
}

// requestLogs fetches the logs for [start, stop] in ranges of log_range
// blocks, num_parallel_req ranges at a time.
func (ci *BlockIndexer) requestLogs(ctx context.Context, start, stop uint64) ([]types.Log, error) {
	var (
		mu   sync.Mutex
		logs []types.Log
	)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ci.params.NumParallelReq)

	for from := start; from <= stop; from += ci.params.LogRange {
		from := from
		to := min(from+ci.params.LogRange-1, stop)

		eg.Go(func() error {
			query := ethereum.FilterQuery{
				FromBlock: new(big.Int).SetUint64(from),
				ToBlock:   new(big.Int).SetUint64(to),
				Addresses: []common.Address{ci.delegationManager, ci.token},
				Topics: [][]common.Hash{
					append(abi.DelegationManagerTopics(), abi.TransferTopic),
				},
			}

			rangeLogs, err := boff.RetryWithMaxElapsed(gCtx, func() ([]types.Log, error) {
				reqCtx, cancelFunc := context.WithTimeout(gCtx, config.Timeout)
				defer cancelFunc()

				return ci.client.FilterLogs(reqCtx, query)
			}, "client.FilterLogs")
			if err != nil {
				return errors.Wrap(err, "client.FilterLogs")
			}

			mu.Lock()
			logs = append(logs, rangeLogs...)
			mu.Unlock()

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return logs, nil
}

// requestTimestamps resolves the timestamp of every distinct block a log
// was emitted in. Logs do not carry their block's timestamp, and the
// daily rollups need it.
func (ci *BlockIndexer) requestTimestamps(ctx context.Context, logs []types.Log) (map[uint64]uint64, error) {
	blockNumbers := make(map[uint64]bool)
	for i := range logs {
		blockNumbers[logs[i].BlockNumber] = true
	}

	var mu sync.Mutex
	timestamps := make(map[uint64]uint64, len(blockNumbers))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ci.params.NumParallelReq)

	for number := range blockNumbers {
		number := number

		eg.Go(func() error {
			timestamp, err := ci.fetchBlockTimestamp(gCtx, number)
			if err != nil {
				return err
			}

			mu.Lock()
			timestamps[number] = timestamp
			mu.Unlock()

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}

func (ci *BlockIndexer) fetchBlockHeader(ctx context.Context, number *big.Int) (*types.Header, error) {
	header, err := boff.RetryWithMaxElapsed(ctx, func() (*types.Header, error) {
		reqCtx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
		defer cancelFunc()

		return ci.client.HeaderByNumber(reqCtx, number)
	}, "client.HeaderByNumber")
	if err != nil {
		return nil, errors.Wrap(err, "client.HeaderByNumber")
	}

	return header, nil
}

func (ci *BlockIndexer) fetchBlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	header, err := ci.fetchBlockHeader(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, errors.Wrap(err, "fetchBlockTimestamp")
	}

	return header.Time, nil
}

// fetchLastBlockIndex returns the number and timestamp of the latest
// block with enough confirmations.
func (ci *BlockIndexer) fetchLastBlockIndex(ctx context.Context) (uint64, uint64, error) {
	lastBlock, err := ci.fetchBlockHeader(ctx, nil)
	if err != nil {
		return 0, 0, errors.Wrap(err, "fetchLastBlockIndex")
	}

	lastBlockNumber := lastBlock.Number.Uint64()
	if lastBlockNumber < ci.params.Confirmations {
		return 0, 0, errors.Errorf(
			"not enough confirmations, latest block %d, confirmations required %d",
			lastBlockNumber, ci.params.Confirmations,
		)
	}

	latestConfirmedNumber := lastBlockNumber - ci.params.Confirmations
	latestConfirmedHeader, err := ci.fetchBlockHeader(ctx, new(big.Int).SetUint64(latestConfirmedNumber))
	if err != nil {
		return 0, 0, errors.Wrap(err, "fetchLastBlockIndex")
	}

	return latestConfirmedNumber, latestConfirmedHeader.Time, nil
}

package indexer

import (
	"context"
	"fmt"
	"time"

	"flowpay-indexer/aggregator"
	"flowpay-indexer/chain"
	"flowpay-indexer/config"
	"flowpay-indexer/database"
	"flowpay-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// BlockIndexer drives the ingestion pipeline: it collects logs of the
// delegation manager and the payment token, decodes them into typed
// events and feeds them one at a time, in (block number, log index)
// order, into the aggregator.
type BlockIndexer struct {
	db     *gorm.DB
	params config.IndexerConfig
	client chain.Client
	agg    *aggregator.Aggregator

	delegationManager common.Address
	token             common.Address
}

func CreateBlockIndexer(cfg *config.Config, db *gorm.DB, client chain.Client) *BlockIndexer {
	blockIndexer := BlockIndexer{
		db:                db,
		params:            cfg.Indexer,
		client:            client,
		agg:               aggregator.New(database.NewStore(db)),
		delegationManager: common.HexToAddress(cfg.Contracts.DelegationManager),
		token:             common.HexToAddress(cfg.Contracts.Token),
	}

	if blockIndexer.params.StopIndex == 0 {
		blockIndexer.params.StopIndex = ^uint64(0)
	}
	if blockIndexer.params.BatchSize == 0 {
		blockIndexer.params.BatchSize = 1
	}
	if blockIndexer.params.LogRange == 0 {
		blockIndexer.params.LogRange = 1
	}
	if blockIndexer.params.NumParallelReq == 0 {
		blockIndexer.params.NumParallelReq = 1
	}

	return &blockIndexer
}

// IndexHistory indexes blocks in batches from the configured start block
// (or the first uncommitted block) up to the confirmed chain head, and
// returns the last indexed block.
func (ci *BlockIndexer) IndexHistory(ctx context.Context) (uint64, error) {
	states, err := database.GetDBStates(ci.db)
	if err != nil {
		return 0, fmt.Errorf("IndexHistory: %w", err)
	}
	lastChainIndex, lastChainTimestamp, err := ci.fetchLastBlockIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("IndexHistory: %w", err)
	}
	startTimestamp, err := ci.fetchBlockTimestamp(ctx, ci.params.StartIndex)
	if err != nil {
		return 0, fmt.Errorf("IndexHistory: %w", err)
	}
	startIndex, lastIndex, err := states.UpdateAtStart(ci.db, ci.params.StartIndex,
		startTimestamp, lastChainIndex, lastChainTimestamp, ci.params.StopIndex)
	if err != nil {
		return 0, fmt.Errorf("IndexHistory: %w", err)
	}
	logger.Info("Starting to index blocks from %d to %d", startIndex, lastIndex)

	for j := startIndex; j <= lastIndex; j += ci.params.BatchSize {
		lastBlockNumInRound := min(j+ci.params.BatchSize-1, lastIndex)

		startTime := time.Now()
		events, timestamps, err := ci.collectEvents(ctx, j, lastBlockNumInRound)
		if err != nil {
			return 0, fmt.Errorf("IndexHistory: %w", err)
		}
		logger.Info(
			"Successfully obtained %d events from blocks %d to %d in %d milliseconds",
			len(events), j, lastBlockNumInRound, time.Since(startTime).Milliseconds(),
		)

		startTime = time.Now()
		if err := ci.applyEvents(ctx, events); err != nil {
			return 0, fmt.Errorf("IndexHistory: %w", err)
		}
		logger.Info(
			"Applied %d events in %d milliseconds",
			len(events), time.Since(startTime).Milliseconds(),
		)

		lastTimestamp := timestamps[lastBlockNumInRound]
		if lastTimestamp == 0 {
			lastTimestamp, err = ci.fetchBlockTimestamp(ctx, lastBlockNumInRound)
			if err != nil {
				return 0, fmt.Errorf("IndexHistory: %w", err)
			}
		}
		err = states.Update(ci.db, database.LastDatabaseIndexState, lastBlockNumInRound, lastTimestamp)
		if err != nil {
			return 0, errors.Wrap(err, "States.Update")
		}

		// in the second to last run of the loop update lastIndex to get the blocks
		// that were produced during the run of the algorithm
		if j+ci.params.BatchSize <= lastIndex && j+2*ci.params.BatchSize > lastIndex {
			lastChainIndex, lastChainTimestamp, err = ci.fetchLastBlockIndex(ctx)
			if err != nil {
				return 0, fmt.Errorf("IndexHistory: %w", err)
			}

			err := states.Update(ci.db, database.LastChainIndexState, lastChainIndex, lastChainTimestamp)
			if err != nil {
				return 0, errors.Wrap(err, "States.Update")
			}

			if lastChainIndex > lastIndex && ci.params.StopIndex > lastIndex {
				lastIndex = min(lastChainIndex, ci.params.StopIndex)
				logger.Info("Updating the last block to %d", lastIndex)
			}
		}
	}

	return lastIndex, nil
}

// IndexContinuous follows the confirmed chain head block by block,
// polling for new blocks when it catches up.
func (ci *BlockIndexer) IndexContinuous(ctx context.Context) error {
	states, err := database.GetDBStates(ci.db)
	if err != nil {
		return fmt.Errorf("IndexContinuous: %w", err)
	}
	index := states.States[database.LastDatabaseIndexState].Index + 1
	lastIndex, lastChainTimestamp, err := ci.fetchLastBlockIndex(ctx)
	if err != nil {
		return fmt.Errorf("IndexContinuous: %w", err)
	}
	logger.Info("Continuously indexing blocks from %d", index)

	for {
		// useful for tests
		if index > ci.params.StopIndex {
			logger.Debug("Stopping the indexer at block %d", states.States[database.LastDatabaseIndexState].Index)
			return nil
		}
		if index > lastIndex {
			logger.Debug("Up to date, last block %d", states.States[database.LastChainIndexState].Index)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond * time.Duration(ci.params.NewBlockCheckMillis)):
			}

			lastIndex, lastChainTimestamp, err = ci.fetchLastBlockIndex(ctx)
			if err != nil {
				return fmt.Errorf("IndexContinuous: %w", err)
			}

			err := states.Update(ci.db, database.LastChainIndexState, lastIndex, lastChainTimestamp)
			if err != nil {
				return errors.Wrap(err, "States.Update")
			}

			continue
		}

		events, timestamps, err := ci.collectEvents(ctx, index, index)
		if err != nil {
			return fmt.Errorf("IndexContinuous: %w", err)
		}
		if err := ci.applyEvents(ctx, events); err != nil {
			return fmt.Errorf("IndexContinuous: %w", err)
		}

		indexTimestamp := timestamps[index]
		if indexTimestamp == 0 {
			indexTimestamp, err = ci.fetchBlockTimestamp(ctx, index)
			if err != nil {
				return fmt.Errorf("IndexContinuous: %w", err)
			}
		}
		err = states.Update(ci.db, database.LastDatabaseIndexState, index, indexTimestamp)
		if err != nil {
			return errors.Wrap(err, "States.Update")
		}

		if index%1000 == 0 {
			logger.Info("Indexer at block %d", index)
		}
		index += 1
	}
}

// applyEvents runs the fold: strictly sequential, one event at a time.
func (ci *BlockIndexer) applyEvents(ctx context.Context, events []aggregator.Event) error {
	for _, event := range events {
		if err := ci.agg.Apply(ctx, event); err != nil {
			meta := event.Meta()
			return errors.Wrapf(err, "applyEvents: block %d log %d", meta.BlockNumber, meta.LogIndex)
		}
	}

	return nil
}

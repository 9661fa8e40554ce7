package abi

import (
	"math/big"
	"strings"

	"flowpay-indexer/aggregator"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const (
	EventPermissionGranted  = "PermissionGranted"
	EventPermissionRevoked  = "PermissionRevoked"
	EventDelegationExecuted = "DelegationExecuted"
	EventTransfer           = "Transfer"
)

// Event fragments of the delegation manager contract. Only the events
// are needed for decoding, so the full contract ABI is not embedded.
const delegationManagerABIJSON = `[
	{
		"type": "event",
		"name": "PermissionGranted",
		"inputs": [
			{"name": "granter", "type": "address", "indexed": true},
			{"name": "sessionAccount", "type": "address", "indexed": true},
			{"name": "context", "type": "bytes", "indexed": false},
			{"name": "expiry", "type": "uint256", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "PermissionRevoked",
		"inputs": [
			{"name": "granter", "type": "address", "indexed": true},
			{"name": "context", "type": "bytes", "indexed": false}
		]
	},
	{
		"type": "event",
		"name": "DelegationExecuted",
		"inputs": [
			{"name": "executor", "type": "address", "indexed": true},
			{"name": "to", "type": "address", "indexed": true},
			{"name": "context", "type": "bytes", "indexed": false},
			{"name": "value", "type": "uint256", "indexed": false}
		]
	}
]`

const erc20ABIJSON = `[
	{
		"type": "event",
		"name": "Transfer",
		"inputs": [
			{"name": "from", "type": "address", "indexed": true},
			{"name": "to", "type": "address", "indexed": true},
			{"name": "value", "type": "uint256", "indexed": false}
		]
	}
]`

var (
	DelegationManagerABI abi.ABI
	ERC20ABI             abi.ABI

	PermissionGrantedTopic  common.Hash
	PermissionRevokedTopic  common.Hash
	DelegationExecutedTopic common.Hash
	TransferTopic           common.Hash
)

func init() {
	var err error
	DelegationManagerABI, err = abi.JSON(strings.NewReader(delegationManagerABIJSON))
	if err != nil {
		panic(err)
	}
	ERC20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(err)
	}

	PermissionGrantedTopic = DelegationManagerABI.Events[EventPermissionGranted].ID
	PermissionRevokedTopic = DelegationManagerABI.Events[EventPermissionRevoked].ID
	DelegationExecutedTopic = DelegationManagerABI.Events[EventDelegationExecuted].ID
	TransferTopic = ERC20ABI.Events[EventTransfer].ID
}

// DelegationManagerTopics lists the first-topic filter for the
// delegation manager contract.
func DelegationManagerTopics() []common.Hash {
	return []common.Hash{PermissionGrantedTopic, PermissionRevokedTopic, DelegationExecutedTopic}
}

// ParseLog decodes a raw log into a typed event, or (nil, nil) when the
// log is none of the tracked events. The block timestamp is not part of
// the log itself and has to be supplied by the caller.
func ParseLog(log *types.Log, timestamp uint64) (aggregator.Event, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	meta := aggregator.EventMeta{
		BlockNumber: log.BlockNumber,
		Timestamp:   timestamp,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
	}

	switch log.Topics[0] {
	case PermissionGrantedTopic:
		return parsePermissionGranted(log, meta)
	case PermissionRevokedTopic:
		return parsePermissionRevoked(log, meta)
	case DelegationExecutedTopic:
		return parseDelegationExecuted(log, meta)
	case TransferTopic:
		return parseTransfer(log, meta)
	default:
		return nil, nil
	}
}

func parsePermissionGranted(log *types.Log, meta aggregator.EventMeta) (aggregator.Event, error) {
	if len(log.Topics) != 3 {
		return nil, errors.Errorf("PermissionGranted: expected 3 topics, got %d", len(log.Topics))
	}

	values, err := DelegationManagerABI.Events[EventPermissionGranted].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "PermissionGranted: unpack")
	}

	context, okCtx := values[0].([]byte)
	expiry, okExp := values[1].(*big.Int)
	if !okCtx || !okExp {
		return nil, errors.New("PermissionGranted: unexpected data layout")
	}

	return &aggregator.PermissionGranted{
		EventMeta:      meta,
		Granter:        common.BytesToAddress(log.Topics[1].Bytes()),
		SessionAccount: common.BytesToAddress(log.Topics[2].Bytes()),
		Context:        context,
		Expiry:         expiry.Uint64(),
	}, nil
}

func parsePermissionRevoked(log *types.Log, meta aggregator.EventMeta) (aggregator.Event, error) {
	if len(log.Topics) != 2 {
		return nil, errors.Errorf("PermissionRevoked: expected 2 topics, got %d", len(log.Topics))
	}

	values, err := DelegationManagerABI.Events[EventPermissionRevoked].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "PermissionRevoked: unpack")
	}

	context, ok := values[0].([]byte)
	if !ok {
		return nil, errors.New("PermissionRevoked: unexpected data layout")
	}

	return &aggregator.PermissionRevoked{
		EventMeta: meta,
		Granter:   common.BytesToAddress(log.Topics[1].Bytes()),
		Context:   context,
	}, nil
}

func parseDelegationExecuted(log *types.Log, meta aggregator.EventMeta) (aggregator.Event, error) {
	if len(log.Topics) != 3 {
		return nil, errors.Errorf("DelegationExecuted: expected 3 topics, got %d", len(log.Topics))
	}

	values, err := DelegationManagerABI.Events[EventDelegationExecuted].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "DelegationExecuted: unpack")
	}

	context, okCtx := values[0].([]byte)
	value, okVal := values[1].(*big.Int)
	if !okCtx || !okVal {
		return nil, errors.New("DelegationExecuted: unexpected data layout")
	}

	return &aggregator.DelegationExecuted{
		EventMeta: meta,
		Context:   context,
		Executor:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:        common.BytesToAddress(log.Topics[2].Bytes()),
		Value:     value,
	}, nil
}

func parseTransfer(log *types.Log, meta aggregator.EventMeta) (aggregator.Event, error) {
	// ERC-721 shares the Transfer signature but indexes the token id as
	// a fourth topic; those are not token transfers.
	if len(log.Topics) != 3 {
		return nil, nil
	}

	values, err := ERC20ABI.Events[EventTransfer].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, errors.Wrap(err, "Transfer: unpack")
	}

	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("Transfer: unexpected data layout")
	}

	return &aggregator.Transfer{
		EventMeta: meta,
		From:      common.BytesToAddress(log.Topics[1].Bytes()),
		To:        common.BytesToAddress(log.Topics[2].Bytes()),
		Value:     value,
	}, nil
}

package abi

import (
	"math/big"
	"testing"

	"flowpay-indexer/aggregator"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testGranter  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSession  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testReceiver = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testTxHash   = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000deadbeef")
	testContext  = []byte{0x01, 0x02, 0x03, 0x04}
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func TestParsePermissionGranted(t *testing.T) {
	data, err := DelegationManagerABI.Events[EventPermissionGranted].Inputs.NonIndexed().Pack(
		testContext, big.NewInt(1_700_000_000),
	)
	require.NoError(t, err)

	log := &types.Log{
		Topics:      []common.Hash{PermissionGrantedTopic, addressTopic(testGranter), addressTopic(testSession)},
		Data:        data,
		BlockNumber: 42,
		TxHash:      testTxHash,
		Index:       7,
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)

	granted, ok := event.(*aggregator.PermissionGranted)
	require.True(t, ok)
	assert.Equal(t, testGranter, granted.Granter)
	assert.Equal(t, testSession, granted.SessionAccount)
	assert.Equal(t, testContext, granted.Context)
	assert.Equal(t, uint64(1_700_000_000), granted.Expiry)
	assert.Equal(t, uint64(42), granted.BlockNumber)
	assert.Equal(t, uint64(1234), granted.Timestamp)
	assert.Equal(t, uint(7), granted.LogIndex)
	assert.Equal(t, testTxHash, granted.TxHash)
}

func TestParsePermissionRevoked(t *testing.T) {
	data, err := DelegationManagerABI.Events[EventPermissionRevoked].Inputs.NonIndexed().Pack(testContext)
	require.NoError(t, err)

	log := &types.Log{
		Topics:      []common.Hash{PermissionRevokedTopic, addressTopic(testGranter)},
		Data:        data,
		BlockNumber: 43,
		TxHash:      testTxHash,
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)

	revoked, ok := event.(*aggregator.PermissionRevoked)
	require.True(t, ok)
	assert.Equal(t, testGranter, revoked.Granter)
	assert.Equal(t, testContext, revoked.Context)
}

func TestParseDelegationExecuted(t *testing.T) {
	value, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	data, err := DelegationManagerABI.Events[EventDelegationExecuted].Inputs.NonIndexed().Pack(testContext, value)
	require.NoError(t, err)

	log := &types.Log{
		Topics:      []common.Hash{DelegationExecutedTopic, addressTopic(testGranter), addressTopic(testReceiver)},
		Data:        data,
		BlockNumber: 44,
		TxHash:      testTxHash,
		Index:       2,
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)

	executed, ok := event.(*aggregator.DelegationExecuted)
	require.True(t, ok)
	assert.Equal(t, testGranter, executed.Executor)
	assert.Equal(t, testReceiver, executed.To)
	assert.Equal(t, testContext, executed.Context)
	assert.Equal(t, value.String(), executed.Value.String())
}

func TestParseTransfer(t *testing.T) {
	data, err := ERC20ABI.Events[EventTransfer].Inputs.NonIndexed().Pack(big.NewInt(5_000_000))
	require.NoError(t, err)

	log := &types.Log{
		Topics:      []common.Hash{TransferTopic, addressTopic(testGranter), addressTopic(testReceiver)},
		Data:        data,
		BlockNumber: 45,
		TxHash:      testTxHash,
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)

	transfer, ok := event.(*aggregator.Transfer)
	require.True(t, ok)
	assert.Equal(t, testGranter, transfer.From)
	assert.Equal(t, testReceiver, transfer.To)
	assert.Equal(t, "5000000", transfer.Value.String())
}

func TestParseTransferSkipsERC721(t *testing.T) {
	// Same signature with the token id as a fourth, indexed topic.
	log := &types.Log{
		Topics: []common.Hash{
			TransferTopic,
			addressTopic(testGranter),
			addressTopic(testReceiver),
			common.BigToHash(big.NewInt(1)),
		},
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseLogIgnoresUnknownTopics(t *testing.T) {
	log := &types.Log{
		Topics: []common.Hash{common.HexToHash("0x01")},
	}

	event, err := ParseLog(log, 1234)
	require.NoError(t, err)
	assert.Nil(t, event)

	event, err = ParseLog(&types.Log{}, 1234)
	require.NoError(t, err)
	assert.Nil(t, event)
}

package aggregator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventMeta carries the block and transaction provenance shared by all
// decoded events. Events are delivered in ascending (block number, log
// index) order.
type EventMeta struct {
	BlockNumber uint64
	Timestamp   uint64
	TxHash      common.Hash
	LogIndex    uint
}

func (m EventMeta) Meta() EventMeta {
	return m
}

// Event is one decoded on-chain log.
type Event interface {
	Meta() EventMeta
}

// PermissionGranted is emitted by the delegation manager when a granter
// delegates spending authority to a session account. Context is the
// opaque identifier naming this permission instance.
type PermissionGranted struct {
	EventMeta
	Granter        common.Address
	SessionAccount common.Address
	Context        []byte
	Expiry         uint64
}

// PermissionRevoked is emitted when the permission named by Context is
// revoked by its granter.
type PermissionRevoked struct {
	EventMeta
	Granter common.Address
	Context []byte
}

// DelegationExecuted is emitted for every delegated transfer executed
// against the permission named by Context.
type DelegationExecuted struct {
	EventMeta
	Context  []byte
	Executor common.Address
	To       common.Address
	Value    *big.Int
}

// Transfer is a raw ERC-20 transfer of the payment token, independent of
// the delegation system.
type Transfer struct {
	EventMeta
	From  common.Address
	To    common.Address
	Value *big.Int
}

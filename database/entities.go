package database

import (
	"time"
)

const (
	PermissionStatusActive  = "active"
	PermissionStatusRevoked = "revoked"

	PermissionTypePeriodic = "periodic"
	PermissionTypeStream   = "stream"

	// AnalyticsID is the fixed key of the single global Analytics row.
	AnalyticsID = "global"
)

// BaseEntity is an abstract entity, all other entities should be derived from it
type BaseEntity struct {
	ID uint64 `gorm:"primaryKey"`
}

type State struct {
	BaseEntity
	Name           string `gorm:"type:varchar(50);index"`
	Index          uint64
	BlockTimestamp uint64
	Updated        time.Time
}

// Permission is one granted delegation of spending authority, keyed by
// the opaque context id assigned at grant time. The token address and
// the type-specific terms are not present in the raw grant event and
// stay at their zero values until an external enrichment step fills
// them in.
type Permission struct {
	ID              string `gorm:"primaryKey;type:varchar(514)"`
	GrantedAt       uint64
	Granter         string `gorm:"type:varchar(42);index"`
	SessionAccount  string `gorm:"type:varchar(42)"`
	TokenAddress    string `gorm:"type:varchar(42)"`
	PermissionType  string `gorm:"type:varchar(10)"`
	PeriodAmount    *BigInt
	PeriodDuration  *uint64
	AmountPerSecond *BigInt
	MaxAmount       *BigInt
	Expiry          uint64
	Status          string `gorm:"type:varchar(10);index"`
	CreatedAtBlock  uint64
	CreatedAtTx     string `gorm:"type:varchar(66)"`
}

// Payment is one executed delegated transfer, keyed by transaction hash
// and log index so multiple executions in one transaction stay distinct.
// Rows are immutable once created.
type Payment struct {
	ID              string `gorm:"primaryKey;type:varchar(80)"`
	PermissionID    string `gorm:"type:varchar(514);index"`
	ExecutedAt      uint64
	From            string  `gorm:"column:from_address;type:varchar(42);index"`
	To              string  `gorm:"column:to_address;type:varchar(42);index"`
	Amount          *BigInt `gorm:"not null"`
	TokenAddress    string  `gorm:"type:varchar(42)"`
	TransactionHash string  `gorm:"type:varchar(66)"`
	BlockNumber     uint64
}

// User holds per-address rolling statistics, keyed by the lowercase
// address and lazily created on first observed activity.
type User struct {
	ID                      string `gorm:"primaryKey;type:varchar(42)"`
	TotalPermissionsGranted uint64
	ActivePermissions       uint64
	TotalPaymentsSent       uint64
	TotalPaymentsReceived   uint64
	TotalVolumeSent         *BigInt `gorm:"not null"`
	TotalVolumeReceived     *BigInt `gorm:"not null"`
	FirstActivityAt         uint64
	LastActivityAt          uint64
}

// DailyStats is a per-UTC-calendar-day rollup keyed by the ISO date
// string (YYYY-MM-DD) of the event's block timestamp.
type DailyStats struct {
	ID                 string `gorm:"primaryKey;type:varchar(10)"`
	Date               uint64
	PermissionsGranted uint64
	PermissionsRevoked uint64
	PaymentsExecuted   uint64
	Volume             *BigInt `gorm:"not null"`
	UniqueUsers        uint64
}

// Analytics is the global singleton row, keyed by AnalyticsID.
type Analytics struct {
	ID                string `gorm:"primaryKey;type:varchar(10)"`
	TotalPermissions  uint64
	ActivePermissions uint64
	TotalPayments     uint64
	TotalVolume       *BigInt `gorm:"not null"`
	UniqueUsers       uint64
	LastUpdated       uint64
}

func (s *State) UpdateIndex(newIndex, blockTimestamp uint64) {
	s.Index = newIndex
	s.Updated = time.Now()
	s.BlockTimestamp = blockTimestamp
}

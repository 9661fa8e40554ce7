package aggregator

import (
	"context"

	"flowpay-indexer/database"
)

// MemStore is an in-memory EntityStore with the same get/set semantics
// as the database-backed one. Rows are copied on both get and set so a
// caller mutating a returned row cannot bypass SetX. Used by tests and
// dry runs.
type MemStore struct {
	permissions map[string]*database.Permission
	payments    map[string]*database.Payment
	users       map[string]*database.User
	dailyStats  map[string]*database.DailyStats
	analytics   *database.Analytics
}

func NewMemStore() *MemStore {
	return &MemStore{
		permissions: make(map[string]*database.Permission),
		payments:    make(map[string]*database.Payment),
		users:       make(map[string]*database.User),
		dailyStats:  make(map[string]*database.DailyStats),
	}
}

func (m *MemStore) Permission(_ context.Context, id string) (*database.Permission, error) {
	row, ok := m.permissions[id]
	if !ok {
		return nil, nil
	}
	return copyPermission(row), nil
}

func (m *MemStore) SetPermission(_ context.Context, row *database.Permission) error {
	m.permissions[row.ID] = copyPermission(row)
	return nil
}

func (m *MemStore) Payment(id string) *database.Payment {
	return m.payments[id]
}

func (m *MemStore) Payments() int {
	return len(m.payments)
}

func (m *MemStore) SetPayment(_ context.Context, row *database.Payment) error {
	cp := *row
	cp.Amount = database.NewBigInt(row.Amount.Int())
	m.payments[row.ID] = &cp
	return nil
}

func (m *MemStore) User(_ context.Context, id string) (*database.User, error) {
	row, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(row), nil
}

func (m *MemStore) SetUser(_ context.Context, row *database.User) error {
	m.users[row.ID] = copyUser(row)
	return nil
}

func (m *MemStore) DailyStats(_ context.Context, id string) (*database.DailyStats, error) {
	row, ok := m.dailyStats[id]
	if !ok {
		return nil, nil
	}
	return copyDailyStats(row), nil
}

func (m *MemStore) SetDailyStats(_ context.Context, row *database.DailyStats) error {
	m.dailyStats[row.ID] = copyDailyStats(row)
	return nil
}

func (m *MemStore) Analytics(_ context.Context) (*database.Analytics, error) {
	if m.analytics == nil {
		return nil, nil
	}
	return copyAnalytics(m.analytics), nil
}

func (m *MemStore) SetAnalytics(_ context.Context, row *database.Analytics) error {
	m.analytics = copyAnalytics(row)
	return nil
}

func copyPermission(row *database.Permission) *database.Permission {
	cp := *row
	if row.PeriodAmount != nil {
		cp.PeriodAmount = database.NewBigInt(row.PeriodAmount.Int())
	}
	if row.AmountPerSecond != nil {
		cp.AmountPerSecond = database.NewBigInt(row.AmountPerSecond.Int())
	}
	if row.MaxAmount != nil {
		cp.MaxAmount = database.NewBigInt(row.MaxAmount.Int())
	}
	return &cp
}

func copyUser(row *database.User) *database.User {
	cp := *row
	cp.TotalVolumeSent = database.NewBigInt(row.TotalVolumeSent.Int())
	cp.TotalVolumeReceived = database.NewBigInt(row.TotalVolumeReceived.Int())
	return &cp
}

func copyDailyStats(row *database.DailyStats) *database.DailyStats {
	cp := *row
	cp.Volume = database.NewBigInt(row.Volume.Int())
	return &cp
}

func copyAnalytics(row *database.Analytics) *database.Analytics {
	cp := *row
	cp.TotalVolume = database.NewBigInt(row.TotalVolume.Int())
	return &cp
}

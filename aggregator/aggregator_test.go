package aggregator

import (
	"context"
	"math/big"
	"testing"

	"flowpay-indexer/database"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	granterAddr  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	sessionAddr  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	receiverAddr = common.HexToAddress("0x3333333333333333333333333333333333333333")

	contextC1 = []byte{0xab, 0xcd, 0x01}
)

func meta(block uint64, timestamp uint64, logIndex uint) EventMeta {
	return EventMeta{
		BlockNumber: block,
		Timestamp:   timestamp,
		TxHash:      common.HexToHash("0xeeff00000000000000000000000000000000000000000000000000000000aa01"),
		LogIndex:    logIndex,
	}
}

func grant(timestamp uint64) *PermissionGranted {
	return &PermissionGranted{
		EventMeta:      meta(10, timestamp, 0),
		Granter:        granterAddr,
		SessionAccount: sessionAddr,
		Context:        contextC1,
		Expiry:         timestamp + 7*24*3600,
	}
}

func revoke(timestamp uint64) *PermissionRevoked {
	return &PermissionRevoked{
		EventMeta: meta(12, timestamp, 0),
		Granter:   granterAddr,
		Context:   contextC1,
	}
}

func execute(timestamp uint64, logIndex uint, value int64) *DelegationExecuted {
	return &DelegationExecuted{
		EventMeta: meta(11, timestamp, logIndex),
		Context:   contextC1,
		Executor:  granterAddr,
		To:        receiverAddr,
		Value:     big.NewInt(value),
	}
}

func TestGrantExecuteRevokeScenario(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	require.NoError(t, agg.Apply(ctx, grant(1000)))
	require.NoError(t, agg.Apply(ctx, execute(2000, 3, 5_000_000)))
	require.NoError(t, agg.Apply(ctx, revoke(3000)))

	permission, err := store.Permission(ctx, "0xabcd01")
	require.NoError(t, err)
	require.NotNil(t, permission)
	assert.Equal(t, database.PermissionStatusRevoked, permission.Status)
	assert.Equal(t, uint64(1000), permission.GrantedAt)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", permission.Granter)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", permission.SessionAccount)
	assert.Equal(t, database.PermissionTypePeriodic, permission.PermissionType)
	assert.Empty(t, permission.TokenAddress)

	analytics, err := store.Analytics(ctx)
	require.NoError(t, err)
	require.NotNil(t, analytics)
	assert.Equal(t, uint64(1), analytics.TotalPermissions)
	assert.Equal(t, uint64(0), analytics.ActivePermissions)
	assert.Equal(t, uint64(1), analytics.TotalPayments)
	assert.Equal(t, "5000000", analytics.TotalVolume.String())
	assert.Equal(t, uint64(3000), analytics.LastUpdated)

	granter, err := store.User(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.NotNil(t, granter)
	assert.Equal(t, uint64(1), granter.TotalPermissionsGranted)
	assert.Equal(t, uint64(0), granter.ActivePermissions)
	assert.Equal(t, uint64(1), granter.TotalPaymentsSent)
	assert.Equal(t, "5000000", granter.TotalVolumeSent.String())
	assert.Equal(t, uint64(1000), granter.FirstActivityAt)
	assert.Equal(t, uint64(3000), granter.LastActivityAt)

	receiver, err := store.User(ctx, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	require.NotNil(t, receiver)
	assert.Equal(t, uint64(1), receiver.TotalPaymentsReceived)
	assert.Equal(t, "5000000", receiver.TotalVolumeReceived.String())
	assert.Equal(t, uint64(2000), receiver.FirstActivityAt)
	assert.Equal(t, uint64(2000), receiver.LastActivityAt)

	payment := store.Payment("0xeeff00000000000000000000000000000000000000000000000000000000aa01-3")
	require.NotNil(t, payment)
	assert.Equal(t, "0xabcd01", payment.PermissionID)
	assert.Equal(t, "5000000", payment.Amount.String())
	assert.Equal(t, uint64(11), payment.BlockNumber)
}

func TestVolumeIsExactSumOfPayments(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	// Amounts beyond the float64 integer range must accumulate exactly.
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	total := new(big.Int)
	for i := 0; i < 5; i++ {
		ev := execute(2000+uint64(i), uint(i), 0)
		ev.Value = new(big.Int).Add(huge, big.NewInt(int64(i)))
		total.Add(total, ev.Value)
		require.NoError(t, agg.Apply(ctx, ev))
	}

	analytics, err := store.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, total.String(), analytics.TotalVolume.String())
	assert.Equal(t, uint64(5), analytics.TotalPayments)
	assert.Equal(t, 5, store.Payments())
}

func TestRevokeCountersFloorAtZero(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	// Revoke without any grant: no permission row, but counters run.
	require.NoError(t, agg.Apply(ctx, revoke(1000)))

	analytics, err := store.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), analytics.ActivePermissions)

	user, err := store.User(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint64(0), user.ActivePermissions)

	permission, err := store.Permission(ctx, "0xabcd01")
	require.NoError(t, err)
	assert.Nil(t, permission)
}

func TestRevokeReplayIsNotIdempotentForCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	// Two grants, then the same revoke twice. The permission row stays
	// revoked, but the second replay decrements the counters again.
	require.NoError(t, agg.Apply(ctx, grant(1000)))
	second := grant(1100)
	second.Context = []byte{0xab, 0xcd, 0x02}
	require.NoError(t, agg.Apply(ctx, second))

	require.NoError(t, agg.Apply(ctx, revoke(2000)))
	require.NoError(t, agg.Apply(ctx, revoke(2100)))

	permission, err := store.Permission(ctx, "0xabcd01")
	require.NoError(t, err)
	assert.Equal(t, database.PermissionStatusRevoked, permission.Status)

	analytics, err := store.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), analytics.TotalPermissions)
	assert.Equal(t, uint64(0), analytics.ActivePermissions)

	day, err := store.DailyStats(ctx, DateKey(2000))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), day.PermissionsRevoked)
}

func TestDailyBucketing(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	// 2024-03-15T00:00:01Z and 2024-03-15T23:59:59Z share a bucket,
	// 2024-03-16T00:00:00Z starts a new one.
	const (
		startOfDay = 1710460801
		endOfDay   = 1710547199
		nextDay    = 1710547200
	)

	require.NoError(t, agg.Apply(ctx, grant(startOfDay)))
	require.NoError(t, agg.Apply(ctx, execute(endOfDay, 0, 100)))
	require.NoError(t, agg.Apply(ctx, revoke(nextDay)))

	day1, err := store.DailyStats(ctx, "2024-03-15")
	require.NoError(t, err)
	require.NotNil(t, day1)
	assert.Equal(t, uint64(1), day1.PermissionsGranted)
	assert.Equal(t, uint64(1), day1.PaymentsExecuted)
	assert.Equal(t, "100", day1.Volume.String())
	assert.Equal(t, uint64(0), day1.PermissionsRevoked)
	assert.Equal(t, uint64(startOfDay), day1.Date)

	day2, err := store.DailyStats(ctx, "2024-03-16")
	require.NoError(t, err)
	require.NotNil(t, day2)
	assert.Equal(t, uint64(1), day2.PermissionsRevoked)
	assert.Equal(t, uint64(0), day2.PermissionsGranted)
}

func TestFirstActivityLatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	require.NoError(t, agg.Apply(ctx, grant(1000)))
	second := grant(5000)
	second.Context = []byte{0xab, 0xcd, 0x02}
	require.NoError(t, agg.Apply(ctx, second))

	user, err := store.User(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), user.FirstActivityAt)
	assert.Equal(t, uint64(5000), user.LastActivityAt)
}

func TestTransferUpdatesKnownUsersOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	// granterAddr becomes known through the grant; receiverAddr is not.
	require.NoError(t, agg.Apply(ctx, grant(1000)))

	transfer := &Transfer{
		EventMeta: meta(20, 2000, 0),
		From:      granterAddr,
		To:        receiverAddr,
		Value:     big.NewInt(250),
	}
	require.NoError(t, agg.Apply(ctx, transfer))

	sender, err := store.User(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "250", sender.TotalVolumeSent.String())
	assert.Equal(t, uint64(2000), sender.LastActivityAt)
	// Advisory tracking only: no payment counter moves.
	assert.Equal(t, uint64(0), sender.TotalPaymentsSent)

	unknown, err := store.User(ctx, "0x3333333333333333333333333333333333333333")
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestTransferIgnoresMintAndBurn(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	require.NoError(t, agg.Apply(ctx, grant(1000)))

	mint := &Transfer{
		EventMeta: meta(20, 2000, 0),
		From:      common.Address{},
		To:        granterAddr,
		Value:     big.NewInt(100),
	}
	burn := &Transfer{
		EventMeta: meta(20, 2000, 1),
		From:      granterAddr,
		To:        common.Address{},
		Value:     big.NewInt(100),
	}
	require.NoError(t, agg.Apply(ctx, mint))
	require.NoError(t, agg.Apply(ctx, burn))

	user, err := store.User(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, "0", user.TotalVolumeSent.String())
	assert.Equal(t, "0", user.TotalVolumeReceived.String())
	assert.Equal(t, uint64(1000), user.LastActivityAt)
}

func TestNegativeAmountsAreRejected(t *testing.T) {
	ctx := context.Background()
	agg := New(NewMemStore())

	execution := execute(1000, 0, 0)
	execution.Value = big.NewInt(-1)
	assert.Error(t, agg.Apply(ctx, execution))

	transfer := &Transfer{
		EventMeta: meta(20, 2000, 0),
		From:      granterAddr,
		To:        receiverAddr,
		Value:     big.NewInt(-5),
	}
	assert.Error(t, agg.Apply(ctx, transfer))
}

func TestDuplicateGrantIsLastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	agg := New(store)

	require.NoError(t, agg.Apply(ctx, grant(1000)))
	replay := grant(4000)
	require.NoError(t, agg.Apply(ctx, replay))

	permission, err := store.Permission(ctx, "0xabcd01")
	require.NoError(t, err)
	assert.Equal(t, uint64(4000), permission.GrantedAt)
	assert.Equal(t, database.PermissionStatusActive, permission.Status)

	// No uniqueness check at this layer: counters move twice.
	analytics, err := store.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), analytics.TotalPermissions)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "1970-01-01", DateKey(0))
	assert.Equal(t, "2024-03-15", DateKey(1710460801))
	assert.Equal(t, "2024-03-15", DateKey(1710547199))
	assert.Equal(t, "2024-03-16", DateKey(1710547200))
}

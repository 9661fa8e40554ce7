package aggregator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"flowpay-indexer/database"
	"flowpay-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

// Aggregator folds decoded delegation and transfer events into the
// denormalized aggregate rows (Permission, Payment, User, DailyStats,
// Analytics). Events must be applied one at a time in (block number,
// log index) order; the rules hold no locks and rely on the caller for
// sequential delivery.
type Aggregator struct {
	store EntityStore
}

func New(store EntityStore) *Aggregator {
	return &Aggregator{store: store}
}

// Apply routes one event to its rule. Store errors propagate to the
// caller unwrapped in meaning; the aggregator itself never retries.
func (a *Aggregator) Apply(ctx context.Context, event Event) error {
	switch ev := event.(type) {
	case *PermissionGranted:
		return a.applyPermissionGranted(ctx, ev)
	case *PermissionRevoked:
		return a.applyPermissionRevoked(ctx, ev)
	case *DelegationExecuted:
		return a.applyDelegationExecuted(ctx, ev)
	case *Transfer:
		return a.applyTransfer(ctx, ev)
	default:
		return errors.Errorf("unknown event type %T", event)
	}
}

func (a *Aggregator) applyPermissionGranted(ctx context.Context, ev *PermissionGranted) error {
	granter := lowerAddress(ev.Granter)

	// The raw event only carries the core delegation fields. Token
	// address and the type-specific terms stay at placeholder values
	// until an out-of-band enrichment step reconciles them.
	permission := &database.Permission{
		ID:             contextID(ev.Context),
		GrantedAt:      ev.Timestamp,
		Granter:        granter,
		SessionAccount: lowerAddress(ev.SessionAccount),
		TokenAddress:   "",
		PermissionType: database.PermissionTypePeriodic,
		Expiry:         ev.Expiry,
		Status:         database.PermissionStatusActive,
		CreatedAtBlock: ev.BlockNumber,
		CreatedAtTx:    ev.TxHash.Hex(),
	}
	if err := a.store.SetPermission(ctx, permission); err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}

	analytics, err := a.getOrCreateAnalytics(ctx)
	if err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}
	analytics.TotalPermissions++
	analytics.ActivePermissions++
	analytics.LastUpdated = ev.Timestamp
	if err := a.store.SetAnalytics(ctx, analytics); err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}

	user, err := a.getOrCreateUser(ctx, granter)
	if err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}
	user.TotalPermissionsGranted++
	user.ActivePermissions++
	if user.FirstActivityAt == 0 {
		user.FirstActivityAt = ev.Timestamp
	}
	user.LastActivityAt = ev.Timestamp
	if err := a.store.SetUser(ctx, user); err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}

	day, err := a.getOrCreateDailyStats(ctx, ev.Timestamp)
	if err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}
	day.PermissionsGranted++
	if err := a.store.SetDailyStats(ctx, day); err != nil {
		return errors.Wrap(err, "applyPermissionGranted")
	}

	return nil
}

func (a *Aggregator) applyPermissionRevoked(ctx context.Context, ev *PermissionRevoked) error {
	permission, err := a.store.Permission(ctx, contextID(ev.Context))
	if err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}
	if permission != nil {
		permission.Status = database.PermissionStatusRevoked
		if err := a.store.SetPermission(ctx, permission); err != nil {
			return errors.Wrap(err, "applyPermissionRevoked")
		}
	}

	// The counters below run even when the permission row is missing or
	// already revoked. Replaying the same revoke therefore decrements
	// them twice while the row itself stays revoked; the upstream
	// driver commits state only after a full batch, so within one run
	// every log is applied exactly once.
	analytics, err := a.getOrCreateAnalytics(ctx)
	if err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}
	if analytics.ActivePermissions > 0 {
		analytics.ActivePermissions--
	}
	analytics.LastUpdated = ev.Timestamp
	if err := a.store.SetAnalytics(ctx, analytics); err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}

	user, err := a.getOrCreateUser(ctx, lowerAddress(ev.Granter))
	if err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}
	if user.ActivePermissions > 0 {
		user.ActivePermissions--
	}
	user.LastActivityAt = ev.Timestamp
	if err := a.store.SetUser(ctx, user); err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}

	day, err := a.getOrCreateDailyStats(ctx, ev.Timestamp)
	if err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}
	day.PermissionsRevoked++
	if err := a.store.SetDailyStats(ctx, day); err != nil {
		return errors.Wrap(err, "applyPermissionRevoked")
	}

	return nil
}

func (a *Aggregator) applyDelegationExecuted(ctx context.Context, ev *DelegationExecuted) error {
	if ev.Value == nil || ev.Value.Sign() < 0 {
		return errors.Errorf("invalid execution amount %v in tx %s", ev.Value, ev.TxHash)
	}

	sender := lowerAddress(ev.Executor)
	receiver := lowerAddress(ev.To)

	payment := &database.Payment{
		ID:              paymentID(ev.TxHash, ev.LogIndex),
		PermissionID:    contextID(ev.Context),
		ExecutedAt:      ev.Timestamp,
		From:            sender,
		To:              receiver,
		Amount:          database.NewBigInt(ev.Value),
		TokenAddress:    "",
		TransactionHash: ev.TxHash.Hex(),
		BlockNumber:     ev.BlockNumber,
	}
	if err := a.store.SetPayment(ctx, payment); err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}

	analytics, err := a.getOrCreateAnalytics(ctx)
	if err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}
	analytics.TotalPayments++
	analytics.TotalVolume = analytics.TotalVolume.Add(ev.Value)
	analytics.LastUpdated = ev.Timestamp
	if err := a.store.SetAnalytics(ctx, analytics); err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}

	senderUser, err := a.getOrCreateUser(ctx, sender)
	if err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}
	senderUser.TotalPaymentsSent++
	senderUser.TotalVolumeSent = senderUser.TotalVolumeSent.Add(ev.Value)
	senderUser.LastActivityAt = ev.Timestamp
	if err := a.store.SetUser(ctx, senderUser); err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}

	receiverUser, err := a.getOrCreateUser(ctx, receiver)
	if err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}
	receiverUser.TotalPaymentsReceived++
	receiverUser.TotalVolumeReceived = receiverUser.TotalVolumeReceived.Add(ev.Value)
	if receiverUser.FirstActivityAt == 0 {
		receiverUser.FirstActivityAt = ev.Timestamp
	}
	receiverUser.LastActivityAt = ev.Timestamp
	if err := a.store.SetUser(ctx, receiverUser); err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}

	day, err := a.getOrCreateDailyStats(ctx, ev.Timestamp)
	if err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}
	day.PaymentsExecuted++
	day.Volume = day.Volume.Add(ev.Value)
	if err := a.store.SetDailyStats(ctx, day); err != nil {
		return errors.Wrap(err, "applyDelegationExecuted")
	}

	return nil
}

// applyTransfer tracks raw token movement for addresses that are already
// known users. It is advisory volume tracking: the transfer is not
// cross-referenced against active permissions, and unknown addresses
// never get a row created.
func (a *Aggregator) applyTransfer(ctx context.Context, ev *Transfer) error {
	if ev.Value == nil || ev.Value.Sign() < 0 {
		return errors.Errorf("invalid transfer amount %v in tx %s", ev.Value, ev.TxHash)
	}

	// Mint and burn transfers are not user activity.
	if ev.From == (common.Address{}) || ev.To == (common.Address{}) {
		return nil
	}

	logger.Debug("Token transfer: %s -> %s, amount: %s", lowerAddress(ev.From), lowerAddress(ev.To), ev.Value)

	sender, err := a.store.User(ctx, lowerAddress(ev.From))
	if err != nil {
		return errors.Wrap(err, "applyTransfer")
	}
	if sender != nil {
		sender.TotalVolumeSent = sender.TotalVolumeSent.Add(ev.Value)
		sender.LastActivityAt = ev.Timestamp
		if err := a.store.SetUser(ctx, sender); err != nil {
			return errors.Wrap(err, "applyTransfer")
		}
	}

	receiver, err := a.store.User(ctx, lowerAddress(ev.To))
	if err != nil {
		return errors.Wrap(err, "applyTransfer")
	}
	if receiver != nil {
		receiver.TotalVolumeReceived = receiver.TotalVolumeReceived.Add(ev.Value)
		receiver.LastActivityAt = ev.Timestamp
		if err := a.store.SetUser(ctx, receiver); err != nil {
			return errors.Wrap(err, "applyTransfer")
		}
	}

	return nil
}

func (a *Aggregator) getOrCreateAnalytics(ctx context.Context) (*database.Analytics, error) {
	row, err := a.store.Analytics(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &database.Analytics{
			ID:          database.AnalyticsID,
			TotalVolume: database.Zero(),
		}
	}

	return row, nil
}

func (a *Aggregator) getOrCreateUser(ctx context.Context, id string) (*database.User, error) {
	row, err := a.store.User(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &database.User{
			ID:                  id,
			TotalVolumeSent:     database.Zero(),
			TotalVolumeReceived: database.Zero(),
		}
	}

	return row, nil
}

func (a *Aggregator) getOrCreateDailyStats(ctx context.Context, timestamp uint64) (*database.DailyStats, error) {
	id := DateKey(timestamp)
	row, err := a.store.DailyStats(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &database.DailyStats{
			ID:     id,
			Date:   timestamp,
			Volume: database.Zero(),
		}
	}

	return row, nil
}

// DateKey buckets a unix timestamp into its UTC calendar day.
func DateKey(timestamp uint64) string {
	return time.Unix(int64(timestamp), 0).UTC().Format(time.DateOnly)
}

func contextID(context []byte) string {
	return hexutil.Encode(context)
}

func paymentID(txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s-%d", txHash.Hex(), logIndex)
}

func lowerAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

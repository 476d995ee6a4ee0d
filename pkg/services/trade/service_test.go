package trade

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/catalog"
	"github.com/fadedpez/crates/pkg/entities"
	accountRepo "github.com/fadedpez/crates/pkg/repositories/account"
	inventoryRepo "github.com/fadedpez/crates/pkg/repositories/inventory"
	tradeRepo "github.com/fadedpez/crates/pkg/repositories/trade"
	"github.com/fadedpez/crates/pkg/services/badge"
	"github.com/fadedpez/crates/pkg/services/ledger"
	"github.com/fadedpez/crates/pkg/services/reward"
)

type fixture struct {
	service   *Service
	ledger    *ledger.Service
	trades    *tradeRepo.MemoryRepository
	inventory *flakyInventory
	clock     *fakeClock
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time { return c.current }

func (c *fakeClock) advance(d time.Duration) { c.current = c.current.Add(d) }

// flakyInventory fails a set number of writes, then behaves normally
type flakyInventory struct {
	*inventoryRepo.MemoryRepository
	mu       sync.Mutex
	failures int
}

func (r *flakyInventory) arm(n int) {
	r.mu.Lock()
	r.failures = n
	r.mu.Unlock()
}

func (r *flakyInventory) UpsertEntry(ctx context.Context, entry *entities.InventoryEntry) error {
	r.mu.Lock()
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()
	if fail {
		return errors.New("store unavailable")
	}
	return r.MemoryRepository.UpsertEntry(ctx, entry)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	items := []entities.Item{
		{ID: "coin", Name: "Coin", Rarity: entities.RarityCommon, Value: 4, Limited: true},
		{ID: "gem", Name: "Gem", Rarity: entities.RarityRare, Value: 50, Limited: true},
		{ID: "medal", Name: "Medal", Rarity: entities.RarityEpic, Value: 100, Limited: false},
	}
	cases := []entities.CaseDefinition{
		{ID: "bronze", Name: "Bronze Case", Price: 10, Slots: []entities.CaseSlot{
			{ItemID: "coin", Probability: 60},
			{ItemID: "gem", Probability: 40},
		}},
	}
	cat, err := catalog.New(items, cases)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	inventory := &flakyInventory{MemoryRepository: inventoryRepo.NewMemoryRepository()}
	ledgerService := ledger.NewService(ledger.Config{
		Accounts:        accountRepo.NewMemoryRepository(),
		Inventory:       inventory,
		Catalog:         cat,
		Engine:          reward.NewEngine(reward.CryptoSource{}),
		Evaluator:       badge.NewEvaluator(nil),
		Logger:          logger,
		StartingBalance: 100,
	})

	trades := tradeRepo.NewMemoryRepository()
	clock := &fakeClock{current: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	service := NewService(Config{
		Trades:  trades,
		Ledger:  ledgerService,
		Catalog: cat,
		Logger:  logger,
		Expiry:  time.Hour,
		Now:     clock.now,
	})

	return &fixture{
		service:   service,
		ledger:    ledgerService,
		trades:    trades,
		inventory: inventory,
		clock:     clock,
	}
}

func (f *fixture) seedInventory(t *testing.T, playerID, itemID string, quantity int, sellPrice int64) {
	t.Helper()
	err := f.inventory.UpsertEntry(context.Background(), &entities.InventoryEntry{
		PlayerID:  playerID,
		ItemID:    itemID,
		Quantity:  quantity,
		SellPrice: sellPrice,
	})
	require.NoError(t, err)
}

func (f *fixture) propose(t *testing.T) *entities.Trade {
	t.Helper()
	f.seedInventory(t, "alice", "coin", 2, 3)
	f.seedInventory(t, "bob", "gem", 1, 37)

	trade, err := f.service.Propose(context.Background(), "alice", "bob",
		[]entities.ItemRef{{ItemID: "coin", Quantity: 2}},
		[]entities.ItemRef{{ItemID: "gem", Quantity: 1}})
	require.NoError(t, err)
	return trade
}

func TestProposeGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Propose(ctx, "alice", "alice",
		[]entities.ItemRef{{ItemID: "coin", Quantity: 1}}, nil)
	assert.True(t, types.IsCode(err, types.ErrSelfTrade))

	_, err = f.service.Propose(ctx, "alice", "bob", nil, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	// Offering items you do not hold fails the reservation
	_, err = f.service.Propose(ctx, "alice", "bob",
		[]entities.ItemRef{{ItemID: "coin", Quantity: 1}}, nil)
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	// Account-bound items are rejected before any reservation
	f.seedInventory(t, "alice", "medal", 1, 75)
	_, err = f.service.Propose(ctx, "alice", "bob",
		[]entities.ItemRef{{ItemID: "medal", Quantity: 1}}, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))
}

func TestProposeSnapshotsAndReserves(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)

	assert.Equal(t, entities.TradeStatusPending, trade.Status)
	assert.Equal(t, f.clock.current.Add(time.Hour), trade.ExpiresAt)

	// Item snapshots capture value and rarity at proposal time
	require.Len(t, trade.InitiatorItems, 1)
	assert.Equal(t, int64(4), trade.InitiatorItems[0].Value)
	assert.Equal(t, entities.RarityCommon, trade.InitiatorItems[0].Rarity)
	assert.Equal(t, int64(8), trade.InitiatorValue)
	assert.Equal(t, int64(50), trade.TargetValue)

	// The offered side is on hold, so a competing trade cannot claim it
	_, err := f.service.Propose(context.Background(), "alice", "carol",
		[]entities.ItemRef{{ItemID: "coin", Quantity: 1}}, nil)
	assert.True(t, types.IsCode(err, types.ErrAlreadyReserved))

	// The requested side is not reserved at proposal
	holds, err := f.inventory.GetReservationsForPlayer(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestAcceptCompletesSwap(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)
	ctx := context.Background()

	accepted, err := f.service.Accept(ctx, trade.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusCompleted, accepted.Status)
	assert.Equal(t, f.clock.current, accepted.CompletedAt)

	bobCoins, err := f.inventory.GetEntry(ctx, "bob", "coin")
	require.NoError(t, err)
	assert.Equal(t, 2, bobCoins.Quantity)

	aliceGems, err := f.inventory.GetEntry(ctx, "alice", "gem")
	require.NoError(t, err)
	assert.Equal(t, 1, aliceGems.Quantity)

	holds, err := f.inventory.GetReservationsForTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Empty(t, holds)

	// Terminal trades cannot be accepted again
	_, err = f.service.Accept(ctx, trade.ID, "bob")
	assert.True(t, types.IsCode(err, types.ErrInvalidState))
}

func TestAcceptActorGuard(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)

	_, err := f.service.Accept(context.Background(), trade.ID, "alice")
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	_, err = f.service.Accept(context.Background(), "no-such-trade", "bob")
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestAcceptStaleDeclines(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)
	ctx := context.Background()

	// Bob sells the requested gem before accepting; it was never on hold
	_, err := f.ledger.SellItem(ctx, "bob", "gem", 1)
	require.NoError(t, err)

	declined, err := f.service.Accept(ctx, trade.ID, "bob")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStaleTrade))
	require.NotNil(t, declined)
	assert.Equal(t, entities.TradeStatusDeclined, declined.Status)
	assert.NotEmpty(t, declined.Reason)

	// Alice's reservation is released so her coins are sellable again
	_, err = f.ledger.SellItem(ctx, "alice", "coin", 2)
	assert.NoError(t, err)
}

func TestDeclineAndCancelGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trade := f.propose(t)
	_, err := f.service.Decline(ctx, trade.ID, "alice")
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	declined, err := f.service.Decline(ctx, trade.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusDeclined, declined.Status)

	// Reservations freed on decline
	holds, err := f.inventory.GetReservationsForTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Empty(t, holds)

	trade = f.propose(t)
	_, err = f.service.Cancel(ctx, trade.ID, "bob")
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	cancelled, err := f.service.Cancel(ctx, trade.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusCancelled, cancelled.Status)
}

func TestAcceptExpiredTrade(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)
	ctx := context.Background()

	f.clock.advance(2 * time.Hour)

	_, err := f.service.Accept(ctx, trade.ID, "bob")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	stored, err := f.service.Get(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusExpired, stored.Status)

	// The hold is gone once expired
	_, err = f.ledger.SellItem(ctx, "alice", "coin", 2)
	assert.NoError(t, err)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.propose(t)

	// A later trade between other players, still inside its horizon after
	// the clock moves
	f.seedInventory(t, "carol", "gem", 1, 37)
	f.clock.advance(30 * time.Minute)
	second, err := f.service.Propose(ctx, "carol", "dave",
		[]entities.ItemRef{{ItemID: "gem", Quantity: 1}}, nil)
	require.NoError(t, err)

	f.clock.advance(45 * time.Minute)

	expired, err := f.service.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	stored, err := f.service.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusExpired, stored.Status)

	stored, err = f.service.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusPending, stored.Status)
}

func TestAcceptTransientSwapFailureKeepsTradePending(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)
	ctx := context.Background()

	f.inventory.arm(1)

	_, err := f.service.Accept(ctx, trade.ID, "bob")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConcurrencyConflict))

	// The trade is pending again, with the initiator's hold intact
	stored, err := f.service.Get(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusPending, stored.Status)

	_, err = f.ledger.SellItem(ctx, "alice", "coin", 2)
	assert.True(t, types.IsCode(err, types.ErrInsufficientInventory))

	// A retry goes through once the store recovers
	accepted, err := f.service.Accept(ctx, trade.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusCompleted, accepted.Status)

	bobCoins, err := f.inventory.GetEntry(ctx, "bob", "coin")
	require.NoError(t, err)
	assert.Equal(t, 2, bobCoins.Quantity)

	aliceGems, err := f.inventory.GetEntry(ctx, "alice", "gem")
	require.NoError(t, err)
	assert.Equal(t, 1, aliceGems.Quantity)
}

func TestCompletedTradeStaysCompleted(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)
	ctx := context.Background()

	_, err := f.service.Accept(ctx, trade.ID, "bob")
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, trade.ID, "alice")
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	_, err = f.service.Decline(ctx, trade.ID, "bob")
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	f.clock.advance(2 * time.Hour)
	_, err = f.service.Expire(ctx, trade.ID)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	expired, err := f.service.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)

	stored, err := f.service.Get(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TradeStatusCompleted, stored.Status)
}

func TestConcurrentAcceptAndCancel(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		f := newFixture(t)
		trade := f.propose(t)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.service.Accept(ctx, trade.ID, "bob")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.service.Cancel(ctx, trade.ID, "alice")
		}()
		wg.Wait()

		stored, err := f.service.Get(ctx, trade.ID)
		require.NoError(t, err)

		holds, err := f.inventory.GetReservationsForTrade(ctx, trade.ID)
		require.NoError(t, err)
		assert.Empty(t, holds)

		switch stored.Status {
		case entities.TradeStatusCompleted:
			bobCoins, err := f.inventory.GetEntry(ctx, "bob", "coin")
			require.NoError(t, err)
			assert.Equal(t, 2, bobCoins.Quantity)
			aliceGems, err := f.inventory.GetEntry(ctx, "alice", "gem")
			require.NoError(t, err)
			assert.Equal(t, 1, aliceGems.Quantity)
		case entities.TradeStatusCancelled:
			aliceCoins, err := f.inventory.GetEntry(ctx, "alice", "coin")
			require.NoError(t, err)
			assert.Equal(t, 2, aliceCoins.Quantity)
			bobGems, err := f.inventory.GetEntry(ctx, "bob", "gem")
			require.NoError(t, err)
			assert.Equal(t, 1, bobGems.Quantity)
		default:
			t.Fatalf("unexpected final status %q", stored.Status)
		}
	}
}

func TestExpireNotYetDue(t *testing.T) {
	f := newFixture(t)
	trade := f.propose(t)

	_, err := f.service.Expire(context.Background(), trade.ID)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))
}

package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/catalog"
	"github.com/fadedpez/crates/pkg/entities"
	"github.com/fadedpez/crates/pkg/events"
	mock_events "github.com/fadedpez/crates/pkg/events/mock"
	accountRepo "github.com/fadedpez/crates/pkg/repositories/account"
	inventoryRepo "github.com/fadedpez/crates/pkg/repositories/inventory"
	"github.com/fadedpez/crates/pkg/services/badge"
	"github.com/fadedpez/crates/pkg/services/reward"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	items := []entities.Item{
		{ID: "coin", Name: "Coin", Rarity: entities.RarityCommon, Value: 4, Limited: true},
		{ID: "gem", Name: "Gem", Rarity: entities.RarityRare, Value: 50, Limited: true},
		{ID: "relic", Name: "Relic", Rarity: entities.RarityLegendary, Value: 500, Limited: true},
		{ID: "medal", Name: "Medal", Rarity: entities.RarityEpic, Value: 100, Limited: false},
	}
	cases := []entities.CaseDefinition{
		{ID: "bronze", Name: "Bronze Case", Price: 10, Slots: []entities.CaseSlot{
			{ItemID: "coin", Probability: 60},
			{ItemID: "gem", Probability: 40},
		}},
		{ID: "golden", Name: "Golden Case", Price: 100, Slots: []entities.CaseSlot{
			{ItemID: "relic", Probability: 100},
		}},
	}

	cat, err := catalog.New(items, cases)
	require.NoError(t, err)
	return cat
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixedSource replays a canned sequence of samples, safe for concurrent use.
type fixedSource struct {
	mu      sync.Mutex
	samples []float64
	pos     int
}

func (s *fixedSource) Float64() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample := s.samples[s.pos%len(s.samples)]
	s.pos++
	return sample, nil
}

type fixture struct {
	service   *Service
	accounts  *accountRepo.MemoryRepository
	inventory *inventoryRepo.MemoryRepository
}

func newFixture(t *testing.T, src reward.Source, startingBalance int64, badges []*entities.Badge, sink events.Sink) *fixture {
	t.Helper()

	accounts := accountRepo.NewMemoryRepository()
	inventory := inventoryRepo.NewMemoryRepository()

	service := NewService(Config{
		Accounts:        accounts,
		Inventory:       inventory,
		Catalog:         testCatalog(t),
		Engine:          reward.NewEngine(src),
		Evaluator:       badge.NewEvaluator(badges),
		Sink:            sink,
		Logger:          quietLogger(),
		StartingBalance: startingBalance,
	})

	return &fixture{service: service, accounts: accounts, inventory: inventory}
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

func TestOpenCaseInsufficientFunds(t *testing.T) {
	f := newFixture(t, &fixedSource{samples: []float64{0.1}}, 5, nil, nil)
	ctx := context.Background()

	_, err := f.service.OpenCase(ctx, "player1", "bronze")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInsufficientFunds))

	// No mutation at all: balance untouched, nothing credited
	account, _, err := f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), account.Balance)
	assert.Equal(t, 0, account.Stats.GamesPlayed)

	inventory, err := f.service.GetInventory(ctx, "player1")
	require.NoError(t, err)
	assert.Empty(t, inventory)
}

func TestOpenCaseDebitsAndCredits(t *testing.T) {
	f := newFixture(t, &fixedSource{samples: []float64{0.1, 0.7}}, 100, nil, nil)
	ctx := context.Background()

	// First sample lands in the coin slot
	result, err := f.service.OpenCase(ctx, "player1", "bronze")
	require.NoError(t, err)
	assert.Equal(t, "coin", result.Item.ID)
	assert.Equal(t, int64(90), result.NewBalance)
	assert.False(t, result.Won) // coin value 4 is below the 10 price

	entry, err := f.inventory.GetEntry(ctx, "player1", "coin")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Quantity)
	assert.Equal(t, "Bronze Case", entry.ObtainedFrom)
	assert.Equal(t, int64(3), entry.SellPrice)

	// Second sample lands in the gem slot, which counts as a win
	result, err = f.service.OpenCase(ctx, "player1", "bronze")
	require.NoError(t, err)
	assert.Equal(t, "gem", result.Item.ID)
	assert.True(t, result.Won)
	assert.Equal(t, int64(80), result.NewBalance)

	account, _, err := f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.Equal(t, 2, account.Stats.GamesPlayed)
	assert.Equal(t, 1, account.Stats.Wins)
	assert.Equal(t, 1, account.Stats.WinStreak)
	assert.Equal(t, int64(20), account.Stats.TotalWagered)
	assert.Equal(t, int64(10), account.Stats.HighestBet)

	// The journal carries both debits
	transactions, err := f.service.GetTransactions(ctx, "player1", 10)
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
	assert.Equal(t, int64(-10), transactions[0].Amount)
}

func TestConcurrentOpensNeverOverspend(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	const attempts = 25
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.service.OpenCase(ctx, "player1", "bronze")
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, types.IsCode(err, types.ErrInsufficientFunds))
		}
	}

	// Balance 100 at price 10 funds exactly 10 opens
	assert.Equal(t, 10, successes)

	account, _, err := f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
	assert.Equal(t, 10, account.Stats.GamesPlayed)
}

func TestSellItemInsufficientInventory(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	_, err := f.service.SellItem(ctx, "player1", "gem", 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInsufficientInventory))

	// Holding less than requested also fails, with nothing changed
	f.seedInventory(t, "player1", "gem", 1, 37)
	_, err = f.service.SellItem(ctx, "player1", "gem", 2)
	assert.True(t, types.IsCode(err, types.ErrInsufficientInventory))

	entry, err := f.inventory.GetEntry(ctx, "player1", "gem")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Quantity)

	account, _, err := f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)
}

func TestSellItemCreditsProceeds(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "player1", "gem", 2, 37)

	result, err := f.service.SellItem(ctx, "player1", "gem", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(74), result.Proceeds)
	assert.Equal(t, int64(174), result.NewBalance)

	// The emptied stack is removed entirely
	_, err = f.inventory.GetEntry(ctx, "player1", "gem")
	assert.ErrorIs(t, err, inventoryRepo.ErrEntryNotFound)
}

func TestSellItemRejectsAccountBound(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	f.seedInventory(t, "player1", "medal", 1, 75)

	_, err := f.service.SellItem(context.Background(), "player1", "medal", 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInvalidState))
}

func TestReservationBlocksSellUntilReleased(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "player1", "gem", 1, 37)

	refs := []entities.ItemRef{{ItemID: "gem", Quantity: 1}}
	require.NoError(t, f.service.ReserveForTrade(ctx, "trade1", "player1", refs))

	_, err := f.service.SellItem(ctx, "player1", "gem", 1)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrInsufficientInventory))

	require.NoError(t, f.service.Release(ctx, "trade1"))

	_, err = f.service.SellItem(ctx, "player1", "gem", 1)
	assert.NoError(t, err)
}

func TestReserveForTradeGuards(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "player1", "gem", 1, 37)

	// Not owned at all
	err := f.service.ReserveForTrade(ctx, "trade1", "player1", []entities.ItemRef{{ItemID: "relic", Quantity: 1}})
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	// Owned in insufficient quantity
	err = f.service.ReserveForTrade(ctx, "trade1", "player1", []entities.ItemRef{{ItemID: "gem", Quantity: 2}})
	assert.True(t, types.IsCode(err, types.ErrOwnership))

	// Account-bound items never trade
	f.seedInventory(t, "player1", "medal", 1, 75)
	err = f.service.ReserveForTrade(ctx, "trade1", "player1", []entities.ItemRef{{ItemID: "medal", Quantity: 1}})
	assert.True(t, types.IsCode(err, types.ErrInvalidState))

	// First reservation holds the unit
	refs := []entities.ItemRef{{ItemID: "gem", Quantity: 1}}
	require.NoError(t, f.service.ReserveForTrade(ctx, "trade1", "player1", refs))

	// Re-reserving for the same trade is idempotent
	require.NoError(t, f.service.ReserveForTrade(ctx, "trade1", "player1", refs))

	// A different trade cannot hold the same unit
	err = f.service.ReserveForTrade(ctx, "trade2", "player1", refs)
	assert.True(t, types.IsCode(err, types.ErrAlreadyReserved))
}

func TestApplyTradeSwapConservesItems(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "alice", "coin", 2, 3)
	f.seedInventory(t, "bob", "gem", 1, 37)

	trade := &entities.Trade{ID: "trade1", InitiatorID: "alice", TargetID: "bob"}
	trade.SetInitiatorItems([]entities.TradeItem{{ItemID: "coin", Quantity: 2, Value: 4, Rarity: entities.RarityCommon}})
	trade.SetTargetItems([]entities.TradeItem{{ItemID: "gem", Quantity: 1, Value: 50, Rarity: entities.RarityRare}})

	require.NoError(t, f.service.ReserveForTrade(ctx, trade.ID, "alice", trade.InitiatorRefs()))
	require.NoError(t, f.service.ApplyTradeSwap(ctx, trade))

	// Alice's side moved to Bob and vice versa
	bobCoins, err := f.inventory.GetEntry(ctx, "bob", "coin")
	require.NoError(t, err)
	assert.Equal(t, 2, bobCoins.Quantity)
	assert.Equal(t, "trade", bobCoins.ObtainedFrom)

	aliceGems, err := f.inventory.GetEntry(ctx, "alice", "gem")
	require.NoError(t, err)
	assert.Equal(t, 1, aliceGems.Quantity)

	// Source stacks emptied out
	_, err = f.inventory.GetEntry(ctx, "alice", "coin")
	assert.ErrorIs(t, err, inventoryRepo.ErrEntryNotFound)
	_, err = f.inventory.GetEntry(ctx, "bob", "gem")
	assert.ErrorIs(t, err, inventoryRepo.ErrEntryNotFound)

	// Reservations are gone, total item count unchanged
	holds, err := f.inventory.GetReservationsForTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Empty(t, holds)

	aliceInv, _ := f.inventory.GetInventory(ctx, "alice")
	bobInv, _ := f.inventory.GetInventory(ctx, "bob")
	total := 0
	for _, e := range append(aliceInv, bobInv...) {
		total += e.Quantity
	}
	assert.Equal(t, 3, total)
}

func TestApplyTradeSwapStaleWithoutReservation(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "alice", "coin", 2, 3)
	f.seedInventory(t, "bob", "gem", 1, 37)

	trade := &entities.Trade{ID: "trade1", InitiatorID: "alice", TargetID: "bob"}
	trade.SetInitiatorItems([]entities.TradeItem{{ItemID: "coin", Quantity: 2, Value: 4, Rarity: entities.RarityCommon}})
	trade.SetTargetItems([]entities.TradeItem{{ItemID: "gem", Quantity: 1, Value: 50, Rarity: entities.RarityRare}})

	err := f.service.ApplyTradeSwap(ctx, trade)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStaleTrade))

	// Nothing moved
	aliceCoins, err := f.inventory.GetEntry(ctx, "alice", "coin")
	require.NoError(t, err)
	assert.Equal(t, 2, aliceCoins.Quantity)
}

func TestApplyTradeSwapStaleWhenTargetSold(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 100, nil, nil)
	ctx := context.Background()

	f.seedInventory(t, "alice", "coin", 2, 3)
	f.seedInventory(t, "bob", "gem", 1, 37)

	trade := &entities.Trade{ID: "trade1", InitiatorID: "alice", TargetID: "bob"}
	trade.SetInitiatorItems([]entities.TradeItem{{ItemID: "coin", Quantity: 2, Value: 4, Rarity: entities.RarityCommon}})
	trade.SetTargetItems([]entities.TradeItem{{ItemID: "gem", Quantity: 1, Value: 50, Rarity: entities.RarityRare}})
	require.NoError(t, f.service.ReserveForTrade(ctx, trade.ID, "alice", trade.InitiatorRefs()))

	// The requested item was never reserved, so the target can still sell it
	_, err := f.service.SellItem(ctx, "bob", "gem", 1)
	require.NoError(t, err)

	err = f.service.ApplyTradeSwap(ctx, trade)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStaleTrade))

	// Initiator side untouched by the failed swap
	aliceCoins, err := f.inventory.GetEntry(ctx, "alice", "coin")
	require.NoError(t, err)
	assert.Equal(t, 2, aliceCoins.Quantity)
}

func TestOpenCaseUnlocksBadgesAndPublishes(t *testing.T) {
	badges := []*entities.Badge{
		{Code: "first-win", Criteria: entities.BadgeCriteria{Type: entities.CriteriaWins, Value: 1}},
		{Code: "highroller", Criteria: entities.BadgeCriteria{Type: entities.CriteriaBet, Value: 100}},
		{Code: "the-hundred", Secret: true, Criteria: entities.BadgeCriteria{Type: entities.CriteriaSpecific, Value: 100}},
	}

	ctrl := gomock.NewController(t)
	sink := mock_events.NewMockSink(ctrl)
	sink.EXPECT().
		Publish(gomock.Any(), gomock.AssignableToTypeOf(events.CaseOpened{})).
		Return(nil).
		Times(1)
	sink.EXPECT().
		Publish(gomock.Any(), gomock.AssignableToTypeOf(events.BadgeUnlocked{})).
		Return(nil).
		Times(3)

	f := newFixture(t, reward.CryptoSource{}, 100, badges, sink)

	// The golden case always awards the relic, which counts as a win
	result, err := f.service.OpenCase(context.Background(), "player1", "golden")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first-win", "highroller", "the-hundred"}, result.UnlockedBadges)

	account, _, err := f.service.GetOrCreateAccount(context.Background(), "player1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first-win", "highroller", "the-hundred"}, account.Badges)
}

func TestGetOrCreateAccountStartingBalance(t *testing.T) {
	f := newFixture(t, reward.CryptoSource{}, 250, nil, nil)
	ctx := context.Background()

	account, created, err := f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(250), account.Balance)
	assert.Equal(t, 1, account.Stats.Level)

	_, created, err = f.service.GetOrCreateAccount(ctx, "player1")
	require.NoError(t, err)
	assert.False(t, created)
}

// gateSink blocks its first publish until released, so a test can observe
// what else proceeds while an event is in flight.
type gateSink struct {
	once    sync.Once
	release chan struct{}
}

func (s *gateSink) Publish(ctx context.Context, event events.Event) error {
	blocked := false
	s.once.Do(func() { blocked = true })
	if blocked {
		<-s.release
	}
	return nil
}

func TestPublishRunsOutsidePlayerLock(t *testing.T) {
	sink := &gateSink{release: make(chan struct{})}
	f := newFixture(t, &fixedSource{samples: []float64{0.1}}, 100, nil, sink)
	ctx := context.Background()

	opened := make(chan error, 1)
	go func() {
		_, err := f.service.OpenCase(ctx, "player1", "bronze")
		opened <- err
	}()

	// The mutation is committed before the publish starts
	require.Eventually(t, func() bool {
		entry, err := f.inventory.GetEntry(ctx, "player1", "coin")
		return err == nil && entry.Quantity == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The player lock is free while the open's event is still in flight
	sold := make(chan error, 1)
	go func() {
		_, err := f.service.SellItem(ctx, "player1", "coin", 1)
		sold <- err
	}()
	select {
	case err := <-sold:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sell blocked behind an in-flight publish")
	}

	close(sink.release)
	require.NoError(t, <-opened)
}

package ledger

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/entities"
	inventoryRepo "github.com/fadedpez/crates/pkg/repositories/inventory"
)

// swapPlan stages inventory mutations for a trade swap so both transfers
// commit together. Entries are loaded once, mutated in memory, then written;
// a write failure restores everything already written.
type swapPlan struct {
	repo         inventoryRepo.Repository
	sellPriceFor func(item entities.TradeItem) int64
	entries      map[string]*planEntry
	order        []string
}

type planEntry struct {
	entry  *entities.InventoryEntry
	before *entities.InventoryEntry // nil when the stack did not exist
}

func newSwapPlan(repo inventoryRepo.Repository, sellPriceFor func(item entities.TradeItem) int64) *swapPlan {
	return &swapPlan{
		repo:         repo,
		sellPriceFor: sellPriceFor,
		entries:      make(map[string]*planEntry),
	}
}

func planKey(playerID, itemID string) string {
	return playerID + "/" + itemID
}

// load returns the staged entry for a player's stack, fetching it on first
// use. Missing stacks stage as zero-quantity entries.
func (p *swapPlan) load(ctx context.Context, playerID, itemID string) (*entities.InventoryEntry, error) {
	key := planKey(playerID, itemID)
	if staged, ok := p.entries[key]; ok {
		return staged.entry, nil
	}

	entry, err := p.repo.GetEntry(ctx, playerID, itemID)
	if err != nil {
		if !errors.Is(err, inventoryRepo.ErrEntryNotFound) {
			return nil, types.WrapError(types.ErrConcurrencyConflict, "loading inventory", err)
		}
		p.entries[key] = &planEntry{
			entry: &entities.InventoryEntry{PlayerID: playerID, ItemID: itemID},
		}
		p.order = append(p.order, key)
		return p.entries[key].entry, nil
	}

	beforeCopy := *entry
	p.entries[key] = &planEntry{entry: entry, before: &beforeCopy}
	p.order = append(p.order, key)
	return entry, nil
}

// move stages the transfer of one trade line from one player to the other.
func (p *swapPlan) move(ctx context.Context, fromID, toID string, item entities.TradeItem) error {
	from, err := p.load(ctx, fromID, item.ItemID)
	if err != nil {
		return err
	}
	if from.Quantity < item.Quantity {
		return types.NewErrorf(types.ErrStaleTrade,
			"player %s no longer owns %d of item %q", fromID, item.Quantity, item.ItemID)
	}
	from.Quantity -= item.Quantity

	to, err := p.load(ctx, toID, item.ItemID)
	if err != nil {
		return err
	}
	to.Quantity += item.Quantity
	to.SellPrice = p.sellPriceFor(item)
	to.ObtainedFrom = "trade"

	return nil
}

// commit writes every staged entry. On failure, entries already written are
// restored to their pre-swap state so no one-sided transfer survives.
func (p *swapPlan) commit(ctx context.Context, logger *logrus.Logger) error {
	written := make([]string, 0, len(p.order))

	for _, key := range p.order {
		staged := p.entries[key]
		if err := p.repo.UpsertEntry(ctx, staged.entry); err != nil {
			p.restore(ctx, written, logger)
			return types.WrapError(types.ErrConcurrencyConflict, "committing swap", err)
		}
		written = append(written, key)
	}

	return nil
}

func (p *swapPlan) restore(ctx context.Context, written []string, logger *logrus.Logger) {
	for _, key := range written {
		staged := p.entries[key]
		original := staged.before
		if original == nil {
			// Stack did not exist before the swap; a zero quantity deletes it
			original = &entities.InventoryEntry{
				PlayerID: staged.entry.PlayerID,
				ItemID:   staged.entry.ItemID,
			}
		}
		if err := p.repo.UpsertEntry(ctx, original); err != nil {
			logger.WithError(err).
				WithField("player_id", staged.entry.PlayerID).
				WithField("item_id", staged.entry.ItemID).
				Error("restoring inventory after failed swap also failed")
		}
	}
}

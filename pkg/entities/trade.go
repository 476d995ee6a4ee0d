package entities

import "time"

// TradeStatus represents the lifecycle state of a trade
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusDeclined  TradeStatus = "declined"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusExpired   TradeStatus = "expired"
)

// IsTerminal reports whether no further transition is possible from the
// status. Pending and accepted are the only non-terminal states.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case TradeStatusCompleted, TradeStatusDeclined, TradeStatusCancelled, TradeStatusExpired:
		return true
	}
	return false
}

// TradeItem is an item reference inside a trade with its value and rarity
// snapshotted at proposal time. Later catalog changes never affect a trade
// already proposed.
type TradeItem struct {
	ItemID   string
	Quantity int
	Value    int64  // per-unit value at proposal time
	Rarity   Rarity // rarity at proposal time
}

// Trade represents a two-party item exchange offer.
type Trade struct {
	ID             string
	InitiatorID    string
	TargetID       string
	InitiatorItems []TradeItem
	TargetItems    []TradeItem
	InitiatorValue int64 // total snapshotted value of InitiatorItems
	TargetValue    int64 // total snapshotted value of TargetItems
	Status         TradeStatus
	Reason         string // set when the trade is declined by the system
	CreatedAt      time.Time
	RespondedAt    time.Time
	CompletedAt    time.Time
	ExpiresAt      time.Time
}

// SetInitiatorItems replaces the initiator's side and recomputes its total.
// Totals are never mutated independently of the item list.
func (t *Trade) SetInitiatorItems(items []TradeItem) {
	t.InitiatorItems = items
	t.InitiatorValue = totalValue(items)
}

// SetTargetItems replaces the target's side and recomputes its total.
func (t *Trade) SetTargetItems(items []TradeItem) {
	t.TargetItems = items
	t.TargetValue = totalValue(items)
}

// SellValue returns the buy-back price derived from the snapshotted value,
// for items that have left the catalog since proposal.
func (t TradeItem) SellValue() int64 {
	return sellValue(t.Value)
}

func totalValue(items []TradeItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Value * int64(it.Quantity)
	}
	return total
}

// IsExpired reports whether the trade's offer horizon has passed. Pure time
// comparison; the sweep that applies the transition lives outside the entity.
func (t *Trade) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// InitiatorRefs returns the initiator items as plain references.
func (t *Trade) InitiatorRefs() []ItemRef {
	return toRefs(t.InitiatorItems)
}

// TargetRefs returns the target items as plain references.
func (t *Trade) TargetRefs() []ItemRef {
	return toRefs(t.TargetItems)
}

func toRefs(items []TradeItem) []ItemRef {
	refs := make([]ItemRef, 0, len(items))
	for _, it := range items {
		refs = append(refs, ItemRef{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	return refs
}

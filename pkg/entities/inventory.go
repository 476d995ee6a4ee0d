package entities

import "time"

// InventoryEntry represents one stack of a single item in a player's
// inventory. Entries exist only while quantity is positive; the ledger is the
// sole writer.
type InventoryEntry struct {
	PlayerID     string
	ItemID       string
	Quantity     int
	SellPrice    int64  // derived from the catalog item, at most its value
	ObtainedFrom string // provenance: case name or "trade"
	UpdatedAt    time.Time
}

// ItemRef identifies a quantity of a single item, used by trade proposals
// and reservations.
type ItemRef struct {
	ItemID   string
	Quantity int
}

// Reservation represents a temporary hold on inventory units while a trade
// referencing them is pending. Released on any terminal trade transition.
type Reservation struct {
	TradeID   string
	PlayerID  string
	ItemID    string
	Quantity  int
	CreatedAt time.Time
}

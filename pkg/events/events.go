package events

import (
	"context"

	"github.com/fadedpez/crates/pkg/entities"
)

// Event is a domain event emitted after a successful terminal operation.
type Event interface {
	// Name returns the event's wire name.
	Name() string
}

// CaseOpened is emitted after a case open commits.
type CaseOpened struct {
	PlayerID   string         `json:"player_id"`
	CaseID     string         `json:"case_id"`
	Item       *entities.Item `json:"item"`
	NewBalance int64          `json:"new_balance"`
}

func (CaseOpened) Name() string { return "caseOpened" }

// ItemSold is emitted after a sale commits.
type ItemSold struct {
	PlayerID   string         `json:"player_id"`
	Item       *entities.Item `json:"item"`
	Quantity   int            `json:"quantity"`
	SellPrice  int64          `json:"sell_price"`
	NewBalance int64          `json:"new_balance"`
}

func (ItemSold) Name() string { return "itemSold" }

// TradeCompleted is emitted after a trade swap commits.
type TradeCompleted struct {
	TradeID     string `json:"trade_id"`
	InitiatorID string `json:"initiator_id"`
	TargetID    string `json:"target_id"`
}

func (TradeCompleted) Name() string { return "tradeCompleted" }

// BadgeUnlocked is emitted once per newly unlocked badge.
type BadgeUnlocked struct {
	PlayerID  string `json:"player_id"`
	BadgeCode string `json:"badge_code"`
}

func (BadgeUnlocked) Name() string { return "badgeUnlocked" }

//go:generate mockgen -source=$GOFILE -destination=mock/sink.go -package=mock_events

// Sink receives domain events after the operation that produced them has
// committed. Delivery is fire-and-forget: a sink error never rolls back the
// operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// Multi fans an event out to several sinks, returning the first error after
// attempting all of them.
type Multi []Sink

// Publish delivers the event to every sink.
func (m Multi) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

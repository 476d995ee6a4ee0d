package entities

// Rarity represents an item's rarity tier
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityMythic    Rarity = "mythic"
)

var rarityOrder = map[Rarity]int{
	RarityCommon:    0,
	RarityUncommon:  1,
	RarityRare:      2,
	RarityEpic:      3,
	RarityLegendary: 4,
	RarityMythic:    5,
}

// Tier returns the ordinal position of the rarity, common first.
// Unknown rarities return -1.
func (r Rarity) Tier() int {
	tier, ok := rarityOrder[r]
	if !ok {
		return -1
	}
	return tier
}

// IsValid reports whether the rarity is one of the six known tiers.
func (r Rarity) IsValid() bool {
	_, ok := rarityOrder[r]
	return ok
}

// Item represents an immutable catalog entry that can be awarded from cases.
// Limited items can be sold back and traded; everything else is bound to the
// account that received it.
type Item struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Rarity  Rarity `yaml:"rarity"`
	Value   int64  `yaml:"value"`
	Limited bool   `yaml:"limited"`
}

// sellValue is the buy-back price for one unit at the given value. Item and
// TradeItem both derive their sell prices from it so the ratio cannot drift.
func sellValue(value int64) int64 {
	return value * 3 / 4
}

// SellValue returns the buy-back price for one unit. It is always at most
// the catalog value.
func (i *Item) SellValue() int64 {
	return sellValue(i.Value)
}

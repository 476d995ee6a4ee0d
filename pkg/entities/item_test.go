package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRarityTier(t *testing.T) {
	assert.Equal(t, 0, RarityCommon.Tier())
	assert.Equal(t, 2, RarityRare.Tier())
	assert.Equal(t, 5, RarityMythic.Tier())
	assert.Equal(t, -1, Rarity("shiny").Tier())
}

func TestRarityIsValid(t *testing.T) {
	for _, r := range []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary, RarityMythic} {
		assert.True(t, r.IsValid(), string(r))
	}
	assert.False(t, Rarity("").IsValid())
	assert.False(t, Rarity("shiny").IsValid())
}

func TestSellValueRoundsDown(t *testing.T) {
	tests := []struct {
		value int64
		want  int64
	}{
		{0, 0},
		{1, 0},
		{4, 3},
		{100, 75},
		{101, 75},
		{500, 375},
	}
	for _, tt := range tests {
		item := Item{Value: tt.value}
		assert.Equal(t, tt.want, item.SellValue())

		// Snapshot and catalog prices derive from the same ratio
		snapshot := TradeItem{Value: tt.value}
		assert.Equal(t, item.SellValue(), snapshot.SellValue())
	}
}

func TestProbabilitiesValid(t *testing.T) {
	def := CaseDefinition{Slots: []CaseSlot{
		{ItemID: "a", Probability: 60},
		{ItemID: "b", Probability: 40},
	}}
	assert.True(t, def.ProbabilitiesValid())
	assert.Equal(t, 100.0, def.ProbabilitySum())

	// Floating point dust within the epsilon still passes
	def.Slots[1].Probability = 40 + 1e-9
	assert.True(t, def.ProbabilitiesValid())

	def.Slots[1].Probability = 39
	assert.False(t, def.ProbabilitiesValid())

	def.Slots[1].Probability = -1
	assert.False(t, def.ProbabilitiesValid())
}

func TestAccountCloneIsDeep(t *testing.T) {
	account := &PlayerAccount{
		PlayerID: "player1",
		Balance:  100,
		Badges:   []string{"veteran"},
	}

	clone := account.Clone()
	clone.Balance = 50
	clone.Badges[0] = "other"

	assert.Equal(t, int64(100), account.Balance)
	assert.Equal(t, "veteran", account.Badges[0])
	assert.True(t, account.HasBadge("veteran"))
	assert.False(t, account.HasBadge("other"))
}

func TestSnapshotCarriesLastWager(t *testing.T) {
	account := &PlayerAccount{
		PlayerID: "player1",
		Balance:  90,
		Stats:    PlayerStats{GamesPlayed: 3, Wins: 1, TotalWagered: 30, HighestBet: 10, Level: 1},
	}

	snap := account.Snapshot(10)
	assert.Equal(t, int64(10), snap.LastWager)
	assert.Equal(t, int64(90), snap.Balance)
	assert.Equal(t, 3, snap.GamesPlayed)

	assert.Zero(t, account.Snapshot(0).LastWager)
}

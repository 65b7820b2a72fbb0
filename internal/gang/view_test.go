package gang

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ganger/internal/ledger"
)

func ptr(s string) *string { return &s }

func sampleRoster() (Gang, []Fighter, []Vehicle, []Equipment, []Effect) {
	g := Gang{ID: "g", Credits: 100, Rating: 0, StashValue: 0}
	fighters := []Fighter{
		{ID: "leader", Cost: 120, Status: ledger.StatusActive},
		{ID: "ganger", Cost: 50, Status: ledger.StatusRecovering},
		{ID: "prisoner", Cost: 80, Status: ledger.StatusCaptured},
	}
	vehicles := []Vehicle{
		{ID: "wolf", FighterID: ptr("leader"), BaseCost: 40},
		{ID: "cart", FighterID: ptr("prisoner"), BaseCost: 30},
		{ID: "spare", BaseCost: 25},
	}
	equipment := []Equipment{
		{ID: "lasgun", FighterID: ptr("leader"), PurchaseCost: 15},
		{ID: "ram", VehicleID: ptr("wolf"), PurchaseCost: 10},
		{ID: "harpoon", VehicleID: ptr("spare"), PurchaseCost: 5},
		{ID: "stub", PurchaseCost: 7},
	}
	effects := []Effect{
		{ID: "adv", FighterID: ptr("leader"), EffectType: EffectAdvancement, CreditsIncrease: 20},
		{ID: "dent", VehicleID: ptr("wolf"), EffectType: EffectVehicleDamage, CreditsIncrease: -5},
		{ID: "scar", FighterID: ptr("prisoner"), EffectType: EffectInjury, CreditsIncrease: 10},
	}
	return g, fighters, vehicles, equipment, effects
}

func TestAssembleViewValues(t *testing.T) {
	view := assembleView(sampleRoster())

	require.Len(t, view.Fighters, 3)
	leader := view.Fighters[0]
	// 120 cost + 15 lasgun + 20 advancement + wolf (40 + 10 ram - 5 dent)
	assert.Equal(t, int64(200), leader.Value)
	assert.Equal(t, "rating", leader.Placement)
	require.Len(t, leader.Vehicles, 1)
	assert.Equal(t, int64(45), leader.Vehicles[0].Value)

	prisoner := view.Fighters[2]
	assert.Equal(t, int64(120), prisoner.Value)
	assert.Equal(t, "none", prisoner.Placement)

	require.Len(t, view.Vehicles, 1)
	assert.Equal(t, "spare", view.Vehicles[0].ID)
	assert.Equal(t, int64(30), view.Vehicles[0].Value)

	require.Len(t, view.Stash, 1)
	assert.Equal(t, "stub", view.Stash[0].ID)
}

func TestRosterTotals(t *testing.T) {
	view := assembleView(sampleRoster())
	got := rosterTotals(view)
	want := ledger.State{
		Credits: 100,
		Rating:  200 + 50, // leader + recovering ganger; the captive counts for nothing
		Stash:   30 + 7,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("roster totals mismatch (-want +got):\n%s", diff)
	}
}

func TestRosterTotalsFloorNegativeValues(t *testing.T) {
	fighters := []Fighter{{ID: "f", Cost: 10, Status: ledger.StatusActive}}
	effects := []Effect{{ID: "crippled", FighterID: ptr("f"), EffectType: EffectInjury, CreditsIncrease: -30}}
	view := assembleView(Gang{ID: "g", Credits: 5}, fighters, nil, nil, effects)
	require.Equal(t, int64(-20), view.Fighters[0].Value)

	got := rosterTotals(view)
	assert.Equal(t, ledger.State{Credits: 5}, got)
	assert.True(t, ledger.Drift(ledger.State{Credits: 5}, got).IsZero())
}

func TestAssembleViewEmptySlices(t *testing.T) {
	view := assembleView(Gang{ID: "g"}, nil, nil, nil, nil)
	assert.NotNil(t, view.Fighters)
	assert.NotNil(t, view.Vehicles)
	assert.NotNil(t, view.Stash)
	assert.Equal(t, ledger.State{}, rosterTotals(view))
}

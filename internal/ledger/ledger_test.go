package ledger

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Captured ")
	require.NoError(t, err)
	assert.Equal(t, StatusCaptured, s)
	assert.False(t, s.Active())

	_, err = ParseStatus("on-holiday")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestStatusActivity(t *testing.T) {
	active := []Status{StatusActive, StatusRecovering}
	inactive := []Status{StatusCaptured, StatusKilled, StatusRetired, StatusEnslaved, StatusStarved}
	for _, s := range active {
		assert.True(t, s.Active(), s)
		assert.Equal(t, PlacementRating, FighterPlacement(s))
	}
	for _, s := range inactive {
		assert.False(t, s.Active(), s)
		assert.Equal(t, PlacementNone, FighterPlacement(s))
	}
	assert.False(t, Status("ghost").Active())
}

func TestHeldPlacement(t *testing.T) {
	active, killed := StatusActive, StatusKilled
	assert.Equal(t, PlacementStash, HeldPlacement(nil))
	assert.Equal(t, PlacementRating, HeldPlacement(&active))
	assert.Equal(t, PlacementNone, HeldPlacement(&killed))
}

func TestApplyFloorsValuations(t *testing.T) {
	got, err := Apply(State{Credits: 10, Rating: 5, Stash: 3}, Delta{Rating: -20, Stash: -4})
	require.NoError(t, err)
	if diff := cmp.Diff(State{Credits: 10, Rating: 0, Stash: 0}, got); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(10), got.Wealth())
}

func TestApplyRejectsOverspend(t *testing.T) {
	start := State{Credits: 30, Rating: 100}
	got, err := Apply(start, Delta{Credits: -31})
	require.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, start, got)
}

func TestSellVehicleByPlacement(t *testing.T) {
	const cost, sell = 120, 60
	tests := []struct {
		name string
		p    Placement
		want Delta
	}{
		{"unassigned", PlacementStash, Delta{Credits: sell, Stash: -cost}},
		{"active fighter", PlacementRating, Delta{Credits: sell, Rating: -cost}},
		{"inactive fighter", PlacementNone, Delta{Credits: sell}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sold(cost, sell, tc.p)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPurchaseUnassignedKeepsWealth(t *testing.T) {
	start := State{Credits: 100, Rating: 50}
	d, err := Purchased(40, 40, PlacementStash)
	require.NoError(t, err)
	got, err := Apply(start, d)
	require.NoError(t, err)
	assert.Equal(t, State{Credits: 60, Rating: 50, Stash: 40}, got)
	assert.Equal(t, start.Wealth(), got.Wealth())
}

func TestBuyAssignSellRoundTrip(t *testing.T) {
	s := State{Credits: 100, Rating: 50}
	steps := []Delta{
		mustDelta(t)(Purchased(40, 40, PlacementStash)),
		Moved(40, PlacementStash, PlacementRating),
		mustDelta(t)(Sold(40, 40, PlacementRating)),
	}
	wants := []State{
		{Credits: 60, Rating: 50, Stash: 40},
		{Credits: 60, Rating: 90, Stash: 0},
		{Credits: 100, Rating: 50, Stash: 0},
	}
	for i, d := range steps {
		var err error
		s, err = Apply(s, d)
		require.NoError(t, err)
		assert.Equal(t, wants[i], s, "step %d", i)
		assert.Equal(t, int64(150), s.Wealth(), "step %d", i)
	}
}

func TestAdvancementRoundTrip(t *testing.T) {
	start := State{Credits: 0, Rating: 200}
	added, err := Apply(start, EffectAdded(PlacementRating, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(210), added.Rating)
	assert.Equal(t, int64(0), added.Credits)

	removed, err := Apply(added, EffectRemoved(PlacementRating, 10))
	require.NoError(t, err)
	assert.Equal(t, start, removed)
}

func TestAdvancementRemovalFloorsRating(t *testing.T) {
	got, err := Apply(State{Rating: 5}, EffectRemoved(PlacementRating, 20))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Rating)
}

func TestApplyRejectsOverflow(t *testing.T) {
	start := State{Credits: 100, Rating: 50}

	got, err := Apply(start, EffectAdded(PlacementRating, math.MaxInt64))
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.Equal(t, start, got)

	near := State{Credits: 100, Rating: MaxTotal - 5}
	_, err = Apply(near, EffectAdded(PlacementRating, 10))
	require.ErrorIs(t, err, ErrAmountOutOfRange)

	_, err = Apply(State{Credits: MaxTotal}, Delta{Credits: 1})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)
}

func TestLargeAdvancementRoundTrip(t *testing.T) {
	start := State{Credits: 100, Rating: 50}
	added, err := Apply(start, EffectAdded(PlacementRating, MaxAmount))
	require.NoError(t, err)
	removed, err := Apply(added, EffectRemoved(PlacementRating, MaxAmount))
	require.NoError(t, err)
	assert.Equal(t, start, removed)
}

func TestOversizedAmounts(t *testing.T) {
	_, err := Sold(0, math.MaxInt64, PlacementStash)
	require.ErrorIs(t, err, ErrAmountOutOfRange)
	assert.NotErrorIs(t, err, ErrInsufficientCredits)

	_, err = Purchased(MaxAmount+1, 0, PlacementStash)
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	assert.NoError(t, CheckAmount(-MaxAmount))
	assert.ErrorIs(t, CheckAmount(math.MinInt64), ErrAmountOutOfRange)
}

func TestFloor(t *testing.T) {
	assert.Equal(t, State{Credits: -1, Rating: 0, Stash: 7}, Floor(State{Credits: -1, Rating: -30, Stash: 7}))
}

func TestMoved(t *testing.T) {
	assert.Equal(t, Delta{}, Moved(50, PlacementRating, PlacementRating))
	assert.Equal(t, Delta{Rating: -50}, Moved(50, PlacementRating, PlacementNone))
	assert.Equal(t, Delta{Stash: -50, Rating: 50}, Moved(50, PlacementStash, PlacementRating))
}

func TestVehicleCost(t *testing.T) {
	assert.Equal(t, int64(155), VehicleCost(100, []int64{30, 20}, []int64{10, -5}))
	assert.Equal(t, int64(100), VehicleCost(100, nil, nil))
}

func TestNegativeAmountsRejected(t *testing.T) {
	_, err := Purchased(-1, 10, PlacementStash)
	assert.ErrorIs(t, err, ErrNegativeAmount)
	_, err = Sold(10, -1, PlacementStash)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestDrift(t *testing.T) {
	stored := State{Credits: 100, Rating: 80, Stash: 10}
	computed := State{Credits: 100, Rating: 95, Stash: 0}
	d := Drift(stored, computed)
	assert.Equal(t, Delta{Rating: 15, Stash: -10}, d)
	got, err := Apply(stored, d)
	require.NoError(t, err)
	assert.Equal(t, computed, got)
}

func mustDelta(t *testing.T) func(Delta, error) Delta {
	return func(d Delta, err error) Delta {
		t.Helper()
		require.NoError(t, err)
		return d
	}
}

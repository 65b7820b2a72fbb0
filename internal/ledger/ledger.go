// Package ledger holds the gang financial rules: how each roster change moves
// value between credits, rating and the stash, and how a delta is applied to a
// gang's stored totals. It does no I/O.
package ledger

import (
	"errors"
	"fmt"
)

const (
	// MaxAmount bounds a single price, sale value or credits increase.
	MaxAmount int64 = 1_000_000_000
	// MaxTotal bounds each stored total. Three of them still sum inside int64,
	// which keeps the wealth column from overflowing.
	MaxTotal int64 = 1_000_000_000_000_000
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidStatus       = errors.New("invalid fighter status")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAmountOutOfRange    = errors.New("amount out of range")
)

// Delta is a signed change to a gang's stored totals. Wealth has no field on
// purpose: it is always credits + rating + stash.
type Delta struct {
	Credits int64 `json:"credits"`
	Rating  int64 `json:"rating"`
	Stash   int64 `json:"stash"`
}

func (d Delta) Add(o Delta) Delta {
	return Delta{
		Credits: d.Credits + o.Credits,
		Rating:  d.Rating + o.Rating,
		Stash:   d.Stash + o.Stash,
	}
}

func (d Delta) Neg() Delta {
	return Delta{Credits: -d.Credits, Rating: -d.Rating, Stash: -d.Stash}
}

func (d Delta) IsZero() bool {
	return d.Credits == 0 && d.Rating == 0 && d.Stash == 0
}

// State is a snapshot of a gang's stored totals.
type State struct {
	Credits int64 `json:"credits"`
	Rating  int64 `json:"rating"`
	Stash   int64 `json:"stash_value"`
}

func (s State) Wealth() int64 {
	return s.Credits + s.Rating + s.Stash
}

// Apply returns the state after d. Credits are spendable currency and may not
// go negative; rating and stash are valuations and are floored at zero. A
// delta that would push any total past MaxTotal is rejected, never wrapped.
func Apply(s State, d Delta) (State, error) {
	for _, v := range []int64{d.Credits, d.Rating, d.Stash} {
		if v > MaxTotal || v < -MaxTotal {
			return s, fmt.Errorf("%w: delta %d exceeds %d", ErrAmountOutOfRange, v, MaxTotal)
		}
	}
	credits, ok1 := addChecked(s.Credits, d.Credits)
	rating, ok2 := addChecked(s.Rating, d.Rating)
	stash, ok3 := addChecked(s.Stash, d.Stash)
	if !ok1 || !ok2 || !ok3 || credits > MaxTotal || rating > MaxTotal || stash > MaxTotal {
		return s, fmt.Errorf("%w: totals would exceed %d", ErrAmountOutOfRange, MaxTotal)
	}
	if credits < 0 {
		return s, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, s.Credits, -d.Credits)
	}
	return State{Credits: credits, Rating: floor(rating), Stash: floor(stash)}, nil
}

// Floor clamps rating and stash at zero the way Apply does.
func Floor(s State) State {
	return State{Credits: s.Credits, Rating: floor(s.Rating), Stash: floor(s.Stash)}
}

func addChecked(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

// CheckAmount reports whether a signed amount is within MaxAmount either way.
func CheckAmount(v int64) error {
	if v > MaxAmount || v < -MaxAmount {
		return fmt.Errorf("%w: %d exceeds %d", ErrAmountOutOfRange, v, MaxAmount)
	}
	return nil
}

// Drift is the delta that moves stored onto computed.
func Drift(stored, computed State) Delta {
	return Delta{
		Credits: computed.Credits - stored.Credits,
		Rating:  computed.Rating - stored.Rating,
		Stash:   computed.Stash - stored.Stash,
	}
}

// Value books v in the bucket for p.
func Value(p Placement, v int64) Delta {
	switch p {
	case PlacementRating:
		return Delta{Rating: v}
	case PlacementStash:
		return Delta{Stash: v}
	default:
		return Delta{}
	}
}

// EffectAdded covers advancements, injuries, power boosts and vehicle damage.
// They are paid for with XP or kills, never credits.
func EffectAdded(p Placement, creditsIncrease int64) Delta {
	return Value(p, creditsIncrease)
}

func EffectRemoved(p Placement, creditsIncrease int64) Delta {
	return Value(p, -creditsIncrease)
}

// Purchased charges paid credits and books value where the item lands. Paid
// and value differ when a purchase is discounted or marked up.
func Purchased(paid, value int64, p Placement) (Delta, error) {
	if paid < 0 || value < 0 {
		return Delta{}, ErrNegativeAmount
	}
	if paid > MaxAmount {
		return Delta{}, CheckAmount(paid)
	}
	return Delta{Credits: -paid}.Add(Value(p, value)), nil
}

// Sold credits sellValue and removes value from wherever the item was booked.
// An item on an inactive fighter was in neither bucket, so only credits move.
func Sold(value, sellValue int64, p Placement) (Delta, error) {
	if value < 0 || sellValue < 0 {
		return Delta{}, ErrNegativeAmount
	}
	if sellValue > MaxAmount {
		return Delta{}, CheckAmount(sellValue)
	}
	return Delta{Credits: sellValue}.Add(Value(p, -value)), nil
}

// Moved transfers value between buckets without touching credits.
func Moved(value int64, from, to Placement) Delta {
	if from == to {
		return Delta{}
	}
	return Value(from, -value).Add(Value(to, value))
}

// VehicleCost is the full value of a vehicle: hull, fitted gear and the credits
// increase of every effect on it.
func VehicleCost(base int64, equipment, effects []int64) int64 {
	total := base
	for _, c := range equipment {
		total += c
	}
	for _, c := range effects {
		total += c
	}
	return total
}

func floor(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

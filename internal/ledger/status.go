package ledger

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusRecovering Status = "recovering"
	StatusCaptured   Status = "captured"
	StatusKilled     Status = "killed"
	StatusRetired    Status = "retired"
	StatusEnslaved   Status = "enslaved"
	StatusStarved    Status = "starved"
)

// countsTowardRating is the single source of truth for which fighter statuses
// keep a fighter's value (and the value of their gear and vehicles) in the gang
// rating. A captured fighter is off the roster until rescued or ransomed.
var countsTowardRating = map[Status]bool{
	StatusActive:     true,
	StatusRecovering: true,
	StatusCaptured:   false,
	StatusKilled:     false,
	StatusRetired:    false,
	StatusEnslaved:   false,
	StatusStarved:    false,
}

func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if _, ok := countsTowardRating[s]; !ok {
		return "", fmt.Errorf("%w: unknown fighter status %q", ErrInvalidStatus, v)
	}
	return s, nil
}

func (s Status) Valid() bool {
	_, ok := countsTowardRating[s]
	return ok
}

func (s Status) Active() bool {
	return countsTowardRating[s]
}

// Placement is where an item's value is booked on the gang.
type Placement int

const (
	PlacementStash Placement = iota
	PlacementRating
	PlacementNone
)

func (p Placement) String() string {
	switch p {
	case PlacementStash:
		return "stash"
	case PlacementRating:
		return "rating"
	default:
		return "none"
	}
}

// FighterPlacement books a fighter's own value by status.
func FighterPlacement(status Status) Placement {
	if status.Active() {
		return PlacementRating
	}
	return PlacementNone
}

// HeldPlacement classifies gear or a vehicle. A nil holder status means the
// item sits unassigned in the stash.
func HeldPlacement(holder *Status) Placement {
	if holder == nil {
		return PlacementStash
	}
	return FighterPlacement(*holder)
}

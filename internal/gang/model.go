package gang

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ganger/internal/ledger"
)

const (
	EffectAdvancement   = "advancement"
	EffectInjury        = "injury"
	EffectPowerBoost    = "power_boost"
	EffectVehicleDamage = "vehicle_damage"

	// SystemUser is the actor recorded for worker-initiated writes.
	SystemUser = "system"

	maxNameLen   = 64
	maxPageLimit = 200
)

var (
	ErrNotFound             = errors.New("not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInsufficientCredits  = ledger.ErrInsufficientCredits
	ErrAmountOutOfRange     = ledger.ErrAmountOutOfRange
	ErrInsufficientXP       = errors.New("insufficient xp")
	ErrInsufficientKills    = errors.New("insufficient kills")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
	ErrIdempotencyMismatch  = errors.New("idempotency key reused with a different request")
	ErrTxConflict           = errors.New("transaction conflict, retry")
	ErrInvalidInput         = errors.New("invalid input")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validateName(kind, name string) (string, error) {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "", invalidf("%s name is required", kind)
	}
	if len(clean) > maxNameLen {
		return "", invalidf("%s name too long (max %d chars)", kind, maxNameLen)
	}
	return clean, nil
}

func validateID(kind, id string) (string, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return "", invalidf("bad %s id %q", kind, id)
	}
	return id, nil
}

// optionalID treats nil and "" as absent.
func optionalID(kind string, id *string) (*string, error) {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil, nil
	}
	clean, err := validateID(kind, *id)
	if err != nil {
		return nil, err
	}
	return &clean, nil
}

func validateCost(kind string, v int64) error {
	if v < 0 {
		return invalidf("%s must not be negative", kind)
	}
	if v > ledger.MaxAmount {
		return invalidf("%s must be at most %d", kind, ledger.MaxAmount)
	}
	return nil
}

// validateSigned bounds amounts that may go either way, like damage that
// lowers a vehicle's value or a manual credit removal.
func validateSigned(kind string, v int64) error {
	if ledger.CheckAmount(v) != nil {
		return invalidf("%s must be between %d and %d", kind, -ledger.MaxAmount, ledger.MaxAmount)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

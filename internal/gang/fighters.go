package gang

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ganger/internal/cache"
	"ganger/internal/ledger"
)

func (s *Service) HireFighter(ctx context.Context, in HireFighterInput) (Result, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return Result{}, err
	}
	if in.Name, err = validateName("fighter", in.Name); err != nil {
		return Result{}, err
	}
	if err := validateCost("cost", in.Cost); err != nil {
		return Result{}, err
	}
	in.FighterType = strings.TrimSpace(in.FighterType)

	m := mutation{action: "hire_fighter", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO gang.fighters (id, gang_id, name, fighter_type, cost, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, g.id, in.Name, in.FighterType, in.Cost, string(ledger.StatusActive)); err != nil {
			return change{}, fmt.Errorf("insert fighter: %w", err)
		}
		delta, err := ledger.Purchased(in.Cost, in.Cost, ledger.FighterPlacement(ledger.StatusActive))
		if err != nil {
			return change{}, err
		}
		return change{
			entityID: id,
			delta:    delta,
			sentence: fmt.Sprintf("Hired %s for %s", quoted(in.Name), creditsWord(in.Cost)),
			tags:     []string{cache.FighterTag(id)},
		}, nil
	})
}

// SetFighterStatus moves the fighter's whole value (gear and crewed vehicles
// included) between the rating and nowhere as the status crosses the
// active/inactive line.
func (s *Service) SetFighterStatus(ctx context.Context, in FighterStatusInput) (Result, error) {
	fighterID, err := validateID("fighter", in.FighterID)
	if err != nil {
		return Result{}, err
	}
	next, err := ledger.ParseStatus(in.Status)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	in.Status = string(next)

	m := mutation{action: "fighter_status", target: fighterID, meta: in.Meta, payload: in, gangOf: gangOfRow("fighters", "fighter", fighterID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		f, err := loadFighterTx(ctx, tx, g.id, fighterID)
		if err != nil {
			return change{}, err
		}
		if f.status == next {
			return change{}, invalidf("fighter is already %s", next)
		}
		value, err := fighterValueTx(ctx, tx, f)
		if err != nil {
			return change{}, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE gang.fighters SET status = $1, updated_at = now() WHERE id = $2
		`, string(next), f.id); err != nil {
			return change{}, fmt.Errorf("update fighter status: %w", err)
		}
		return change{
			entityID: f.id,
			delta:    ledger.Moved(value, ledger.FighterPlacement(f.status), ledger.FighterPlacement(next)),
			sentence: fmt.Sprintf("%s is now %s (was %s)", quoted(f.name), next, f.status),
			tags:     []string{cache.FighterTag(f.id)},
			meta:     map[string]any{"from": f.status, "to": next, "value": value},
		}, nil
	})
}

func (s *Service) AddXP(ctx context.Context, in FighterCountInput) (Result, error) {
	return s.bumpCounter(ctx, in, "add_xp", "xp", "XP")
}

func (s *Service) RecordKill(ctx context.Context, in FighterCountInput) (Result, error) {
	if in.Amount == 0 {
		in.Amount = 1
	}
	return s.bumpCounter(ctx, in, "record_kill", "kill_count", "kills")
}

// bumpCounter changes xp or kill_count. Neither carries credit value, so the
// action writes a log line but no ledger entry.
func (s *Service) bumpCounter(ctx context.Context, in FighterCountInput, action, column, label string) (Result, error) {
	fighterID, err := validateID("fighter", in.FighterID)
	if err != nil {
		return Result{}, err
	}
	if in.Amount == 0 {
		return Result{}, invalidf("amount must not be zero")
	}
	m := mutation{action: action, target: fighterID, meta: in.Meta, payload: in, gangOf: gangOfRow("fighters", "fighter", fighterID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		f, err := loadFighterTx(ctx, tx, g.id, fighterID)
		if err != nil {
			return change{}, err
		}
		current := f.xp
		if column == "kill_count" {
			current = f.kills
		}
		next := int64(current) + int64(in.Amount)
		if next < 0 {
			return change{}, invalidf("%s would drop below zero (have %d)", label, current)
		}
		if next > math.MaxInt32 {
			return change{}, invalidf("%s would exceed %d", label, int64(math.MaxInt32))
		}
		if _, err := tx.Exec(ctx, `
			UPDATE gang.fighters SET `+column+` = $1, updated_at = now() WHERE id = $2
		`, int32(next), f.id); err != nil {
			return change{}, fmt.Errorf("update %s: %w", label, err)
		}
		return change{
			entityID: f.id,
			sentence: fmt.Sprintf("%s %s: %d → %d", quoted(f.name), label, current, next),
			tags:     []string{cache.FighterTag(f.id)},
		}, nil
	})
}

// AddAdvancement spends XP and raises the fighter's value by CreditsIncrease.
func (s *Service) AddAdvancement(ctx context.Context, in EffectInput) (Result, error) {
	in.KillCost = 0
	return s.addFighterEffect(ctx, in, EffectAdvancement)
}

// AddPowerBoost spends kills instead of XP.
func (s *Service) AddPowerBoost(ctx context.Context, in EffectInput) (Result, error) {
	in.XPCost = 0
	return s.addFighterEffect(ctx, in, EffectPowerBoost)
}

func (s *Service) AddInjury(ctx context.Context, in EffectInput) (Result, error) {
	in.XPCost, in.KillCost = 0, 0
	return s.addFighterEffect(ctx, in, EffectInjury)
}

func (s *Service) addFighterEffect(ctx context.Context, in EffectInput, effectType string) (Result, error) {
	fighterID, err := validateID("fighter", in.FighterID)
	if err != nil {
		return Result{}, err
	}
	if in.Name, err = validateName(strings.ReplaceAll(effectType, "_", " "), in.Name); err != nil {
		return Result{}, err
	}
	if in.XPCost < 0 || in.KillCost < 0 {
		return Result{}, invalidf("xp and kill costs must not be negative")
	}
	if err := validateSigned("credits increase", in.CreditsIncrease); err != nil {
		return Result{}, err
	}

	m := mutation{action: "add_" + effectType, target: fighterID, meta: in.Meta, payload: in, gangOf: gangOfRow("fighters", "fighter", fighterID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		f, err := loadFighterTx(ctx, tx, g.id, fighterID)
		if err != nil {
			return change{}, err
		}
		if f.xp < in.XPCost {
			return change{}, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientXP, f.name, f.xp, in.XPCost)
		}
		if f.kills < in.KillCost {
			return change{}, fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientKills, f.name, f.kills, in.KillCost)
		}
		if in.XPCost > 0 || in.KillCost > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE gang.fighters SET xp = xp - $1, kill_count = kill_count - $2, updated_at = now() WHERE id = $3
			`, in.XPCost, in.KillCost, f.id); err != nil {
				return change{}, fmt.Errorf("spend fighter xp: %w", err)
			}
		}
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO gang.effects (id, gang_id, fighter_id, effect_type, name, xp_cost, kill_cost, credits_increase)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, g.id, f.id, effectType, in.Name, in.XPCost, in.KillCost, in.CreditsIncrease); err != nil {
			return change{}, fmt.Errorf("insert effect: %w", err)
		}

		sentence := fmt.Sprintf("%s gained %s %s", quoted(f.name), strings.ReplaceAll(effectType, "_", " "), quoted(in.Name))
		switch {
		case in.XPCost > 0:
			sentence += fmt.Sprintf(" for %d XP", in.XPCost)
		case in.KillCost > 0:
			sentence += fmt.Sprintf(" for %d kills", in.KillCost)
		}
		return change{
			entityID: id,
			delta:    ledger.EffectAdded(ledger.FighterPlacement(f.status), in.CreditsIncrease),
			sentence: sentence,
			tags:     []string{cache.FighterTag(f.id)},
			meta:     map[string]any{"effect_type": effectType, "placement": ledger.FighterPlacement(f.status).String()},
		}, nil
	})
}

// DeleteEffect removes an effect and refunds what it cost: XP and kills back
// to the fighter, credits_increase out of whichever bucket held it.
func (s *Service) DeleteEffect(ctx context.Context, in DeleteEffectInput) (Result, error) {
	effectID, err := validateID("effect", in.EffectID)
	if err != nil {
		return Result{}, err
	}
	m := mutation{action: "delete_effect", target: effectID, meta: in.Meta, payload: in, gangOf: gangOfRow("effects", "effect", effectID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		e, err := loadEffectTx(ctx, tx, g.id, effectID)
		if err != nil {
			return change{}, err
		}
		if e.vehicleID != nil {
			return removeVehicleEffectTx(ctx, tx, g, e, 0)
		}
		f, err := loadFighterTx(ctx, tx, g.id, *e.fighterID)
		if err != nil {
			return change{}, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gang.effects WHERE id = $1`, e.id); err != nil {
			return change{}, fmt.Errorf("delete effect: %w", err)
		}
		if e.xpCost > 0 || e.killCost > 0 {
			if _, err := tx.Exec(ctx, `
				UPDATE gang.fighters SET xp = xp + $1, kill_count = kill_count + $2, updated_at = now() WHERE id = $3
			`, e.xpCost, e.killCost, f.id); err != nil {
				return change{}, fmt.Errorf("refund fighter xp: %w", err)
			}
		}
		sentence := fmt.Sprintf("Removed %s %s from %s", strings.ReplaceAll(e.effectType, "_", " "), quoted(e.name), quoted(f.name))
		if e.xpCost > 0 {
			sentence += fmt.Sprintf(", refunded %d XP", e.xpCost)
		}
		if e.killCost > 0 {
			sentence += fmt.Sprintf(", refunded %d kills", e.killCost)
		}
		return change{
			entityID: e.id,
			delta:    ledger.EffectRemoved(ledger.FighterPlacement(f.status), e.creditsIncrease),
			sentence: sentence,
			tags:     []string{cache.FighterTag(f.id)},
			meta:     map[string]any{"effect_type": e.effectType},
		}, nil
	})
}

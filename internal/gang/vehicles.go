package gang

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ganger/internal/cache"
	"ganger/internal/ledger"
)

// BuyVehicle adds a vehicle to the stash. Assigning it to crew is a separate
// action.
func (s *Service) BuyVehicle(ctx context.Context, in BuyVehicleInput) (Result, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return Result{}, err
	}
	if in.Name, err = validateName("vehicle", in.Name); err != nil {
		return Result{}, err
	}
	if err := validateCost("cost", in.Cost); err != nil {
		return Result{}, err
	}
	in.VehicleType = strings.TrimSpace(in.VehicleType)

	m := mutation{action: "buy_vehicle", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO gang.vehicles (id, gang_id, name, vehicle_type, base_cost)
			VALUES ($1, $2, $3, $4, $5)
		`, id, g.id, in.Name, in.VehicleType, in.Cost); err != nil {
			return change{}, fmt.Errorf("insert vehicle: %w", err)
		}
		delta, err := ledger.Purchased(in.Cost, in.Cost, ledger.PlacementStash)
		if err != nil {
			return change{}, err
		}
		return change{
			entityID: id,
			delta:    delta,
			sentence: fmt.Sprintf("Bought vehicle %s for %s", quoted(in.Name), creditsWord(in.Cost)),
			tags:     []string{cache.VehicleTag(id)},
		}, nil
	})
}

// AssignVehicle hands a vehicle to a fighter, or back to the stash when
// FighterID is empty, moving its full value between buckets.
func (s *Service) AssignVehicle(ctx context.Context, in AssignVehicleInput) (Result, error) {
	vehicleID, err := validateID("vehicle", in.VehicleID)
	if err != nil {
		return Result{}, err
	}
	if in.FighterID, err = optionalID("fighter", in.FighterID); err != nil {
		return Result{}, err
	}

	m := mutation{action: "assign_vehicle", target: vehicleID, meta: in.Meta, payload: in, gangOf: gangOfRow("vehicles", "vehicle", vehicleID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		v, err := loadVehicleTx(ctx, tx, g.id, vehicleID, true)
		if err != nil {
			return change{}, err
		}
		from := v.placement()
		tags := []string{cache.VehicleTag(v.id)}
		if v.fighterID != nil {
			tags = append(tags, cache.FighterTag(*v.fighterID))
		}

		to := ledger.PlacementStash
		target := "the stash"
		if in.FighterID != nil {
			f, err := loadFighterTx(ctx, tx, g.id, *in.FighterID)
			if err != nil {
				return change{}, err
			}
			to, target = ledger.FighterPlacement(f.status), quoted(f.name)
			tags = append(tags, cache.FighterTag(f.id))
		}
		if samePtr(v.fighterID, in.FighterID) {
			return change{}, invalidf("vehicle is already with %s", target)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE gang.vehicles SET fighter_id = $1, updated_at = now() WHERE id = $2
		`, in.FighterID, v.id); err != nil {
			return change{}, fmt.Errorf("assign vehicle: %w", err)
		}
		value := v.value()
		return change{
			entityID: v.id,
			delta:    ledger.Moved(value, from, to),
			sentence: fmt.Sprintf("Assigned vehicle %s (%s) to %s", quoted(v.name), creditsWord(value), target),
			tags:     tags,
			meta:     map[string]any{"from": from.String(), "to": to.String(), "value": value},
		}, nil
	})
}

// SellVehicle sells the vehicle with everything fitted to it. Credits rise by
// SellValue and the vehicle's value leaves the rating, the stash, or nothing
// when its crew is inactive.
func (s *Service) SellVehicle(ctx context.Context, in SellInput) (Result, error) {
	vehicleID, err := validateID("vehicle", in.ID)
	if err != nil {
		return Result{}, err
	}
	if err := validateCost("sell value", in.SellValue); err != nil {
		return Result{}, err
	}
	m := mutation{action: "sell_vehicle", target: vehicleID, meta: in.Meta, payload: in, gangOf: gangOfRow("vehicles", "vehicle", vehicleID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		v, err := loadVehicleTx(ctx, tx, g.id, vehicleID, true)
		if err != nil {
			return change{}, err
		}
		value := v.value()
		delta, err := ledger.Sold(value, in.SellValue, v.placement())
		if err != nil {
			return change{}, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gang.equipment WHERE vehicle_id = $1`, v.id); err != nil {
			return change{}, fmt.Errorf("delete vehicle equipment: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gang.vehicles WHERE id = $1`, v.id); err != nil {
			return change{}, fmt.Errorf("delete vehicle: %w", err)
		}
		tags := []string{cache.VehicleTag(v.id)}
		if v.fighterID != nil {
			tags = append(tags, cache.FighterTag(*v.fighterID))
		}
		return change{
			entityID: v.id,
			delta:    delta,
			sentence: fmt.Sprintf("Sold vehicle %s for %s", quoted(v.name), creditsWord(in.SellValue)),
			tags:     tags,
			meta:     map[string]any{"value": value, "placement": v.placement().String()},
		}, nil
	})
}

func (s *Service) AddVehicleDamage(ctx context.Context, in VehicleDamageInput) (Result, error) {
	vehicleID, err := validateID("vehicle", in.VehicleID)
	if err != nil {
		return Result{}, err
	}
	if in.Name, err = validateName("damage", in.Name); err != nil {
		return Result{}, err
	}
	if err := validateSigned("credits increase", in.CreditsIncrease); err != nil {
		return Result{}, err
	}
	m := mutation{action: "add_vehicle_damage", target: vehicleID, meta: in.Meta, payload: in, gangOf: gangOfRow("vehicles", "vehicle", vehicleID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		v, err := loadVehicleTx(ctx, tx, g.id, vehicleID, true)
		if err != nil {
			return change{}, err
		}
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO gang.effects (id, gang_id, vehicle_id, effect_type, name, credits_increase)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, g.id, v.id, EffectVehicleDamage, in.Name, in.CreditsIncrease); err != nil {
			return change{}, fmt.Errorf("insert vehicle damage: %w", err)
		}
		tags := []string{cache.VehicleTag(v.id)}
		if v.fighterID != nil {
			tags = append(tags, cache.FighterTag(*v.fighterID))
		}
		return change{
			entityID: id,
			delta:    ledger.EffectAdded(v.placement(), in.CreditsIncrease),
			sentence: fmt.Sprintf("Vehicle %s took damage %s", quoted(v.name), quoted(in.Name)),
			tags:     tags,
		}, nil
	})
}

// RepairVehicleDamage removes a damage effect, optionally paying for the work.
func (s *Service) RepairVehicleDamage(ctx context.Context, in RepairInput) (Result, error) {
	vehicleID, err := validateID("vehicle", in.VehicleID)
	if err != nil {
		return Result{}, err
	}
	effectID, err := validateID("effect", in.EffectID)
	if err != nil {
		return Result{}, err
	}
	if err := validateCost("repair cost", in.RepairCost); err != nil {
		return Result{}, err
	}
	m := mutation{action: "repair_vehicle_damage", target: vehicleID, meta: in.Meta, payload: in, gangOf: gangOfRow("vehicles", "vehicle", vehicleID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		e, err := loadEffectTx(ctx, tx, g.id, effectID)
		if err != nil {
			return change{}, err
		}
		if e.vehicleID == nil || *e.vehicleID != vehicleID {
			return change{}, fmt.Errorf("%w: effect %s on vehicle %s", ErrNotFound, effectID, vehicleID)
		}
		return removeVehicleEffectTx(ctx, tx, g, e, in.RepairCost)
	})
}

func removeVehicleEffectTx(ctx context.Context, tx pgx.Tx, g lockedGang, e effectRow, repairCost int64) (change, error) {
	v, err := loadVehicleTx(ctx, tx, g.id, *e.vehicleID, true)
	if err != nil {
		return change{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM gang.effects WHERE id = $1`, e.id); err != nil {
		return change{}, fmt.Errorf("delete vehicle effect: %w", err)
	}
	sentence := fmt.Sprintf("Repaired %s on vehicle %s", quoted(e.name), quoted(v.name))
	if repairCost > 0 {
		sentence += " for " + creditsWord(repairCost)
	}
	tags := []string{cache.VehicleTag(v.id)}
	if v.fighterID != nil {
		tags = append(tags, cache.FighterTag(*v.fighterID))
	}
	return change{
		entityID: e.id,
		delta:    ledger.Delta{Credits: -repairCost}.Add(ledger.EffectRemoved(v.placement(), e.creditsIncrease)),
		sentence: sentence,
		tags:     tags,
		meta:     map[string]any{"repair_cost": repairCost},
	}, nil
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

package gang

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ganger/internal/cache"
	"ganger/internal/ledger"
)

func (s *Service) BuyEquipment(ctx context.Context, in BuyEquipmentInput) (Result, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return Result{}, err
	}
	if in.Name, err = validateName("equipment", in.Name); err != nil {
		return Result{}, err
	}
	if err := validateCost("cost", in.Cost); err != nil {
		return Result{}, err
	}
	if in.FighterID, err = optionalID("fighter", in.FighterID); err != nil {
		return Result{}, err
	}
	if in.VehicleID, err = optionalID("vehicle", in.VehicleID); err != nil {
		return Result{}, err
	}

	m := mutation{action: "buy_equipment", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		p, holder, err := holderPlacementTx(ctx, tx, g.id, in.FighterID, in.VehicleID)
		if err != nil {
			return change{}, err
		}
		id := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO gang.equipment (id, gang_id, fighter_id, vehicle_id, name, purchase_cost)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, g.id, in.FighterID, in.VehicleID, in.Name, in.Cost); err != nil {
			return change{}, fmt.Errorf("insert equipment: %w", err)
		}
		delta, err := ledger.Purchased(in.Cost, in.Cost, p)
		if err != nil {
			return change{}, err
		}
		return change{
			entityID: id,
			delta:    delta,
			sentence: fmt.Sprintf("Bought %s for %s and gave it to %s", quoted(in.Name), creditsWord(in.Cost), holder),
			tags:     holderTags(in.FighterID, in.VehicleID),
			meta:     map[string]any{"placement": p.String()},
		}, nil
	})
}

func (s *Service) MoveEquipment(ctx context.Context, in MoveEquipmentInput) (Result, error) {
	equipmentID, err := validateID("equipment", in.EquipmentID)
	if err != nil {
		return Result{}, err
	}
	if in.FighterID, err = optionalID("fighter", in.FighterID); err != nil {
		return Result{}, err
	}
	if in.VehicleID, err = optionalID("vehicle", in.VehicleID); err != nil {
		return Result{}, err
	}

	m := mutation{action: "move_equipment", target: equipmentID, meta: in.Meta, payload: in, gangOf: gangOfRow("equipment", "equipment", equipmentID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		e, err := loadEquipmentTx(ctx, tx, g.id, equipmentID)
		if err != nil {
			return change{}, err
		}
		if samePtr(e.fighterID, in.FighterID) && samePtr(e.vehicleID, in.VehicleID) {
			return change{}, invalidf("equipment is already there")
		}
		from, _, err := holderPlacementTx(ctx, tx, g.id, e.fighterID, e.vehicleID)
		if err != nil {
			return change{}, err
		}
		to, holder, err := holderPlacementTx(ctx, tx, g.id, in.FighterID, in.VehicleID)
		if err != nil {
			return change{}, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE gang.equipment SET fighter_id = $1, vehicle_id = $2 WHERE id = $3
		`, in.FighterID, in.VehicleID, e.id); err != nil {
			return change{}, fmt.Errorf("move equipment: %w", err)
		}
		return change{
			entityID: e.id,
			delta:    ledger.Moved(e.cost, from, to),
			sentence: fmt.Sprintf("Moved %s to %s", quoted(e.name), holder),
			tags:     append(holderTags(e.fighterID, e.vehicleID), holderTags(in.FighterID, in.VehicleID)...),
			meta:     map[string]any{"from": from.String(), "to": to.String()},
		}, nil
	})
}

func (s *Service) SellEquipment(ctx context.Context, in SellInput) (Result, error) {
	equipmentID, err := validateID("equipment", in.ID)
	if err != nil {
		return Result{}, err
	}
	if err := validateCost("sell value", in.SellValue); err != nil {
		return Result{}, err
	}
	m := mutation{action: "sell_equipment", target: equipmentID, meta: in.Meta, payload: in, gangOf: gangOfRow("equipment", "equipment", equipmentID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		e, err := loadEquipmentTx(ctx, tx, g.id, equipmentID)
		if err != nil {
			return change{}, err
		}
		p, _, err := holderPlacementTx(ctx, tx, g.id, e.fighterID, e.vehicleID)
		if err != nil {
			return change{}, err
		}
		delta, err := ledger.Sold(e.cost, in.SellValue, p)
		if err != nil {
			return change{}, err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gang.equipment WHERE id = $1`, e.id); err != nil {
			return change{}, fmt.Errorf("delete equipment: %w", err)
		}
		return change{
			entityID: e.id,
			delta:    delta,
			sentence: fmt.Sprintf("Sold %s for %s", quoted(e.name), creditsWord(in.SellValue)),
			tags:     holderTags(e.fighterID, e.vehicleID),
			meta:     map[string]any{"value": e.cost, "placement": p.String()},
		}, nil
	})
}

func holderTags(fighterID, vehicleID *string) []string {
	var tags []string
	if fighterID != nil {
		tags = append(tags, cache.FighterTag(*fighterID))
	}
	if vehicleID != nil {
		tags = append(tags, cache.VehicleTag(*vehicleID))
	}
	return tags
}

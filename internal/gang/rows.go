package gang

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ganger/internal/ledger"
)

type fighterRow struct {
	id     string
	gangID string
	name   string
	cost   int64
	xp     int32
	kills  int32
	status ledger.Status
}

type vehicleRow struct {
	id           string
	gangID       string
	fighterID    *string
	name         string
	baseCost     int64
	holderStatus *ledger.Status
	equipment    []int64
	effects      []int64
}

func (v vehicleRow) value() int64 {
	return ledger.VehicleCost(v.baseCost, v.equipment, v.effects)
}

func (v vehicleRow) placement() ledger.Placement {
	return ledger.HeldPlacement(v.holderStatus)
}

type equipmentRow struct {
	id        string
	gangID    string
	fighterID *string
	vehicleID *string
	name      string
	cost      int64
}

type effectRow struct {
	id              string
	gangID          string
	fighterID       *string
	vehicleID       *string
	effectType      string
	name            string
	xpCost          int32
	killCost        int32
	creditsIncrease int64
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return fmt.Errorf("load %s: %w", kind, err)
}

// loadFighterTx locks the fighter and checks it belongs to gangID.
func loadFighterTx(ctx context.Context, tx pgx.Tx, gangID, fighterID string) (fighterRow, error) {
	var f fighterRow
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id, gang_id, name, cost, xp, kill_count, status
		FROM gang.fighters
		WHERE id = $1 AND gang_id = $2
		FOR UPDATE
	`, fighterID, gangID).Scan(&f.id, &f.gangID, &f.name, &f.cost, &f.xp, &f.kills, &status)
	if err != nil {
		return f, notFound("fighter", fighterID, err)
	}
	f.status = ledger.Status(status)
	return f, nil
}

// fighterValueTx is the fighter's full value: hire cost, carried gear, effect
// increases and every vehicle they crew.
func fighterValueTx(ctx context.Context, tx pgx.Tx, f fighterRow) (int64, error) {
	var gear, effects int64
	if err := tx.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(purchase_cost) FROM gang.equipment WHERE fighter_id = $1), 0)::bigint,
			COALESCE((SELECT SUM(credits_increase) FROM gang.effects WHERE fighter_id = $1), 0)::bigint
	`, f.id).Scan(&gear, &effects); err != nil {
		return 0, fmt.Errorf("fighter value: %w", err)
	}
	total := f.cost + gear + effects

	rows, err := tx.Query(ctx, `SELECT id FROM gang.vehicles WHERE fighter_id = $1 ORDER BY id`, f.id)
	if err != nil {
		return 0, fmt.Errorf("fighter vehicles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, fmt.Errorf("fighter vehicles: %w", err)
	}
	for _, id := range ids {
		v, err := loadVehicleTx(ctx, tx, f.gangID, id, false)
		if err != nil {
			return 0, err
		}
		total += v.value()
	}
	return total, nil
}

// loadVehicleTx reads a vehicle with its fitted gear, effects and the status
// of the fighter crewing it.
func loadVehicleTx(ctx context.Context, tx pgx.Tx, gangID, vehicleID string, lock bool) (vehicleRow, error) {
	var v vehicleRow
	var holder *string
	q := `
		SELECT v.id, v.gang_id, v.fighter_id, v.name, v.base_cost, f.status
		FROM gang.vehicles v
		LEFT JOIN gang.fighters f ON f.id = v.fighter_id
		WHERE v.id = $1 AND v.gang_id = $2`
	if lock {
		q += ` FOR UPDATE OF v`
	}
	if err := tx.QueryRow(ctx, q, vehicleID, gangID).Scan(&v.id, &v.gangID, &v.fighterID, &v.name, &v.baseCost, &holder); err != nil {
		return v, notFound("vehicle", vehicleID, err)
	}
	if holder != nil {
		st := ledger.Status(*holder)
		v.holderStatus = &st
	}

	rows, err := tx.Query(ctx, `SELECT purchase_cost FROM gang.equipment WHERE vehicle_id = $1 ORDER BY id`, vehicleID)
	if err != nil {
		return v, fmt.Errorf("vehicle equipment: %w", err)
	}
	if v.equipment, err = pgx.CollectRows(rows, pgx.RowTo[int64]); err != nil {
		return v, fmt.Errorf("vehicle equipment: %w", err)
	}
	rows, err = tx.Query(ctx, `SELECT credits_increase FROM gang.effects WHERE vehicle_id = $1 ORDER BY id`, vehicleID)
	if err != nil {
		return v, fmt.Errorf("vehicle effects: %w", err)
	}
	if v.effects, err = pgx.CollectRows(rows, pgx.RowTo[int64]); err != nil {
		return v, fmt.Errorf("vehicle effects: %w", err)
	}
	return v, nil
}

func loadEquipmentTx(ctx context.Context, tx pgx.Tx, gangID, equipmentID string) (equipmentRow, error) {
	var e equipmentRow
	err := tx.QueryRow(ctx, `
		SELECT id, gang_id, fighter_id, vehicle_id, name, purchase_cost
		FROM gang.equipment
		WHERE id = $1 AND gang_id = $2
		FOR UPDATE
	`, equipmentID, gangID).Scan(&e.id, &e.gangID, &e.fighterID, &e.vehicleID, &e.name, &e.cost)
	if err != nil {
		return e, notFound("equipment", equipmentID, err)
	}
	return e, nil
}

func loadEffectTx(ctx context.Context, tx pgx.Tx, gangID, effectID string) (effectRow, error) {
	var e effectRow
	err := tx.QueryRow(ctx, `
		SELECT id, gang_id, fighter_id, vehicle_id, effect_type, name, xp_cost, kill_cost, credits_increase
		FROM gang.effects
		WHERE id = $1 AND gang_id = $2
		FOR UPDATE
	`, effectID, gangID).Scan(&e.id, &e.gangID, &e.fighterID, &e.vehicleID, &e.effectType, &e.name, &e.xpCost, &e.killCost, &e.creditsIncrease)
	if err != nil {
		return e, notFound("effect", effectID, err)
	}
	return e, nil
}

// holderPlacementTx classifies where gear held by fighterID or vehicleID (or
// neither) is booked. It also returns a short label for log lines.
func holderPlacementTx(ctx context.Context, tx pgx.Tx, gangID string, fighterID, vehicleID *string) (ledger.Placement, string, error) {
	switch {
	case fighterID != nil && vehicleID != nil:
		return 0, "", invalidf("equipment goes to a fighter or a vehicle, not both")
	case fighterID != nil:
		f, err := loadFighterTx(ctx, tx, gangID, *fighterID)
		if err != nil {
			return 0, "", err
		}
		return ledger.FighterPlacement(f.status), f.name, nil
	case vehicleID != nil:
		v, err := loadVehicleTx(ctx, tx, gangID, *vehicleID, true)
		if err != nil {
			return 0, "", err
		}
		return v.placement(), v.name, nil
	default:
		return ledger.PlacementStash, "the stash", nil
	}
}

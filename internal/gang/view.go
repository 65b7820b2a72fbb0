package gang

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ganger/internal/ledger"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const gangColumns = `id, owner_user_id, name, gang_type, credits, rating, stash_value, wealth,
	reputation, meat, exploration_points, created_at, updated_at`

func scanGang(row pgx.Row) (Gang, error) {
	var g Gang
	err := row.Scan(&g.ID, &g.OwnerUserID, &g.Name, &g.GangType, &g.Credits, &g.Rating, &g.StashValue, &g.Wealth,
		&g.Reputation, &g.Meat, &g.ExplorationPoints, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func loadGang(ctx context.Context, q querier, gangID string) (Gang, error) {
	g, err := scanGang(q.QueryRow(ctx, `SELECT `+gangColumns+` FROM gang.gangs WHERE id = $1`, gangID))
	if errors.Is(err, pgx.ErrNoRows) {
		return g, fmt.Errorf("%w: gang %s", ErrNotFound, gangID)
	}
	if err != nil {
		return g, fmt.Errorf("load gang: %w", err)
	}
	return g, nil
}

// loadGangView reads the whole roster of one gang and values it.
func loadGangView(ctx context.Context, q querier, gangID string) (GangView, error) {
	g, err := loadGang(ctx, q, gangID)
	if err != nil {
		return GangView{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT id, gang_id, name, fighter_type, cost, xp, kill_count, status, created_at
		FROM gang.fighters WHERE gang_id = $1 ORDER BY created_at, id
	`, gangID)
	if err != nil {
		return GangView{}, fmt.Errorf("load fighters: %w", err)
	}
	fighters, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Fighter, error) {
		var f Fighter
		var status string
		err := row.Scan(&f.ID, &f.GangID, &f.Name, &f.FighterType, &f.Cost, &f.XP, &f.Kills, &status, &f.CreatedAt)
		f.Status = ledger.Status(status)
		return f, err
	})
	if err != nil {
		return GangView{}, fmt.Errorf("load fighters: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, gang_id, fighter_id, name, vehicle_type, base_cost
		FROM gang.vehicles WHERE gang_id = $1 ORDER BY created_at, id
	`, gangID)
	if err != nil {
		return GangView{}, fmt.Errorf("load vehicles: %w", err)
	}
	vehicles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Vehicle, error) {
		var v Vehicle
		err := row.Scan(&v.ID, &v.GangID, &v.FighterID, &v.Name, &v.VehicleType, &v.BaseCost)
		return v, err
	})
	if err != nil {
		return GangView{}, fmt.Errorf("load vehicles: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, gang_id, fighter_id, vehicle_id, name, purchase_cost
		FROM gang.equipment WHERE gang_id = $1 ORDER BY created_at, id
	`, gangID)
	if err != nil {
		return GangView{}, fmt.Errorf("load equipment: %w", err)
	}
	equipment, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Equipment, error) {
		var e Equipment
		err := row.Scan(&e.ID, &e.GangID, &e.FighterID, &e.VehicleID, &e.Name, &e.PurchaseCost)
		return e, err
	})
	if err != nil {
		return GangView{}, fmt.Errorf("load equipment: %w", err)
	}

	rows, err = q.Query(ctx, `
		SELECT id, fighter_id, vehicle_id, effect_type, name, xp_cost, kill_cost, credits_increase, created_at
		FROM gang.effects WHERE gang_id = $1 ORDER BY created_at, id
	`, gangID)
	if err != nil {
		return GangView{}, fmt.Errorf("load effects: %w", err)
	}
	effects, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Effect, error) {
		var e Effect
		err := row.Scan(&e.ID, &e.FighterID, &e.VehicleID, &e.EffectType, &e.Name, &e.XPCost, &e.KillCost, &e.CreditsIncrease, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return GangView{}, fmt.Errorf("load effects: %w", err)
	}

	return assembleView(g, fighters, vehicles, equipment, effects), nil
}

// assembleView hangs gear, effects and vehicles off their holders and fills
// in every value and placement.
func assembleView(g Gang, fighters []Fighter, vehicles []Vehicle, equipment []Equipment, effects []Effect) GangView {
	view := GangView{
		Gang:     g,
		Fighters: make([]Fighter, 0, len(fighters)),
		Vehicles: make([]Vehicle, 0),
		Stash:    make([]Equipment, 0),
	}

	gearByFighter := map[string][]Equipment{}
	gearByVehicle := map[string][]Equipment{}
	for _, e := range equipment {
		switch {
		case e.FighterID != nil:
			gearByFighter[*e.FighterID] = append(gearByFighter[*e.FighterID], e)
		case e.VehicleID != nil:
			gearByVehicle[*e.VehicleID] = append(gearByVehicle[*e.VehicleID], e)
		default:
			view.Stash = append(view.Stash, e)
		}
	}
	effectsByFighter := map[string][]Effect{}
	effectsByVehicle := map[string][]Effect{}
	for _, e := range effects {
		if e.FighterID != nil {
			effectsByFighter[*e.FighterID] = append(effectsByFighter[*e.FighterID], e)
		} else if e.VehicleID != nil {
			effectsByVehicle[*e.VehicleID] = append(effectsByVehicle[*e.VehicleID], e)
		}
	}

	vehiclesByFighter := map[string][]Vehicle{}
	for _, v := range vehicles {
		v.Equipment = nonNil(gearByVehicle[v.ID])
		v.Effects = nonNil(effectsByVehicle[v.ID])
		v.Value = ledger.VehicleCost(v.BaseCost, costs(v.Equipment), increases(v.Effects))
		if v.FighterID == nil {
			view.Vehicles = append(view.Vehicles, v)
			continue
		}
		vehiclesByFighter[*v.FighterID] = append(vehiclesByFighter[*v.FighterID], v)
	}

	for _, f := range fighters {
		f.Equipment = nonNil(gearByFighter[f.ID])
		f.Effects = nonNil(effectsByFighter[f.ID])
		f.Vehicles = nonNil(vehiclesByFighter[f.ID])
		f.Value = f.Cost
		for _, c := range costs(f.Equipment) {
			f.Value += c
		}
		for _, c := range increases(f.Effects) {
			f.Value += c
		}
		for _, v := range f.Vehicles {
			f.Value += v.Value
		}
		f.Placement = ledger.FighterPlacement(f.Status).String()
		view.Fighters = append(view.Fighters, f)
	}
	return view
}

// rosterTotals is what the stored totals should be for view. Credits are not
// derivable from the roster and are taken as stored.
func rosterTotals(view GangView) ledger.State {
	st := ledger.State{Credits: view.Gang.Credits}
	for _, f := range view.Fighters {
		if f.Status.Active() {
			st.Rating += f.Value
		}
	}
	for _, v := range view.Vehicles {
		st.Stash += v.Value
	}
	for _, e := range view.Stash {
		st.Stash += e.PurchaseCost
	}
	// Signed injuries and damage can push a bucket negative. Stored totals
	// are floored, so the roster side is too or the drift never clears.
	return ledger.Floor(st)
}

func costs(items []Equipment) []int64 {
	out := make([]int64, 0, len(items))
	for _, e := range items {
		out = append(out, e.PurchaseCost)
	}
	return out
}

func increases(items []Effect) []int64 {
	out := make([]int64, 0, len(items))
	for _, e := range items {
		out = append(out, e.CreditsIncrease)
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package gang

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ganger/internal/cache"
	"ganger/internal/ledger"
)

func (s *Service) CreateGang(ctx context.Context, in CreateGangInput) (Gang, error) {
	var out Gang
	name, err := validateName("gang", in.Name)
	if err != nil {
		return out, err
	}
	if err := validateCost("starting credits", in.Credits); err != nil {
		return out, err
	}
	in.Name = name
	in.GangType = strings.TrimSpace(in.GangType)
	fingerprint, err := requestFingerprint("create_gang", "", in)
	if err != nil {
		return out, err
	}

	var entry LogEntry
	err = s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, in.UserID, in.IdempotencyKey, "create_gang", fingerprint); err != nil {
			return err
		}
		g, err := scanGang(tx.QueryRow(ctx, `
			INSERT INTO gang.gangs (id, owner_user_id, name, gang_type, credits)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+gangColumns, uuid.NewString(), in.UserID, in.Name, in.GangType, in.Credits))
		if err != nil {
			return fmt.Errorf("insert gang: %w", err)
		}
		after := g.State()
		if in.Credits > 0 {
			if err := appendLedgerEntry(ctx, tx, ledgerRow{
				gangID:         g.ID,
				userID:         in.UserID,
				action:         "create_gang",
				idempotencyKey: in.IdempotencyKey,
				delta:          ledger.Delta{Credits: in.Credits},
				after:          after,
				meta:           map[string]any{"gang_type": in.GangType},
			}); err != nil {
				return err
			}
		}
		desc := describe(fmt.Sprintf("Founded gang %s with %s", quoted(g.Name), creditsWord(in.Credits)), ledger.State{}, after)
		entry = s.writeLog(ctx, tx, g.ID, in.UserID, "create_gang", desc)
		out = g
		return nil
	})
	if err != nil {
		return Gang{}, err
	}
	s.afterCommit(ctx, Result{GangID: out.ID, Action: "create_gang", Delta: ledger.Delta{Credits: in.Credits}}, in.UserID, nil, entry)
	return out, nil
}

func (s *Service) ListGangs(ctx context.Context, userID string) ([]Gang, error) {
	key := "gangs:" + userID
	var epoch uint64
	if s.cache != nil {
		epoch = s.cache.Epoch()
		if v, ok := s.cache.Get(key); ok {
			return v.([]Gang), nil
		}
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+gangColumns+`
		FROM gang.gangs
		WHERE owner_user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list gangs: %w", err)
	}
	gangs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Gang, error) {
		return scanGang(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list gangs: %w", err)
	}
	gangs = nonNil(gangs)
	if s.cache != nil {
		tags := []string{cache.UserGangsTag(userID)}
		for _, g := range gangs {
			tags = append(tags, cache.GangTag(g.ID))
		}
		s.cache.PutAt(epoch, key, gangs, tags...)
	}
	return gangs, nil
}

// GetGang returns the valued roster. Views are cached until any write to the
// gang, or to one of its fighters or vehicles, invalidates them.
func (s *Service) GetGang(ctx context.Context, userID, gangID string) (GangView, error) {
	gangID, err := validateID("gang", gangID)
	if err != nil {
		return GangView{}, err
	}
	key := "gang-view:" + gangID
	var view GangView
	var epoch uint64
	cached := false
	if s.cache != nil {
		epoch = s.cache.Epoch()
		if v, ok := s.cache.Get(key); ok {
			view, cached = v.(GangView), true
		}
	}
	if !cached {
		view, err = loadGangView(ctx, s.db, gangID)
		if err != nil {
			return GangView{}, err
		}
	}
	if view.Gang.OwnerUserID != userID {
		return GangView{}, ErrUnauthorized
	}
	if s.cache != nil && !cached {
		tags := []string{cache.GangTag(gangID)}
		for _, f := range view.Fighters {
			tags = append(tags, cache.FighterTag(f.ID))
			for _, v := range f.Vehicles {
				tags = append(tags, cache.VehicleTag(v.ID))
			}
		}
		for _, v := range view.Vehicles {
			tags = append(tags, cache.VehicleTag(v.ID))
		}
		s.cache.PutAt(epoch, key, view, tags...)
	}
	return view, nil
}

func (s *Service) UpdateGangResources(ctx context.Context, in ResourcesInput) (Result, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return Result{}, err
	}
	if in.Reputation == 0 && in.Meat == 0 && in.ExplorationPoints == 0 {
		return Result{}, invalidf("no resource change given")
	}
	m := mutation{action: "update_resources", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		if _, err := tx.Exec(ctx, `
			UPDATE gang.gangs
			SET reputation = GREATEST(0, reputation + $1),
				meat = GREATEST(0, meat + $2),
				exploration_points = GREATEST(0, exploration_points + $3),
				updated_at = now()
			WHERE id = $4
		`, in.Reputation, in.Meat, in.ExplorationPoints, g.id); err != nil {
			return change{}, fmt.Errorf("update resources: %w", err)
		}
		var parts []string
		for _, r := range []struct {
			label string
			v     int32
		}{{"Reputation", in.Reputation}, {"Meat", in.Meat}, {"Exploration points", in.ExplorationPoints}} {
			if r.v != 0 {
				parts = append(parts, fmt.Sprintf("%s %+d", r.label, r.v))
			}
		}
		return change{sentence: "Updated resources: " + strings.Join(parts, ", ")}, nil
	})
}

func (s *Service) AdjustCredits(ctx context.Context, in AdjustCreditsInput) (Result, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return Result{}, err
	}
	if in.Amount == 0 {
		return Result{}, invalidf("amount must not be zero")
	}
	if err := validateSigned("amount", in.Amount); err != nil {
		return Result{}, err
	}
	in.Reason = strings.TrimSpace(in.Reason)
	m := mutation{action: "adjust_credits", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	return s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		verb := "Added"
		n := in.Amount
		if n < 0 {
			verb, n = "Removed", -n
		}
		sentence := fmt.Sprintf("%s %s", verb, creditsWord(n))
		if in.Reason != "" {
			sentence += " (" + in.Reason + ")"
		}
		return change{
			delta:    ledger.Delta{Credits: in.Amount},
			sentence: sentence,
			meta:     map[string]any{"reason": in.Reason},
		}, nil
	})
}

func (s *Service) checkOwner(ctx context.Context, userID, gangID string) error {
	var owner string
	err := s.db.QueryRow(ctx, `SELECT owner_user_id FROM gang.gangs WHERE id = $1`, gangID).Scan(&owner)
	if err != nil {
		return notFound("gang", gangID, err)
	}
	if owner != userID {
		return ErrUnauthorized
	}
	return nil
}

func (s *Service) GangLog(ctx context.Context, userID, gangID string, page Page) ([]LogEntry, error) {
	gangID, err := validateID("gang", gangID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, userID, gangID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, gang_id, user_id, action_type, description, created_at
		FROM gang.gang_logs
		WHERE gang_id = $1 AND ($2::bigint = 0 OR id < $2::bigint)
		ORDER BY id DESC
		LIMIT $3
	`, gangID, page.Before, clampLimit(page.Limit))
	if err != nil {
		return nil, fmt.Errorf("gang log: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LogEntry, error) {
		var e LogEntry
		err := row.Scan(&e.ID, &e.GangID, &e.UserID, &e.ActionType, &e.Description, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("gang log: %w", err)
	}
	return nonNil(out), nil
}

func (s *Service) LedgerHistory(ctx context.Context, userID, gangID string, page Page) ([]LedgerEntry, error) {
	gangID, err := validateID("gang", gangID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, userID, gangID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, tx_group_id, gang_id, user_id, action, idempotency_key,
			credits_delta, rating_delta, stash_delta,
			credits_before, rating_before, stash_before,
			credits_after, rating_after, stash_after,
			metadata, created_at
		FROM gang.ledger_entries
		WHERE gang_id = $1 AND ($2::bigint = 0 OR id < $2::bigint)
		ORDER BY id DESC
		LIMIT $3
	`, gangID, page.Before, clampLimit(page.Limit))
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LedgerEntry, error) {
		var e LedgerEntry
		var meta []byte
		err := row.Scan(&e.ID, &e.TxGroupID, &e.GangID, &e.UserID, &e.Action, &e.IdempotencyKey,
			&e.Delta.Credits, &e.Delta.Rating, &e.Delta.Stash,
			&e.Before.Credits, &e.Before.Rating, &e.Before.Stash,
			&e.After.Credits, &e.After.Rating, &e.After.Stash,
			&meta, &e.CreatedAt)
		if err != nil {
			return e, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return e, fmt.Errorf("decode ledger metadata: %w", err)
			}
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	return nonNil(out), nil
}

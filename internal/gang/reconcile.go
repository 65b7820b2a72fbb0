package gang

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ganger/internal/ledger"
	"ganger/internal/metrics"
)

// Reconcile recomputes rating and stash from the roster rows and reports how
// far the stored totals have drifted. With Fix set the drift is booked as a
// reconcile ledger entry.
func (s *Service) Reconcile(ctx context.Context, in ReconcileInput) (ReconcileReport, error) {
	gangID, err := validateID("gang", in.GangID)
	if err != nil {
		return ReconcileReport{}, err
	}
	if in.UserID != SystemUser {
		if err := s.checkOwner(ctx, in.UserID, gangID); err != nil {
			return ReconcileReport{}, err
		}
	}
	view, err := loadGangView(ctx, s.db, gangID)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{
		GangID:   gangID,
		Stored:   view.Gang.State(),
		Computed: rosterTotals(view),
	}
	report.Drift = ledger.Drift(report.Stored, report.Computed)
	if report.Drift.IsZero() || !in.Fix {
		return report, nil
	}

	m := mutation{action: "reconcile", target: gangID, meta: in.Meta, payload: in, gangOf: gangByID(gangID)}
	res, err := s.mutate(ctx, m, func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error) {
		view, err := loadGangView(ctx, tx, g.id)
		if err != nil {
			return change{}, err
		}
		computed := rosterTotals(view)
		drift := ledger.Drift(g.state, computed)
		report.Stored, report.Computed, report.Drift = g.state, computed, drift
		return change{
			delta:    drift,
			sentence: "Reconciled stored totals against the roster",
			meta:     map[string]any{"drift": drift},
		}, nil
	})
	if err != nil {
		return report, err
	}
	report.Fixed = !res.Delta.IsZero()
	return report, nil
}

// ReconcileAll checks every gang with at most parallel checks in flight. A
// failing gang is counted and logged; it does not stop the pass.
func (s *Service) ReconcileAll(ctx context.Context, fix bool, parallel int) (ReconcileSummary, error) {
	start := time.Now()
	defer func() { metrics.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	rows, err := s.db.Query(ctx, `SELECT id FROM gang.gangs ORDER BY id`)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("list gangs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("list gangs: %w", err)
	}

	if parallel < 1 {
		parallel = 1
	}
	var (
		mu      sync.Mutex
		summary ReconcileSummary
	)
	sem := semaphore.NewWeighted(int64(parallel))
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			report, err := s.Reconcile(gctx, ReconcileInput{
				Meta:   Meta{UserID: SystemUser, IdempotencyKey: "reconcile-" + uuid.NewString()},
				GangID: id,
				Fix:    fix,
			})

			mu.Lock()
			defer mu.Unlock()
			summary.Checked++
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				summary.Failed++
				s.log.Error("reconcile gang failed", "gang_id", id, "err", err)
				return nil
			}
			if report.Drift.IsZero() {
				return nil
			}
			summary.Drifted++
			recordDrift(report.Drift)
			if report.Fixed {
				summary.Fixed++
			}
			summary.Reports = append(summary.Reports, report)
			s.log.Warn("gang totals drifted",
				"gang_id", id,
				"rating_drift", report.Drift.Rating,
				"stash_drift", report.Drift.Stash,
				"fixed", report.Fixed,
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	summary.Duration = time.Since(start)
	return summary, nil
}

func recordDrift(d ledger.Delta) {
	if d.Rating != 0 {
		metrics.ReconcileDrift.WithLabelValues("rating").Inc()
	}
	if d.Stash != 0 {
		metrics.ReconcileDrift.WithLabelValues("stash").Inc()
	}
	if d.Credits != 0 {
		metrics.ReconcileDrift.WithLabelValues("credits").Inc()
	}
}

package gang

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	"ganger/internal/cache"
	"ganger/internal/ledger"
	"ganger/internal/metrics"
)

// Notifier receives each committed gang log line. Delivery is best effort.
type Notifier interface {
	GangLogged(ctx context.Context, entry LogEntry) error
}

type Options struct {
	TxMaxAttempts int
	Cache         *cache.Store
	Notifier      Notifier
}

type Service struct {
	db          *pgxpool.Pool
	log         *slog.Logger
	cache       *cache.Store
	notifier    Notifier
	maxAttempts int
}

func NewService(db *pgxpool.Pool, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TxMaxAttempts <= 0 {
		opts.TxMaxAttempts = 8
	}
	return &Service{
		db:          db,
		log:         logger,
		cache:       opts.Cache,
		notifier:    opts.Notifier,
		maxAttempts: opts.TxMaxAttempts,
	}
}

// lockedGang is the gang row as read under FOR UPDATE.
type lockedGang struct {
	id    string
	owner string
	name  string
	state ledger.State
}

// change is what an action body hands back to mutate.
type change struct {
	entityID string
	delta    ledger.Delta
	sentence string
	tags     []string
	meta     map[string]any
}

// mutation describes one write: who, which gang, and the payload that
// identifies it for idempotency.
type mutation struct {
	action  string
	target  string
	meta    Meta
	payload any
	gangOf  func(ctx context.Context, tx pgx.Tx) (string, error)
}

type txFunc func(ctx context.Context, tx pgx.Tx) error

// inTx runs fn in a serializable transaction and retries serialization
// failures with backoff. fn must not commit.
func (s *Service) inTx(ctx context.Context, fn txFunc) error {
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(ctx, tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == s.maxAttempts-1 {
			break
		}
		metrics.TxRetries.Inc()
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	metrics.TxConflicts.Inc()
	return ErrTxConflict
}

// mutate is the single write path: claim the key, lock the gang, run body,
// apply its delta through the ledger, write the log line, commit, then
// invalidate and notify.
func (s *Service) mutate(ctx context.Context, m mutation, body func(ctx context.Context, tx pgx.Tx, g lockedGang) (change, error)) (Result, error) {
	var (
		res   Result
		ch    change
		entry LogEntry
	)
	fingerprint, err := requestFingerprint(m.action, m.target, m.payload)
	if err != nil {
		return res, err
	}
	err = s.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := claimIdempotency(ctx, tx, m.meta.UserID, m.meta.IdempotencyKey, m.action, fingerprint); err != nil {
			return err
		}
		gangID, err := m.gangOf(ctx, tx)
		if err != nil {
			return err
		}
		g, err := lockGang(ctx, tx, gangID)
		if err != nil {
			return err
		}
		if m.meta.UserID != SystemUser && g.owner != m.meta.UserID {
			return ErrUnauthorized
		}

		ch, err = body(ctx, tx, g)
		if err != nil {
			return err
		}
		after, err := ledger.Apply(g.state, ch.delta)
		if err != nil {
			return err
		}
		if err := persistTotals(ctx, tx, g, after, ch, m); err != nil {
			return err
		}

		res = Result{
			GangID:   g.id,
			EntityID: ch.entityID,
			Action:   m.action,
			Delta:    ledger.Drift(g.state, after),
			Before:   g.state,
			After:    after,
		}
		res.Description = describe(ch.sentence, g.state, after)
		entry = s.writeLog(ctx, tx, g.id, m.meta.UserID, m.action, res.Description)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.afterCommit(ctx, res, m.meta.UserID, ch.tags, entry)
	return res, nil
}

// persistTotals writes the new totals and a ledger entry. Zero-delta actions
// (status moves of inactive fighters, resource tweaks) write neither.
func persistTotals(ctx context.Context, tx pgx.Tx, g lockedGang, after ledger.State, ch change, m mutation) error {
	applied := ledger.Drift(g.state, after)
	if applied.IsZero() {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE gang.gangs
		SET credits = $1, rating = $2, stash_value = $3, updated_at = now()
		WHERE id = $4
	`, after.Credits, after.Rating, after.Stash, g.id); err != nil {
		return fmt.Errorf("update gang totals: %w", err)
	}
	meta := map[string]any{"requested": ch.delta}
	for k, v := range ch.meta {
		meta[k] = v
	}
	if err := appendLedgerEntry(ctx, tx, ledgerRow{
		gangID:         g.id,
		userID:         m.meta.UserID,
		action:         m.action,
		idempotencyKey: m.meta.IdempotencyKey,
		delta:          applied,
		before:         g.state,
		after:          after,
		meta:           meta,
	}); err != nil {
		return err
	}
	return nil
}

func (s *Service) afterCommit(ctx context.Context, res Result, userID string, tags []string, entry LogEntry) {
	gangID := res.GangID
	if !res.Delta.IsZero() {
		metrics.LedgerEntries.WithLabelValues(res.Action).Inc()
	}
	if s.cache != nil {
		all := append(cache.FinancialTags(gangID), tags...)
		if userID != "" && userID != SystemUser {
			all = append(all, cache.UserGangsTag(userID))
		}
		s.cache.Invalidate(all...)
	}
	if s.notifier != nil && entry.ID != 0 {
		if err := s.notifier.GangLogged(ctx, entry); err != nil {
			metrics.NotifyFailures.Inc()
			s.log.Warn("gang log notify failed", "gang_id", gangID, "err", err)
		}
	}
}

// writeLog records the action in gang_logs inside a savepoint. A failed
// write rolls back only the savepoint and never fails the action.
func (s *Service) writeLog(ctx context.Context, tx pgx.Tx, gangID, userID, action, description string) LogEntry {
	entry := LogEntry{GangID: gangID, UserID: userID, ActionType: action, Description: description}
	sp, err := tx.Begin(ctx)
	if err != nil {
		s.logFailed(gangID, action, err)
		return entry
	}
	err = sp.QueryRow(ctx, `
		INSERT INTO gang.gang_logs (gang_id, user_id, action_type, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, gangID, userID, action, description).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		s.logFailed(gangID, action, err)
		entry.ID = 0
		return entry
	}
	if err := sp.Commit(ctx); err != nil {
		s.logFailed(gangID, action, err)
		entry.ID = 0
	}
	return entry
}

func (s *Service) logFailed(gangID, action string, err error) {
	metrics.AuditLogFailures.Inc()
	s.log.Warn("gang log write failed", "gang_id", gangID, "action", action, "err", err)
}

func lockGang(ctx context.Context, tx pgx.Tx, gangID string) (lockedGang, error) {
	var g lockedGang
	err := tx.QueryRow(ctx, `
		SELECT id, owner_user_id, name, credits, rating, stash_value
		FROM gang.gangs
		WHERE id = $1
		FOR UPDATE
	`, gangID).Scan(&g.id, &g.owner, &g.name, &g.state.Credits, &g.state.Rating, &g.state.Stash)
	if errors.Is(err, pgx.ErrNoRows) {
		return g, fmt.Errorf("%w: gang %s", ErrNotFound, gangID)
	}
	if err != nil {
		return g, fmt.Errorf("lock gang: %w", err)
	}
	return g, nil
}

type ledgerRow struct {
	gangID         string
	userID         string
	action         string
	idempotencyKey string
	delta          ledger.Delta
	before, after  ledger.State
	meta           map[string]any
}

func appendLedgerEntry(ctx context.Context, tx pgx.Tx, r ledgerRow) error {
	meta, err := json.Marshal(r.meta)
	if err != nil {
		return fmt.Errorf("encode ledger metadata: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO gang.ledger_entries (
			tx_group_id, gang_id, user_id, action, idempotency_key,
			credits_delta, rating_delta, stash_delta,
			credits_before, rating_before, stash_before,
			credits_after, rating_after, stash_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb)
	`, uuid.NewString(), r.gangID, r.userID, r.action, r.idempotencyKey,
		r.delta.Credits, r.delta.Rating, r.delta.Stash,
		r.before.Credits, r.before.Rating, r.before.Stash,
		r.after.Credits, r.after.Rating, r.after.Stash, string(meta))
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// claimIdempotency records (user, key). A replay with the same fingerprint is
// ErrDuplicateIdempotency; a different payload under the same key is
// ErrIdempotencyMismatch.
func claimIdempotency(ctx context.Context, tx pgx.Tx, userID, key, action, fingerprint string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return invalidf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO gang.idempotency_keys (user_id, key, action, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, key) DO NOTHING
	`, userID, key, action, fingerprint)
	if err != nil {
		return fmt.Errorf("claim idempotency key: %w", err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}
	var stored string
	if err := tx.QueryRow(ctx, `
		SELECT fingerprint FROM gang.idempotency_keys WHERE user_id = $1 AND key = $2
	`, userID, key).Scan(&stored); err != nil {
		return fmt.Errorf("read idempotency key: %w", err)
	}
	if stored != fingerprint {
		return ErrIdempotencyMismatch
	}
	return ErrDuplicateIdempotency
}

// requestFingerprint hashes the action, the id it targets and the body. The
// actor and key are not part of it.
func requestFingerprint(action, target string, payload any) (string, error) {
	b, err := json.Marshal(struct {
		Action  string `json:"action"`
		Target  string `json:"target"`
		Payload any    `json:"payload"`
	}{action, target, payload})
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func gangByID(id string) func(ctx context.Context, tx pgx.Tx) (string, error) {
	return func(context.Context, pgx.Tx) (string, error) { return id, nil }
}

// gangOfRow resolves the owning gang of a child row, e.g. a fighter.
func gangOfRow(table, kind, id string) func(ctx context.Context, tx pgx.Tx) (string, error) {
	return func(ctx context.Context, tx pgx.Tx) (string, error) {
		var gangID string
		err := tx.QueryRow(ctx, `SELECT gang_id FROM gang.`+table+` WHERE id = $1`, id).Scan(&gangID)
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", kind, err)
		}
		return gangID, nil
	}
}

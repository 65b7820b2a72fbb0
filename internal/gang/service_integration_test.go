package gang

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ganger/internal/cache"
	"ganger/internal/db/dbtest"
	"ganger/internal/ledger"
)

const owner = "user-owner"

type recordingNotifier struct {
	entries []LogEntry
}

func (n *recordingNotifier) GangLogged(_ context.Context, e LogEntry) error {
	n.entries = append(n.entries, e)
	return nil
}

func newTestService(t *testing.T) (*Service, *dbtest.TestDatabase, *recordingNotifier) {
	td := dbtest.Setup(t)
	store, err := cache.New(64)
	require.NoError(t, err)
	n := &recordingNotifier{}
	svc := NewService(td.Pool, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{Cache: store, Notifier: n})
	return svc, td, n
}

func meta() Meta {
	return Meta{UserID: owner, IdempotencyKey: uuid.NewString()}
}

func assertTotals(t *testing.T, svc *Service, gangID string, want ledger.State) {
	t.Helper()
	view, err := svc.GetGang(context.Background(), owner, gangID)
	require.NoError(t, err)
	got := view.Gang.State()
	assert.Equal(t, want, got)
	assert.Equal(t, want.Wealth(), view.Gang.Wealth, "wealth is credits + rating + stash")
}

// setupGang founds a gang with 150 credits and hires one 50 credit fighter:
// credits 100, rating 50, wealth 150.
func setupGang(t *testing.T, svc *Service) (gangID, fighterID string) {
	t.Helper()
	ctx := context.Background()
	g, err := svc.CreateGang(ctx, CreateGangInput{Meta: meta(), Name: "Iron Lords", GangType: "Goliath", Credits: 150})
	require.NoError(t, err)
	res, err := svc.HireFighter(ctx, HireFighterInput{Meta: meta(), GangID: g.ID, Name: "Brakk", Cost: 50})
	require.NoError(t, err)
	assertTotals(t, svc, g.ID, ledger.State{Credits: 100, Rating: 50})
	return g.ID, res.EntityID
}

func TestVehicleRoundTripKeepsWealth(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	bought, err := svc.BuyVehicle(ctx, BuyVehicleInput{Meta: meta(), GangID: gangID, Name: "Wolf", Cost: 40})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 60, Rating: 50, Stash: 40})

	_, err = svc.AssignVehicle(ctx, AssignVehicleInput{Meta: meta(), VehicleID: bought.EntityID, FighterID: &fighterID})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 60, Rating: 90})

	sold, err := svc.SellVehicle(ctx, SellInput{Meta: meta(), ID: bought.EntityID, SellValue: 40})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 50})
	assert.Contains(t, sold.Description, `Sold vehicle "Wolf" for 40 credits.`)
}

func TestSellVehicleOfInactiveFighterOnlyMovesCredits(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	v, err := svc.BuyVehicle(ctx, BuyVehicleInput{Meta: meta(), GangID: gangID, Name: "Cart", Cost: 30})
	require.NoError(t, err)
	_, err = svc.AssignVehicle(ctx, AssignVehicleInput{Meta: meta(), VehicleID: v.EntityID, FighterID: &fighterID})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 70, Rating: 80})

	_, err = svc.SetFighterStatus(ctx, FighterStatusInput{Meta: meta(), FighterID: fighterID, Status: "captured"})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 70, Rating: 0})

	res, err := svc.SellVehicle(ctx, SellInput{Meta: meta(), ID: v.EntityID, SellValue: 20})
	require.NoError(t, err)
	assert.Equal(t, ledger.Delta{Credits: 20}, res.Delta)
	assertTotals(t, svc, gangID, ledger.State{Credits: 90, Rating: 0})
}

func TestAdvancementAddAndDeleteRestores(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	_, err := svc.AddXP(ctx, FighterCountInput{Meta: meta(), FighterID: fighterID, Amount: 12})
	require.NoError(t, err)

	_, err = svc.AddAdvancement(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "BS +1", XPCost: 20, CreditsIncrease: 10})
	assert.ErrorIs(t, err, ErrInsufficientXP)

	adv, err := svc.AddAdvancement(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "BS +1", XPCost: 5, CreditsIncrease: 10})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 60})
	view, err := svc.GetGang(ctx, owner, gangID)
	require.NoError(t, err)
	assert.Equal(t, int32(7), view.Fighters[0].XP)

	_, err = svc.DeleteEffect(ctx, DeleteEffectInput{Meta: meta(), EffectID: adv.EntityID})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 50})
	view, err = svc.GetGang(ctx, owner, gangID)
	require.NoError(t, err)
	assert.Equal(t, int32(12), view.Fighters[0].XP)
}

func TestPowerBoostNeedsKills(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	_, fighterID := setupGang(t, svc)

	_, err := svc.AddPowerBoost(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "Frenzy", KillCost: 1})
	assert.ErrorIs(t, err, ErrInsufficientKills)

	_, err = svc.RecordKill(ctx, FighterCountInput{Meta: meta(), FighterID: fighterID})
	require.NoError(t, err)
	_, err = svc.AddPowerBoost(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "Frenzy", KillCost: 1, CreditsIncrease: 5})
	require.NoError(t, err)
}

func TestRatingFlooredAtZero(t *testing.T) {
	svc, td, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	adv, err := svc.AddAdvancement(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "Nerves", CreditsIncrease: 20})
	require.NoError(t, err)

	_, err = td.Pool.Exec(ctx, `UPDATE gang.gangs SET rating = 5 WHERE id = $1`, gangID)
	require.NoError(t, err)
	svc.cache.Invalidate(cache.GangTag(gangID))

	res, err := svc.DeleteEffect(ctx, DeleteEffectInput{Meta: meta(), EffectID: adv.EntityID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.After.Rating)
	assert.Equal(t, int64(-5), res.Delta.Rating)
}

func TestInsufficientCreditsRollsBack(t *testing.T) {
	svc, td, _ := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	_, err := svc.BuyVehicle(ctx, BuyVehicleInput{Meta: meta(), GangID: gangID, Name: "Behemoth", Cost: 500})
	require.ErrorIs(t, err, ErrInsufficientCredits)

	var n int
	require.NoError(t, td.Pool.QueryRow(ctx, `SELECT count(*) FROM gang.vehicles WHERE gang_id = $1`, gangID).Scan(&n))
	assert.Zero(t, n, "vehicle insert must roll back with the failed apply")
	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 50})
}

func TestIdempotentReplay(t *testing.T) {
	svc, td, _ := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	m := meta()
	in := AdjustCreditsInput{Meta: m, GangID: gangID, Amount: 25, Reason: "territory"}
	_, err := svc.AdjustCredits(ctx, in)
	require.NoError(t, err)

	_, err = svc.AdjustCredits(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateIdempotency)

	in.Amount = 30
	_, err = svc.AdjustCredits(ctx, in)
	assert.ErrorIs(t, err, ErrIdempotencyMismatch)

	var n int
	require.NoError(t, td.Pool.QueryRow(ctx, `
		SELECT count(*) FROM gang.ledger_entries WHERE gang_id = $1 AND idempotency_key = $2
	`, gangID, m.IdempotencyKey).Scan(&n))
	assert.Equal(t, 1, n)
	assertTotals(t, svc, gangID, ledger.State{Credits: 125, Rating: 50})
}

func TestOtherUserIsUnauthorized(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	_, err := svc.AdjustCredits(ctx, AdjustCreditsInput{
		Meta:   Meta{UserID: "intruder", IdempotencyKey: uuid.NewString()},
		GangID: gangID,
		Amount: 1000,
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.GetGang(ctx, "intruder", gangID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEquipmentFollowsHolder(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	gear, err := svc.BuyEquipment(ctx, BuyEquipmentInput{Meta: meta(), GangID: gangID, Name: "Grenades", Cost: 20})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 80, Rating: 50, Stash: 20})

	_, err = svc.MoveEquipment(ctx, MoveEquipmentInput{Meta: meta(), EquipmentID: gear.EntityID, FighterID: &fighterID})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 80, Rating: 70})

	_, err = svc.SellEquipment(ctx, SellInput{Meta: meta(), ID: gear.EntityID, SellValue: 10})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 90, Rating: 50})
}

func TestVehicleDamageAndRepair(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	v, err := svc.BuyVehicle(ctx, BuyVehicleInput{Meta: meta(), GangID: gangID, Name: "Ridgehauler", Cost: 60})
	require.NoError(t, err)
	dmg, err := svc.AddVehicleDamage(ctx, VehicleDamageInput{Meta: meta(), VehicleID: v.EntityID, Name: "Cracked axle", CreditsIncrease: -15})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 40, Rating: 50, Stash: 45})

	_, err = svc.RepairVehicleDamage(ctx, RepairInput{Meta: meta(), VehicleID: v.EntityID, EffectID: dmg.EntityID, RepairCost: 5})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 35, Rating: 50, Stash: 60})
}

func TestReconcileFixesDrift(t *testing.T) {
	svc, td, _ := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	_, err := td.Pool.Exec(ctx, `UPDATE gang.gangs SET rating = 999, stash_value = 3 WHERE id = $1`, gangID)
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, ReconcileInput{Meta: meta(), GangID: gangID})
	require.NoError(t, err)
	assert.Equal(t, ledger.Delta{Rating: -949, Stash: -3}, report.Drift)
	assert.False(t, report.Fixed)

	summary, err := svc.ReconcileAll(ctx, true, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Fixed)

	svc.cache.Invalidate(cache.GangTag(gangID))
	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 50})
}

func TestGangLogAndLedgerHistory(t *testing.T) {
	svc, _, n := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)

	_, err := svc.UpdateGangResources(ctx, ResourcesInput{Meta: meta(), GangID: gangID, Reputation: 3, Meat: -2})
	require.NoError(t, err)

	logs, err := svc.GangLog(ctx, owner, gangID, Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "update_resources", logs[0].ActionType)
	assert.Contains(t, logs[0].Description, "Reputation +3, Meat -2")
	assert.Len(t, n.entries, 3)

	entries, err := svc.LedgerHistory(ctx, owner, gangID, Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2, "resource changes carry no ledger entry")
	assert.Equal(t, "hire_fighter", entries[0].Action)
	assert.Equal(t, ledger.Delta{Credits: -50, Rating: 50}, entries[0].Delta)

	view, err := svc.GetGang(ctx, owner, gangID)
	require.NoError(t, err)
	assert.Equal(t, int32(3), view.Gang.Reputation)
	assert.Equal(t, int32(0), view.Gang.Meat)
}

func TestBrokenGangLogDoesNotFailAction(t *testing.T) {
	svc, td, n := newTestService(t)
	ctx := context.Background()
	gangID, _ := setupGang(t, svc)
	notified := len(n.entries)

	_, err := td.Pool.Exec(ctx, `
		CREATE FUNCTION gang.reject_log() RETURNS trigger LANGUAGE plpgsql AS $$
		BEGIN
			RAISE EXCEPTION 'gang_logs is read only';
		END $$;
		CREATE TRIGGER reject_log BEFORE INSERT ON gang.gang_logs
			FOR EACH ROW EXECUTE FUNCTION gang.reject_log();
	`)
	require.NoError(t, err)

	res, err := svc.BuyVehicle(ctx, BuyVehicleInput{Meta: meta(), GangID: gangID, Name: "Wolf", Cost: 40})
	require.NoError(t, err)
	assert.Equal(t, ledger.Delta{Credits: -40, Stash: 40}, res.Delta)
	assertTotals(t, svc, gangID, ledger.State{Credits: 60, Rating: 50, Stash: 40})

	entries, err := svc.LedgerHistory(ctx, owner, gangID, Page{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "buy_vehicle", entries[0].Action)

	logs, err := svc.GangLog(ctx, owner, gangID, Page{})
	require.NoError(t, err)
	for _, l := range logs {
		assert.NotEqual(t, "buy_vehicle", l.ActionType)
	}
	assert.Len(t, n.entries, notified, "no notification without a stored log line")
}

func TestOversizedCreditsIncreaseRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	_, err := svc.AddAdvancement(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "Nerves of Steel", CreditsIncrease: math.MaxInt64})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.AdjustCredits(ctx, AdjustCreditsInput{Meta: meta(), GangID: gangID, Amount: math.MinInt64})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SellVehicle(ctx, SellInput{Meta: meta(), ID: uuid.NewString(), SellValue: math.MaxInt64})
	require.ErrorIs(t, err, ErrInvalidInput)

	assertTotals(t, svc, gangID, ledger.State{Credits: 100, Rating: 50})
}

func TestReconcileIgnoresFlooredInjury(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	gangID, fighterID := setupGang(t, svc)

	_, err := svc.AddInjury(ctx, EffectInput{Meta: meta(), FighterID: fighterID, Name: "Spinal Injury", CreditsIncrease: -80})
	require.NoError(t, err)
	assertTotals(t, svc, gangID, ledger.State{Credits: 100})

	summary, err := svc.ReconcileAll(ctx, true, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Drifted)
	assert.Equal(t, 0, summary.Fixed)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "ganger/internal/cli"
	"ganger/internal/config"
	"ganger/internal/gang"
	"ganger/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "gng",
		Short:        "Gang roster client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newGangCmd(&apiBase),
		newFighterCmd(&apiBase),
		newVehicleCmd(&apiBase),
		newEquipmentCmd(&apiBase),
		newSyncCmd(&apiBase),
		newTUICmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `gng login`.")
				return nil
			}
			if err := cl.SaveSession(cl.NewSession(session, cl.Session{}, time.Now())); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			prev, _ := cl.LoadSession()
			if err := cl.SaveSession(cl.NewSession(session, prev, time.Now())); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newGangCmd(apiBase *string) *cobra.Command {
	gangs := &cobra.Command{
		Use:   "gang",
		Short: "Gang commands",
	}
	var gangID string
	gangs.PersistentFlags().StringVar(&gangID, "gang", "", "gang id (defaults to the active gang)")

	gangs.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your gangs",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListGangs(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderGangList(out, sess.ActiveGangID)
			return nil
		},
	})

	var gangType string
	var credits int64
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a gang and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			g, err := newClient(apiBase).CreateGang(ctx, sess.AccessToken, args[0], gangType, credits, uuid.NewString())
			if err != nil {
				return err
			}
			sess.ActiveGangID = g.ID
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Created %s (%s) with %s credits.", g.Name, g.ID, comma(g.Credits)))
			return nil
		},
	}
	create.Flags().StringVar(&gangType, "type", "", "gang type")
	create.Flags().Int64Var(&credits, "credits", 1000, "starting credits")
	gangs.AddCommand(create)

	gangs.AddCommand(&cobra.Command{
		Use:   "use <gang-id>",
		Short: "Set the active gang",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession(cmd, apiBase)
			if err != nil {
				return err
			}
			sess.ActiveGangID = strings.TrimSpace(args[0])
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess("Active gang set.")
			return nil
		},
	})

	gangs.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the roster with values",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(apiBase).GetGang(ctx, sess.AccessToken, id)
			if err != nil {
				return err
			}
			renderGangView(view)
			return nil
		},
	})

	var reputation, meat, exploration int32
	resources := &cobra.Command{
		Use:   "resources",
		Short: "Add or remove reputation, meat and exploration points",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.GangPath(id, "resources"), map[string]any{
				"reputation":         reputation,
				"meat":               meat,
				"exploration_points": exploration,
			}, "update resources")
		},
	}
	resources.Flags().Int32Var(&reputation, "reputation", 0, "reputation change")
	resources.Flags().Int32Var(&meat, "meat", 0, "meat change")
	resources.Flags().Int32Var(&exploration, "exploration", 0, "exploration points change")
	gangs.AddCommand(resources)

	var reason string
	creditsCmd := &cobra.Command{
		Use:   "credits <amount>",
		Short: "Add (or with a negative amount, remove) credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			amount, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || amount == 0 {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.GangPath(id, "credits"), map[string]any{
				"amount": amount,
				"reason": reason,
			}, fmt.Sprintf("adjust credits %+d", amount))
		},
	}
	creditsCmd.Flags().StringVar(&reason, "reason", "", "note for the gang log")
	gangs.AddCommand(creditsCmd)

	var page gang.Page
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show the gang log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).GangLog(ctx, sess.AccessToken, id, page)
			if err != nil {
				return err
			}
			renderGangLog(out)
			return nil
		},
	}
	logCmd.Flags().IntVar(&page.Limit, "limit", 20, "entries to show")
	logCmd.Flags().Int64Var(&page.Before, "before", 0, "only entries older than this id")
	gangs.AddCommand(logCmd)

	var ledgerPage gang.Page
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show financial ledger entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).LedgerHistory(ctx, sess.AccessToken, id, ledgerPage)
			if err != nil {
				return err
			}
			renderLedger(out)
			return nil
		},
	}
	ledgerCmd.Flags().IntVar(&ledgerPage.Limit, "limit", 20, "entries to show")
	ledgerCmd.Flags().Int64Var(&ledgerPage.Before, "before", 0, "only entries older than this id")
	gangs.AddCommand(ledgerCmd)

	var fix bool
	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare stored rating and stash with the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			report, err := newClient(apiBase).Reconcile(ctx, sess.AccessToken, id, fix, uuid.NewString())
			if err != nil {
				return err
			}
			renderReconcile(report)
			return nil
		},
	}
	reconcile.Flags().BoolVar(&fix, "fix", false, "book the drift as a ledger entry")
	gangs.AddCommand(reconcile)

	return gangs
}

func newFighterCmd(apiBase *string) *cobra.Command {
	fighters := &cobra.Command{
		Use:     "fighter",
		Short:   "Fighter commands",
		Aliases: []string{"f"},
	}

	var gangID, fighterType string
	var cost int64
	hire := &cobra.Command{
		Use:   "hire <name>",
		Short: "Hire a fighter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.GangPath(id, "fighters"), map[string]any{
				"name":         args[0],
				"fighter_type": fighterType,
				"cost":         cost,
			}, "hire "+args[0])
		},
	}
	hire.Flags().StringVar(&gangID, "gang", "", "gang id (defaults to the active gang)")
	hire.Flags().StringVar(&fighterType, "type", "", "fighter type")
	hire.Flags().Int64Var(&cost, "cost", 0, "hiring cost")
	fighters.AddCommand(hire)

	fighters.AddCommand(&cobra.Command{
		Use:   "status <fighter-id> <status>",
		Short: "Set status: active, recovering, captured, killed, retired, enslaved, starved",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodPost, cl.FighterPath(args[0], "status"), map[string]any{
				"status": strings.ToLower(strings.TrimSpace(args[1])),
			}, "status "+args[1])
		},
	})

	fighters.AddCommand(&cobra.Command{
		Use:   "xp <fighter-id> <amount>",
		Short: "Add experience",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := positiveInt(args[1], "amount")
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.FighterPath(args[0], "xp"), map[string]any{
				"amount": amount,
			}, fmt.Sprintf("xp +%d", amount))
		},
	})

	var kills int
	kill := &cobra.Command{
		Use:   "kill <fighter-id>",
		Short: "Record kills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodPost, cl.FighterPath(args[0], "kills"), map[string]any{
				"amount": kills,
			}, fmt.Sprintf("kills +%d", kills))
		},
	}
	kill.Flags().IntVar(&kills, "count", 1, "kills to record")
	fighters.AddCommand(kill)

	fighters.AddCommand(
		newEffectCmd(apiBase, "advance", "advancements", "Buy an advancement with XP"),
		newEffectCmd(apiBase, "boost", "power-boosts", "Buy a power boost with kills"),
		newEffectCmd(apiBase, "injure", "injuries", "Record an injury"),
	)

	fighters.AddCommand(&cobra.Command{
		Use:   "remove-effect <effect-id>",
		Short: "Delete an advancement, boost or injury and refund its cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodDelete, cl.EffectPath(args[0]), nil, "remove effect")
		},
	})
	return fighters
}

func newEffectCmd(apiBase *string, use, route, short string) *cobra.Command {
	var xpCost, killCost int32
	var creditsIncrease int64
	cmd := &cobra.Command{
		Use:   use + " <fighter-id> <name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodPost, cl.FighterPath(args[0], route), map[string]any{
				"name":             args[1],
				"xp_cost":          xpCost,
				"kill_cost":        killCost,
				"credits_increase": creditsIncrease,
			}, use+" "+args[1])
		},
	}
	cmd.Flags().Int64Var(&creditsIncrease, "credits", 0, "change to the fighter's value")
	switch route {
	case "advancements":
		cmd.Flags().Int32Var(&xpCost, "xp", 0, "XP spent")
	case "power-boosts":
		cmd.Flags().Int32Var(&killCost, "kills", 0, "kills spent")
	}
	return cmd
}

func newVehicleCmd(apiBase *string) *cobra.Command {
	vehicles := &cobra.Command{
		Use:     "vehicle",
		Short:   "Vehicle commands",
		Aliases: []string{"v"},
	}

	var gangID, vehicleType string
	var cost int64
	buy := &cobra.Command{
		Use:   "buy <name>",
		Short: "Buy a vehicle into the stash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.GangPath(id, "vehicles"), map[string]any{
				"name":         args[0],
				"vehicle_type": vehicleType,
				"cost":         cost,
			}, "buy "+args[0])
		},
	}
	buy.Flags().StringVar(&gangID, "gang", "", "gang id (defaults to the active gang)")
	buy.Flags().StringVar(&vehicleType, "type", "", "vehicle type")
	buy.Flags().Int64Var(&cost, "cost", 0, "purchase cost")
	vehicles.AddCommand(buy)

	vehicles.AddCommand(&cobra.Command{
		Use:   "assign <vehicle-id> [fighter-id]",
		Short: "Give a vehicle to a fighter, or return it to the stash",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fighterID any
			summary := "return vehicle to stash"
			if len(args) == 2 {
				fighterID = args[1]
				summary = "assign vehicle"
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.VehiclePath(args[0], "assign"), map[string]any{
				"fighter_id": fighterID,
			}, summary)
		},
	})

	vehicles.AddCommand(&cobra.Command{
		Use:   "sell <vehicle-id> <sell-value>",
		Short: "Sell a vehicle and its equipment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := nonNegativeInt64(args[1], "sell value")
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.VehiclePath(args[0], "sell"), map[string]any{
				"sell_value": value,
			}, fmt.Sprintf("sell vehicle for %d", value))
		},
	})

	var damageCredits int64
	damage := &cobra.Command{
		Use:   "damage <vehicle-id> <name>",
		Short: "Record vehicle damage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodPost, cl.VehiclePath(args[0], "damage"), map[string]any{
				"name":             args[1],
				"credits_increase": damageCredits,
			}, "damage "+args[1])
		},
	}
	damage.Flags().Int64Var(&damageCredits, "credits", 0, "change to the vehicle's value (usually negative)")
	vehicles.AddCommand(damage)

	var repairCost int64
	repair := &cobra.Command{
		Use:   "repair <vehicle-id> <effect-id>",
		Short: "Repair vehicle damage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodDelete, cl.VehiclePath(args[0], "damage/"+args[1]), map[string]any{
				"repair_cost": repairCost,
			}, "repair")
		},
	}
	repair.Flags().Int64Var(&repairCost, "cost", 0, "credits paid for the repair")
	vehicles.AddCommand(repair)
	return vehicles
}

func newEquipmentCmd(apiBase *string) *cobra.Command {
	equipment := &cobra.Command{
		Use:     "equipment",
		Short:   "Equipment commands",
		Aliases: []string{"eq"},
	}

	var gangID, fighterID, vehicleID string
	var cost int64
	buy := &cobra.Command{
		Use:   "buy <name>",
		Short: "Buy equipment for a fighter, a vehicle or the stash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, id, err := sessionAndGang(cmd, apiBase, gangID)
			if err != nil {
				return err
			}
			body := holderBody(fighterID, vehicleID)
			body["name"] = args[0]
			body["cost"] = cost
			return runWrite(cmd, apiBase, http.MethodPost, cl.GangPath(id, "equipment"), body, "buy "+args[0])
		},
	}
	buy.Flags().StringVar(&gangID, "gang", "", "gang id (defaults to the active gang)")
	buy.Flags().Int64Var(&cost, "cost", 0, "purchase cost")
	buy.Flags().StringVar(&fighterID, "fighter", "", "fighter to carry it")
	buy.Flags().StringVar(&vehicleID, "vehicle", "", "vehicle to carry it")
	buy.MarkFlagsMutuallyExclusive("fighter", "vehicle")
	equipment.AddCommand(buy)

	var moveFighter, moveVehicle string
	move := &cobra.Command{
		Use:   "move <equipment-id>",
		Short: "Move equipment; with no holder it returns to the stash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, apiBase, http.MethodPost, cl.EquipmentPath(args[0], "move"), holderBody(moveFighter, moveVehicle), "move equipment")
		},
	}
	move.Flags().StringVar(&moveFighter, "fighter", "", "new fighter")
	move.Flags().StringVar(&moveVehicle, "vehicle", "", "new vehicle")
	move.MarkFlagsMutuallyExclusive("fighter", "vehicle")
	equipment.AddCommand(move)

	equipment.AddCommand(&cobra.Command{
		Use:   "sell <equipment-id> <sell-value>",
		Short: "Sell equipment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := nonNegativeInt64(args[1], "sell value")
			if err != nil {
				return err
			}
			return runWrite(cmd, apiBase, http.MethodPost, cl.EquipmentPath(args[0], "sell"), map[string]any{
				"sell_value": value,
			}, fmt.Sprintf("sell equipment for %d", value))
		},
	})
	return equipment
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession(cmd, apiBase)
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			report, err := syncq.Replay(ctx, func(ctx context.Context, q syncq.Command) (syncq.Outcome, error) {
				res, err := client.Write(ctx, sess.AccessToken, q.Method, q.Path, q.Body, q.IdempotencyKey)
				return replayOutcome(res, err, q)
			})
			for _, f := range report.Rejected {
				printError(fmt.Sprintf("Dropped %s (%s %s): %v", f.Command.Summary, f.Command.Method, f.Command.Path, f.Err))
			}
			if err != nil {
				return err
			}
			msg := fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", report.Sent, len(report.Rejected), report.Pending)
			if report.Pending > 0 {
				printWarn(msg)
				return nil
			}
			printSuccess(msg)
			return nil
		},
	}
}

func replayOutcome(res gang.Result, err error, q syncq.Command) (syncq.Outcome, error) {
	if err == nil {
		printInfo(fmt.Sprintf("Replayed %s: %s", q.Summary, res.Description))
		return syncq.Sent, nil
	}
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) && apiErr.AlreadyApplied() {
		return syncq.Sent, nil
	}
	if cl.Offline(err) {
		printWarn(fmt.Sprintf("Still unreachable: %v", err))
		return syncq.Retry, err
	}
	return syncq.Rejected, err
}

// runWrite sends one roster write. When the API cannot be reached the write
// is queued under its idempotency key for `gng sync`.
func runWrite(cmd *cobra.Command, apiBase *string, method, path string, body map[string]any, summary string) error {
	sess, err := requireSession(cmd, apiBase)
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	res, err := newClient(apiBase).Write(ctx, sess.AccessToken, method, path, body, idem)
	if err != nil {
		return queueOnNetworkError(err, syncq.Command{
			Method:         method,
			Path:           path,
			Body:           body,
			IdempotencyKey: idem,
			Summary:        summary,
		})
	}
	renderResult(res)
	return nil
}

func queueOnNetworkError(err error, q syncq.Command) error {
	if err == nil || !cl.Offline(err) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable, queued %q. Run `gng sync` later.", q.Summary))
	return nil
}

// requireSession loads the saved session and swaps a stale access token for a
// fresh one. When the API is unreachable the old token is kept so writes can
// still be queued.
func requireSession(cmd *cobra.Command, apiBase *string) (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, err
	}
	now := time.Now()
	if !sess.Stale(now) || sess.RefreshToken == "" {
		return sess, nil
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()
	fresh, err := newClient(apiBase).Refresh(ctx, sess.RefreshToken)
	if err != nil {
		var apiErr *cl.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return cl.Session{}, fmt.Errorf("session expired, run `gng login`")
		}
		if cl.Offline(err) {
			return sess, nil
		}
		return cl.Session{}, err
	}
	next := cl.NewSession(fresh, sess, now)
	if err := cl.SaveSession(next); err != nil {
		return cl.Session{}, err
	}
	return next, nil
}

func sessionAndGang(cmd *cobra.Command, apiBase *string, flag string) (cl.Session, string, error) {
	sess, err := requireSession(cmd, apiBase)
	if err != nil {
		return cl.Session{}, "", err
	}
	id := strings.TrimSpace(flag)
	if id == "" {
		id = sess.ActiveGangID
	}
	if id == "" {
		return sess, "", fmt.Errorf("no gang selected, pass --gang or run `gng gang use <id>`")
	}
	return sess, id, nil
}

func holderBody(fighterID, vehicleID string) map[string]any {
	body := map[string]any{"fighter_id": nil, "vehicle_id": nil}
	if v := strings.TrimSpace(fighterID); v != "" {
		body["fighter_id"] = v
	}
	if v := strings.TrimSpace(vehicleID); v != "" {
		body["vehicle_id"] = v
	}
	return body
}

func positiveInt(s, label string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s", label)
	}
	return v, nil
}

func nonNegativeInt64(s, label string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s", label)
	}
	return v, nil
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"ganger/internal/gang"
	"ganger/internal/ledger"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	muted       = color.New(color.FgHiBlack)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// promptPassword reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := string(raw); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderGangList(gangs []gang.Gang, active string) {
	accent.Println("\n== GANGS ==")
	if len(gangs) == 0 {
		printInfo("No gangs yet. Create one with `gng gang create <name>`.")
		return
	}
	fmt.Printf("  %-36s %-22s %-12s %10s %10s %10s %10s\n", "ID", "NAME", "TYPE", "CREDITS", "RATING", "STASH", "WEALTH")
	for _, g := range gangs {
		marker := " "
		if g.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %-36s %-22s %-12s %10s %10s %10s %10s\n",
			marker,
			g.ID,
			truncate(g.Name, 22),
			truncate(g.GangType, 12),
			comma(g.Credits),
			comma(g.Rating),
			comma(g.StashValue),
			comma(g.Wealth),
		)
	}
	fmt.Println()
}

func renderGangView(v gang.GangView) {
	g := v.Gang
	accent.Printf("\n== %s ==\n", g.Name)
	fmt.Printf("Credits:      %s\n", comma(g.Credits))
	fmt.Printf("Rating:       %s\n", comma(g.Rating))
	fmt.Printf("Stash value:  %s\n", comma(g.StashValue))
	fmt.Printf("Wealth:       %s\n", comma(g.Wealth))
	fmt.Printf("Reputation %d  Meat %d  Exploration %d\n", g.Reputation, g.Meat, g.ExplorationPoints)

	fmt.Println()
	accent.Println("Fighters")
	if len(v.Fighters) == 0 {
		printInfo("No fighters yet.")
	} else {
		fmt.Printf("%-36s %-20s %-11s %5s %5s %8s %s\n", "ID", "NAME", "STATUS", "XP", "KILLS", "VALUE", "")
		for _, f := range v.Fighters {
			fmt.Printf("%-36s %-20s %-11s %5d %5d %8s %s\n",
				f.ID,
				truncate(f.Name, 20),
				colorizeStatus(f.Status),
				f.XP,
				f.Kills,
				comma(f.Value),
				muted.Sprint(fighterExtras(f)),
			)
		}
	}

	fmt.Println()
	accent.Println("Stash")
	if len(v.Vehicles) == 0 && len(v.Stash) == 0 {
		printInfo("Stash is empty.")
	}
	for _, veh := range v.Vehicles {
		fmt.Printf("  vehicle   %-36s %-20s %8s\n", veh.ID, truncate(veh.Name, 20), comma(veh.Value))
	}
	for _, e := range v.Stash {
		fmt.Printf("  equipment %-36s %-20s %8s\n", e.ID, truncate(e.Name, 20), comma(e.PurchaseCost))
	}
	fmt.Println()
}

func fighterExtras(f gang.Fighter) string {
	var parts []string
	if n := len(f.Equipment); n > 0 {
		parts = append(parts, fmt.Sprintf("%d gear", n))
	}
	if n := len(f.Effects); n > 0 {
		parts = append(parts, fmt.Sprintf("%d effects", n))
	}
	for _, v := range f.Vehicles {
		parts = append(parts, "crews "+v.Name)
	}
	return strings.Join(parts, ", ")
}

func renderGangLog(entries []gang.LogEntry) {
	accent.Println("\n== GANG LOG ==")
	if len(entries) == 0 {
		printInfo("Nothing logged yet.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s %s %s\n",
			muted.Sprintf("#%-6d %s", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04")),
			neutral.Sprintf("%-20s", e.ActionType),
			e.Description,
		)
	}
	fmt.Println()
}

func renderLedger(entries []gang.LedgerEntry) {
	accent.Println("\n== LEDGER ==")
	if len(entries) == 0 {
		printInfo("No ledger entries yet.")
		return
	}
	fmt.Printf("%-7s %-16s %-20s %10s %10s %10s %10s\n", "ID", "WHEN", "ACTION", "CREDITS", "RATING", "STASH", "WEALTH")
	for _, e := range entries {
		fmt.Printf("%-7d %-16s %-20s %10s %10s %10s %10s\n",
			e.ID,
			e.CreatedAt.Local().Format("2006-01-02 15:04"),
			truncate(e.Action, 20),
			colorizeSigned(e.Delta.Credits),
			colorizeSigned(e.Delta.Rating),
			colorizeSigned(e.Delta.Stash),
			comma(e.After.Wealth()),
		)
	}
	fmt.Println()
}

func renderReconcile(r gang.ReconcileReport) {
	accent.Println("\n== RECONCILE ==")
	fmt.Printf("%-8s %10s %10s %10s\n", "", "STORED", "ROSTER", "DRIFT")
	fmt.Printf("%-8s %10s %10s %10s\n", "rating", comma(r.Stored.Rating), comma(r.Computed.Rating), colorizeSigned(r.Drift.Rating))
	fmt.Printf("%-8s %10s %10s %10s\n", "stash", comma(r.Stored.Stash), comma(r.Computed.Stash), colorizeSigned(r.Drift.Stash))
	switch {
	case r.Drift.IsZero():
		printSuccess("Stored totals match the roster.")
	case r.Fixed:
		printSuccess("Drift booked to the ledger.")
	default:
		printWarn("Totals drifted. Run with --fix to book the difference.")
	}
}

func renderResult(res gang.Result) {
	printSuccess(res.Description)
	if res.Delta.IsZero() {
		return
	}
	fmt.Printf("  credits %s  rating %s  stash %s  wealth %s\n",
		colorizeSigned(res.Delta.Credits),
		colorizeSigned(res.Delta.Rating),
		colorizeSigned(res.Delta.Stash),
		comma(res.After.Wealth()),
	)
}

func colorizeStatus(s ledger.Status) string {
	text := fmt.Sprintf("%-11s", s)
	if s.Active() {
		return success.Sprint(text)
	}
	return danger.Sprint(text)
}

func colorizeSigned(v int64) string {
	switch {
	case v > 0:
		return success.Sprint("+" + comma(v))
	case v < 0:
		return danger.Sprint(comma(v))
	default:
		return neutral.Sprint("0")
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

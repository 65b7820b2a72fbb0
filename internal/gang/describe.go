package gang

import (
	"fmt"
	"strings"

	"ganger/internal/ledger"
)

// describe renders a log line: the entity sentence followed by every total
// that moved, e.g. `Sold vehicle "Ridgehauler" for 120 credits. Credits: 100 → 220.`
func describe(sentence string, before, after ledger.State) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(sentence))
	if b.Len() > 0 && !strings.HasSuffix(b.String(), ".") {
		b.WriteByte('.')
	}
	moved := func(label string, from, to int64) {
		if from == to {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s: %d → %d.", label, from, to)
	}
	moved("Credits", before.Credits, after.Credits)
	moved("Rating", before.Rating, after.Rating)
	moved("Stash", before.Stash, after.Stash)
	if before != after {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "Wealth: %d → %d.", before.Wealth(), after.Wealth())
	}
	return b.String()
}

func quoted(name string) string {
	return fmt.Sprintf("%q", name)
}

func creditsWord(n int64) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d credit", n)
	}
	return fmt.Sprintf("%d credits", n)
}

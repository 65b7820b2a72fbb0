package main

import (
	"errors"
	"net/http"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	cl "ganger/internal/cli"
	"ganger/internal/gang"
	"ganger/internal/syncq"
)

func TestComma(t *testing.T) {
	assert.Equal(t, "0", comma(0))
	assert.Equal(t, "999", comma(999))
	assert.Equal(t, "1,000", comma(1000))
	assert.Equal(t, "-12,345,678", comma(-12345678))
}

func TestHolderBody(t *testing.T) {
	assert.Equal(t, map[string]any{"fighter_id": nil, "vehicle_id": nil}, holderBody("", " "))
	assert.Equal(t, map[string]any{"fighter_id": "f1", "vehicle_id": nil}, holderBody(" f1 ", ""))
}

func TestReplayOutcome(t *testing.T) {
	q := syncq.Command{Summary: "sell"}

	out, err := replayOutcome(gang.Result{Description: "Sold."}, nil, q)
	assert.Equal(t, syncq.Sent, out)
	assert.NoError(t, err)

	out, _ = replayOutcome(gang.Result{}, &cl.APIError{Status: http.StatusConflict, Message: gang.ErrDuplicateIdempotency.Error()}, q)
	assert.Equal(t, syncq.Sent, out)

	out, _ = replayOutcome(gang.Result{}, &cl.APIError{Status: http.StatusUnprocessableEntity, Message: "insufficient credits"}, q)
	assert.Equal(t, syncq.Rejected, out)

	out, _ = replayOutcome(gang.Result{}, errors.New("dial tcp: connection refused"), q)
	assert.Equal(t, syncq.Retry, out)
}

func TestDashboardSwitchesViews(t *testing.T) {
	m := newDashboard(cl.NewClient("http://localhost:0"), cl.Session{})
	next, _ := m.Update(gangsLoaded{gangs: []gang.Gang{{ID: "g1", Name: "Iron Lords", Credits: 100}}})
	m = next.(dashboard)
	assert.Len(t, m.table.Rows(), 1)
	assert.Contains(t, m.View(), "Iron Lords")

	next, _ = m.Update(rosterLoaded{view: gang.GangView{
		Gang:     gang.Gang{ID: "g1", Name: "Iron Lords"},
		Fighters: []gang.Fighter{{Name: "Rook", Status: "active", Value: 120}},
		Stash:    []gang.Equipment{{Name: "Lasgun", PurchaseCost: 15}},
	}})
	m = next.(dashboard)
	assert.NotNil(t, m.roster)
	assert.Len(t, m.table.Rows(), 2)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(dashboard)
	assert.Nil(t, m.roster)
	assert.Len(t, m.table.Rows(), 1)
}

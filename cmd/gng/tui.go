package main

import (
	"context"
	"fmt"
	"time"

	cl "ganger/internal/cli"
	"ganger/internal/gang"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	totalsStyle = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#2a3850"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

func newTUICmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse gangs and rosters interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession(cmd, apiBase)
			if err != nil {
				return err
			}
			m := newDashboard(newClient(apiBase), sess)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

type gangsLoaded struct {
	gangs []gang.Gang
	err   error
}

type rosterLoaded struct {
	view gang.GangView
	err  error
}

type dashboard struct {
	client *cl.Client
	sess   cl.Session

	gangs  []gang.Gang
	roster *gang.GangView
	table  table.Model
	err    error
	width  int
}

func newDashboard(client *cl.Client, sess cl.Session) dashboard {
	t := table.New(
		table.WithColumns(gangColumns()),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	return dashboard{client: client, sess: sess, table: t}
}

func gangColumns() []table.Column {
	return []table.Column{
		{Title: "Name", Width: 24},
		{Title: "Credits", Width: 10},
		{Title: "Rating", Width: 10},
		{Title: "Stash", Width: 10},
		{Title: "Wealth", Width: 10},
	}
}

func rosterColumns() []table.Column {
	return []table.Column{
		{Title: "Kind", Width: 9},
		{Title: "Name", Width: 22},
		{Title: "Status", Width: 11},
		{Title: "XP", Width: 5},
		{Title: "Kills", Width: 5},
		{Title: "Value", Width: 9},
	}
}

func (m dashboard) Init() tea.Cmd {
	return m.loadGangs()
}

func (m dashboard) loadGangs() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		gangs, err := m.client.ListGangs(ctx, m.sess.AccessToken)
		return gangsLoaded{gangs: gangs, err: err}
	}
}

func (m dashboard) loadRoster(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		view, err := m.client.GetGang(ctx, m.sess.AccessToken, id)
		return rosterLoaded{view: view, err: err}
	}
}

func (m dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(5, msg.Height-10))
		return m, nil
	case gangsLoaded:
		m.err = msg.err
		if msg.err == nil {
			m.gangs = msg.gangs
			m.roster = nil
			m.showGangs()
		}
		return m, nil
	case rosterLoaded:
		m.err = msg.err
		if msg.err == nil {
			m.roster = &msg.view
			m.showRoster()
		}
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.roster != nil {
				return m, m.loadRoster(m.roster.Gang.ID)
			}
			return m, m.loadGangs()
		case "esc", "backspace":
			if m.roster != nil {
				m.roster = nil
				m.showGangs()
			}
			return m, nil
		case "enter":
			if m.roster == nil {
				if i := m.table.Cursor(); i >= 0 && i < len(m.gangs) {
					return m, m.loadRoster(m.gangs[i].ID)
				}
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *dashboard) showGangs() {
	rows := make([]table.Row, 0, len(m.gangs))
	for _, g := range m.gangs {
		rows = append(rows, table.Row{g.Name, comma(g.Credits), comma(g.Rating), comma(g.StashValue), comma(g.Wealth)})
	}
	m.table.SetRows(nil)
	m.table.SetColumns(gangColumns())
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

func (m *dashboard) showRoster() {
	v := m.roster
	var rows []table.Row
	for _, f := range v.Fighters {
		rows = append(rows, table.Row{"fighter", f.Name, string(f.Status), fmt.Sprint(f.XP), fmt.Sprint(f.Kills), comma(f.Value)})
		for _, veh := range f.Vehicles {
			rows = append(rows, table.Row{"  vehicle", veh.Name, "", "", "", comma(veh.Value)})
		}
	}
	for _, veh := range v.Vehicles {
		rows = append(rows, table.Row{"stash", veh.Name, "", "", "", comma(veh.Value)})
	}
	for _, e := range v.Stash {
		rows = append(rows, table.Row{"stash", e.Name, "", "", "", comma(e.PurchaseCost)})
	}
	m.table.SetRows(nil)
	m.table.SetColumns(rosterColumns())
	m.table.SetRows(rows)
	m.table.SetCursor(0)
}

func (m dashboard) View() string {
	var header, help string
	if m.roster == nil {
		header = titleStyle.Render("Gangs")
		help = "enter open · r refresh · q quit"
	} else {
		g := m.roster.Gang
		header = lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render(g.Name),
			totalsStyle.Render(fmt.Sprintf("credits %s   rating %s   stash %s   wealth %s",
				comma(g.Credits), comma(g.Rating), comma(g.StashValue), comma(g.Wealth))),
		)
		help = "esc back · r refresh · q quit"
	}
	out := lipgloss.JoinVertical(lipgloss.Left, header, m.table.View(), helpStyle.Render(help))
	if m.err != nil {
		out = lipgloss.JoinVertical(lipgloss.Left, out, errStyle.Render(m.err.Error()))
	}
	return out + "\n"
}

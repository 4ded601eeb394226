package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	infoStyle = lipgloss.NewStyle().
			MarginLeft(2)

	rollStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true).
			MarginLeft(2)

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			MarginLeft(2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			MarginLeft(2)
)

// tracker is the client surface the model needs.
type tracker interface {
	Session(ctx context.Context, id int64) (*session, error)
	NextTurn(ctx context.Context, id int64) (*session, error)
	SetHP(ctx context.Context, sessionID, entryID int64, current int) error
	Roll(ctx context.Context, sessionID int64, formula string) (*rollResult, error)
}

type inputMode int

const (
	inputNone inputMode = iota
	inputDamage
	inputHeal
	inputRoll
)

func (m inputMode) prompt() string {
	switch m {
	case inputDamage:
		return "Damage: "
	case inputHeal:
		return "Healing: "
	case inputRoll:
		return "Roll: "
	}
	return ""
}

type model struct {
	api       tracker
	sessionID int64

	session  *session
	table    table.Model
	input    textinput.Model
	mode     inputMode
	lastRoll string
	err      string
}

// Messages
type sessionLoaded struct{ s *session }

type rolled struct{ res *rollResult }

type apiError struct{ err error }

func newModel(api tracker, sessionID int64) model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: " ", Width: 2},
			{Title: "Name", Width: 20},
			{Title: "Init", Width: 5},
			{Title: "HP", Width: 9},
			{Title: "AC", Width: 4},
			{Title: "Conditions", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	in := textinput.New()
	in.CharLimit = 32

	return model{api: api, sessionID: sessionID, table: t, input: in}
}

func (m model) Init() tea.Cmd {
	return m.load()
}

func (m model) load() tea.Cmd {
	return func() tea.Msg {
		s, err := m.api.Session(context.Background(), m.sessionID)
		if err != nil {
			return apiError{err}
		}
		return sessionLoaded{s}
	}
}

func (m model) nextTurn() tea.Cmd {
	return func() tea.Msg {
		s, err := m.api.NextTurn(context.Background(), m.sessionID)
		if err != nil {
			return apiError{err}
		}
		return sessionLoaded{s}
	}
}

func (m model) roll(formula string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.api.Roll(context.Background(), m.sessionID, formula)
		if err != nil {
			return apiError{err}
		}
		return rolled{res}
	}
}

func (m model) setHP(entryID int64, current int) tea.Cmd {
	return func() tea.Msg {
		if err := m.api.SetHP(context.Background(), m.sessionID, entryID, current); err != nil {
			return apiError{err}
		}
		return m.load()()
	}
}

// selected returns the combatant under the table cursor.
func (m model) selected() (combatant, bool) {
	if m.session == nil {
		return combatant{}, false
	}
	i := m.table.Cursor()
	if i < 0 || i >= len(m.session.Initiative) {
		return combatant{}, false
	}
	return m.session.Initiative[i], true
}

func rows(s *session) []table.Row {
	out := make([]table.Row, 0, len(s.Initiative))
	for _, c := range s.Initiative {
		marker := ""
		if c.IsActive {
			marker = "▶"
		}
		out = append(out, table.Row{
			marker,
			c.Name,
			strconv.Itoa(c.Initiative),
			fmt.Sprintf("%d/%d", c.HP.Current, c.HP.Max),
			strconv.Itoa(c.ArmorClass),
			strings.Join(c.Conditions, ", "),
		})
	}
	return out
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionLoaded:
		m.session = msg.s
		m.table.SetRows(rows(msg.s))
		m.err = ""
		return m, nil

	case rolled:
		faces := make([]string, len(msg.res.Rolls))
		for i, v := range msg.res.Rolls {
			faces[i] = strconv.Itoa(v)
		}
		m.lastRoll = fmt.Sprintf("%s [%s] = %d", msg.res.Formula, strings.Join(faces, ", "), msg.res.Total)
		m.err = ""
		return m, nil

	case apiError:
		m.err = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updateInput(msg)
		}
		return m.updateTable(msg)
	}

	return m, nil
}

func (m model) updateTable(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, m.load()
	case "n":
		return m, m.nextTurn()
	case "d", "h", "/":
		mode := map[string]inputMode{"d": inputDamage, "h": inputHeal, "/": inputRoll}[msg.String()]
		if mode != inputRoll {
			if _, ok := m.selected(); !ok {
				return m, nil
			}
		}
		m.mode = mode
		m.input.Prompt = mode.prompt()
		m.input.Reset()
		return m, m.input.Focus()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.mode = inputNone
		m.input.Blur()
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = inputNone
		m.input.Blur()
		if value == "" {
			return m, nil
		}
		return m.submit(mode, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) submit(mode inputMode, value string) (tea.Model, tea.Cmd) {
	if mode == inputRoll {
		return m, m.roll(value)
	}

	amount, err := strconv.Atoi(value)
	if err != nil || amount < 0 {
		m.err = fmt.Sprintf("%q is not a number of hit points", value)
		return m, nil
	}
	c, ok := m.selected()
	if !ok {
		return m, nil
	}
	if mode == inputDamage {
		amount = -amount
	}
	return m, m.setHP(c.ID, c.HP.Current+amount)
}

func (m model) View() string {
	if m.session == nil {
		content := []string{titleStyle.Render("Taverna"), "", infoStyle.Render("Loading session...")}
		if m.err != "" {
			content = append(content, "", errorStyle.Render("Error: "+m.err))
		}
		return lipgloss.JoinVertical(lipgloss.Left, content...)
	}

	s := m.session
	title := titleStyle.Render(fmt.Sprintf("Session %d: %s", s.SessionNumber, s.Title))
	info := infoStyle.Render(fmt.Sprintf("Round %d | %s | %d combatants", s.CurrentRound, s.Status, len(s.Initiative)))

	content := []string{title, info, "", tableStyle.Render(m.table.View())}
	if m.mode != inputNone {
		content = append(content, "", infoStyle.Render(m.input.View()))
	}
	if m.lastRoll != "" {
		content = append(content, "", rollStyle.Render(m.lastRoll))
	}
	if m.err != "" {
		content = append(content, "", errorStyle.Render("Error: "+m.err))
	}
	content = append(content, "", infoStyle.Render("↑/↓: select | n: next turn | d: damage | h: heal | /: roll | r: refresh | q: quit"))

	return lipgloss.JoinVertical(lipgloss.Left, content...)
}

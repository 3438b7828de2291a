// Package tui is the terminal status card: it reconciles the signed-in
// user's availability, toggles it on key presses and renders the countdown.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability"
	"github.com/MahdiBaghbani/dispoahora-go/internal/components/activities"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
)

// Options configures the card.
type Options struct {
	Context      context.Context
	Adapter      availability.SyncAdapter
	UserID       string
	DisplayName  string
	Clock        availability.Clock
	TickInterval time.Duration
	WriteTimeout time.Duration
	RepairStale  bool
	Log          *slog.Logger
}

type stage int

const (
	stageLoading stage = iota
	stageReady
)

// Model is the bubbletea model for the status card.
type Model struct {
	ctx         context.Context
	reconciler  *availability.Reconciler
	machine     *availability.Machine
	countdown   *availability.Countdown
	clock       availability.Clock
	states      <-chan availability.State
	unsubscribe func()
	userID      string
	displayName string
	keys        keyMap
	styles      styles

	stage     stage
	state     availability.State
	stale     bool
	remaining string

	// gen identifies the active countdown loop; messages from older loops
	// are dropped.
	gen     int
	ticks   <-chan string
	ticking availability.Expiry
}

// Messages

type loadedMsg availability.Effective

type stateMsg availability.State

type countdownMsg struct {
	gen  int
	text string
}

type countdownDoneMsg struct{ gen int }

// New creates the model and subscribes to its machine.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	log := logutil.NoopIfNil(opts.Log)

	machine := availability.NewMachine(opts.UserID, opts.Adapter, log,
		availability.WithClock(opts.Clock),
		availability.WithWriteTimeout(opts.WriteTimeout),
	)
	machine.SetActivity(activities.Default)
	states, unsubscribe := machine.Subscribe()

	displayName := opts.DisplayName
	if displayName == "" {
		displayName = opts.UserID
	}

	return Model{
		ctx: ctx,
		reconciler: availability.NewReconciler(opts.Adapter, log,
			availability.WithReconcileClock(opts.Clock),
			availability.WithRepairStale(opts.RepairStale),
		),
		machine:     machine,
		countdown:   availability.NewCountdown(opts.Clock, opts.TickInterval),
		clock:       opts.Clock,
		states:      states,
		unsubscribe: unsubscribe,
		userID:      opts.UserID,
		displayName: displayName,
		keys:        defaultKeyMap(),
		styles:      defaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), waitState(m.states))
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case loadedMsg:
		eff := availability.Effective(msg)
		m.machine.LoadIfIdle(eff)
		m.stage = stageReady
		m.stale = eff.Stale
		m.state = m.machine.State()
		return m, m.syncCountdown()

	case stateMsg:
		m.state = availability.State(msg)
		return m, tea.Batch(m.syncCountdown(), waitState(m.states))

	case countdownMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.remaining = msg.text
		return m, waitTick(m.gen, m.ticks)

	case countdownDoneMsg:
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.countdown.Stop()
		m.unsubscribe()
		return m, tea.Quit

	case m.stage != stageReady:
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		m.state = m.machine.Toggle(m.ctx)
		m.stale = false
		return m, m.syncCountdown()

	case key.Matches(msg, m.keys.Activity):
		n := int(msg.String()[0] - '0')
		if a, ok := activities.ByIndex(n); ok {
			m.machine.SetActivity(a.Name)
		}
		return m, nil
	}
	return m, nil
}

// syncCountdown starts a loop when a new expiry is shown and stops it when
// the card leaves Free.
func (m *Model) syncCountdown() tea.Cmd {
	if m.state.Status == availability.Free && !m.state.ExpiresAt.IsZero() {
		if m.ticking == m.state.ExpiresAt {
			return nil
		}
		m.gen++
		m.ticking = m.state.ExpiresAt
		m.remaining = ""
		m.ticks = m.countdown.Start(m.ctx, m.state.ExpiresAt)
		return waitTick(m.gen, m.ticks)
	}
	if m.ticking != "" {
		m.countdown.Stop()
		m.gen++
		m.ticking = ""
		m.ticks = nil
	}
	m.remaining = ""
	return nil
}

// Machine returns the card's machine, e.g. to Wait for writes on exit.
func (m Model) Machine() *availability.Machine {
	return m.machine
}

// View implements tea.Model.
func (m Model) View() string {
	s := m.styles
	var b strings.Builder

	b.WriteString(s.title.Render("DispoAhora · " + m.displayName))
	b.WriteString("\n\n")

	if m.stage == stageLoading {
		b.WriteString(s.label.Render("Cargando estado…"))
		return s.card.Render(b.String()) + "\n"
	}

	if m.state.Status == availability.Free {
		b.WriteString(s.free.Render("● " + availability.WireFree))
	} else {
		b.WriteString(s.busy.Render("○ " + availability.WireBusy))
	}
	if m.state.Pending {
		b.WriteString("  " + s.pending.Render("guardando…"))
	}
	b.WriteString("\n")

	if line := m.statusLine(); line != "" {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	current := m.machine.Activity()
	parts := make([]string, 0, len(activities.Defaults()))
	for i, a := range activities.Defaults() {
		item := fmt.Sprintf("%d %s", i+1, a.Name)
		if a.Name == current {
			parts = append(parts, s.selected.Render(item))
		} else {
			parts = append(parts, s.activity.Render(item))
		}
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n\n")

	helps := make([]string, 0, 3)
	for _, k := range m.keys.help() {
		h := k.Help()
		helps = append(helps, s.helpKey.Render(h.Key)+" "+s.helpDesc.Render(h.Desc))
	}
	b.WriteString(strings.Join(helps, "  "))

	return s.card.Render(b.String()) + "\n"
}

func (m Model) statusLine() string {
	s := m.styles
	switch {
	case m.state.Status != availability.Free:
		if m.stale {
			return s.label.Render("Tu estado libre ha caducado")
		}
		return ""
	case m.state.ExpiresAt.IsZero():
		return s.label.Render(availability.StaticLabel)
	}
	text := m.remaining
	if text == "" {
		text = availability.Remaining(m.state.ExpiresAt, m.clock.Now())
	}
	if text == availability.ErrorText {
		return s.errorText.Render(text)
	}
	return s.label.Render(availability.CountdownLabel(text))
}

// Commands

func (m Model) loadCmd() tea.Cmd {
	ctx, r, userID := m.ctx, m.reconciler, m.userID
	return func() tea.Msg {
		return loadedMsg(r.Reconcile(ctx, userID))
	}
}

func waitState(ch <-chan availability.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

func waitTick(gen int, ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		text, ok := <-ch
		if !ok {
			return countdownDoneMsg{gen: gen}
		}
		return countdownMsg{gen: gen, text: text}
	}
}

// Run starts the program and blocks until the user quits or the context is
// cancelled. Pending writes are allowed to settle before returning.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	m.machine.Wait()
	return exitError(m.ctx, err)
}

// exitError drops the error bubbletea reports when ctx ends the program,
// so a signal is a clean exit.
func exitError(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

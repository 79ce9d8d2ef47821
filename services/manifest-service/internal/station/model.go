// The scan station is a terminal front end for keyboard-wedge scanners. The
// scanner types the label and presses Enter; every read is checked locally
// (format, debounce) before it is sent to the manifest service.
package station

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/manifest"
	"github.com/oinam-labs/tac-portal-sub002/services/manifest-service/internal/scan"
)

// HistorySize caps the results kept on screen.
const HistorySize = 50

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeDuplicate
	outcomeRejected
	outcomeDebounced
)

type entry struct {
	At      time.Time
	Token   string
	Outcome outcome
	Code    string
	Message string
}

// Counters are the running totals for the shift at this station.
type Counters struct {
	Added      int
	Duplicates int
	Errors     int
}

type manifestLoadedMsg struct {
	m   *manifest.Manifest
	err error
}

type scanResultMsg struct {
	token string
	resp  manifest.ScanResponse
	err   error
}

// Model is the bubbletea model for one station working one manifest.
type Model struct {
	client     Scanner
	manifestID uuid.UUID
	manifest   *manifest.Manifest
	loadErr    error

	input     textinput.Model
	debouncer *scan.Debouncer
	window    time.Duration
	now       func() time.Time
	timeout   time.Duration

	counters Counters
	history  []entry
	pending  int
	width    int
}

// Option customizes a Model for tests.
type Option func(*Model)

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

func WithDebounce(window time.Duration) Option {
	return func(m *Model) { m.window = window }
}

func NewModel(client Scanner, manifestID uuid.UUID, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "scan a label or type an AWB"
	ti.CharLimit = 512
	ti.Prompt = "▸ "
	ti.Focus()

	m := Model{
		client:     client,
		manifestID: manifestID,
		input:      ti,
		now:        time.Now,
		window:     scan.DefaultDebounce,
		timeout:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.debouncer = scan.NewDebouncerWithClock(m.window, m.now)
	return m
}

func (m Model) Counters() Counters { return m.counters }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadManifest())
}

func (m Model) loadManifest() tea.Cmd {
	client, id, timeout := m.client, m.manifestID, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		man, err := client.Manifest(ctx, id)
		return manifestLoadedMsg{m: man, err: err}
	}
}

func (m Model) sendScan(token string) tea.Cmd {
	client, id, timeout := m.client, m.manifestID, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := client.Scan(ctx, id, token)
		return scanResultMsg{token: token, resp: resp, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-6)
		return m, nil
	case manifestLoadedMsg:
		m.manifest, m.loadErr = msg.m, msg.err
		return m, nil
	case scanResultMsg:
		m.pending--
		m.record(msg)
		if msg.err == nil && msg.resp.Success && !msg.resp.Duplicate {
			// Totals moved; refresh the header.
			return m, m.loadManifest()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	raw := m.input.Value()
	m.input.Reset()
	if strings.TrimSpace(raw) == "" {
		return m, nil
	}

	tok, err := scan.ParseScanInput(raw)
	if err != nil {
		m.push(entry{At: m.now(), Token: raw, Outcome: outcomeRejected, Code: manifest.ScanErrInvalidFormat, Message: err.Error()})
		m.counters.Errors++
		return m, nil
	}
	if !m.debouncer.Allow() {
		m.push(entry{At: m.now(), Token: tok.Normalized(), Outcome: outcomeDebounced, Code: manifest.ScanErrDebounced})
		return m, nil
	}

	m.pending++
	return m, m.sendScan(raw)
}

func (m *Model) record(msg scanResultMsg) {
	e := entry{At: m.now(), Token: msg.token}
	switch {
	case msg.err != nil:
		e.Outcome, e.Code, e.Message = outcomeRejected, manifest.ScanErrSystem, msg.err.Error()
		m.counters.Errors++
	case msg.resp.Duplicate:
		e.Outcome, e.Token, e.Message = outcomeDuplicate, msg.resp.AWBNumber, msg.resp.Message
		m.counters.Duplicates++
	case msg.resp.Success:
		e.Outcome, e.Token, e.Message = outcomeAdded, msg.resp.AWBNumber, msg.resp.Message
		m.counters.Added++
	default:
		e.Outcome, e.Code, e.Message = outcomeRejected, msg.resp.Error, msg.resp.Message
		m.counters.Errors++
	}
	m.push(e)
}

// push prepends e, newest first, keeping at most HistorySize entries.
func (m *Model) push(e entry) {
	m.history = append([]entry{e}, m.history...)
	if len(m.history) > HistorySize {
		m.history = m.history[:HistorySize]
	}
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	dupStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E0B040"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func (m Model) View() string {
	header := titleStyle.Render("TAC scan station")
	switch {
	case m.loadErr != nil:
		header += "\n" + errStyle.Render("manifest: "+m.loadErr.Error())
	case m.manifest != nil:
		man := m.manifest
		header += "\n" + fmt.Sprintf("%s  %s → %s  %s  %d shipments · %d pkgs · %.1f kg",
			man.ManifestNo, man.FromHubID, man.ToHubID, man.Status,
			man.TotalShipments, man.TotalPackages, man.TotalWeight)
	default:
		header += "\n" + mutedStyle.Render("loading manifest "+m.manifestID.String())
	}

	counters := fmt.Sprintf("%s  %s  %s",
		okStyle.Render(fmt.Sprintf("added %d", m.counters.Added)),
		dupStyle.Render(fmt.Sprintf("duplicates %d", m.counters.Duplicates)),
		errStyle.Render(fmt.Sprintf("errors %d", m.counters.Errors)))
	if m.pending > 0 {
		counters += mutedStyle.Render(fmt.Sprintf("  (%d in flight)", m.pending))
	}

	lines := make([]string, 0, len(m.history))
	for _, e := range m.history {
		lines = append(lines, renderEntry(e))
	}
	if len(lines) == 0 {
		lines = append(lines, mutedStyle.Render("no scans yet"))
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		m.input.View(),
		counters,
		"",
		strings.Join(lines, "\n"),
	)
	footer := mutedStyle.Render("enter: submit · esc: quit")
	return lipgloss.JoinVertical(lipgloss.Left, boxStyle.Render(body), footer)
}

func renderEntry(e entry) string {
	ts := mutedStyle.Render(e.At.Format("15:04:05"))
	switch e.Outcome {
	case outcomeAdded:
		return fmt.Sprintf("%s %s %s", ts, okStyle.Render("✓ "+e.Token), e.Message)
	case outcomeDuplicate:
		return fmt.Sprintf("%s %s %s", ts, dupStyle.Render("= "+e.Token), e.Message)
	case outcomeDebounced:
		return fmt.Sprintf("%s %s", ts, mutedStyle.Render("· "+e.Token+" ignored (double read)"))
	}
	return fmt.Sprintf("%s %s %s", ts, errStyle.Render("✗ "+e.Code), e.Message)
}

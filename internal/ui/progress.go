package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/progress"
)

// progressTick drives the periodic repaint; the actual byte count is read
// from the shared done channel each tick rather than pushed through a message,
// since TransferProgress.Add is called from PeerCore's loop goroutine and
// must never block on the UI program's own goroutine.
type progressTick time.Time

const progressTickInterval = 100 * time.Millisecond

func tickCmd() tea.Cmd {
	return tea.Tick(progressTickInterval, func(t time.Time) tea.Msg {
		return progressTick(t)
	})
}

// TransferProgress renders a single file transfer's progress bar. Add is
// safe to call concurrently with the running Bubble Tea program; it only
// ever touches the buffered done channel, never the model
// itself (Bubble Tea owns that on its own goroutine).
type TransferProgress struct {
	label   string
	total   int64
	done    chan int64 // buffered(1); holds the latest cumulative byte count
	program *tea.Program
}

// NewTransferProgress builds a progress reporter for a transfer of total
// bytes (0 renders an indeterminate "?" total). label is shown above the bar.
func NewTransferProgress(label string, total int64) *TransferProgress {
	return &TransferProgress{
		label: label,
		total: total,
		done:  make(chan int64, 1),
	}
}

// Add records the cumulative number of bytes transferred so far. Safe from
// any goroutine.
func (p *TransferProgress) Add(cumulative int64) {
	select {
	case <-p.done: // drop the stale value, if any
	default:
	}
	p.done <- cumulative
}

// Run drives the progress bar to completion on the current terminal,
// blocking until the transfer reaches total bytes or ctx-equivalent
// cancellation arrives via Finish. Intended to run on its own goroutine
// alongside the transfer itself.
func (p *TransferProgress) Run() error {
	m := transferModel{
		label: p.label,
		total: p.total,
		bar:   progress.New(progress.WithDefaultGradient()),
		done:  p.done,
	}
	p.program = tea.NewProgram(m)
	_, err := p.program.Run()
	if err != nil {
		return fmt.Errorf("ui: run progress program: %w", err)
	}
	return nil
}

// Finish tells the running program the transfer is complete, so it renders
// 100% and quits.
func (p *TransferProgress) Finish() {
	if p.total <= 0 {
		p.total = 1
	}
	p.Add(p.total)
}

type transferModel struct {
	label    string
	total    int64
	current  int64
	bar      progress.Model
	done     chan int64
	finished bool
}

func (m transferModel) Init() tea.Cmd { return tickCmd() }

func (m transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progressTick:
		select {
		case v := <-m.done:
			m.current = v
		default:
		}
		if m.total > 0 && m.current >= m.total {
			m.finished = true
			return m, tea.Quit
		}
		return m, tickCmd()
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 4
		return m, nil
	}
	return m, nil
}

func (m transferModel) View() string {
	var fraction float64
	if m.total > 0 {
		fraction = float64(m.current) / float64(m.total)
	}
	total := "?"
	if m.total > 0 {
		total = fmt.Sprint(m.total)
	}
	return fmt.Sprintf("%s\n\n%s  %d/%s bytes\n", m.label, m.bar.ViewAs(fraction), m.current, total)
}

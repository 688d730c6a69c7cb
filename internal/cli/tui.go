package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/atlasbake/pkg/atlas"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
)

// Bar styles
var (
	barFilledStyle = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle  = lipgloss.NewStyle().Foreground(colorDim)
	barLabelStyle  = lipgloss.NewStyle().Foreground(colorWhite)
)

const (
	defaultBarWidth = 40
	minBarWidth     = 10
)

// =============================================================================
// BakeModel - Live bake progress
// =============================================================================

// bakeProgressMsg carries one engine progress update.
type bakeProgressMsg struct {
	label    string
	fraction float64
}

// bakeDoneMsg ends the program with the pipeline outcome.
type bakeDoneMsg struct {
	result *pipeline.Result
	err    error
}

// BakeModel is the bubbletea model showing a progress bar while a bake runs.
type BakeModel struct {
	Title    string
	Label    string
	Fraction float64
	Width    int
	Start    time.Time

	Result    *pipeline.Result
	Err       error
	Canceling bool

	cancel context.CancelFunc
}

// NewBakeModel creates a progress model. cancel is called when the user
// presses ctrl+c or q.
func NewBakeModel(title string, cancel context.CancelFunc) BakeModel {
	return BakeModel{
		Title:  title,
		Label:  "Loading manifest",
		Width:  defaultBarWidth,
		Start:  time.Now(),
		cancel: cancel,
	}
}

func (m BakeModel) Init() tea.Cmd {
	return nil
}

func (m BakeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// The bake stops at its next cycle boundary and reports back.
			if !m.Canceling && m.cancel != nil {
				m.cancel()
			}
			m.Canceling = true
		}
	case bakeProgressMsg:
		m.Label = msg.label
		m.Fraction = clamp01(msg.fraction)
	case bakeDoneMsg:
		m.Result = msg.result
		m.Err = msg.err
		m.Fraction = 1
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.Width = min(defaultBarWidth, msg.Width-20)
		if m.Width < minBarWidth {
			m.Width = minBarWidth
		}
	}
	return m, nil
}

func (m BakeModel) View() string {
	if m.Result != nil || m.Err != nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(renderBar(m.Fraction, m.Width))
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(fmt.Sprintf("%3.0f%%", m.Fraction*100)))
	b.WriteString("\n")
	label := m.Label
	if m.Canceling {
		label = "Canceling after the current cycle"
	}
	b.WriteString(barLabelStyle.Render(label))
	b.WriteString(StyleDim.Render(fmt.Sprintf("  %s", time.Since(m.Start).Round(time.Second))))
	b.WriteString("\n")
	return b.String()
}

// renderBar draws a bar of width cells with fraction of them filled.
func renderBar(fraction float64, width int) string {
	filled := int(clamp01(fraction)*float64(width) + 0.5)
	return barFilledStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func clamp01(f float64) float64 {
	return max(0, min(1, f))
}

// =============================================================================
// Program
// =============================================================================

// bakeFunc runs a bake, reporting progress through the callback.
type bakeFunc func(ctx context.Context, progress atlas.ProgressFunc) (*pipeline.Result, error)

// runWithProgressBar runs fn while a bubbletea progress bar renders to out.
func runWithProgressBar(ctx context.Context, out io.Writer, title string, fn bakeFunc) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewBakeModel(title, cancel), tea.WithOutput(out), tea.WithoutSignalHandler())
	go func() {
		res, err := fn(ctx, func(label string, fraction float64) {
			p.Send(bakeProgressMsg{label: label, fraction: fraction})
		})
		p.Send(bakeDoneMsg{result: res, err: err})
	}()

	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress display: %w", err)
	}
	m := final.(BakeModel)
	return m.Result, m.Err
}

// runWithSpinner runs fn with a one-line spinner on out instead of the
// full progress bar.
func runWithSpinner(ctx context.Context, out io.Writer, fn bakeFunc) (*pipeline.Result, error) {
	s := newSpinnerWithContext(ctx, out, "Loading manifest")
	s.Start()
	defer s.Stop()
	return fn(ctx, s.Progress)
}

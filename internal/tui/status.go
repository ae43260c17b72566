// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"trap/internal/monitor"
)

const (
	historyLen    = 48
	detectionsLen = 5
)

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// StatusModel shows the live detector state: a score sparkline, the latest
// window and the most recent detections.
type StatusModel struct {
	title     string
	threshold float64
	events    <-chan monitor.Event

	spinner    spinner.Model
	last       monitor.Event
	scores     []float64
	detections []monitor.Event
	done       bool
}

type eventMsg monitor.Event

type eventsClosedMsg struct{}

// NewStatusModel follows events. threshold is drawn as the scale of the
// sparkline.
func NewStatusModel(title string, threshold float64, events <-chan monitor.Event) StatusModel {
	return StatusModel{
		title:     title,
		threshold: threshold,
		events:    events,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(highlightStyle)),
	}
}

func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.done = true
			return m, tea.Quit
		}

	case eventMsg:
		ev := monitor.Event(msg)
		m.last = ev
		m.scores = append(m.scores, ev.Score)
		if len(m.scores) > historyLen {
			m.scores = m.scores[len(m.scores)-historyLen:]
		}
		if ev.Detected {
			m.detections = append([]monitor.Event{ev}, m.detections...)
			if len(m.detections) > detectionsLen {
				m.detections = m.detections[:detectionsLen]
			}
		}
		return m, waitForEvent(m.events)

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m StatusModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")

	if m.last.Window == 0 {
		sb.WriteString(m.spinner.View() + " Waiting for the first window...\n")
	} else {
		fmt.Fprintf(&sb, "%s Window %d  %s score %.3f  level %d  dropped %d\n",
			m.spinner.View(), m.last.Window, m.last.Method, m.last.Score, m.last.Level, m.last.Dropped)
		sb.WriteString("\n  " + highlightStyle.Render(Sparkline(m.scores, m.threshold)) + "\n")
	}

	sb.WriteString("\n")
	if len(m.detections) == 0 {
		sb.WriteString(infoStyle.Render("No detections yet.") + "\n")
	}
	for _, d := range m.detections {
		line := fmt.Sprintf("%s  window %d  score %.3f", d.Time.Format("15:04:05"), d.Window, d.Score)
		if d.Capture != "" {
			line += "  " + d.Capture
		}
		sb.WriteString(alertStyle.Render("DETECTED") + " " + line + "\n")
	}

	sb.WriteString("\n" + helpLine(keys.Quit))
	return sb.String()
}

// Sparkline draws values as block characters. The top block is reached at
// twice scale or at the largest value, whichever is higher, so the
// threshold sits in the middle.
func Sparkline(values []float64, scale float64) string {
	top := 2 * scale
	for _, v := range values {
		top = max(top, v)
	}
	if top <= 0 {
		top = 1
	}
	out := make([]rune, len(values))
	last := len(sparkBlocks) - 1
	for i, v := range values {
		idx := int(max(0, v) / top * float64(last))
		out[i] = sparkBlocks[min(last, idx)]
	}
	return string(out)
}

// RunStatus shows the status view until the user quits, events is closed or
// ctx ends.
func RunStatus(ctx context.Context, title string, threshold float64, events <-chan monitor.Event) error {
	p := tea.NewProgram(NewStatusModel(title, threshold, events), tea.WithAltScreen())
	stop := context.AfterFunc(ctx, p.Quit)
	defer stop()
	_, err := p.Run()
	return err
}

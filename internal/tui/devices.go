// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"trap/internal/audio"
)

// chromeHeight is the number of lines around the device viewport.
const chromeHeight = 4

// DeviceListModel lets the user pick the microphone or the speaker. Only
// devices with channels in the wanted direction are listed.
type DeviceListModel struct {
	output bool
	fetch  func() ([]audio.Device, error)

	devices []audio.Device
	cursor  int
	chosen  *audio.Device
	err     error

	vp    viewport.Model
	sized bool
}

type devicesMsg struct{ devices []audio.Device }

type errMsg struct{ err error }

// NewDeviceListModel lists input devices, or output devices when output is set.
func NewDeviceListModel(output bool) DeviceListModel {
	return DeviceListModel{output: output, fetch: audio.HostDevices}
}

// usable reports whether d has channels in the picker's direction.
func (m DeviceListModel) usable(d audio.Device) bool {
	if m.output {
		return d.MaxOutputChannels > 0
	}
	return d.MaxInputChannels > 0
}

func (m DeviceListModel) Init() tea.Cmd {
	return func() tea.Msg {
		all, err := m.fetch()
		if err != nil {
			return errMsg{err}
		}
		devices := make([]audio.Device, 0, len(all))
		for _, d := range all {
			if m.usable(d) {
				devices = append(devices, d)
			}
		}
		return devicesMsg{devices}
	}
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if m.sized {
			m.vp.Width, m.vp.Height = msg.Width, msg.Height-chromeHeight
		} else {
			m.vp, m.sized = viewport.New(msg.Width, msg.Height-chromeHeight), true
		}

	case devicesMsg:
		m.devices, m.cursor = msg.devices, 0

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
	}

	m.vp.SetContent(m.rows())
	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m DeviceListModel) handleKey(msg tea.KeyMsg) (DeviceListModel, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit, true
	case key.Matches(msg, keys.Select):
		if len(m.devices) == 0 {
			return m, nil, true
		}
		d := m.devices[m.cursor]
		m.chosen = &d
		return m, tea.Quit, true
	case key.Matches(msg, keys.Up):
		m.cursor = max(0, m.cursor-1)
	case key.Matches(msg, keys.Down):
		m.cursor = min(max(0, len(m.devices)-1), m.cursor+1)
	default:
		return m, nil, false
	}
	m.vp.SetContent(m.rows())
	return m, nil, true
}

func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("%s\n\n%v\n\n%s", alertStyle.Render("Device error"), m.err, helpLine(keys.Quit))
	}
	if !m.sized {
		return "Initializing..."
	}

	title := "Select Microphone"
	if m.output {
		title = "Select Speaker"
	}
	return fmt.Sprintf("%s\n\n%s\n%s", titleStyle.Render(title), m.vp.View(),
		helpLine(keys.Up, keys.Down, keys.Select, keys.Quit))
}

// Chosen returns the selected device, or nil if the user quit.
func (m DeviceListModel) Chosen() *audio.Device { return m.chosen }

// rows renders one line per device and a detail line under the cursor.
func (m DeviceListModel) rows() string {
	if len(m.devices) == 0 {
		return dimStyle.Render("No usable audio devices found.")
	}

	var sb strings.Builder
	for i, d := range m.devices {
		channels := d.MaxInputChannels
		if m.output {
			channels = d.MaxOutputChannels
		}
		row := fmt.Sprintf("%3d  %-32s %dch  %s", d.ID, d.Name, channels, d.Kind())
		if i != m.cursor {
			sb.WriteString("  " + row + "\n")
			continue
		}
		sb.WriteString(highlightStyle.Render("> "+row) + "\n")
		sb.WriteString(dimStyle.Render(fmt.Sprintf("       %s, %.0f Hz default", d.HostAPI, d.DefaultSampleRate)) + "\n")
	}
	return sb.String()
}

// PickDevice runs the picker and returns the chosen device ID. ok is false
// when the user quit without choosing.
func PickDevice(output bool) (id int, ok bool, err error) {
	final, err := tea.NewProgram(NewDeviceListModel(output), tea.WithAltScreen()).Run()
	if err != nil {
		return 0, false, err
	}
	if d := final.(DeviceListModel).Chosen(); d != nil {
		return d.ID, true, nil
	}
	return 0, false, nil
}

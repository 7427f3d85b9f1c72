// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Thermoquad/serialdispatch/pkg/dispatch"
	"github.com/Thermoquad/serialdispatch/pkg/topic"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Latest state of one topic
type topicRow struct {
	formats  string
	length   int
	last     string
	count    uint64
	lastSeen time.Time
}

// TUI model
type monitorModel struct {
	d        *dispatch.Dispatcher
	connInfo string
	filter   map[string]bool // nil shows every topic
	events   <-chan tea.Msg

	rows  map[string]*topicRow
	table table.Model

	input      textinput.Model
	publishing bool

	stats         dispatch.Statistics
	eventLog      []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type topicMsg struct {
	message *topic.Message
}
type decodeErrMsg struct {
	err error
}
type linkDownMsg struct {
	err error
}
type publishResultMsg struct {
	descriptor string
	framed     []byte
	err        error
}

func newMonitorModel(d *dispatch.Dispatcher, connInfo string, topics []string, events <-chan tea.Msg) monitorModel {
	var filter map[string]bool
	if len(topics) > 0 {
		filter = make(map[string]bool, len(topics))
		for _, name := range topics {
			filter[name] = true
		}
	}

	columns := []table.Column{
		{Title: "Topic", Width: 16},
		{Title: "Formats", Width: 14},
		{Title: "Len", Width: 5},
		{Title: "Last Value", Width: 30},
		{Title: "Count", Width: 8},
		{Title: "Age", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	ti := textinput.New()
	ti.Placeholder = "bar:3,u16,u8 -10 20 30 -3 4 5"
	ti.CharLimit = 256
	ti.Width = 60
	ti.Prompt = "publish> "

	return monitorModel{
		d:             d,
		connInfo:      connInfo,
		filter:        filter,
		events:        events,
		rows:          make(map[string]*topicRow),
		table:         t,
		input:         ti,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForEvent(m.events),
		watchLink(m.d),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent delivers the next dispatcher event to the program
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func watchLink(d *dispatch.Dispatcher) tea.Cmd {
	return func() tea.Msg {
		<-d.Done()
		return linkDownMsg{err: d.Err()}
	}
}

// publishLineCmd parses "DESCRIPTOR [VALUES...]" and publishes it off the UI
// goroutine
func publishLineCmd(d *dispatch.Dispatcher, line string) tea.Cmd {
	return func() tea.Msg {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			return nil
		}
		desc, err := topic.ParseDescriptor(fields[0])
		if err != nil {
			return publishResultMsg{descriptor: fields[0], err: err}
		}
		cols, err := desc.Columns(fields[1:])
		if err != nil {
			return publishResultMsg{descriptor: fields[0], err: err}
		}
		framed, err := d.Publish(desc.Topic, cols...)
		return publishResultMsg{descriptor: desc.String(), framed: framed, err: err}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.publishing {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			m.publishing = true
			m.input.SetValue("")
			return m, m.input.Focus()
		case "r":
			m.d.ResetStatistics()
			m.stats = m.d.Statistics()
			m.addLogEntry("Statistics reset", false)
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 4)
		if h := msg.Height - 22; h > 3 {
			m.table.SetHeight(h)
		}

	case tickMsg:
		m.stats = m.d.Statistics()
		m.refreshTable()
		return m, tickCmd()

	case topicMsg:
		m.recordMessage(msg.message)
		return m, waitForEvent(m.events)

	case decodeErrMsg:
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.err), true)
		return m, waitForEvent(m.events)

	case publishResultMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("PUBLISH %s failed: %v", msg.descriptor, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Published %s (%d bytes framed)", msg.descriptor, len(msg.framed)), false)
		}
		return m, nil

	case linkDownMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		} else {
			m.addLogEntry("Connection closed", true)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m monitorModel) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.publishing = false
		m.input.Blur()
		return m, nil
	case "enter":
		line := m.input.Value()
		m.publishing = false
		m.input.Blur()
		return m, publishLineCmd(m.d, line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) recordMessage(msg *topic.Message) {
	if m.filter != nil && !m.filter[msg.Topic] {
		return
	}

	row, ok := m.rows[msg.Topic]
	if !ok {
		row = &topicRow{}
		m.rows[msg.Topic] = row
		m.addLogEntry(fmt.Sprintf("New topic %q", msg.Topic), false)
	}

	formats := make([]string, len(msg.Columns))
	values := make([]string, len(msg.Columns))
	for i, c := range msg.Columns {
		formats[i] = strings.ToLower(c.Format.String())
		values[i] = topic.FormatColumn(c)
	}
	row.formats = strings.Join(formats, ",")
	row.length = msg.Length
	row.last = strings.Join(values, " | ")
	row.count++
	row.lastSeen = msg.Received

	m.refreshTable()
}

func (m *monitorModel) refreshTable() {
	names := make([]string, 0, len(m.rows))
	for name := range m.rows {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([]table.Row, 0, len(names))
	for _, name := range names {
		r := m.rows[name]
		rows = append(rows, table.Row{
			name,
			r.formats,
			fmt.Sprintf("%d", r.length),
			r.last,
			fmt.Sprintf("%d", r.count),
			formatAge(time.Since(r.lastSeen)),
		})
	}
	m.table.SetRows(rows)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// formatAge renders a short age such as "3s" or "2m"
func formatAge(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SERIALDISPATCH - MONITOR"))
	s.WriteString("\n")
	mode := "All topics"
	if m.filter != nil {
		mode = fmt.Sprintf("%d topics", len(m.filter))
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | 'p' publish, 'r' reset stats, 'q' quit",
		m.connInfo, mode)))
	s.WriteString("\n\n")

	// Statistics
	st := m.stats
	var validPercent float64
	if st.Frames > 0 {
		validPercent = float64(st.ValidFrames) * 100.0 / float64(st.Frames)
	}

	var stats strings.Builder
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Frames)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidFrames, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.Errors())),
	)
	if st.ChecksumErrors > 0 || st.DecodeErrors > 0 || st.Malformed > 0 {
		fmt.Fprintf(&stats, "%s %s   %s %s   %s %s\n",
			statsLabelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
			statsLabelStyle.Render("Malformed:"), errorStyle.Render(fmt.Sprintf("%d", st.Malformed)),
			statsLabelStyle.Render("Decode:"), errorStyle.Render(fmt.Sprintf("%d", st.DecodeErrors)),
		)
	}
	fmt.Fprintf(&stats, "%s %s   %s %s   %s %s",
		statsLabelStyle.Render("Messages:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Messages)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f msg/s", st.MessageRate)),
		statsLabelStyle.Render("Published:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Published)),
	)

	s.WriteString(boxStyle.Render(stats.String()))
	s.WriteString("\n\n")

	// Topics
	s.WriteString(statsLabelStyle.Render("Topics:"))
	s.WriteString("\n")
	if len(m.rows) == 0 {
		s.WriteString(infoStyle.Render("  Waiting for messages..."))
		s.WriteString("\n")
	} else {
		s.WriteString(boxStyle.Render(m.table.View()))
		s.WriteString("\n")
	}

	// Publish prompt
	if m.publishing {
		s.WriteString(m.input.View())
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("  DESCRIPTOR VALUES... | enter to send, esc to cancel"))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := 5
	var logContent strings.Builder
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("15:04:05.000")
			if entry.isError {
				fmt.Fprintf(&logContent, "%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				)
			} else {
				fmt.Fprintf(&logContent, "%s %s\n",
					headerStyle.Render(timestamp),
					infoStyle.Render("ℹ "+entry.message),
				)
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
)

const maxTranscript = 500

// console is the server side of the model.
type console interface {
	login(password string) error
	run(dialect, src string) error
	validate(dialect, src string) error
	pathOp(opcode byte, path string) error
	bare(opcode byte) error
	next() tea.Cmd
	close() error
}

type model struct {
	conn     console
	addr     string
	password string
	dialect  string

	input    string
	buffer   []string
	lines    []line
	examples map[string]example

	width  int
	height int
	closed bool
}

func newModel(conn console, addr, password, dialect string) model {
	return model{
		conn:     conn,
		addr:     addr,
		password: password,
		dialect:  dialect,
		examples: make(map[string]example),
	}
}

func (m model) Init() tea.Cmd {
	return m.conn.next()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case frameMsg:
		m.appendLines(msg.lines...)
		for _, ex := range msg.examples {
			m.examples[ex.name] = ex
		}
		if msg.opcode == packet.S_OPCODE_HELLO && msg.loginRequired {
			if m.password == "" {
				m.appendLines(line{lineInfo, "use :login <password>"})
			} else {
				m.report(m.conn.login(m.password))
			}
		}
		return m, m.conn.next()

	case disconnectMsg:
		m.closed = true
		text := "disconnected"
		if msg.err != nil {
			text += ": " + msg.err.Error()
		}
		m.appendLines(line{lineError, text})
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.conn.close()
		return m, tea.Quit
	case tea.KeyCtrlR:
		m.submitBuffer()
	case tea.KeyEsc:
		m.input = ""
	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
	case tea.KeyTab:
		m.input += "    "
	case tea.KeyEnter:
		text := m.input
		m.input = ""
		if strings.HasPrefix(text, ":") {
			return m.command(text[1:])
		}
		m.buffer = append(m.buffer, text)
	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
	}
	return m, nil
}

// command runs a ':' command line.
func (m model) command(text string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(strings.TrimSpace(text), " ")
	arg = strings.TrimSpace(arg)
	m.appendLines(line{lineEcho, ":" + text})

	if m.closed && name != "quit" && name != "q" {
		m.appendLines(line{lineError, "not connected"})
		return m, nil
	}

	switch name {
	case "quit", "q":
		m.conn.close()
		return m, tea.Quit
	case "run", "r":
		m.submitBuffer()
	case "check":
		m.report(m.conn.validate(m.dialect, m.source()))
	case "new":
		m.buffer = nil
	case "dialect":
		if arg == "" {
			m.appendLines(line{lineInfo, "dialect " + m.dialect})
		} else {
			m.dialect = arg
		}
	case "login":
		m.report(m.conn.login(arg))
	case "watch", "w":
		m.pathCommand(packet.C_OPCODE_WATCH, arg)
	case "unwatch":
		m.pathCommand(packet.C_OPCODE_UNWATCH, arg)
	case "get":
		m.pathCommand(packet.C_OPCODE_GET, arg)
	case "clear":
		m.pathCommand(packet.C_OPCODE_CLEAR, arg)
	case "values":
		m.report(m.conn.bare(packet.C_OPCODE_GETALL))
	case "reset":
		m.report(m.conn.bare(packet.C_OPCODE_RESET))
	case "ping":
		m.report(m.conn.bare(packet.C_OPCODE_PING))
	case "examples":
		m.report(m.conn.bare(packet.C_OPCODE_EXAMPLES))
	case "load":
		m.load(arg)
	default:
		m.appendLines(line{lineError, "unknown command :" + name})
	}
	return m, nil
}

func (m *model) pathCommand(opcode byte, path string) {
	if path == "" {
		m.appendLines(line{lineError, "missing path"})
		return
	}
	m.report(m.conn.pathOp(opcode, path))
}

// load replaces the buffer with a bundled example and watches its paths.
func (m *model) load(name string) {
	ex, ok := m.examples[name]
	if !ok {
		m.appendLines(line{lineError, fmt.Sprintf("no example %q, try :examples", name)})
		return
	}
	m.buffer = strings.Split(strings.TrimRight(ex.source, "\n"), "\n")
	m.dialect = ex.dialect
	for _, path := range ex.watch {
		m.report(m.conn.pathOp(packet.C_OPCODE_WATCH, path))
	}
	m.appendLines(line{lineInfo, "loaded " + ex.name + ", :run to execute"})
}

func (m *model) submitBuffer() {
	if len(m.buffer) == 0 {
		m.appendLines(line{lineError, "buffer is empty"})
		return
	}
	m.report(m.conn.run(m.dialect, m.source()))
}

func (m *model) source() string {
	return strings.Join(m.buffer, "\n") + "\n"
}

func (m *model) report(err error) {
	if err != nil {
		m.appendLines(line{lineError, err.Error()})
	}
}

func (m *model) appendLines(ls ...line) {
	m.lines = append(m.lines, ls...)
	if over := len(m.lines) - maxTranscript; over > 0 {
		m.lines = append(m.lines[:0], m.lines[over:]...)
	}
}

func (m model) View() string {
	header := headerStyle.Render(fmt.Sprintf("pyquest console  %s  [%s]", m.addr, m.dialect))

	var buf string
	if len(m.buffer) > 0 {
		buf = bufferStyle.Render(strings.Join(m.buffer, "\n"))
	}
	prompt := promptStyle.Render("> ") + m.input
	footer := footerStyle.Render("enter: add line  ctrl+r: run  :watch :get :values :examples :load :reset :quit")

	room := m.height - lipgloss.Height(header) - lipgloss.Height(buf) - 3
	if m.height == 0 {
		room = 20
	}
	start := 0
	if room < len(m.lines) {
		start = len(m.lines) - max(room, 0)
	}
	rendered := make([]string, 0, len(m.lines)-start)
	for _, l := range m.lines[start:] {
		rendered = append(rendered, renderLine(l))
	}

	parts := []string{header, strings.Join(rendered, "\n")}
	if buf != "" {
		parts = append(parts, buf)
	}
	parts = append(parts, prompt, footer)
	return strings.Join(parts, "\n")
}

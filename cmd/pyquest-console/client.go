package main

import (
	"fmt"
	gonet "net"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
)

// lineKind selects how a transcript line is styled.
type lineKind int

const (
	lineInfo lineKind = iota
	lineOutput
	lineChange
	lineError
	lineEcho
)

type line struct {
	kind lineKind
	text string
}

// frameMsg is one decoded server frame.
type frameMsg struct {
	opcode byte
	lines  []line

	loginRequired bool
	loggedIn      bool
	examples      []example
}

// disconnectMsg ends the frame stream.
type disconnectMsg struct{ err error }

type example struct {
	name    string
	title   string
	dialect string
	watch   []string
	source  string
}

// client owns the console connection. Frames are read on a goroutine and
// handed to the program one at a time through frames.
type client struct {
	conn   gonet.Conn
	frames chan tea.Msg

	mu sync.Mutex
}

func dial(addr string, timeout time.Duration) (*client, error) {
	conn, err := gonet.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &client{conn: conn, frames: make(chan tea.Msg, 64)}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	for {
		payload, err := net.ReadFrame(c.conn)
		if err != nil {
			c.frames <- disconnectMsg{err: err}
			close(c.frames)
			return
		}
		c.frames <- decodeFrame(payload)
	}
}

// next waits for the following frame.
func (c *client) next() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-c.frames
		if !ok {
			return disconnectMsg{}
		}
		return msg
	}
}

func (c *client) send(w *packet.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return net.WriteFrame(c.conn, w.Bytes())
}

func (c *client) close() error {
	return c.conn.Close()
}

func (c *client) login(password string) error {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_LOGIN)
	w.WriteS(password)
	return c.send(w)
}

func (c *client) run(dialect, src string) error {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_RUN)
	w.WriteS(dialect)
	w.WriteS(src)
	return c.send(w)
}

func (c *client) validate(dialect, src string) error {
	w := packet.NewWriterWithOpcode(packet.C_OPCODE_VALIDATE)
	w.WriteS(dialect)
	w.WriteS(src)
	return c.send(w)
}

func (c *client) pathOp(opcode byte, path string) error {
	w := packet.NewWriterWithOpcode(opcode)
	w.WriteS(path)
	return c.send(w)
}

func (c *client) bare(opcode byte) error {
	return c.send(packet.NewWriterWithOpcode(opcode))
}

// decodeFrame turns a server payload into transcript lines.
func decodeFrame(payload []byte) frameMsg {
	r := packet.NewReader(payload)
	msg := frameMsg{opcode: r.Opcode()}

	switch msg.opcode {
	case packet.S_OPCODE_HELLO:
		version := r.ReadS()
		msg.loginRequired = r.ReadC() != 0
		text := "connected (" + version + ")"
		if msg.loginRequired {
			text += ", login required"
		}
		msg.lines = []line{{lineInfo, text}}

	case packet.S_OPCODE_LOGIN:
		msg.loggedIn = r.ReadC() != 0
		if msg.loggedIn {
			msg.lines = []line{{lineInfo, "logged in"}}
		} else {
			msg.lines = []line{{lineError, "login failed"}}
		}

	case packet.S_OPCODE_VALIDATE:
		ok := r.ReadC() != 0
		reason := r.ReadS()
		if ok {
			msg.lines = []line{{lineInfo, "script accepted"}}
		} else {
			msg.lines = []line{{lineError, "script rejected: " + reason}}
		}

	case packet.S_OPCODE_OUTPUT:
		id := r.ReadS()
		accepted := r.ReadC() != 0
		text := r.ReadS()
		if !accepted {
			msg.lines = []line{{lineError, "run " + shortID(id) + " rejected: " + text}}
			break
		}
		msg.lines = append(msg.lines, line{lineInfo, "run " + shortID(id)})
		for _, l := range splitTranscript(text) {
			kind := lineOutput
			if strings.HasPrefix(l, "Error:") {
				kind = lineError
			}
			msg.lines = append(msg.lines, line{kind, l})
		}

	case packet.S_OPCODE_CHANGE:
		path := r.ReadS()
		newValue := r.ReadS()
		oldSet := r.ReadC() != 0
		oldValue := r.ReadS()
		if !oldSet {
			oldValue = "unset"
		}
		msg.lines = []line{{lineChange, fmt.Sprintf("%s: %s -> %s", path, oldValue, newValue)}}

	case packet.S_OPCODE_VALUE:
		path := r.ReadS()
		set := r.ReadC() != 0
		value := r.ReadS()
		if !set {
			value = "unset"
		}
		msg.lines = []line{{lineInfo, path + " = " + value}}

	case packet.S_OPCODE_VALUES:
		n := int(r.ReadH())
		if n == 0 {
			msg.lines = []line{{lineInfo, "no values"}}
		}
		for i := 0; i < n; i++ {
			path := r.ReadS()
			value := r.ReadS()
			msg.lines = append(msg.lines, line{lineInfo, path + " = " + value})
		}

	case packet.S_OPCODE_RESET:
		path := r.ReadS()
		if path == "" {
			msg.lines = []line{{lineInfo, "tracker reset"}}
		} else {
			msg.lines = []line{{lineInfo, "cleared " + path}}
		}

	case packet.S_OPCODE_WATCHING:
		path := r.ReadS()
		watching := r.ReadC() != 0
		count := r.ReadH()
		if watching {
			msg.lines = []line{{lineInfo, fmt.Sprintf("watching %s (%d)", path, count)}}
		} else {
			msg.lines = []line{{lineInfo, "stopped watching " + path}}
		}

	case packet.S_OPCODE_PONG:
		msg.lines = []line{{lineInfo, "pong"}}

	case packet.S_OPCODE_ERROR:
		msg.lines = []line{{lineError, r.ReadS()}}

	case packet.S_OPCODE_EXAMPLES:
		n := int(r.ReadH())
		for i := 0; i < n; i++ {
			ex := example{
				name:    r.ReadS(),
				title:   r.ReadS(),
				dialect: r.ReadS(),
			}
			if watch := r.ReadS(); watch != "" {
				ex.watch = strings.Split(watch, ",")
			}
			ex.source = r.ReadS()
			msg.examples = append(msg.examples, ex)
			msg.lines = append(msg.lines, line{lineInfo, fmt.Sprintf("%-10s %-6s %s", ex.name, ex.dialect, ex.title)})
		}

	default:
		msg.lines = []line{{lineError, fmt.Sprintf("unknown opcode %d", msg.opcode)}}
	}
	return msg
}

func splitTranscript(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

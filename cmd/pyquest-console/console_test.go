package main

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	opcode byte
	args   []string
}

type fakeConsole struct {
	sent   []sent
	closed bool
}

func (f *fakeConsole) login(password string) error {
	f.sent = append(f.sent, sent{packet.C_OPCODE_LOGIN, []string{password}})
	return nil
}

func (f *fakeConsole) run(dialect, src string) error {
	f.sent = append(f.sent, sent{packet.C_OPCODE_RUN, []string{dialect, src}})
	return nil
}

func (f *fakeConsole) validate(dialect, src string) error {
	f.sent = append(f.sent, sent{packet.C_OPCODE_VALIDATE, []string{dialect, src}})
	return nil
}

func (f *fakeConsole) pathOp(opcode byte, path string) error {
	f.sent = append(f.sent, sent{opcode, []string{path}})
	return nil
}

func (f *fakeConsole) bare(opcode byte) error {
	f.sent = append(f.sent, sent{opcode, nil})
	return nil
}

func (f *fakeConsole) next() tea.Cmd { return nil }

func (f *fakeConsole) close() error {
	f.closed = true
	return nil
}

func typeLine(t *testing.T, m model, text string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(model)
}

func TestDecodeOutput(t *testing.T) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_OUTPUT)
	w.WriteS("0123456789abcdef")
	w.WriteBool(true)
	w.WriteS("hi\nError: boom\n")

	msg := decodeFrame(w.Bytes())
	require.Len(t, msg.lines, 3)
	assert.Equal(t, "run 01234567", msg.lines[0].text)
	assert.Equal(t, line{lineOutput, "hi"}, msg.lines[1])
	assert.Equal(t, line{lineError, "Error: boom"}, msg.lines[2])
}

func TestDecodeRejectedOutput(t *testing.T) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_OUTPUT)
	w.WriteS("id")
	w.WriteBool(false)
	w.WriteS("import not allowed")

	msg := decodeFrame(w.Bytes())
	require.Len(t, msg.lines, 1)
	assert.Equal(t, lineError, msg.lines[0].kind)
	assert.Contains(t, msg.lines[0].text, "import not allowed")
}

func TestDecodeChange(t *testing.T) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_CHANGE)
	w.WriteS("Player.Health")
	w.WriteS("90")
	w.WriteBool(false)
	w.WriteS("null")

	msg := decodeFrame(w.Bytes())
	require.Len(t, msg.lines, 1)
	assert.Equal(t, line{lineChange, "Player.Health: unset -> 90"}, msg.lines[0])
}

func TestDecodeExamples(t *testing.T) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_EXAMPLES)
	w.WriteH(1)
	w.WriteS("health")
	w.WriteS("Health drain")
	w.WriteS("python")
	w.WriteS("Player.Health,Player.Name")
	w.WriteS("Player.Health = 1\n")

	msg := decodeFrame(w.Bytes())
	require.Len(t, msg.examples, 1)
	assert.Equal(t, []string{"Player.Health", "Player.Name"}, msg.examples[0].watch)
	assert.Equal(t, "python", msg.examples[0].dialect)
}

func TestDecodeUnknownOpcode(t *testing.T) {
	msg := decodeFrame([]byte{250})
	require.Len(t, msg.lines, 1)
	assert.Equal(t, lineError, msg.lines[0].kind)
}

func TestHelloLogsIn(t *testing.T) {
	fake := &fakeConsole{}
	m := newModel(fake, "addr", "secret", "python")

	next, _ := m.Update(frameMsg{opcode: packet.S_OPCODE_HELLO, loginRequired: true})
	require.Len(t, fake.sent, 1)
	assert.Equal(t, sent{packet.C_OPCODE_LOGIN, []string{"secret"}}, fake.sent[0])
	assert.NotEmpty(t, next.(model).lines)
}

func TestBufferAndRun(t *testing.T) {
	fake := &fakeConsole{}
	m := newModel(fake, "addr", "", "python")

	m = typeLine(t, m, "Player.Health = 5")
	m = typeLine(t, m, "print(Player.Health)")
	assert.Len(t, m.buffer, 2)

	m = typeLine(t, m, ":run")
	require.Len(t, fake.sent, 1)
	assert.Equal(t, packet.C_OPCODE_RUN, fake.sent[0].opcode)
	assert.Equal(t, []string{"python", "Player.Health = 5\nprint(Player.Health)\n"}, fake.sent[0].args)
}

func TestRunEmptyBuffer(t *testing.T) {
	fake := &fakeConsole{}
	m := typeLine(t, newModel(fake, "addr", "", "python"), ":run")
	assert.Empty(t, fake.sent)
	assert.Equal(t, lineError, m.lines[len(m.lines)-1].kind)
}

func TestPathCommands(t *testing.T) {
	fake := &fakeConsole{}
	m := newModel(fake, "addr", "", "python")

	m = typeLine(t, m, ":watch Game.Score")
	m = typeLine(t, m, ":get Game.Score")
	m = typeLine(t, m, ":clear Game.Score")
	m = typeLine(t, m, ":values")
	m = typeLine(t, m, ":watch")

	require.Len(t, fake.sent, 4)
	assert.Equal(t, sent{packet.C_OPCODE_WATCH, []string{"Game.Score"}}, fake.sent[0])
	assert.Equal(t, sent{packet.C_OPCODE_GET, []string{"Game.Score"}}, fake.sent[1])
	assert.Equal(t, sent{packet.C_OPCODE_CLEAR, []string{"Game.Score"}}, fake.sent[2])
	assert.Equal(t, sent{packet.C_OPCODE_GETALL, nil}, fake.sent[3])
	assert.Equal(t, line{lineError, "missing path"}, m.lines[len(m.lines)-1])
}

func TestLoadExample(t *testing.T) {
	fake := &fakeConsole{}
	m := newModel(fake, "addr", "", "python")
	next, _ := m.Update(frameMsg{
		opcode: packet.S_OPCODE_EXAMPLES,
		examples: []example{{
			name:    "regen",
			dialect: "lua",
			watch:   []string{"Player.Health"},
			source:  "Player.Health = 10\n",
		}},
	})
	m = typeLine(t, next.(model), ":load regen")

	assert.Equal(t, "lua", m.dialect)
	assert.Equal(t, []string{"Player.Health = 10"}, m.buffer)
	require.Len(t, fake.sent, 1)
	assert.Equal(t, sent{packet.C_OPCODE_WATCH, []string{"Player.Health"}}, fake.sent[0])
}

func TestDisconnectBlocksCommands(t *testing.T) {
	fake := &fakeConsole{}
	next, _ := newModel(fake, "addr", "", "python").Update(disconnectMsg{})
	m := typeLine(t, next.(model), ":values")
	assert.Empty(t, fake.sent)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.NotNil(t, cmd)
	assert.True(t, fake.closed)
}

func TestTranscriptBounded(t *testing.T) {
	m := newModel(&fakeConsole{}, "addr", "", "python")
	for i := 0; i < maxTranscript+10; i++ {
		m.appendLines(line{lineInfo, "x"})
	}
	assert.Len(t, m.lines, maxTranscript)
	assert.NotEmpty(t, m.View())
}

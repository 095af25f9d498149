package packet

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jiecolao/pyquest-game/internal/watch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWriterReader(t *testing.T) {
	w := NewWriterWithOpcode(S_OPCODE_VALUE)
	w.WriteS("Player.Health")
	w.WriteBool(true)
	w.WriteValue(watch.Int(100))
	w.WriteH(513)
	w.WriteD(-2)

	r := NewReader(w.Bytes())
	assert.Equal(t, S_OPCODE_VALUE, r.Opcode())
	assert.Equal(t, "Player.Health", r.ReadS())
	assert.Equal(t, byte(1), r.ReadC())
	assert.Equal(t, "100", r.ReadS())
	assert.Equal(t, uint16(513), r.ReadH())
	assert.Equal(t, int32(-2), r.ReadD())
	assert.Zero(t, r.Remaining())
	// reads past the end are zero, never a panic
	assert.Zero(t, r.ReadD())
	assert.Equal(t, "", r.ReadS())
}

func TestStringsAreNFC(t *testing.T) {
	decomposed := "Cafe\u0301.Name"
	w := NewWriterWithOpcode(C_OPCODE_WATCH)
	w.WriteS(decomposed)
	assert.Equal(t, "Caf\u00e9.Name", NewReader(w.Bytes()).ReadS())

	raw := append([]byte{C_OPCODE_WATCH}, []byte(decomposed)...)
	assert.Equal(t, "Caf\u00e9.Name", NewReader(append(raw, 0)).ReadS())
}

func TestWriteSDropsNUL(t *testing.T) {
	w := NewWriter()
	w.WriteS("a\x00b")
	assert.Equal(t, []byte("ab\x00"), w.Bytes())
}

func TestWriteSTailKeepsEnd(t *testing.T) {
	w := NewWriter()
	w.WriteSTail("short", 64, "...")
	assert.Equal(t, "short", NewReader(append([]byte{0}, w.Bytes()...)).ReadS())

	long := strings.Repeat("é", 50) + "Error: boom"
	w = NewWriter()
	w.WriteSTail(long, 20, "...")
	got := NewReader(append([]byte{0}, w.Bytes()...)).ReadS()
	assert.LessOrEqual(t, len(got), 20)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "Error: boom"))
	assert.True(t, utf8.ValidString(got))
}

func TestWriteValueBoundsLongText(t *testing.T) {
	w := NewWriter()
	w.WriteValue(watch.String(strings.Repeat("<", 3*MaxValueText)))
	text := NewReader(append([]byte{0}, w.Bytes()...)).ReadS()
	assert.LessOrEqual(t, len(text), MaxValueText)

	var back string
	require.NoError(t, json.Unmarshal([]byte(text), &back))
	assert.True(t, strings.HasSuffix(back, "..."))
}

func TestWriteValueNonFinite(t *testing.T) {
	w := NewWriter()
	w.WriteValue(watch.Number(math.NaN()))
	assert.Equal(t, `"NaN"`, NewReader(append([]byte{0}, w.Bytes()...)).ReadS())
}

func TestRegistryStates(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	var got []string
	reg.Register(C_OPCODE_GET, []SessionState{StateReady}, func(_ any, r *Reader) {
		got = append(got, r.ReadS())
	})

	w := NewWriterWithOpcode(C_OPCODE_GET)
	w.WriteS("Game.Score")
	require.NoError(t, reg.Dispatch(nil, StateReady, w.Bytes()))
	assert.Equal(t, []string{"Game.Score"}, got)

	assert.Error(t, reg.Dispatch(nil, StateConnected, w.Bytes()))
	assert.NoError(t, reg.Dispatch(nil, StateReady, []byte{200}), "unknown opcodes are ignored")
	assert.Error(t, reg.Dispatch(nil, StateReady, nil))
	assert.Len(t, got, 1)
}

func TestRegistryRecoversPanic(t *testing.T) {
	reg := NewRegistry(zaptest.NewLogger(t))
	reg.Register(C_OPCODE_PING, []SessionState{StateReady}, func(any, *Reader) {
		panic(errors.New("boom"))
	})
	err := reg.Dispatch(nil, StateReady, []byte{C_OPCODE_PING})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

package packet

import (
	"encoding/binary"
	"encoding/json"
	"unicode/utf8"

	"github.com/jiecolao/pyquest-game/internal/watch"
	"golang.org/x/text/unicode/norm"
)

// Writer builds a server packet. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func NewWriterWithOpcode(opcode byte) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.WriteC(opcode)
	return w
}

// WriteC writes 1 byte.
func (w *Writer) WriteC(v byte) {
	w.buf = append(w.buf, v)
}

// WriteBool writes 1 byte, 1 for true.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteC(1)
	} else {
		w.WriteC(0)
	}
}

// WriteH writes 2 bytes little-endian.
func (w *Writer) WriteH(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteD writes 4 bytes little-endian (signed or unsigned via cast).
func (w *Writer) WriteD(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

const (
	// MaxPayload is the largest packet one frame can carry, opcode included.
	MaxPayload = 65533
	// MaxValueText bounds the JSON text of a single value on the wire.
	MaxValueText = 8 << 10
)

// WriteS writes a null-terminated NFC UTF-8 string. Embedded NULs are dropped.
func (w *Writer) WriteS(s string) {
	w.buf = append(w.buf, wireText(s)...)
	w.buf = append(w.buf, 0) // null terminator
}

// WriteSTail writes s like WriteS but keeps at most max bytes of it. When s
// is longer its head is dropped and marker takes its place, so the end of
// the text, where a transcript carries its error line, survives.
func (w *Writer) WriteSTail(s string, max int, marker string) {
	b := wireText(s)
	if len(b) > max {
		cut := len(b) - (max - len(marker))
		for cut < len(b) && !utf8.RuneStart(b[cut]) {
			cut++
		}
		b = append([]byte(marker), b[cut:]...)
	}
	w.buf = append(w.buf, b...)
	w.buf = append(w.buf, 0)
}

// WriteValue writes a tracked value as JSON text. Values whose text is
// longer than MaxValueText are sent as a shortened JSON string ending in
// "...".
func (w *Writer) WriteValue(v watch.Value) {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte("null")
	}
	if len(b) > MaxValueText {
		text := v.String()
		for n := MaxValueText - 16; ; n /= 2 {
			b, _ = json.Marshal(headOf(text, n) + "...")
			if len(b) <= MaxValueText {
				break
			}
		}
	}
	w.WriteS(string(b))
}

func wireText(s string) []byte {
	src := norm.NFC.Bytes([]byte(s))
	out := src[:0]
	for _, b := range src {
		if b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// headOf returns at most n bytes of s, cut on a rune boundary.
func headOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// WriteBytes writes raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// Bytes returns the packet content.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length.
func (w *Writer) Len() int {
	return len(w.buf)
}

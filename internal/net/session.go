package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"go.uber.org/zap"
)

// Session represents a single console connection. Network I/O runs in
// dedicated goroutines; tracker state is touched only from the game loop.
type Session struct {
	ID   uint64
	conn Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outBuf [][]byte // buffered packets, flushed by OutputSystem (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	writeTimeout time.Duration

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int   // max packets/sec (0 = unlimited)
	pktCount   int   // packets received this second
	pktResetAt int64 // unix second of last counter reset

	log *zap.Logger
}

// Conn is the subset of net.Conn a Session needs.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetWriteDeadline(t time.Time) error
}

// SessionOptions sizes the queues and limits of a session.
type SessionOptions struct {
	InSize       int
	OutSize      int
	PktPerSec    int
	WriteTimeout time.Duration
	AuthRequired bool
}

func NewSession(conn Conn, id uint64, ip string, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InSize),
		OutQueue:     make(chan []byte, opts.OutSize),
		IP:           ip,
		closeCh:      make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
		pktPerSec:    opts.PktPerSec,
		log:          log.With(zap.Uint64("session", id)),
	}
	if opts.AuthRequired {
		s.state.Store(int32(packet.StateConnected))
	} else {
		s.state.Store(int32(packet.StateReady))
	}
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start writes S_HELLO directly and launches the reader and writer goroutines.
func (s *Session) Start() {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_HELLO)
	w.WriteS(packet.ProtocolVersion)
	w.WriteBool(s.State() == packet.StateConnected) // login required
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := WriteFrame(s.conn, w.Bytes()); err != nil {
		s.log.Error("hello packet failed", zap.Error(err))
		s.Close()
		return
	}

	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. The packet is not written until
// FlushOutput is called by the OutputSystem.
// Called only from the game loop goroutine; no lock needed on outBuf.
// A packet too large for one frame is logged and dropped; the session
// stays open.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	if len(data) == 0 || len(data) > MaxFrame {
		op := byte(0)
		if len(data) > 0 {
			op = data[0]
		}
		s.log.Error("packet does not fit a frame, dropped", zap.Uint8("op", op), zap.Int("len", len(data)))
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow session")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop reads frames from the connection and pushes them onto InQueue
// for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("packet rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or the session closes. Dropping a
		// packet would silently lose a script submission.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop reads packets from OutQueue and writes them as frames.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if s.writeTimeout > 0 {
				s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if err := WriteFrame(s.conn, data); err != nil {
				if !s.closed.Load() {
					s.log.Debug("write failed", zap.Error(err))
				}
				return
			}
			if len(data) > 0 {
				s.log.Debug("TX", zap.Uint8("op", data[0]), zap.Int("len", len(data)))
			}
		case <-s.closeCh:
			return
		}
	}
}

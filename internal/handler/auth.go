package handler

import (
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// HandleLogin processes C_LOGIN.
// Format: [opcode][password\0]
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	password := r.ReadS()
	hash := deps.Config.Console.PasswordHash

	ok := hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	if ok {
		sess.SetState(packet.StateReady)
		deps.Log.Info("console login", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
	} else {
		deps.Log.Warn("console login failed", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
	}
	sendLoginResult(sess, ok)
}

// HandlePing answers C_PING with S_PONG.
func HandlePing(sess *net.Session, _ *packet.Reader, _ *Deps) {
	sess.Send([]byte{packet.S_OPCODE_PONG})
}

// HashPassword returns the bcrypt hash to put in console.password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func sendLoginResult(sess *net.Session, ok bool) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LOGIN)
	w.WriteBool(ok)
	sess.Send(w.Bytes())
}

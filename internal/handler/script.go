package handler

import (
	"errors"
	"strings"

	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"go.uber.org/zap"
)

// HandleValidate processes C_VALIDATE.
// Format: [opcode][dialect\0][source\0]
func HandleValidate(sess *net.Session, r *packet.Reader, deps *Deps) {
	dialect := r.ReadS()
	src := r.ReadS()

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_VALIDATE)
	if err := deps.Runtime.Validate(dialect, src); err != nil {
		w.WriteBool(false)
		w.WriteS(err.Error())
	} else {
		w.WriteBool(true)
		w.WriteS("")
	}
	sess.Send(w.Bytes())
}

// HandleRun processes C_RUN. Admitted scripts are queued for the
// ScriptSystem, which answers with S_OUTPUT on a later tick. Rejected
// scripts are answered at once.
// Format: [opcode][dialect\0][source\0]
func HandleRun(sess *net.Session, r *packet.Reader, deps *Deps) {
	dialect := r.ReadS()
	src := r.ReadS()

	res := deps.Runtime.Admit(dialect, src)
	if !res.Accepted {
		if deps.Journal != nil {
			deps.Journal.Record(sess.ID, res)
		}
		SendOutput(sess, res)
		return
	}

	err := deps.Queue.Submit(scripting.Job{
		Kind:      scripting.JobRun,
		Dialect:   res.Dialect,
		Source:    src,
		SessionID: sess.ID,
	})
	if errors.Is(err, scripting.ErrQueueFull) {
		deps.Log.Warn("run refused, queue full", zap.Uint64("session", sess.ID))
		sendError(sess, err.Error())
	}
}

// HandleExamples sends the bundled example library.
func HandleExamples(sess *net.Session, _ *packet.Reader, deps *Deps) {
	all := deps.Examples.All()
	entries := make([][]byte, 0, len(all))
	for _, ex := range all {
		e := packet.NewWriter()
		e.WriteS(ex.Name)
		e.WriteS(ex.Title)
		e.WriteS(ex.Dialect)
		e.WriteS(strings.Join(ex.Watch, ","))
		e.WriteS(ex.Source)
		entries = append(entries, e.Bytes())
	}
	sendList(sess, packet.S_OPCODE_EXAMPLES, "examples", entries)
}

// SendOutput sends S_OUTPUT for a finished or rejected run.
// Format: [opcode][id\0][accepted][output\0]
func SendOutput(sess *net.Session, res scripting.Result) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_OUTPUT)
	w.WriteS(res.ID.String())
	w.WriteBool(res.Accepted)
	text := res.Reason
	if res.Accepted {
		text = res.Output
	}
	w.WriteSTail(text, maxOutputText, truncatedMarker)
	sess.Send(w.Bytes())
}

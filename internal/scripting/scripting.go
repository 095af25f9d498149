// Package scripting runs player scripts in an embedded interpreter with the
// Player, Game and Enemy entities bound as attribute targets.
package scripting

import (
	"context"
	"fmt"
	"strings"

	"github.com/jiecolao/pyquest-game/internal/entity"
)

// Dialect is one embedded scripting language.
type Dialect interface {
	Name() string

	// Admit returns nil if src may run, or an *AdmissionError.
	Admit(src string) error

	// Run executes src with ents bound as globals and returns the transcript.
	// Failures are appended to the transcript as "Error: ..." and never
	// returned or panicked past this call.
	Run(ctx context.Context, src string, ents *entity.Set) string
}

// transcript collects printed output for one run.
type transcript struct {
	b strings.Builder
}

// line appends one output line, joining parts with sep.
func (t *transcript) line(sep string, parts ...string) {
	t.b.WriteString(strings.Join(parts, sep))
	t.b.WriteByte('\n')
}

func (t *transcript) fail(err error) string {
	t.b.WriteString("Error: ")
	t.b.WriteString(err.Error())
	return t.b.String()
}

func (t *transcript) String() string { return t.b.String() }

// ctxErr turns a finished context into the interrupt reason shown to players.
func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("script interrupted: %w", err)
	}
	return nil
}

// Command pyquest-console is a terminal client for the pyquest console
// protocol: edit a script, run it and follow watched values as they change.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
)

type options struct {
	Addr        string        `env:"ADDR" envDefault:"127.0.0.1:7001"`
	Password    string        `env:"PASSWORD"`
	Dialect     string        `env:"DIALECT" envDefault:"python"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if err := env.ParseWithOptions(&opts, env.Options{Prefix: "PYQUEST_CONSOLE_"}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if len(os.Args) > 1 {
		opts.Addr = os.Args[1]
	}

	c, err := dial(opts.Addr, opts.DialTimeout)
	if err != nil {
		return err
	}
	defer c.close()

	p := tea.NewProgram(newModel(c, opts.Addr, opts.Password, opts.Dialect), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

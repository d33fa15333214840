package console

import (
	"context"
	"errors"
	"os"

	"github.com/abiosoft/ishell/v2"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/shutdown"
	"github.com/sweeney/heater-control/internal/state"
)

// ErrExit is returned by Run when the operator leaves the shell.
var ErrExit = errors.New("operator exit")

// Interactive reports whether f is a terminal the shell can read from.
func Interactive(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Console wraps an ishell shell bound to a command.Interface.
type Console struct {
	shell  *ishell.Shell
	logger *zap.SugaredLogger
	done   chan error
}

// New creates a Console. Ctrl-C is reported through Run as an
// interrupt, the same as SIGINT.
func New(cmd command.Interface, logger *zap.SugaredLogger) *Console {
	c := &Console{
		shell:  ishell.New(),
		logger: logger,
		done:   make(chan error, 1),
	}
	c.shell.SetPrompt("heater> ")

	for _, name := range Names() {
		name := name
		h := handlers[name]
		c.shell.AddCmd(&ishell.Cmd{
			Name:     name,
			Help:     h.help,
			LongHelp: h.help + "\n\nusage: " + h.usage,
			Func: func(ctx *ishell.Context) {
				out, err := Exec(cmd, name, ctx.Args)
				if err != nil {
					if errors.Is(err, state.ErrValidation) {
						ctx.Println("rejected: " + err.Error())
					} else {
						ctx.Println("error: " + err.Error())
					}
					return
				}
				ctx.Println(out)
			},
		})
	}

	c.shell.Interrupt(func(ctx *ishell.Context, count int, input string) {
		c.finish(shutdown.InterruptError{Signal: os.Interrupt})
	})
	c.shell.EOF(func(ctx *ishell.Context) {
		c.finish(ErrExit)
	})
	return c
}

func (c *Console) finish(err error) {
	select {
	case c.done <- err:
	default:
	}
	c.shell.Stop()
}

// Run serves the shell until the operator exits, presses Ctrl-C, or ctx is
// cancelled. It returns ErrExit, an interrupt error, or ctx.Err().
func (c *Console) Run(ctx context.Context) error {
	c.shell.Println("heater-control shell. Type help for commands, exit to quit.")
	go func() {
		c.shell.Run()
		c.finish(ErrExit)
	}()

	var err error
	select {
	case err = <-c.done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.shell.Close()
	c.logger.Debugw("console closed", "reason", err)
	return err
}

// Package console is the interactive operator shell. Command parsing lives
// in Exec so it can be tested without a terminal.
package console

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/heater-control/internal/command"
	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/state"
)

// ErrUsage is returned for a command line with the wrong arguments.
var ErrUsage = errors.New("usage")

type usageError struct{ usage string }

func (e usageError) Error() string        { return "usage: " + e.usage }
func (e usageError) Is(target error) bool { return target == ErrUsage }

type handler struct {
	usage string
	help  string
	run   func(cmd command.Interface, args []string) (string, error)
}

var handlers = map[string]handler{
	"enable": {
		usage: "enable",
		help:  "start closed-loop control",
		run: func(cmd command.Interface, args []string) (string, error) {
			if len(args) != 0 {
				return "", usageError{"enable"}
			}
			return "control enabled", cmd.Enable()
		},
	},
	"disable": {
		usage: "disable",
		help:  "stop control and switch all heaters off",
		run: func(cmd command.Interface, args []string) (string, error) {
			if len(args) != 0 {
				return "", usageError{"disable"}
			}
			return "control disabled", cmd.Disable()
		},
	},
	"gains": {
		usage: "gains <kp> <ki> <kd>",
		help:  "set PID gains",
		run: func(cmd command.Interface, args []string) (string, error) {
			v, err := floats(args, 3, "gains <kp> <ki> <kd>")
			if err != nil {
				return "", err
			}
			g := control.Gains{Kp: v[0], Ki: v[1], Kd: v[2]}
			return fmt.Sprintf("gains kp=%g ki=%g kd=%g", g.Kp, g.Ki, g.Kd), cmd.SetGains(g)
		},
	},
	"setpoint": {
		usage: "setpoint <value> | setpoint <channel> <value>",
		help:  "set the target temperature of all channels or one channel (1-4)",
		run: func(cmd command.Interface, args []string) (string, error) {
			switch len(args) {
			case 1:
				v, err := floats(args, 1, "setpoint <value>")
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("setpoint all=%g", v[0]), cmd.SetSetpointAll(v[0])
			case 2:
				ch, err := strconv.Atoi(args[0])
				if err != nil {
					return "", usageError{"setpoint <channel> <value>"}
				}
				v, err := floats(args[1:], 1, "setpoint <channel> <value>")
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("setpoint %d=%g", ch, v[0]), cmd.SetSetpointOne(ch, v[0])
			}
			return "", usageError{"setpoint <value> | setpoint <channel> <value>"}
		},
	},
	"frequency": {
		usage: "frequency <hz>",
		help:  "set the sampling frequency",
		run: func(cmd command.Interface, args []string) (string, error) {
			v, err := floats(args, 1, "frequency <hz>")
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("frequency=%g", v[0]), cmd.SetFrequency(v[0])
		},
	},
	"mode": {
		usage: "mode [bangbang|pid]",
		help:  "toggle the control mode, or select one",
		run: func(cmd command.Interface, args []string) (string, error) {
			switch len(args) {
			case 0:
				m, err := cmd.SwitchMode()
				return "mode=" + string(m), err
			case 1:
				m, err := control.ParseMode(args[0])
				if err != nil {
					return "", fmt.Errorf("%w: %v", state.ErrValidation, err)
				}
				return "mode=" + string(m), cmd.SetMode(m)
			}
			return "", usageError{"mode [bangbang|pid]"}
		},
	},
	"status": {
		usage: "status",
		help:  "show the control state",
		run: func(cmd command.Interface, args []string) (string, error) {
			return FormatStatus(cmd.Status()), nil
		},
	},
}

func floats(args []string, n int, usage string) ([]float64, error) {
	if len(args) != n {
		return nil, usageError{usage}
	}
	out := make([]float64, n)
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, usageError{usage}
		}
		out[i] = v
	}
	return out, nil
}

// Names returns the command names in order.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for n := range handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Exec runs one command and returns the reply to print. The reply is empty
// when err is non-nil.
func Exec(cmd command.Interface, name string, args []string) (string, error) {
	h, ok := handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown command %q", name)
	}
	out, err := h.run(cmd, args)
	if err != nil {
		return "", err
	}
	return out, nil
}

// FormatStatus renders a control snapshot for the terminal.
func FormatStatus(s state.Snapshot) string {
	var b strings.Builder
	enabled := "no"
	if s.Enabled {
		enabled = "yes"
	}
	fmt.Fprintf(&b, "enabled:   %s\n", enabled)
	fmt.Fprintf(&b, "mode:      %s\n", s.Mode)
	fmt.Fprintf(&b, "frequency: %g Hz\n", s.Frequency)
	fmt.Fprintf(&b, "gains:     kp=%g ki=%g kd=%g\n", s.Gains.Kp, s.Gains.Ki, s.Gains.Kd)
	for i, sp := range s.Setpoints {
		fmt.Fprintf(&b, "channel %d: setpoint=%g output=%d\n", i+1, sp, s.LastCommand[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

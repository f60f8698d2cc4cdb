package proxddp

import (
	"fmt"
	"io"
	"os"
)

// LogLevel controls how much telemetry the driver prints. The three
// named levels match the verbosity knob exposed on SolverProxDDP; text
// telemetry only, never a binary log format.
type LogLevel int

const (
	// Quiet prints nothing.
	Quiet LogLevel = 0
	// Verbose prints one line per outer AL iteration.
	Verbose LogLevel = 1
	// VeryVerbose additionally prints one line per inner Newton
	// iteration (merit, stationarity, step size, regularization).
	VeryVerbose LogLevel = 2
)

// Logger writes driver telemetry. The zero Logger is Quiet and writes
// nowhere; use NewLogger to get one that targets stdout.
type Logger struct {
	Level LogLevel
	Out   io.Writer
}

// NewLogger returns a Logger at the given level writing to os.Stdout.
func NewLogger(level LogLevel) *Logger {
	return &Logger{Level: level, Out: os.Stdout}
}

func (l *Logger) enable(level LogLevel) bool {
	return l != nil && l.Level >= level
}

func (l *Logger) outf(format string, a ...any) {
	if l == nil || l.Out == nil {
		return
	}
	_, _ = fmt.Fprintf(l.Out, format, a...)
}

func (l *Logger) alHeader() {
	if !l.enable(Verbose) {
		return
	}
	l.outf("%-4s %-10s %-10s %-10s %-10s %-6s\n", "iter", "mu", "prim_infeas", "dual_infeas", "merit", "newton")
}

func (l *Logger) alLine(iter int, mu, primInfeas, dualInfeas, merit float64, newtonIters int) {
	if !l.enable(Verbose) {
		return
	}
	l.outf("%-4d %-10.3e %-10.3e %-10.3e %-10.3e %-6d\n", iter, mu, primInfeas, dualInfeas, merit, newtonIters)
}

func (l *Logger) newtonLine(iter int, merit, crit, alpha float64, reg float64) {
	if !l.enable(VeryVerbose) {
		return
	}
	l.outf("    newton %-4d merit=%-10.3e crit=%-10.3e alpha=%-8.3f reg=%-8.3e\n", iter, merit, crit, alpha, reg)
}

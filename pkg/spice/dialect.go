// Package spice renders simulator decks, runs the external simulator, and
// reads its output back. Everything simulator-specific sits behind the
// Dialect interface; adding a fourth simulator means adding one file here.
package spice

import (
	"fmt"
	"io"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// VIPoint is one row of a DC sweep result, in the simulator's passive sign
// convention (current positive into the source's plus terminal).
type VIPoint struct {
	V float64
	I float64
}

// TranPoint is one transient sample at a simulator-chosen time point.
type TranPoint struct {
	T float64
	V float64
	I float64
}

// Dialect is the per-simulator profile: deck card syntax on the way in,
// result format on the way out.
type Dialect interface {
	Name() string

	// LangLine is emitted first when the simulator needs a language
	// marker; empty otherwise.
	LangLine() string

	// Options returns the standing options card(s).
	Options() string

	// Temperature renders the analysis temperature card.
	Temperature(temp float64) string

	// DCSource renders a fixed voltage source.
	DCSource(name, plus, minus string, value float64) string

	// PulseSource renders the transient stimulus edge.
	PulseSource(name, plus, minus string, low, high, delay, tr, tf, width, period float64) string

	// DCSweep renders the sweep control card plus the probe directive for
	// the named sweep source.
	DCSweep(source string, start, stop, step float64, probe string) string

	// Tran renders the transient control card plus probes for the output
	// node and the supply source.
	Tran(step, stop float64, node string) string

	// EndLine closes the deck; empty when the dialect has no terminator.
	EndLine() string

	// DefaultCommand builds the simulator invocation when the user gave
	// no --spice-cmd template.
	DefaultCommand(in, out, msg string) string

	// ParseDC reads a DC sweep result into (V, I) pairs.
	ParseDC(r io.Reader) ([]VIPoint, error)

	// ParseTran reads a transient result into raw (t, V) samples.
	ParseTran(r io.Reader) ([]TranPoint, error)

	// AbortMarkers are substrings whose presence in the output or message
	// file means the run died.
	AbortMarkers() []string

	// ConvergenceMarkers flag a non-convergent DC solution.
	ConvergenceMarkers() []string
}

// ForType returns the dialect profile for a declared simulator type.
func ForType(t ibis.SpiceType) Dialect {
	switch t {
	case ibis.Spectre:
		return spectreDialect{}
	case ibis.Eldo:
		return eldoDialect{}
	default:
		return hspiceDialect{}
	}
}

// sourceCard is shared by the SPICE-syntax dialects.
func sourceCard(name, plus, minus string, value float64) string {
	return fmt.Sprintf("%s %s %s DC %g\n", name, plus, minus, value)
}

func pulseCard(name, plus, minus string, low, high, delay, tr, tf, width, period float64) string {
	return fmt.Sprintf("%s %s %s PULSE(%g %g %g %.6e %.6e %.6e %.6e)\n",
		name, plus, minus, low, high, delay, tr, tf, width, period)
}

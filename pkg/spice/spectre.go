package spice

import (
	"fmt"
	"io"
)

// spectreDialect renders Spectre-language decks and reads nutascii output.
type spectreDialect struct{}

func (spectreDialect) Name() string { return "spectre" }

func (spectreDialect) LangLine() string { return "simulator lang = spectre\n\n" }

func (spectreDialect) Options() string { return "" }

func (spectreDialect) Temperature(temp float64) string {
	return fmt.Sprintf("settemp alter param=temp value=%g\n", temp)
}

func (spectreDialect) DCSource(name, plus, minus string, value float64) string {
	return fmt.Sprintf("%s %s %s vsource type=dc dc=%g\n", name, plus, minus, value)
}

func (spectreDialect) PulseSource(name, plus, minus string, low, high, delay, tr, tf, width, period float64) string {
	return fmt.Sprintf("%s %s %s vsource type=pulse val0=%g val1=%g delay=%g rise=%.6e fall=%.6e width=%.6e period=%.6e\n",
		name, plus, minus, low, high, delay, tr, tf, width, period)
}

func (spectreDialect) DCSweep(source string, start, stop, step float64, probe string) string {
	return fmt.Sprintf("DCsweep dc dev=%s param=dc start=%g stop=%g step=%g save=selected\nsave %s:currents\n",
		source, start, stop, step, probe)
}

func (spectreDialect) Tran(step, stop float64, node string) string {
	return fmt.Sprintf("tran_run tran step=%.6e start=0 stop=%.6e save=selected\nsave %s\n", step, stop, node)
}

func (spectreDialect) EndLine() string { return "" }

func (spectreDialect) DefaultCommand(in, out, msg string) string {
	return fmt.Sprintf("spectre -f nutascii %s -r %s >%s", in, out, msg)
}

// ParseDC reads nutascii: a "Values:" header opens the data block; rows are
// index value value groups.
func (spectreDialect) ParseDC(r io.Reader) ([]VIPoint, error) {
	return scanDCBlock(r, "Values:")
}

func (spectreDialect) ParseTran(r io.Reader) ([]TranPoint, error) {
	return scanTranBlock(r, "Values:")
}

func (spectreDialect) AbortMarkers() []string { return []string{"aborted", "fatal"} }

func (spectreDialect) ConvergenceMarkers() []string { return []string{"no convergence"} }

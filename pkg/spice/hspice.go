package spice

import (
	"fmt"
	"io"
)

// hspiceDialect renders classic HSPICE decks and reads .lis-style listing
// output. Data blocks open with a run of asterisks followed by a column
// header line.
type hspiceDialect struct{}

func (hspiceDialect) Name() string { return "hspice" }

func (hspiceDialect) LangLine() string { return "" }

func (hspiceDialect) Options() string { return ".OPTION INGOLD=2\n" }

func (hspiceDialect) Temperature(temp float64) string {
	return fmt.Sprintf(".TEMP %g\n", temp)
}

func (hspiceDialect) DCSource(name, plus, minus string, value float64) string {
	return sourceCard(name, plus, minus, value)
}

func (hspiceDialect) PulseSource(name, plus, minus string, low, high, delay, tr, tf, width, period float64) string {
	return pulseCard(name, plus, minus, low, high, delay, tr, tf, width, period)
}

func (hspiceDialect) DCSweep(source string, start, stop, step float64, probe string) string {
	return fmt.Sprintf(".DC %s %g %g %g\n.PRINT DC I(%s)\n", source, start, stop, step, probe)
}

func (hspiceDialect) Tran(step, stop float64, node string) string {
	return fmt.Sprintf(".TRAN %.6e %.6e\n.PRINT TRAN V(%s)\n", step, stop, node)
}

func (hspiceDialect) EndLine() string { return ".END\n" }

func (hspiceDialect) DefaultCommand(in, out, msg string) string {
	return fmt.Sprintf("hspice -i %s -o %s", in, out)
}

func (hspiceDialect) ParseDC(r io.Reader) ([]VIPoint, error) {
	return scanDCBlock(r, "******")
}

func (hspiceDialect) ParseTran(r io.Reader) ([]TranPoint, error) {
	return scanTranBlock(r, "******")
}

func (hspiceDialect) AbortMarkers() []string { return []string{"aborted"} }

func (hspiceDialect) ConvergenceMarkers() []string { return []string{"convergence failure"} }

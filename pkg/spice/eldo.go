package spice

import (
	"fmt"
	"io"
)

// eldoDialect renders Eldo decks. Eldo accepts the classic SPICE cards;
// its listing output repeats the data banner, so the readers skip to the
// second occurrence before collecting rows.
type eldoDialect struct{}

func (eldoDialect) Name() string { return "eldo" }

func (eldoDialect) LangLine() string { return "" }

func (eldoDialect) Options() string { return "" }

func (eldoDialect) Temperature(temp float64) string {
	return fmt.Sprintf(".TEMP %g\n", temp)
}

func (eldoDialect) DCSource(name, plus, minus string, value float64) string {
	return sourceCard(name, plus, minus, value)
}

func (eldoDialect) PulseSource(name, plus, minus string, low, high, delay, tr, tf, width, period float64) string {
	return pulseCard(name, plus, minus, low, high, delay, tr, tf, width, period)
}

func (eldoDialect) DCSweep(source string, start, stop, step float64, probe string) string {
	return fmt.Sprintf(".DC %s %g %g %g\n.PRINT DC I(%s)\n", source, start, stop, step, probe)
}

func (eldoDialect) Tran(step, stop float64, node string) string {
	return fmt.Sprintf(".TRAN %.6e %.6e\n.PRINT TRAN V(%s)\n", step, stop, node)
}

func (eldoDialect) EndLine() string { return ".END\n" }

func (eldoDialect) DefaultCommand(in, out, msg string) string {
	return fmt.Sprintf("eldo -b -i %s -o %s -silent", in, out)
}

func (eldoDialect) ParseDC(r io.Reader) ([]VIPoint, error) {
	return scanDCBlockN(r, "******", 2)
}

func (eldoDialect) ParseTran(r io.Reader) ([]TranPoint, error) {
	return scanTranBlockN(r, "******", 2)
}

func (eldoDialect) AbortMarkers() []string { return []string{"aborted"} }

func (eldoDialect) ConvergenceMarkers() []string { return []string{"convergence failure"} }

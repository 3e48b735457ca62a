package analyze

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

// runRamp characterizes one edge rate corner: a near-ideal input edge into
// the load resistor, measured 20%-80% of the swing.
func (e *Engine) runRamp(ctx context.Context, pp PinPlan, it Item, scope ibis.Scope) error {
	if ctx.Err() != nil {
		return ibis.Errorf(ibis.Cancelled, "%v", ctx.Err())
	}
	model := it.Model
	corner := it.Corner
	pad := nodeOf(pp.Pin)
	rising := it.Curve == ibis.CurveRisingRamp
	setup := SetupSweep(it.Curve, model.Type, scope)

	job := spice.JobFor(filepath.Join(e.Outdir, it.FileBase))
	deck := &spice.Deck{
		Title:         fmt.Sprintf("%s %s curve for model %s", corner, it.Curve, model.Name),
		NetlistPath:   e.netlistPath(pp, it.Curve),
		ModelFilePath: modelFileFor(model, corner),
		ExtCmdPath:    model.ExtSpiceCmdFile,
	}

	deck.Load = e.rampLoad(pp, model, rising, scope.Rload())
	deck.Stimulus = e.controlStimulus(pp, scope, corner, true, rising, true)

	vcc := setup.Vcc.Pick(corner)
	gnd := setup.Gnd.Pick(corner)
	deck.Power = e.powerCards(it.Curve, pp.Supplies, vcc, gnd, vcc, gnd)
	deck.Temperature = e.Dialect.Temperature(temperatureFor(scope, corner))

	simTime := simWindow(scope)
	deck.Analysis = e.Dialect.Tran(simTime/100, simTime, pad)

	if err := deck.WriteFile(e.Dialect, job.DeckPath, e.Runner.Iterate); err != nil {
		return err
	}
	if err := e.Runner.Run(ctx, job); err != nil {
		return err
	}

	f, err := os.Open(job.ResultPath)
	if err != nil {
		return ibis.Wrap(ibis.SimulationFailed, err)
	}
	samples, perr := e.Dialect.ParseTran(f)
	f.Close()
	if perr != nil {
		return perr
	}

	dv, dt, err := MeasureRamp(samples)
	if err != nil {
		return err
	}
	if rising {
		model.Ramp.DvRise.Set(corner, dv)
		model.Ramp.DtRise.Set(corner, dt)
	} else {
		model.Ramp.DvFall.Set(corner, dv)
		model.Ramp.DtFall.Set(corner, dt)
	}
	e.Runner.Finish(job)
	return nil
}

// rampLoad wires the edge-rate termination: open-drain drivers pull up to
// power, open-source drivers pull down to ground, ECL drives a -2 V
// terminated line, and everything else grounds a rising edge and powers a
// falling one.
func (e *Engine) rampLoad(pp PinPlan, model *ibis.Model, rising bool, rload float64) string {
	pad := nodeOf(pp.Pin)
	power := optNode(pp.Supplies.Pullup)
	gnd := optNode(pp.Supplies.Pulldown)
	if power == "" {
		power = "0"
	}
	if gnd == "" {
		gnd = "0"
	}

	switch {
	case model.Type.IsOpenDrainFamily():
		return fmt.Sprintf("%s %s %s %g\n", spice.LoadResistor, pad, power, rload)
	case model.Type.IsOpenSourceFamily():
		return fmt.Sprintf("%s %s %s %g\n", spice.LoadResistor, pad, gnd, rload)
	case model.Type.IsECL():
		return fmt.Sprintf("%s %s ecl0 %g\n%s ecl0 %s DC %g\n",
			spice.LoadResistor, pad, rload, spice.TermSource, power, ibis.ECLTerminationVoltage)
	case rising:
		return fmt.Sprintf("%s %s %s %g\n", spice.LoadResistor, pad, gnd, rload)
	default:
		return fmt.Sprintf("%s %s %s %g\n", spice.LoadResistor, pad, power, rload)
	}
}

// runWave characterizes one fixture corner and bins the samples into the
// wave table's fixed-count rows.
func (e *Engine) runWave(ctx context.Context, pp PinPlan, it Item, scope ibis.Scope, wave *ibis.WaveTable) error {
	if ctx.Err() != nil {
		return ibis.Errorf(ibis.Cancelled, "%v", ctx.Err())
	}
	model := it.Model
	corner := it.Corner
	rising := it.Curve == ibis.CurveRisingWave
	setup := SetupSweep(it.Curve, model.Type, scope)

	job := spice.JobFor(filepath.Join(e.Outdir, it.FileBase))
	deck := &spice.Deck{
		Title:         fmt.Sprintf("%s %s curve for model %s", corner, it.Curve, model.Name),
		NetlistPath:   e.netlistPath(pp, it.Curve),
		ModelFilePath: modelFileFor(model, corner),
		ExtCmdPath:    model.ExtSpiceCmdFile,
	}

	load, probeNode := fixtureNetwork(nodeOf(pp.Pin), wave, fixtureVoltage(wave, corner))
	deck.Load = load
	deck.Stimulus = e.controlStimulus(pp, scope, corner, true, rising, true)

	vcc := setup.Vcc.Pick(corner)
	gnd := setup.Gnd.Pick(corner)
	deck.Power = e.powerCards(it.Curve, pp.Supplies, vcc, gnd, vcc, gnd)
	deck.Temperature = e.Dialect.Temperature(temperatureFor(scope, corner))

	simTime := simWindow(scope)
	deck.Analysis = e.Dialect.Tran(simTime/100, simTime, probeNode)

	if err := deck.WriteFile(e.Dialect, job.DeckPath, e.Runner.Iterate); err != nil {
		return err
	}
	if err := e.Runner.Run(ctx, job); err != nil {
		return err
	}

	f, err := os.Open(job.ResultPath)
	if err != nil {
		return ibis.Wrap(ibis.SimulationFailed, err)
	}
	samples, perr := e.Dialect.ParseTran(f)
	f.Close()
	if perr != nil {
		return perr
	}

	BinWave(wave, samples, corner, simTime)
	e.Runner.Finish(job)
	return nil
}

// fixtureVoltage picks the corner's fixture supply, falling back to the
// typical value when no per-corner fixture voltage is configured.
func fixtureVoltage(wave *ibis.WaveTable, corner ibis.Corner) float64 {
	switch corner {
	case ibis.Min:
		if !ibis.IsNA(wave.VFixtureMin) {
			return wave.VFixtureMin
		}
	case ibis.Max:
		if !ibis.IsNA(wave.VFixtureMax) {
			return wave.VFixtureMax
		}
	}
	return wave.VFixture
}

// fixtureNetwork builds the die-parasitic and fixture ladder from the pad
// to the fixture supply. The probe point sits after the die parasitics,
// where the waveform is defined.
func fixtureNetwork(pad string, wave *ibis.WaveTable, vFixture float64) (cards, probeNode string) {
	nodes := []string{pad, "fx0", "fx1", "fx2", "fx3", "fx4"}
	idx := 0
	out := ""

	if !ibis.IsNA(wave.LDut) {
		out += fmt.Sprintf("LDUTS2I %s %s %g\n", nodes[idx], nodes[idx+1], wave.LDut)
		idx++
	}
	if !ibis.IsNA(wave.RDut) {
		out += fmt.Sprintf("RDUTS2I %s %s %g\n", nodes[idx], nodes[idx+1], wave.RDut)
		idx++
	}
	if !ibis.IsNA(wave.CDut) {
		out += fmt.Sprintf("CDUTS2I %s 0 %g\n", nodes[idx], wave.CDut)
	}

	probeNode = nodes[idx]

	if !ibis.IsNA(wave.LFixture) {
		out += fmt.Sprintf("LFIXS2I %s %s %g\n", nodes[idx], nodes[idx+1], wave.LFixture)
		idx++
	}
	if !ibis.IsNA(wave.CFixture) {
		out += fmt.Sprintf("CFIXS2I %s 0 %g\n", nodes[idx], wave.CFixture)
	}

	out += fmt.Sprintf("RFIXS2I %s %s %g\n", nodes[idx], nodes[idx+1], wave.RFixture)
	idx++
	out += fmt.Sprintf("VFIXS2I %s 0 DC %g\n", nodes[idx], vFixture)
	return out, probeNode
}

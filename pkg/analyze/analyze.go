package analyze

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

// Engine executes a simulation plan sequentially, pin by pin, enriching
// the document's models with raw and derived curves.
type Engine struct {
	Doc     *ibis.Document
	Dialect spice.Dialect
	Runner  *spice.Runner
	Outdir  string
	Verbose bool
}

// Failure records one plan item that could not be characterized. The
// pipeline continues past these; the affected table columns stay NA.
type Failure struct {
	Pin    string
	Curve  ibis.CurveType
	Corner ibis.Corner
	Err    error
}

func (f Failure) String() string {
	return fmt.Sprintf("pin %s %s/%s: %v", f.Pin, f.Curve, f.Corner, f.Err)
}

// Run plans and executes every characterization. Fatal errors abort;
// per-item simulation, parse, and derive failures are collected and
// returned for the aggregate report.
func (e *Engine) Run(ctx context.Context) ([]Failure, error) {
	plans, err := Plan(e.Doc)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(e.Outdir, 0o755); err != nil {
		return nil, ibis.Wrap(ibis.ResourceError, err)
	}

	var failures []Failure
	for _, pp := range plans {
		if ctx.Err() != nil {
			return failures, ibis.Errorf(ibis.Cancelled, "analysis interrupted: %v", ctx.Err())
		}
		if e.Verbose {
			log.Printf("analyzing pin %s (model %s)", pp.Pin.Name, pp.Pin.Model.Name)
		}
		fs, err := e.runPin(ctx, pp)
		failures = append(failures, fs...)
		if err != nil {
			return failures, err
		}
		pp.Pin.Model.Analyzed = true
	}
	return failures, nil
}

// curveItems splits one pin's plan by curve and fixture index, preserving
// plan order.
func curveItems(pp PinPlan, curve ibis.CurveType, index int) []Item {
	var out []Item
	for _, it := range pp.Items {
		if it.Curve == curve && it.Index == index {
			out = append(out, it)
		}
	}
	return out
}

func hasCurve(pp PinPlan, curve ibis.CurveType) bool {
	for _, it := range pp.Items {
		if it.Curve == curve {
			return true
		}
	}
	return false
}

func (e *Engine) runPin(ctx context.Context, pp PinPlan) ([]Failure, error) {
	var failures []Failure
	model := pp.Pin.Model
	scope := ibis.Scope{Model: model, Component: pp.Component, Document: e.Doc}

	record := func(it Item, err error) error {
		if err == nil {
			return nil
		}
		if k, ok := ibis.KindOf(err); ok && !k.Fatal() {
			failures = append(failures, Failure{Pin: pp.Pin.Name, Curve: it.Curve, Corner: it.Corner, Err: err})
			return nil
		}
		return err
	}

	// Series element: one V/I table per Vds step.
	if model.Series != nil && len(model.Series.VdsList) > 0 {
		setup := SetupSweep(ibis.CurveSeriesVI, model.Type, scope)
		model.SeriesVITables = nil
		for i, vds := range model.Series.VdsList {
			if i >= ibis.MaxSeriesTables {
				break
			}
			items := curveItems(pp, ibis.CurveSeriesVI, i)
			raw, errs := e.runVISweep(ctx, pp, items, setup, vds)
			for j, err := range errs {
				if err := record(items[j], err); err != nil {
					return failures, err
				}
			}
			if raw.Size() > 0 {
				model.SeriesVITables = append(model.SeriesVITables, SortSeriesVI(raw, setup.Vcc))
			}
		}
	}

	// V/I sweeps with optional enable-based subtraction.
	runPair := func(curve, disabled ibis.CurveType) (*ibis.VITable, error) {
		setup := SetupSweep(curve, model.Type, scope)
		items := curveItems(pp, curve, 0)
		if len(items) == 0 {
			return nil, nil
		}
		raw, errs := e.runVISweep(ctx, pp, items, setup, 0)
		for j, err := range errs {
			if err := record(items[j], err); err != nil {
				return nil, err
			}
		}
		if dis := curveItems(pp, disabled, 0); len(dis) > 0 {
			dsetup := SetupSweep(disabled, model.Type, scope)
			disRaw, errs := e.runVISweep(ctx, pp, dis, dsetup, 0)
			for j, err := range errs {
				if err := record(dis[j], err); err != nil {
					return nil, err
				}
			}
			SubtractVI(raw, disRaw)
		}
		return raw, nil
	}

	if hasCurve(pp, ibis.CurvePullup) {
		raw, err := runPair(ibis.CurvePullup, ibis.CurveDisabledPullup)
		if err != nil {
			return failures, err
		}
		model.PullupData = raw
	}
	if hasCurve(pp, ibis.CurvePulldown) {
		raw, err := runPair(ibis.CurvePulldown, ibis.CurveDisabledPulldown)
		if err != nil {
			return failures, err
		}
		model.PulldownData = raw
	}

	for _, clamp := range []struct {
		curve ibis.CurveType
		dst   **ibis.VITable
	}{
		{ibis.CurvePowerClamp, &model.PowerClampData},
		{ibis.CurveGndClamp, &model.GndClampData},
	} {
		items := curveItems(pp, clamp.curve, 0)
		if len(items) == 0 {
			continue
		}
		setup := SetupSweep(clamp.curve, model.Type, scope)
		raw, errs := e.runVISweep(ctx, pp, items, setup, 0)
		for j, err := range errs {
			if err := record(items[j], err); err != nil {
				return failures, err
			}
		}
		*clamp.dst = raw
	}

	SortVIData(model, scope)

	// Transients: ramps first, then one run per waveform fixture.
	for _, rampCurve := range []ibis.CurveType{ibis.CurveRisingRamp, ibis.CurveFallingRamp} {
		items := curveItems(pp, rampCurve, 0)
		if len(items) == 0 {
			continue
		}
		for _, it := range items {
			err := e.runRamp(ctx, pp, it, scope)
			if err := record(it, err); err != nil {
				return failures, err
			}
		}
	}
	ApplyRampDerate(model, scope.DerateRampPct())

	for _, wv := range []struct {
		curve ibis.CurveType
		list  *[]*ibis.WaveTable
	}{
		{ibis.CurveRisingWave, &model.RisingWave},
		{ibis.CurveFallingWave, &model.FallingWave},
	} {
		if !hasCurve(pp, wv.curve) {
			continue
		}
		fixtures := sortedWaves(*wv.list)
		points := e.Doc.WavePointCount()
		for i, wave := range fixtures {
			items := curveItems(pp, wv.curve, i)
			if len(items) == 0 {
				continue
			}
			wave.Alloc(points)
			for _, it := range items {
				err := e.runWave(ctx, pp, it, scope, wave)
				if err := record(it, err); err != nil {
					return failures, err
				}
			}
		}
		*wv.list = fixtures
	}

	return failures, nil
}

// runVISweep materializes one DC curve across its planned corners into a
// single raw table. The per-corner error slice parallels items.
func (e *Engine) runVISweep(ctx context.Context, pp PinPlan, items []Item, setup SweepSetup, vds float64) (*ibis.VITable, []error) {
	raw := &ibis.VITable{}
	errs := make([]error, len(items))

	for i, it := range items {
		if ctx.Err() != nil {
			errs[i] = ibis.Errorf(ibis.Cancelled, "%v", ctx.Err())
			continue
		}
		errs[i] = e.runVICorner(ctx, pp, it, setup, vds, raw)
	}
	return raw, errs
}

func (e *Engine) runVICorner(ctx context.Context, pp PinPlan, it Item, setup SweepSetup, vds float64, raw *ibis.VITable) error {
	scope := ibis.Scope{Model: it.Model, Component: pp.Component, Document: e.Doc}
	corner := it.Corner

	deck, job, err := e.buildVIDeck(pp, it, setup, vds, scope)
	if err != nil {
		return err
	}
	if err := deck.WriteFile(e.Dialect, job.DeckPath, e.Runner.Iterate); err != nil {
		return err
	}
	if err := e.Runner.Run(ctx, job); err != nil {
		return err
	}
	if e.Runner.CheckConvergence(job) {
		if err := e.retrySweep(ctx, pp, it, setup, vds, scope, deck, job); err != nil {
			return err
		}
	}

	f, err := os.Open(job.ResultPath)
	if err != nil {
		return ibis.Wrap(ibis.SimulationFailed, err)
	}
	points, perr := e.Dialect.ParseDC(f)
	f.Close()
	if perr != nil {
		return perr
	}

	// Supply currents arrive in the passive convention; flip to current
	// into the die.
	for row, p := range points {
		if row >= setup.Points() {
			break
		}
		raw.AddPoint(row, p.V, corner, -p.I)
	}
	e.Runner.Finish(job)
	return nil
}

// retrySweep re-runs a non-convergent sweep over two fallback windows,
// first ±span and then −max(3.3, span) to max(6.6, span), before giving up.
func (e *Engine) retrySweep(ctx context.Context, pp PinPlan, it Item, setup SweepSetup, vds float64, scope ibis.Scope, deck *spice.Deck, job spice.Job) error {
	span := math.Abs(setup.Range)
	if span == 0 {
		span = 1
	}
	windows := [][2]float64{
		{-span, span},
		{-math.Max(3.3, span), math.Max(6.6, span)},
	}
	probe := spice.SweepSource
	if it.Curve == ibis.CurveSeriesVI {
		probe = spice.SeriesSource
	}
	for _, w := range windows {
		if ctx.Err() != nil {
			return ibis.Errorf(ibis.Cancelled, "%v", ctx.Err())
		}
		deck.Analysis = e.Dialect.DCSweep(spice.SweepSource, w[0], w[1], math.Abs(setup.Step), probe)
		os.Remove(job.ResultPath)
		if err := deck.WriteFile(e.Dialect, job.DeckPath, false); err != nil {
			return err
		}
		if err := e.Runner.Run(ctx, job); err != nil {
			continue
		}
		if !e.Runner.CheckConvergence(job) {
			return nil
		}
	}
	return ibis.Errorf(ibis.SimulationFailed, "sweep never converged for %s", job.DeckPath)
}

// buildVIDeck assembles the DC characterization deck for one corner.
func (e *Engine) buildVIDeck(pp PinPlan, it Item, setup SweepSetup, vds float64, scope ibis.Scope) (*spice.Deck, spice.Job, error) {
	model := it.Model
	corner := it.Corner
	pad := nodeOf(pp.Pin)

	job := spice.JobFor(filepath.Join(e.Outdir, it.FileBase))

	deck := &spice.Deck{
		Title:         fmt.Sprintf("%s %s curve for model %s", corner, it.Curve, model.Name),
		NetlistPath:   e.netlistPath(pp, it.Curve),
		ModelFilePath: modelFileFor(model, corner),
		ExtCmdPath:    model.ExtSpiceCmdFile,
	}

	// Sweep source at the pad; the series element is swept at its second
	// terminal with a fixed Vds across the switch.
	probe := spice.SweepSource
	if it.Curve == ibis.CurveSeriesVI {
		pin2 := pp.Pin.SeriesPin2
		if pin2 == "" {
			pin2 = seriesPin2FromMapping(pp.Pin, pp.Component)
		}
		deck.Load = fmt.Sprintf("%s %s 0 DC 0\n", spice.SweepSource, pin2)
		deck.Stimulus = fmt.Sprintf("%s %s %s DC %g\n", spice.SeriesSource, pad, pin2, vds)
		probe = spice.SeriesSource
	} else {
		deck.Load = fmt.Sprintf("%s %s 0 DC 0\n", spice.SweepSource, pad)
	}

	enabled, outputHigh := curveStimulus(it.Curve)
	deck.Stimulus += e.controlStimulus(pp, scope, corner, enabled, outputHigh, false)

	vcc := setup.Vcc.Pick(corner)
	gnd := setup.Gnd.Pick(corner)
	vccClamp, gndClamp := clampRails(it.Curve, scope, setup, corner)
	deck.Power = e.powerCards(it.Curve, pp.Supplies, vcc, gnd, vccClamp, gndClamp)
	deck.Temperature = e.Dialect.Temperature(temperatureFor(scope, corner))

	start := setup.Start.Pick(corner)
	deck.Analysis = e.Dialect.DCSweep(spice.SweepSource, start, start+setup.Range, setup.Step, probe)

	return deck, job, nil
}

// curveStimulus gives the enable and data states a curve is measured in.
func curveStimulus(curve ibis.CurveType) (enabled, outputHigh bool) {
	switch curve {
	case ibis.CurvePullup, ibis.CurveRisingRamp, ibis.CurveRisingWave:
		return true, true
	case ibis.CurvePulldown, ibis.CurveFallingRamp, ibis.CurveFallingWave:
		return true, false
	case ibis.CurveSeriesVI:
		return true, true
	case ibis.CurveDisabledPullup, ibis.CurvePowerClamp:
		return false, true
	case ibis.CurveDisabledPulldown, ibis.CurveGndClamp:
		return false, false
	}
	return false, false
}

// controlStimulus drives the enable and input pins. With the buffer
// enabled the input is held at the level that selects the measured
// transistor; disabled and clamp sweeps leave the input floating through a
// weak tie so the receiver sees a defined node.
func (e *Engine) controlStimulus(pp PinPlan, scope ibis.Scope, corner ibis.Corner, enabled, outputHigh, transient bool) string {
	model := scope.Model
	out := ""

	if enablePin := findPin(pp.Component, pp.Pin.EnablePin); enablePin != nil {
		out += e.pinDC(spice.EnableSource, enablePin, scope, corner,
			model.Enable == ibis.ActiveLow, enabled)
	}

	inputPin := findPin(pp.Component, pp.Pin.InputPin)
	switch {
	case inputPin == nil:
	case transient:
		out += e.pinPulse(spice.InputSource, inputPin, scope, corner,
			model.Polarity == ibis.Inverting, outputHigh)
	case enabled:
		out += e.pinDC(spice.InputSource, inputPin, scope, corner,
			model.Polarity == ibis.Inverting, outputHigh)
	default:
		gnd := "0"
		if pp.Supplies.Pulldown != nil {
			gnd = nodeOf(pp.Supplies.Pulldown)
		}
		out += fmt.Sprintf("RINWEAK %s %s 1e10\n", nodeOf(inputPin), gnd)
	}
	return out
}

// pinDC renders a DC drive at the level selected by the inversion and
// active flags.
func (e *Engine) pinDC(src string, pin *ibis.Pin, scope ibis.Scope, corner ibis.Corner, inverted, active bool) string {
	vil, vih := e.levels(scope, corner)
	value := vih
	if active == inverted {
		value = vil
	}
	return e.Dialect.DCSource(src, nodeOf(pin), "0", value)
}

// pinPulse renders the transient stimulus edge.
func (e *Engine) pinPulse(src string, pin *ibis.Pin, scope ibis.Scope, corner ibis.Corner, inverted, rising bool) string {
	vil, vih := e.levels(scope, corner)
	simTime := simWindow(scope)
	tr := scope.Tr().Pick(corner)
	tf := scope.Tf().Pick(corner)
	if ibis.IsNA(tr) || tr <= 0 {
		tr = simTime / 100
	}
	if ibis.IsNA(tf) || tf <= 0 {
		tf = simTime / 100
	}
	width := 2 * simTime
	period := 2 * (tr + tf + width)

	low, high := vil, vih
	if !rising {
		low, high = high, low
	}
	if inverted {
		low, high = high, low
	}
	return e.Dialect.PulseSource(src, nodeOf(pin), "0", low, high, 0, tr, tf, width, period)
}

// levels resolves the stimulus low/high voltages, falling back to the rail
// span when the configuration gives none.
func (e *Engine) levels(scope ibis.Scope, corner ibis.Corner) (vil, vih float64) {
	vcc := scope.VoltageRange().Pick(corner)
	if ibis.IsNA(vcc) {
		vcc = ibis.VoltageRangeTypDefault
	}
	vil = scope.Vil().Pick(corner)
	vih = scope.Vih().Pick(corner)
	if ibis.IsNA(vil) {
		vil = 0
	}
	if ibis.IsNA(vih) {
		vih = vcc
	}
	return vil, vih
}

// simWindow resolves the transient duration, capped so the fixed-count
// waveform tables keep useful resolution.
func simWindow(scope ibis.Scope) float64 {
	t := scope.SimTime()
	if t > 100e-9 {
		t = 100e-9
	}
	return t
}

// clampRails picks the fixture voltage of the clamp supplies: real clamp
// references when the curve measures a clamp and they are configured, the
// sweep rails otherwise.
func clampRails(curve ibis.CurveType, scope ibis.Scope, setup SweepSetup, corner ibis.Corner) (vcc, gnd float64) {
	vcc = setup.Vcc.Pick(corner)
	gnd = setup.Gnd.Pick(corner)
	if curve == ibis.CurvePowerClamp && !ibis.IsNA(scope.Model.PowerClampRef.Typ) {
		vcc = scope.PowerClampRef().Pick(corner)
	}
	if curve == ibis.CurveGndClamp && !ibis.IsNA(scope.Model.GndClampRef.Typ) {
		gnd = scope.GndClampRef().Pick(corner)
	}
	return vcc, gnd
}

// powerCards biases the rails. Clamp curves bias the clamp rails first;
// other curves bias the supplies first and add distinct clamp rails only
// when they are separate nodes, so no node is double-driven.
func (e *Engine) powerCards(curve ibis.CurveType, supplies SupplyPins, vcc, gnd, vccClamp, gndClamp float64) string {
	var out string
	p := optNode(supplies.Pullup)
	g := optNode(supplies.Pulldown)
	pc := optNode(supplies.PowerClamp)
	gc := optNode(supplies.GndClamp)

	src := e.Dialect.DCSource

	switch curve {
	case ibis.CurvePowerClamp, ibis.CurveGndClamp:
		if pc != "" {
			out += src(spice.PowerClamp, pc, "0", vccClamp)
			if p != "" && !sameNode(p, pc) {
				out += src(spice.PowerSource, p, "0", vcc)
			}
		} else if p != "" {
			out += src(spice.PowerSource, p, "0", vcc)
		}
		if gc != "" {
			out += src(spice.GroundClamp, gc, "0", gndClamp)
			if g != "" && !sameNode(g, gc) {
				out += src(spice.GroundSource, g, "0", gnd)
			}
		} else if g != "" {
			out += src(spice.GroundSource, g, "0", gnd)
		}
	case ibis.CurveSeriesVI:
		if p != "" {
			out += src(spice.PowerSource, p, "0", vcc)
		}
		if g != "" {
			out += src(spice.GroundSource, g, "0", gnd)
		}
	default:
		if p != "" {
			out += src(spice.PowerSource, p, "0", vcc)
			if pc != "" && !sameNode(pc, p) {
				out += src(spice.PowerClamp, pc, "0", vccClamp)
			}
		} else if pc != "" {
			out += src(spice.PowerClamp, pc, "0", vccClamp)
		}
		if g != "" {
			out += src(spice.GroundSource, g, "0", gnd)
			if gc != "" && !sameNode(gc, g) {
				out += src(spice.GroundClamp, gc, "0", gndClamp)
			}
		} else if gc != "" {
			out += src(spice.GroundClamp, gc, "0", gndClamp)
		}
	}
	return out
}

func (e *Engine) netlistPath(pp PinPlan, curve ibis.CurveType) string {
	path := pp.Component.SpiceFile
	if curve == ibis.CurveSeriesVI && pp.Component.SeriesSpiceFile != "" {
		path = pp.Component.SeriesSpiceFile
	}
	if path == "" {
		path = e.Doc.SpiceFile
	}
	return path
}

// temperatureFor resolves the corner temperature; min/max intentionally
// follow the slow/fast process convention of the configuration.
func temperatureFor(scope ibis.Scope, corner ibis.Corner) float64 {
	t := scope.TempRange().Pick(corner)
	if ibis.IsNA(t) {
		return 27
	}
	return t
}

func modelFileFor(model *ibis.Model, corner ibis.Corner) string {
	switch corner {
	case ibis.Min:
		if model.ModelFileMin != "" {
			return model.ModelFileMin
		}
	case ibis.Max:
		if model.ModelFileMax != "" {
			return model.ModelFileMax
		}
	}
	return model.ModelFile
}

func nodeOf(pin *ibis.Pin) string {
	if pin.SpiceNode != "" {
		return pin.SpiceNode
	}
	return pin.Name
}

func optNode(pin *ibis.Pin) string {
	if pin == nil {
		return ""
	}
	return nodeOf(pin)
}

func sameNode(a, b string) bool {
	return strings.EqualFold(a, b)
}

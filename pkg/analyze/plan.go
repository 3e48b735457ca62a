// Package analyze plans and executes the characterization simulations for
// every pin of a document, then derives the IBIS tables from the raw
// results.
package analyze

import (
	"fmt"
	"math"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// NeedsPullup reports whether the model type drives the pad high.
func NeedsPullup(t ibis.ModelType) bool {
	switch t {
	case ibis.ModelOutput, ibis.ModelThreeState, ibis.ModelIO,
		ibis.ModelOpenSource, ibis.ModelIOOpenSource,
		ibis.ModelOutputECL, ibis.ModelIOECL:
		return true
	}
	return false
}

// NeedsPulldown reports whether the model type drives the pad low.
func NeedsPulldown(t ibis.ModelType) bool {
	switch t {
	case ibis.ModelOutput, ibis.ModelThreeState, ibis.ModelIO,
		ibis.ModelOpenSink, ibis.ModelIOOpenSink,
		ibis.ModelOpenDrain, ibis.ModelIOOpenDrain,
		ibis.ModelOutputECL, ibis.ModelIOECL:
		return true
	}
	return false
}

// NeedsPowerClamp reports whether the pad carries an upper clamp structure.
func NeedsPowerClamp(t ibis.ModelType) bool {
	switch t {
	case ibis.ModelInput, ibis.ModelThreeState, ibis.ModelIO,
		ibis.ModelIOOpenSource, ibis.ModelInputECL, ibis.ModelIOECL,
		ibis.ModelTerminator:
		return true
	}
	return false
}

// NeedsGndClamp reports whether the pad carries a lower clamp structure.
func NeedsGndClamp(t ibis.ModelType) bool {
	switch t {
	case ibis.ModelInput, ibis.ModelThreeState, ibis.ModelIO,
		ibis.ModelOpenSink, ibis.ModelIOOpenSink,
		ibis.ModelOpenDrain, ibis.ModelIOOpenDrain,
		ibis.ModelInputECL, ibis.ModelIOECL, ibis.ModelTerminator:
		return true
	}
	return false
}

// NeedsTransient reports whether ramps and waveforms apply.
func NeedsTransient(t ibis.ModelType) bool {
	switch t {
	case ibis.ModelOutput, ibis.ModelThreeState, ibis.ModelIO,
		ibis.ModelOpenSink, ibis.ModelIOOpenSink,
		ibis.ModelOpenDrain, ibis.ModelIOOpenDrain,
		ibis.ModelOpenSource, ibis.ModelIOOpenSource,
		ibis.ModelOutputECL, ibis.ModelIOECL:
		return true
	}
	return false
}

// NeedsSeriesVI reports whether only the series element tables apply.
func NeedsSeriesVI(t ibis.ModelType) bool {
	return t == ibis.ModelSeries || t == ibis.ModelSeriesSwitch
}

// Item is one planned simulation: a curve at a corner for a pin's model,
// with its deterministic output file base. MultiUse marks a disabled-state
// sweep that feeds both the driver subtraction and the clamp derivation.
type Item struct {
	Pin    *ibis.Pin
	Model  *ibis.Model
	Curve  ibis.CurveType
	Corner ibis.Corner

	// Index numbers waveform fixtures and series Vds steps.
	Index int

	FileBase string
	MultiUse bool
}

// FileBaseFor builds the {prefix}_{pin}_{corner} stem, with a two-digit
// index for curves that run once per fixture or Vds step.
func FileBaseFor(curve ibis.CurveType, corner ibis.Corner, pin string, index int) string {
	prefix := ibis.FilePrefix(curve, corner)
	if curve == ibis.CurveRisingWave || curve == ibis.CurveFallingWave || curve == ibis.CurveSeriesVI {
		prefix = fmt.Sprintf("%s%02d", prefix, index)
	}
	return fmt.Sprintf("%s_%s_%s", prefix, pin, corner)
}

// PinPlan groups one pin's items; the executor finishes a pin before
// starting the next so partial failures report at pin granularity.
type PinPlan struct {
	Component *ibis.Component
	Pin       *ibis.Pin
	Items     []Item

	Supplies SupplyPins
}

// Plan walks the document and emits the ordered simulation plan.
func Plan(doc *ibis.Document) ([]PinPlan, error) {
	var plans []PinPlan
	seen := map[*ibis.Model]bool{}

	for _, comp := range doc.Components {
		if len(comp.Pins) == 0 {
			return nil, ibis.Errorf(ibis.PlanError, "component %s has no pin list", comp.Name)
		}
		for _, pin := range comp.Pins {
			if pin.Reserved() != ibis.ReservedNone {
				continue
			}
			model := pin.Model
			if model == nil || model.NoModel {
				continue
			}
			if seen[model] && model.Series == nil {
				continue // one characterization per model
			}
			seen[model] = true

			supplies, err := FindSupplyPins(pin, comp)
			if err != nil {
				return nil, err
			}
			if err := checkPlan(pin, comp, model); err != nil {
				return nil, err
			}

			pp := PinPlan{Component: comp, Pin: pin, Supplies: supplies}
			scope := ibis.Scope{Model: model, Component: comp, Document: doc}
			corners := availableCorners(scope)

			add := func(curve ibis.CurveType, index int, multi bool) {
				for _, c := range corners {
					pp.Items = append(pp.Items, Item{
						Pin: pin, Model: model, Curve: curve, Corner: c,
						Index:    index,
						FileBase: FileBaseFor(curve, c, pin.Name, index),
						MultiUse: multi,
					})
				}
			}

			hasEnable := pin.EnablePin != ""

			if model.Series != nil && len(model.Series.VdsList) > 0 {
				for i := range model.Series.VdsList {
					if i >= ibis.MaxSeriesTables {
						break
					}
					add(ibis.CurveSeriesVI, i, false)
				}
			}
			if NeedsPullup(model.Type) {
				add(ibis.CurvePullup, 0, false)
				if hasEnable {
					add(ibis.CurveDisabledPullup, 0, true)
				}
			}
			if NeedsPulldown(model.Type) {
				add(ibis.CurvePulldown, 0, false)
				if hasEnable {
					add(ibis.CurveDisabledPulldown, 0, true)
				}
			}
			if NeedsPowerClamp(model.Type) {
				add(ibis.CurvePowerClamp, 0, false)
			}
			if NeedsGndClamp(model.Type) {
				add(ibis.CurveGndClamp, 0, false)
			}
			if NeedsTransient(model.Type) {
				add(ibis.CurveRisingRamp, 0, false)
				add(ibis.CurveFallingRamp, 0, false)
				for i := range sortedWaves(model.RisingWave) {
					if i >= ibis.MaxWaveformTables {
						break
					}
					add(ibis.CurveRisingWave, i, false)
				}
				for i := range sortedWaves(model.FallingWave) {
					if i >= ibis.MaxWaveformTables {
						break
					}
					add(ibis.CurveFallingWave, i, false)
				}
			}

			if len(pp.Items) > 0 {
				plans = append(plans, pp)
			}
		}
	}
	return plans, nil
}

// checkPlan rejects plans that cannot be materialized.
func checkPlan(pin *ibis.Pin, comp *ibis.Component, model *ibis.Model) error {
	switch model.Type {
	case ibis.ModelIO, ibis.ModelIOECL, ibis.ModelThreeState:
		if pin.EnablePin == "" {
			return ibis.Errorf(ibis.PlanError,
				"pin %s: model type %s requires an enable pin", pin.Name, model.Type)
		}
	case ibis.ModelSeries, ibis.ModelSeriesSwitch:
		if pin.SeriesPin2 == "" && seriesPin2FromMapping(pin, comp) == "" {
			return ibis.Errorf(ibis.PlanError,
				"pin %s: series model needs a second terminal", pin.Name)
		}
	}
	if pin.EnablePin != "" && findPin(comp, pin.EnablePin) == nil {
		return ibis.Errorf(ibis.PlanError, "pin %s: enable pin %q not in pin list", pin.Name, pin.EnablePin)
	}
	if pin.InputPin != "" && findPin(comp, pin.InputPin) == nil {
		return ibis.Errorf(ibis.PlanError, "pin %s: input pin %q not in pin list", pin.Name, pin.InputPin)
	}
	return nil
}

func seriesPin2FromMapping(pin *ibis.Pin, comp *ibis.Component) string {
	for _, sp := range comp.SeriesPins {
		if strings.EqualFold(sp.Pin1, pin.Name) {
			return sp.Pin2
		}
	}
	return ""
}

// availableCorners drops a corner whose defaults are entirely unset; its
// table columns stay NA.
func availableCorners(scope ibis.Scope) []ibis.Corner {
	out := []ibis.Corner{ibis.Typ}
	vr := scope.VoltageRange()
	tr := scope.TempRange()
	if !ibis.IsNA(vr.Min) || !ibis.IsNA(tr.Min) {
		out = append(out, ibis.Min)
	}
	if !ibis.IsNA(vr.Max) || !ibis.IsNA(tr.Max) {
		out = append(out, ibis.Max)
	}
	return out
}

// sortedWaves orders fixtures heaviest first (R_fixture descending) so the
// stiffest load runs before the lighter ones.
func sortedWaves(waves []*ibis.WaveTable) []*ibis.WaveTable {
	out := make([]*ibis.WaveTable, len(waves))
	copy(out, waves)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].RFixture > out[j-1].RFixture; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// findPin looks a pin up by name, case-insensitively.
func findPin(comp *ibis.Component, name string) *ibis.Pin {
	if name == "" {
		return nil
	}
	for _, p := range comp.Pins {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// SupplyPins are the rail pins feeding one signal pin's characterization.
type SupplyPins struct {
	Pullup     *ibis.Pin
	Pulldown   *ibis.Pin
	PowerClamp *ibis.Pin
	GndClamp   *ibis.Pin
}

// FindSupplyPins resolves the rails for a pin. With [Pin Mapping] present
// the pin's bus labels are matched against the POWER/GND pins' labels;
// otherwise the first POWER and GND pins serve every signal.
func FindSupplyPins(pin *ibis.Pin, comp *ibis.Component) (SupplyPins, error) {
	var out SupplyPins

	if !comp.HasPinMapping() {
		var power, gnd *ibis.Pin
		for _, p := range comp.Pins {
			switch p.Reserved() {
			case ibis.ReservedPower:
				if power == nil {
					power = p
				}
			case ibis.ReservedGND:
				if gnd == nil {
					gnd = p
				}
			}
		}
		if power == nil {
			return out, ibis.Errorf(ibis.PlanError, "no pin with model name POWER")
		}
		if gnd == nil {
			return out, ibis.Errorf(ibis.PlanError, "no pin with model name GND")
		}
		out.Pullup, out.PowerClamp = power, power
		out.Pulldown, out.GndClamp = gnd, gnd
		return out, nil
	}

	// Bus labels from the mapping row for this pin.
	var row *ibis.PinMapping
	for i := range comp.PinMappings {
		if strings.EqualFold(comp.PinMappings[i].Pin, pin.Name) {
			row = &comp.PinMappings[i]
			break
		}
	}
	if row == nil {
		return out, ibis.Errorf(ibis.PlanError, "pin %s missing from [Pin Mapping]", pin.Name)
	}

	lookup := func(label, field string) *ibis.Pin {
		if isNC(label) {
			return nil
		}
		for _, p := range comp.Pins {
			k := p.Reserved()
			if k != ibis.ReservedPower && k != ibis.ReservedGND {
				continue
			}
			var candidate string
			for i := range comp.PinMappings {
				if strings.EqualFold(comp.PinMappings[i].Pin, p.Name) {
					switch field {
					case "pullup":
						candidate = comp.PinMappings[i].PullupRef
					case "pulldown":
						candidate = comp.PinMappings[i].PulldownRef
					case "powerclamp":
						candidate = comp.PinMappings[i].PowerClampRef
					case "gndclamp":
						candidate = comp.PinMappings[i].GndClampRef
					}
					break
				}
			}
			if !isNC(candidate) && strings.EqualFold(candidate, label) {
				return p
			}
		}
		return nil
	}

	out.Pullup = lookup(row.PullupRef, "pullup")
	out.Pulldown = lookup(row.PulldownRef, "pulldown")
	out.PowerClamp = lookup(row.PowerClampRef, "powerclamp")
	out.GndClamp = lookup(row.GndClampRef, "gndclamp")
	return out, nil
}

func isNC(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s == "" || s == "NC" || s == "NA" || s == "#"
}

// SweepSetup carries the DC window for one curve: the per-corner start
// voltage, the signed range and step, and the rails the deck biases.
type SweepSetup struct {
	Step      float64
	Range     float64
	DiodeDrop float64
	Start     ibis.TypMinMax
	Vcc       ibis.TypMinMax
	Gnd       ibis.TypMinMax
}

// End returns a corner's sweep stop voltage.
func (s SweepSetup) End(c ibis.Corner) float64 {
	return s.Start.Pick(c) + s.Range
}

// Points returns the expected table row count: round(|range|/step)+2,
// clamped to the IBIS table cap.
func (s SweepSetup) Points() int {
	if s.Step == 0 {
		return 2
	}
	n := int(math.Round(math.Abs(s.Range/s.Step))) + 2
	if n > ibis.MaxTableSize {
		n = ibis.MaxTableSize
	}
	return n
}

// SetupSweep computes the sweep window for a curve from the resolved rail
// references. The windows mirror the reference behavior: the linear span
// is clamped at 5 V, pullup-family sweeps shift their min/max start by the
// rail offset, clamps sweep outward from their rail, ECL types use the
// fixed 2 V span, and a negative range flips the step sign.
func SetupSweep(curve ibis.CurveType, modelType ibis.ModelType, scope ibis.Scope) SweepSetup {
	var s SweepSetup

	pullupRef := scope.PullupRef()
	pulldownRef := scope.PulldownRef()
	powerClampRef := scope.PowerClampRef()
	gndClampRef := scope.GndClampRef()

	if modelType.IsECL() {
		s.Vcc = pullupRef
		if ibis.IsNA(scope.Model.GndClampRef.Typ) {
			if s.Vcc.Typ >= 4.5 && s.Vcc.Typ <= 5.5 {
				s.Gnd = ibis.NewTMM(0, 0, 0)
			} else {
				s.Gnd = ibis.NewTMM(s.Vcc.Typ-5.2, s.Vcc.Min-5.2, s.Vcc.Max-5.2)
			}
		} else {
			s.Gnd = gndClampRef
		}

		switch curve {
		case ibis.CurvePowerClamp:
			s.Start = powerClampRef
			s.Range = ibis.ECLSweepRangeDefault
		case ibis.CurveGndClamp:
			start := gndClampRef.Typ - ibis.ECLSweepRangeDefault
			s.Start = ibis.NewTMM(start, start, start)
			s.Range = powerClampRef.Typ - start
		default:
			start := pullupRef.Typ - ibis.ECLSweepRangeDefault
			s.Start = ibis.NewTMM(start, start, start)
			if curve == ibis.CurvePullup || curve == ibis.CurveDisabledPullup {
				s.Start.Max += s.Vcc.Max - s.Vcc.Typ
				s.Start.Min += s.Vcc.Min - s.Vcc.Typ
			}
			s.Range = ibis.ECLSweepRangeDefault
		}
	} else {
		clampSpan := modelType == ibis.ModelInput || modelType == ibis.ModelTerminator ||
			modelType == ibis.ModelSeries || modelType == ibis.ModelSeriesSwitch
		linRange := pullupRef.Typ - pulldownRef.Typ
		if clampSpan {
			linRange = powerClampRef.Typ - gndClampRef.Typ
		}
		if linRange > ibis.LinRangeDefault {
			linRange = ibis.LinRangeDefault
		}

		switch curve {
		case ibis.CurvePowerClamp, ibis.CurveGndClamp:
			s.Vcc = powerClampRef
			s.Gnd = gndClampRef
			if curve == ibis.CurveGndClamp {
				start := gndClampRef.Typ - linRange
				s.Start = ibis.NewTMM(start, start, start)
				s.Range = powerClampRef.Typ - start
			} else {
				s.Start = powerClampRef
				s.Range = linRange
			}
		case ibis.CurveSeriesVI:
			s.Vcc = pullupRef
			s.Gnd = pulldownRef
			start := pulldownRef.Typ
			s.Start = ibis.NewTMM(start, start, start)
			s.Range = pullupRef.Typ
		default:
			s.Vcc = pullupRef
			s.Gnd = pulldownRef
			start := pulldownRef.Typ - linRange
			s.Start = ibis.NewTMM(start, start, start)
			if curve == ibis.CurvePullup || curve == ibis.CurveDisabledPullup {
				s.Start.Max += s.Vcc.Max - s.Vcc.Typ
				s.Start.Min += s.Vcc.Min - s.Vcc.Typ
			}
			s.Range = pullupRef.Typ + linRange - start
		}
	}

	s.DiodeDrop = ibis.DiodeDropDefault
	if s.Range < 0 {
		s.DiodeDrop = -ibis.DiodeDropDefault
	}
	s.Step = stepFor(s.Range)
	return s
}

// stepFor sizes the sweep step: aim for SweepPointsTarget points, never
// finer than 10 mV, never more than the table cap allows. The sign follows
// the range.
func stepFor(sweepRange float64) float64 {
	if math.Abs(sweepRange) < 1e-12 {
		return ibis.SweepStepDefault
	}
	step := math.Abs(sweepRange) / ibis.SweepPointsTarget
	if step < ibis.SweepStepDefault {
		step = ibis.SweepStepDefault
	}
	if sweepRange < 0 {
		step = -step
	}
	return step
}

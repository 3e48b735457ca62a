package analyze

import (
	"math"
	"strings"
	"testing"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

func buildDoc(t *testing.T, modelType ibis.ModelType, enable bool) *ibis.Document {
	t.Helper()
	doc := ibis.NewDocument()
	doc.Defaults.VoltageRange = ibis.NewTMM(3.3, 3.0, 3.6)
	doc.Defaults.TempRange = ibis.NewTMM(27, 100, 0)

	model := ibis.NewModel("driver")
	model.Type = modelType
	doc.Models = append(doc.Models, model)

	comp := ibis.NewComponent("u1")
	pad := &ibis.Pin{Name: "out", SpiceNode: "net7", SignalName: "sig", ModelName: "driver",
		RPin: ibis.NA(), LPin: ibis.NA(), CPin: ibis.NA()}
	if enable {
		pad.EnablePin = "oe"
	}
	comp.Pins = append(comp.Pins, pad,
		&ibis.Pin{Name: "oe", ModelName: "DUMMY"},
		&ibis.Pin{Name: "vdd", SpiceNode: "vdd", ModelName: "POWER"},
		&ibis.Pin{Name: "vss", SpiceNode: "vss", ModelName: "GND"},
	)
	if modelType == ibis.ModelSeries || modelType == ibis.ModelSeriesSwitch {
		pad.SeriesPin2 = "core_out"
		model.Series = &ibis.SeriesModel{OnState: true, OffState: true,
			RSeriesOff: ibis.NewTMM(1e6, 1e6, 1e6), VdsList: []float64{0, 0.5, 1.0}}
	}
	doc.Components = append(doc.Components, comp)
	if err := ibis.Complete(doc); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	return doc
}

func curves(items []Item) map[ibis.CurveType]int {
	out := map[ibis.CurveType]int{}
	for _, it := range items {
		out[it.Curve]++
	}
	return out
}

func TestPlanOutputModel(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(plans))
	}
	c := curves(plans[0].Items)
	if c[ibis.CurvePullup] != 3 || c[ibis.CurvePulldown] != 3 {
		t.Errorf("driver sweeps: %v", c)
	}
	if c[ibis.CurveRisingRamp] != 3 || c[ibis.CurveFallingRamp] != 3 {
		t.Errorf("ramp items: %v", c)
	}
	if c[ibis.CurveDisabledPullup] != 0 {
		t.Error("output model planned a disabled sweep without an enable pin")
	}
	if c[ibis.CurvePowerClamp] != 0 || c[ibis.CurveGndClamp] != 0 {
		t.Error("pure output planned clamp sweeps")
	}
}

func TestPlanReservedPinsSkipped(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, pp := range plans {
		for _, it := range pp.Items {
			if it.Pin.Reserved() != ibis.ReservedNone {
				t.Fatalf("plan item for reserved pin %s", it.Pin.Name)
			}
		}
	}
}

func TestPlanIOModel(t *testing.T) {
	doc := buildDoc(t, ibis.ModelIO, true)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	c := curves(plans[0].Items)
	for _, want := range []ibis.CurveType{
		ibis.CurvePullup, ibis.CurveDisabledPullup,
		ibis.CurvePulldown, ibis.CurveDisabledPulldown,
		ibis.CurvePowerClamp, ibis.CurveGndClamp,
		ibis.CurveRisingRamp, ibis.CurveFallingRamp,
	} {
		if c[want] != 3 {
			t.Errorf("I/O model missing curve %v: %v", want, c)
		}
	}
	// Disabled sweeps feed both subtraction and clamp derivation.
	for _, it := range plans[0].Items {
		if it.Curve == ibis.CurveDisabledPullup && !it.MultiUse {
			t.Error("disabled sweep not marked multi-use")
		}
	}
}

func TestPlanIOWithoutEnableFails(t *testing.T) {
	doc := buildDoc(t, ibis.ModelIO, false)
	_, err := Plan(doc)
	if err == nil {
		t.Fatal("I/O model without enable pin accepted")
	}
	if k, _ := ibis.KindOf(err); k != ibis.PlanError {
		t.Errorf("kind = %v, want PlanError", k)
	}
}

func TestPlanOpenDrainOmitsPullup(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOpenDrain, false)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	c := curves(plans[0].Items)
	if c[ibis.CurvePullup] != 0 {
		t.Error("open drain planned a pullup sweep")
	}
	if c[ibis.CurvePulldown] != 3 || c[ibis.CurveGndClamp] != 3 {
		t.Errorf("open drain curves: %v", c)
	}
	if c[ibis.CurveRisingRamp] != 3 {
		t.Errorf("open drain should still ramp: %v", c)
	}
}

func TestPlanSeriesOnlySeriesCurves(t *testing.T) {
	doc := buildDoc(t, ibis.ModelSeries, false)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	c := curves(plans[0].Items)
	if c[ibis.CurveSeriesVI] != 9 { // three Vds steps, three corners
		t.Errorf("series items: %v", c)
	}
	for curve, n := range c {
		if curve != ibis.CurveSeriesVI && n > 0 {
			t.Errorf("series model planned %v", curve)
		}
	}
}

func TestPlanInputModelClampsOnly(t *testing.T) {
	doc := buildDoc(t, ibis.ModelInput, false)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	c := curves(plans[0].Items)
	if c[ibis.CurvePowerClamp] != 3 || c[ibis.CurveGndClamp] != 3 {
		t.Errorf("input curves: %v", c)
	}
	if c[ibis.CurvePullup] != 0 || c[ibis.CurveRisingRamp] != 0 {
		t.Errorf("input model planned driver curves: %v", c)
	}
}

func TestPlanFileBases(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	plans, _ := Plan(doc)
	seen := map[string]bool{}
	for _, it := range plans[0].Items {
		if seen[it.FileBase] {
			t.Errorf("file base %q reused", it.FileBase)
		}
		seen[it.FileBase] = true
		if !strings.Contains(it.FileBase, "_out_") {
			t.Errorf("file base %q missing pin name", it.FileBase)
		}
	}
	if base := FileBaseFor(ibis.CurvePullup, ibis.Typ, "out", 0); base != "put_out_typ" {
		t.Errorf("FileBaseFor = %q", base)
	}
	if base := FileBaseFor(ibis.CurveRisingWave, ibis.Max, "out", 1); base != "c01_out_max" {
		t.Errorf("indexed FileBaseFor = %q", base)
	}
}

func TestPlanCornerSelection(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	doc.Defaults.VoltageRange = ibis.TypOnly(3.3)
	doc.Defaults.TempRange = ibis.TypOnly(27)
	// Complete already copied the resolved ranges into the model.
	doc.Models[0].VoltageRange = ibis.TypOnly(3.3)
	doc.Models[0].TempRange = ibis.TypOnly(27)
	plans, err := Plan(doc)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	for _, it := range plans[0].Items {
		if it.Corner != ibis.Typ {
			t.Fatalf("corner %v planned with min/max defaults unset", it.Corner)
		}
	}
}

func TestSweepStepFloor(t *testing.T) {
	// For a 0.5 V range the 10 mV floor binds; /80 would give 6.25 mV.
	if got := stepFor(0.5); got != 0.01 {
		t.Errorf("stepFor(0.5) = %v, want 0.01", got)
	}
	if got := stepFor(-0.5); got != -0.01 {
		t.Errorf("stepFor(-0.5) = %v, want -0.01", got)
	}
	if got := stepFor(8.0); math.Abs(got-0.1) > 1e-12 {
		t.Errorf("stepFor(8.0) = %v, want 0.1", got)
	}
}

func TestSetupSweepOutputWindows(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	model := doc.Models[0]
	scope := ibis.Scope{Model: model, Component: doc.Components[0], Document: doc}

	s := SetupSweep(ibis.CurvePullup, model.Type, scope)
	if math.Abs(s.Start.Typ+3.3) > 1e-12 {
		t.Errorf("pullup start = %v, want -3.3", s.Start.Typ)
	}
	if math.Abs(s.End(ibis.Typ)-6.6) > 1e-12 {
		t.Errorf("pullup end = %v, want 6.6", s.End(ibis.Typ))
	}
	// Pullup start tracks the rail offset per corner.
	if math.Abs((s.Start.Max-s.Start.Typ)-0.3) > 1e-12 {
		t.Errorf("max start offset = %v, want +0.3", s.Start.Max-s.Start.Typ)
	}

	s = SetupSweep(ibis.CurvePowerClamp, ibis.ModelInput, scope)
	if s.Start.Typ != 3.3 || math.Abs(s.Range-3.3) > 1e-12 {
		t.Errorf("power clamp window = start %v range %v", s.Start.Typ, s.Range)
	}

	s = SetupSweep(ibis.CurveGndClamp, ibis.ModelInput, scope)
	if math.Abs(s.Start.Typ+3.3) > 1e-12 || math.Abs(s.Range-6.6) > 1e-12 {
		t.Errorf("gnd clamp window = start %v range %v", s.Start.Typ, s.Range)
	}
}

func TestSetupSweepPointsCap(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	scope := ibis.Scope{Model: doc.Models[0], Component: doc.Components[0], Document: doc}
	s := SetupSweep(ibis.CurvePullup, ibis.ModelOutput, scope)
	if n := s.Points(); n < 2 || n > ibis.MaxTableSize {
		t.Errorf("points = %d, want 2..%d", n, ibis.MaxTableSize)
	}
}

func TestFindSupplyPinsLegacy(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	comp := doc.Components[0]
	sp, err := FindSupplyPins(comp.Pins[0], comp)
	if err != nil {
		t.Fatalf("FindSupplyPins: %v", err)
	}
	if sp.Pullup == nil || sp.Pullup.Name != "vdd" {
		t.Errorf("pullup pin = %+v", sp.Pullup)
	}
	if sp.GndClamp == nil || sp.GndClamp.Name != "vss" {
		t.Errorf("gnd clamp pin = %+v", sp.GndClamp)
	}
}

func TestFindSupplyPinsMapping(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	comp := doc.Components[0]
	comp.PinMappings = []ibis.PinMapping{
		{Pin: "out", PullupRef: "VDDBUS", PulldownRef: "GNDBUS", PowerClampRef: "VDDBUS", GndClampRef: "GNDBUS"},
		{Pin: "vdd", PullupRef: "VDDBUS", PulldownRef: "NC", PowerClampRef: "VDDBUS", GndClampRef: "NC"},
		{Pin: "vss", PullupRef: "NC", PulldownRef: "GNDBUS", PowerClampRef: "NC", GndClampRef: "GNDBUS"},
	}
	sp, err := FindSupplyPins(comp.Pins[0], comp)
	if err != nil {
		t.Fatalf("FindSupplyPins: %v", err)
	}
	if sp.Pullup == nil || sp.Pullup.Name != "vdd" {
		t.Errorf("mapped pullup pin = %+v", sp.Pullup)
	}
	if sp.Pulldown == nil || sp.Pulldown.Name != "vss" {
		t.Errorf("mapped pulldown pin = %+v", sp.Pulldown)
	}
}

func TestFindSupplyPinsMissingPower(t *testing.T) {
	doc := buildDoc(t, ibis.ModelOutput, false)
	comp := doc.Components[0]
	comp.Pins = comp.Pins[:2] // drop vdd and vss
	_, err := FindSupplyPins(comp.Pins[0], comp)
	if err == nil {
		t.Fatal("missing POWER pin accepted")
	}
}

func TestSortedWavesHeaviestFirst(t *testing.T) {
	waves := []*ibis.WaveTable{
		ibis.NewWaveTable(50, 0),
		ibis.NewWaveTable(1500, 0),
		ibis.NewWaveTable(500, 0),
	}
	out := sortedWaves(waves)
	if out[0].RFixture != 1500 || out[1].RFixture != 500 || out[2].RFixture != 50 {
		t.Errorf("fixture order: %v %v %v", out[0].RFixture, out[1].RFixture, out[2].RFixture)
	}
	if waves[0].RFixture != 50 {
		t.Error("input slice reordered in place")
	}
}

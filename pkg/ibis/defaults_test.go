package ibis

import (
	"testing"
)

func testScope() Scope {
	doc := NewDocument()
	doc.Defaults.VoltageRange = NewTMM(3.3, 3.0, 3.6)
	doc.Defaults.TempRange = NewTMM(27, 100, 0)
	doc.Defaults.Vil = TypOnly(0.8)
	doc.Defaults.Vih = TypOnly(2.0)

	comp := NewComponent("u1")
	comp.VoltageRange = TypMinMax{Typ: NA(), Min: 2.9, Max: NA()}

	model := NewModel("driver")
	model.VoltageRange = TypMinMax{Typ: NA(), Min: NA(), Max: 3.465}

	doc.Components = append(doc.Components, comp)
	doc.Models = append(doc.Models, model)
	return Scope{Model: model, Component: comp, Document: doc}
}

func TestResolveWalksThreeLayers(t *testing.T) {
	s := testScope()
	vr := s.VoltageRange()
	if vr.Typ != 3.3 {
		t.Errorf("typ = %v, want document 3.3", vr.Typ)
	}
	if vr.Min != 2.9 {
		t.Errorf("min = %v, want component 2.9", vr.Min)
	}
	if vr.Max != 3.465 {
		t.Errorf("max = %v, want model 3.465", vr.Max)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	s := testScope()
	a := s.VoltageRange()
	b := s.VoltageRange()
	if a != b {
		t.Errorf("two resolutions differ: %+v vs %+v", a, b)
	}
}

func TestTemperatureRangePreservedReversed(t *testing.T) {
	// min=100/max=0 is the slow/fast process convention; the resolver
	// must not reorder it.
	s := testScope()
	tr := s.TempRange()
	if tr.Min != 100 || tr.Max != 0 {
		t.Errorf("temperature range reordered: min=%v max=%v", tr.Min, tr.Max)
	}
}

func TestReferenceDefaults(t *testing.T) {
	s := testScope()
	pu := s.PullupRef()
	if pu.Typ != 3.3 {
		t.Errorf("pullup ref typ = %v, want voltage range 3.3", pu.Typ)
	}
	pd := s.PulldownRef()
	if pd.Typ != 0 {
		t.Errorf("pulldown ref typ = %v, want 0", pd.Typ)
	}
}

func TestScalarFallbacks(t *testing.T) {
	s := testScope()
	if got := s.Rload(); got != RloadDefault {
		t.Errorf("Rload = %v, want default %v", got, RloadDefault)
	}
	if got := s.SimTime(); got != SimTimeDefault {
		t.Errorf("SimTime = %v, want default %v", got, SimTimeDefault)
	}
	s.Model.Rload = 500
	if got := s.Rload(); got != 500 {
		t.Errorf("Rload = %v, want model override 500", got)
	}
}

func TestCompleteLinksPinsAndRejectsUnknownModel(t *testing.T) {
	doc := NewDocument()
	model := NewModel("driver")
	model.Type = ModelOutput
	doc.Models = append(doc.Models, model)

	comp := NewComponent("u1")
	comp.Pins = append(comp.Pins,
		&Pin{Name: "out", ModelName: "driver"},
		&Pin{Name: "vdd", ModelName: "POWER"},
		&Pin{Name: "vss", ModelName: "GND"},
	)
	doc.Components = append(doc.Components, comp)

	if err := Complete(doc); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if comp.Pins[0].Model != model {
		t.Error("pin not linked to its model")
	}
	if comp.Pins[1].Model != nil {
		t.Error("reserved pin should stay unlinked")
	}

	comp.Pins = append(comp.Pins, &Pin{Name: "x", ModelName: "missing"})
	err := Complete(doc)
	if err == nil {
		t.Fatal("unknown model reference accepted")
	}
	if k, _ := KindOf(err); k != ConfigError {
		t.Errorf("kind = %v, want ConfigError", k)
	}
}

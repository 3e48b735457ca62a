package analyze

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

// The engine tests drive the full deck -> simulate -> parse -> derive
// pipeline against the fake simulator in testdata, which answers DC
// sweeps with a resistive curve and transients with a smooth edge.

func fakeSimCommand(t *testing.T) string {
	t.Helper()
	script, err := filepath.Abs(filepath.Join("testdata", "fakesim.sh"))
	if err != nil {
		t.Fatal(err)
	}
	return "sh " + script + " {in} {out}"
}

func engineFor(t *testing.T, doc *ibis.Document, outdir string) *Engine {
	t.Helper()
	dialect := spice.ForType(doc.SpiceType)
	return &Engine{
		Doc:     doc,
		Dialect: dialect,
		Runner:  &spice.Runner{Dialect: dialect, Command: fakeSimCommand(t)},
		Outdir:  outdir,
	}
}

func writeBufferNetlist(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "buffer.sp")
	content := `* tapered inverter chain
M1 net7 n2 vdd vdd pfet w=40u l=0.4u
M2 net7 n2 vss vss nfet w=20u l=0.4u
.end
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func engineDoc(t *testing.T, dir string) *ibis.Document {
	t.Helper()
	doc := buildDoc(t, ibis.ModelOutput, false)
	doc.Components[0].SpiceFile = writeBufferNetlist(t, dir)
	doc.Models[0].RisingWave = []*ibis.WaveTable{ibis.NewWaveTable(50, 0)}
	doc.Models[0].FallingWave = []*ibis.WaveTable{ibis.NewWaveTable(50, 3.3)}
	return doc
}

func TestEngineOutputBuffer(t *testing.T) {
	dir := t.TempDir()
	doc := engineDoc(t, dir)
	engine := engineFor(t, doc, dir)

	failures, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, f := range failures {
		t.Errorf("unexpected failure: %s", f)
	}

	model := doc.Models[0]
	if model.Pullup.Size() == 0 || model.Pulldown.Size() == 0 {
		t.Fatal("driver tables missing")
	}
	if model.Pullup.Size() > ibis.MaxTableSize {
		t.Errorf("pullup rows = %d", model.Pullup.Size())
	}
	for i := 1; i < model.Pulldown.Size(); i++ {
		if model.Pulldown.Rows[i].V <= model.Pulldown.Rows[i-1].V {
			t.Fatalf("pulldown V not ascending at %d", i)
		}
	}

	if ibis.IsNA(model.Ramp.DvRise.Typ) || ibis.IsNA(model.Ramp.DtRise.Typ) {
		t.Error("rising ramp not measured")
	}
	if model.Ramp.DtRise.Typ <= 0 {
		t.Errorf("rising dt = %v", model.Ramp.DtRise.Typ)
	}

	if len(model.RisingWave) != 1 || len(model.RisingWave[0].Rows) != ibis.WavePoints {
		t.Fatalf("rising waveform rows = %d", len(model.RisingWave[0].Rows))
	}
	last := model.RisingWave[0].Rows[ibis.WavePoints-1]
	if math.Abs(last.T-simFor(doc)) > 1e-15 {
		t.Errorf("waveform terminal time = %v", last.T)
	}

	// The fake simulator prints the passive-convention current
	// (v-1.65)*0.01; the engine negates it on the way in.
	found := false
	for _, e := range model.Pulldown.Rows {
		if math.Abs(e.V-3.3) < 0.07 {
			want := -(e.V - 1.65) * 0.01
			if math.Abs(e.I.Typ-want) > 1e-9 {
				t.Errorf("sign convention: I(%v) = %v, want %v", e.V, e.I.Typ, want)
			}
			found = true
			break
		}
	}
	if !found {
		t.Error("no pulldown row near 3.3 V")
	}
}

func simFor(doc *ibis.Document) float64 {
	scope := ibis.Scope{Model: doc.Models[0], Component: doc.Components[0], Document: doc}
	return simWindow(scope)
}

func TestEngineWritesDeterministicFiles(t *testing.T) {
	dir := t.TempDir()
	doc := engineDoc(t, dir)
	engine := engineFor(t, doc, dir)
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{
		"put_out_typ.sp", "pun_out_min.sp", "pux_out_max.sp",
		"pdt_out_typ.sp", "rut_out_typ.sp", "a00_out_typ.sp",
	} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Errorf("deck %s missing: %v", want, err)
		}
	}
}

func TestEngineIterateReusesResults(t *testing.T) {
	dir := t.TempDir()
	doc := engineDoc(t, dir)
	engine := engineFor(t, doc, dir)
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// Second engine: simulator command would fail loudly if invoked.
	doc2 := engineDoc(t, dir)
	dialect := spice.ForType(doc2.SpiceType)
	engine2 := &Engine{
		Doc:     doc2,
		Dialect: dialect,
		Runner:  &spice.Runner{Dialect: dialect, Command: "false", Iterate: true},
		Outdir:  dir,
	}
	failures, err := engine2.Run(context.Background())
	if err != nil {
		t.Fatalf("iterate run: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("iterate run failures: %v", failures)
	}
	if doc2.Models[0].Pullup.Size() == 0 {
		t.Error("iterate run produced no tables")
	}
}

func TestEngineCancellation(t *testing.T) {
	dir := t.TempDir()
	doc := engineDoc(t, dir)
	engine := engineFor(t, doc, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx)
	if err == nil {
		t.Fatal("cancelled run completed")
	}
	if k, _ := ibis.KindOf(err); k != ibis.Cancelled {
		t.Errorf("kind = %v, want Cancelled", k)
	}
}

func TestEngineSimulatorFailureIsPerItem(t *testing.T) {
	dir := t.TempDir()
	doc := engineDoc(t, dir)
	dialect := spice.ForType(doc.SpiceType)
	engine := &Engine{
		Doc:     doc,
		Dialect: dialect,
		Runner:  &spice.Runner{Dialect: dialect, Command: "false"},
		Outdir:  dir,
	}
	failures, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should continue past item failures: %v", err)
	}
	if len(failures) == 0 {
		t.Fatal("no failures recorded for a dead simulator")
	}
	for _, f := range failures {
		if k, _ := ibis.KindOf(f.Err); k != ibis.SimulationFailed {
			t.Errorf("failure kind = %v, want SimulationFailed", k)
		}
	}
}

func TestEngineTriStateSubtraction(t *testing.T) {
	dir := t.TempDir()
	doc := buildDoc(t, ibis.ModelThreeState, true)
	doc.Components[0].SpiceFile = writeBufferNetlist(t, dir)
	engine := engineFor(t, doc, dir)
	failures, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("failures: %v", failures)
	}

	// Enabled and disabled sweeps see identical fake curves, so the
	// subtracted driver tables must be zero everywhere.
	model := doc.Models[0]
	if model.PullupData.Size() == 0 {
		t.Fatal("no raw pullup data")
	}
	for _, e := range model.PullupData.Rows {
		if !ibis.IsNA(e.I.Typ) && math.Abs(e.I.Typ) > 1e-12 {
			t.Fatalf("subtraction residue %v at V=%v", e.I.Typ, e.V)
		}
	}

	// Deck files for both states exist.
	for _, want := range []string{"put_out_typ.sp", "dut_out_typ.sp", "pdt_out_typ.sp", "ddt_out_typ.sp"} {
		if _, err := os.Stat(filepath.Join(dir, want)); err != nil {
			t.Errorf("deck %s missing", want)
		}
	}
}

func TestEngineDeckStimulusStates(t *testing.T) {
	dir := t.TempDir()
	doc := buildDoc(t, ibis.ModelThreeState, true)
	doc.Components[0].SpiceFile = writeBufferNetlist(t, dir)
	// Give the enable pin sensible levels.
	doc.Defaults.Vil = ibis.TypOnly(0)
	doc.Defaults.Vih = ibis.TypOnly(3.3)
	engine := engineFor(t, doc, dir)
	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	enabled, err := os.ReadFile(filepath.Join(dir, "put_out_typ.sp"))
	if err != nil {
		t.Fatal(err)
	}
	disabled, err := os.ReadFile(filepath.Join(dir, "dut_out_typ.sp"))
	if err != nil {
		t.Fatal(err)
	}
	// Active-low enable: enabled deck drives 0, disabled deck drives high.
	if !strings.Contains(string(enabled), "VENAS2I oe 0 DC 0") {
		t.Errorf("enabled deck enable drive wrong:\n%s", enabled)
	}
	if !strings.Contains(string(disabled), "VENAS2I oe 0 DC 3.3") {
		t.Errorf("disabled deck enable drive wrong:\n%s", disabled)
	}
}

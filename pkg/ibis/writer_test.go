package ibis

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func sampleDocument() *Document {
	doc := NewDocument()
	doc.FileName = "driver.ibs"
	doc.FileRev = "1"
	doc.Date = "August 6, 2026"

	comp := NewComponent("MCM Driver")
	comp.Manufacturer = "MegaFLOPS Inc."
	comp.Parasitics = &PinParasitics{
		RPkg: NewTMM(2e-3, 1e-3, 4e-3),
		LPkg: NewTMM(2e-10, 1e-10, 4e-10),
		CPkg: NewTMM(2e-12, 1e-12, 4e-12),
	}
	doc.Components = append(doc.Components, comp)

	model := NewModel("driver")
	model.Type = ModelOutput
	model.VoltageRange = NewTMM(3.3, 3.0, 3.6)
	model.TempRange = NewTMM(27, 100, 0)
	model.CComp = NewTMM(5e-12, 5e-12, 5e-12)
	model.Rload = 50

	pin := &Pin{Name: "out", SignalName: "sig", ModelName: "driver",
		RPin: NA(), LPin: NA(), CPin: NA(), Model: model}
	comp.Pins = append(comp.Pins, pin)

	pd := &VITable{}
	pu := &VITable{}
	for i := 0; i < 120; i++ {
		v := -3.3 + float64(i)*0.0825
		pd.Rows = append(pd.Rows, VIEntry{V: v, I: NewTMM(v*0.01, v*0.009, v*0.011)})
		pu.Rows = append(pu.Rows, VIEntry{V: v, I: NewTMM(-v*0.01, NA(), NA())})
	}
	model.Pulldown = pd
	model.Pullup = pu
	model.Ramp.DvRise = NewTMM(1.98, NA(), NA())
	model.Ramp.DtRise = NewTMM(1e-9, NA(), NA())
	model.Ramp.DvFall = NewTMM(1.98, NA(), NA())
	model.Ramp.DtFall = NewTMM(1.2e-9, NA(), NA())
	doc.Models = append(doc.Models, model)
	return doc
}

func emit(t *testing.T, doc *Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewWriter(doc).Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.String()
}

func TestWriterSectionOrder(t *testing.T) {
	out := emit(t, sampleDocument())

	order := []string{
		"[IBIS Ver]", "[File Name]", "[File Rev]", "[Date]",
		"[Component]", "[Manufacturer]", "[Package]", "[Pin]",
		"[Model]", "Model_type", "[Temperature Range]", "[Voltage Range]",
		"[Pulldown]", "[Pullup]", "[Ramp]", "[End]",
	}
	last := -1
	for _, key := range order {
		idx := strings.Index(out, key)
		if idx < 0 {
			t.Fatalf("section %q missing", key)
		}
		if idx < last {
			t.Errorf("section %q out of order", key)
		}
		last = idx
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "[End]") {
		t.Error("[End] is not the final section")
	}
}

// tableRows extracts the numeric rows following a section keyword.
func tableRows(t *testing.T, out, keyword string) [][]string {
	t.Helper()
	idx := strings.Index(out, keyword)
	if idx < 0 {
		t.Fatalf("section %q missing", keyword)
	}
	var rows [][]string
	for _, line := range strings.Split(out[idx:], "\n")[1:] {
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "|") {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	return rows
}

func TestWriterVITableInvariants(t *testing.T) {
	out := emit(t, sampleDocument())

	for _, keyword := range []string{"[Pulldown]", "[Pullup]"} {
		rows := tableRows(t, out, keyword)
		if len(rows) == 0 || len(rows) > MaxTableSize {
			t.Fatalf("%s has %d rows, want 1..%d", keyword, len(rows), MaxTableSize)
		}
		prev := -1e30
		for i, row := range rows {
			if len(row) != 4 {
				t.Fatalf("%s row %d has %d columns: %v", keyword, i, len(row), row)
			}
			v, err := strconv.ParseFloat(row[0], 64)
			if err != nil {
				t.Fatalf("%s row %d voltage %q: %v", keyword, i, row[0], err)
			}
			if v <= prev {
				t.Fatalf("%s voltage not strictly increasing at row %d", keyword, i)
			}
			prev = v
		}
	}
}

func TestWriterEmitsNAForMissingCorners(t *testing.T) {
	out := emit(t, sampleDocument())
	rows := tableRows(t, out, "[Pullup]")
	for _, row := range rows {
		if row[2] != "NA" || row[3] != "NA" {
			t.Fatalf("missing corners not NA: %v", row)
		}
	}
}

func TestWriterDeterministic(t *testing.T) {
	a := emit(t, sampleDocument())
	b := emit(t, sampleDocument())
	if a != b {
		t.Error("two emissions of the same document differ")
	}
}

func TestWriterSkipsNoModel(t *testing.T) {
	doc := sampleDocument()
	dummy := NewModel("dummy")
	dummy.NoModel = true
	doc.Models = append(doc.Models, dummy)
	out := emit(t, doc)
	if strings.Contains(out, "[Model] dummy") {
		t.Error("nomodel model emitted")
	}
}

func TestWriterClampSuppression(t *testing.T) {
	doc := sampleDocument()
	m := doc.Models[0]
	m.ClampTol = 1e-6
	m.GndClamp = &VITable{Rows: []VIEntry{
		{V: -1, I: NewTMM(-0.5, NA(), NA())},
		{V: 0, I: NewTMM(1e-9, NA(), NA())},
	}}
	out := emit(t, doc)
	rows := tableRows(t, out, "[GND Clamp]")
	if rows[1][1] != "0.0000e+00" {
		t.Errorf("current below tolerance not suppressed: %v", rows[1])
	}
	if rows[0][1] == "0.0000e+00" {
		t.Errorf("real clamp current suppressed: %v", rows[0])
	}
}

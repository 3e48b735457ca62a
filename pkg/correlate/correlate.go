// Package correlate emits comparison testbenches: one transient deck per
// characterized pin, driving the transistor-level buffer into the same
// load used for the ramp tables so its response can be compared against
// the emitted IBIS model.
package correlate

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OpenTraceLab/spice2ibis/pkg/analyze"
	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

// Generate writes compare_{pin}.sp for every pin with a characterized
// driver model and returns the deck paths.
func Generate(doc *ibis.Document, dialect spice.Dialect, outdir string) ([]string, error) {
	var decks []string
	for _, comp := range doc.Components {
		for _, pin := range comp.Pins {
			if pin.Reserved() != ibis.ReservedNone || pin.Model == nil || pin.Model.NoModel {
				continue
			}
			if !analyze.NeedsTransient(pin.Model.Type) {
				continue
			}
			supplies, err := analyze.FindSupplyPins(pin, comp)
			if err != nil {
				return decks, err
			}
			path := filepath.Join(outdir, fmt.Sprintf("compare_%s.sp", pin.Name))
			if err := writeDeck(doc, comp, pin, supplies, dialect, path); err != nil {
				return decks, err
			}
			decks = append(decks, path)
		}
	}
	return decks, nil
}

func writeDeck(doc *ibis.Document, comp *ibis.Component, pin *ibis.Pin,
	supplies analyze.SupplyPins, dialect spice.Dialect, path string) error {

	f, err := os.Create(path)
	if err != nil {
		return ibis.Wrap(ibis.ResourceError, err)
	}
	defer f.Close()
	b := bufio.NewWriter(f)

	model := pin.Model
	scope := ibis.Scope{Model: model, Component: comp, Document: doc}
	vcc := scope.VoltageRange().Pick(ibis.Typ)
	if ibis.IsNA(vcc) {
		vcc = ibis.VoltageRangeTypDefault
	}
	simTime := scope.SimTime()
	rload := scope.Rload()
	pad := pin.SpiceNode
	if pad == "" {
		pad = pin.Name
	}

	fmt.Fprintf(b, "* correlation testbench for model %s (pin %s)\n", model.Name, pin.Name)
	if lang := dialect.LangLine(); lang != "" {
		b.WriteString(lang)
	}

	netlist := comp.SpiceFile
	if netlist == "" {
		netlist = doc.SpiceFile
	}
	if netlist != "" {
		fmt.Fprintf(b, ".INCLUDE %s\n", netlist)
	}
	if model.ModelFile != "" {
		fmt.Fprintf(b, ".INCLUDE %s\n", model.ModelFile)
	}

	if n := supplies.Pullup; n != nil {
		b.WriteString(dialect.DCSource(spice.PowerSource, nodeName(n), "0", vcc))
	}
	if n := supplies.Pulldown; n != nil {
		b.WriteString(dialect.DCSource(spice.GroundSource, nodeName(n), "0", 0))
	}

	// Drive the data input through a full cycle so both edges appear.
	if in := findPin(comp, pin.InputPin); in != nil {
		tr := simTime / 100
		b.WriteString(dialect.PulseSource(spice.InputSource, nodeName(in), "0",
			0, vcc, 0, tr, tr, simTime, 2*(2*tr+simTime)))
	}
	if en := findPin(comp, pin.EnablePin); en != nil {
		level := vcc
		if model.Enable == ibis.ActiveLow {
			level = 0
		}
		b.WriteString(dialect.DCSource(spice.EnableSource, nodeName(en), "0", level))
	}

	fmt.Fprintf(b, "%s %s 0 %g\n", spice.LoadResistor, pad, rload)
	b.WriteString(dialect.Tran(simTime/100, 2*simTime, pad))
	if end := dialect.EndLine(); end != "" {
		b.WriteString(end)
	}

	if err := b.Flush(); err != nil {
		return ibis.Wrap(ibis.EmitError, err)
	}
	return nil
}

func nodeName(pin *ibis.Pin) string {
	if pin.SpiceNode != "" {
		return pin.SpiceNode
	}
	return pin.Name
}

func findPin(comp *ibis.Component, name string) *ibis.Pin {
	if name == "" {
		return nil
	}
	for _, p := range comp.Pins {
		if p.Name == name {
			return p
		}
	}
	return nil
}

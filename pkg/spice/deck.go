package spice

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// Deck is one assembled simulator input file. The analysis layer fills the
// buffers; Render stitches them together in the fixed order every dialect
// expects: DUT netlist, subcircuit model, extra control cards, load
// network, supplies, stimulus, temperature, options, analysis.
type Deck struct {
	Title string

	// NetlistPath names the transistor-level DUT netlist; it is copied in
	// with full-line comments and .end stripped.
	NetlistPath string

	// ModelFilePath names the corner's subcircuit model file, appended
	// verbatim when present.
	ModelFilePath string

	// ExtCmdPath names a user file of extra control cards, appended
	// verbatim when present.
	ExtCmdPath string

	Load        string
	Power       string
	Stimulus    string
	Temperature string
	Analysis    string
}

// Render writes the deck through the dialect profile.
func (d *Deck) Render(dialect Dialect, w io.Writer) error {
	b := bufio.NewWriter(w)

	fmt.Fprintf(b, "* %s\n", d.Title)
	b.WriteString("* deck generated by spice2ibis\n\n")

	if lang := dialect.LangLine(); lang != "" {
		b.WriteString(lang)
	}

	if d.NetlistPath != "" {
		if err := copyNetlist(b, d.NetlistPath); err != nil {
			return err
		}
	}
	for _, path := range []string{d.ModelFilePath, d.ExtCmdPath} {
		if path == "" {
			continue
		}
		if err := copyVerbatim(b, path); err != nil {
			return err
		}
	}

	b.WriteString(d.Load)
	b.WriteString(d.Power)
	b.WriteString("\n")
	b.WriteString(d.Stimulus)
	b.WriteString(d.Temperature)
	if opts := dialect.Options(); opts != "" {
		b.WriteString(opts)
	}
	b.WriteString(d.Analysis)
	if end := dialect.EndLine(); end != "" {
		b.WriteString(end)
	}

	if err := b.Flush(); err != nil {
		return ibis.Wrap(ibis.ResourceError, err)
	}
	return nil
}

// WriteFile renders the deck to path. When iterate is set and the file
// already exists it is left untouched so a later run can reuse its
// results.
func (d *Deck) WriteFile(dialect Dialect, path string, iterate bool) error {
	if iterate {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return ibis.Wrap(ibis.ResourceError, err)
	}
	defer f.Close()
	return d.Render(dialect, f)
}

// copyNetlist splices the DUT netlist in, dropping full-line comments and
// any .end card so the deck stays a single top-level circuit.
func copyNetlist(w *bufio.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ibis.Errorf(ibis.ResourceError, "missing SPICE file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		tok := firstToken(line)
		if strings.HasPrefix(tok, "*") || strings.EqualFold(tok, ".end") {
			continue
		}
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return ibis.Wrap(ibis.ResourceError, err)
	}
	return nil
}

func copyVerbatim(w *bufio.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return ibis.Errorf(ibis.ResourceError, "missing include: %w", err)
	}
	defer f.Close()
	w.WriteByte('\n')
	if _, err := io.Copy(w, f); err != nil {
		return ibis.Wrap(ibis.ResourceError, err)
	}
	w.WriteByte('\n')
	return nil
}

func firstToken(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Stable element names used across every generated deck. Supply currents
// are always probed through these sources, so result parsing never depends
// on the DUT's own node names.
const (
	SweepSource  = "VOUTS2I"
	PowerSource  = "VCCS2I"
	GroundSource = "VGNDS2I"
	PowerClamp   = "VCLMPS2I"
	GroundClamp  = "VGCLMPS2I"
	InputSource  = "VINS2I"
	EnableSource = "VENAS2I"
	TermSource   = "VTERMS2I"
	LoadResistor = "RLOADS2I"
	SeriesSource = "VDS"
	GateSource   = "VGATES2I"
)

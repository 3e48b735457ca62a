package config

import "strings"

// flatFile is the parse tree of a flat-form configuration: an ordered list
// of keyword-opened sections. All semantics live in the mapping pass; the
// grammar only recovers the section structure.
type flatFile struct {
	Sections []*flatSection `( EOL* @@ )* EOL*`
}

// flatSection is one bracketed keyword with its value lines.
type flatSection struct {
	Keyword string      `@Keyword`
	Inline  string      `@Text?`
	Lines   []*flatLine `( EOL+ @@ )*`
}

// flatLine is one value, continuation, or pin-directive line inside a
// section.
type flatLine struct {
	Cont   string `  @Cont`
	Input  string `| @InputDir`
	Enable string `| @EnableDir`
	Text   string `| @Text`
}

// Name returns the keyword folded for case-insensitive dispatch, without
// the brackets.
func (s *flatSection) Name() string {
	name := strings.TrimSuffix(strings.TrimPrefix(s.Keyword, "["), "]")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Values returns the section's value lines: the inline value first, then
// every plain line, with explicit continuations folded into their
// predecessor. Directive lines are skipped; PinRows exposes them.
func (s *flatSection) Values() []string {
	var out []string
	push := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}
	push(s.Inline)
	for _, ln := range s.Lines {
		switch {
		case ln.Cont != "":
			cont := strings.TrimSpace(strings.TrimPrefix(ln.Cont, "+"))
			if len(out) == 0 {
				push(cont)
			} else if cont != "" {
				out[len(out)-1] += " " + cont
			}
		case ln.Text != "":
			push(ln.Text)
		}
	}
	return out
}

// Value returns the whole section body as one space-joined string.
func (s *flatSection) Value() string {
	return strings.Join(s.Values(), " ")
}

// Paragraph returns the body with line structure preserved, for the
// free-text header sections.
func (s *flatSection) Paragraph() string {
	var lines []string
	if v := strings.TrimSpace(s.Inline); v != "" {
		lines = append(lines, v)
	}
	for _, ln := range s.Lines {
		switch {
		case ln.Cont != "":
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(ln.Cont, "+")))
		case ln.Text != "":
			lines = append(lines, strings.TrimSpace(ln.Text))
		}
	}
	return strings.Join(lines, "\n")
}

// pinRow is one [Pin] table row plus its directive lines.
type pinRow struct {
	Fields []string
	Input  string
	Enable string
}

// PinRows folds the section's lines into pin rows, attaching -> and =>
// directives to the preceding row.
func (s *flatSection) PinRows() []pinRow {
	var rows []pinRow
	for _, ln := range s.Lines {
		switch {
		case ln.Text != "":
			rows = append(rows, pinRow{Fields: strings.Fields(ln.Text)})
		case ln.Input != "" && len(rows) > 0:
			rows[len(rows)-1].Input = strings.TrimSpace(strings.TrimPrefix(ln.Input, "->"))
		case ln.Enable != "" && len(rows) > 0:
			rows[len(rows)-1].Enable = strings.TrimSpace(strings.TrimPrefix(ln.Enable, "=>"))
		}
	}
	return rows
}

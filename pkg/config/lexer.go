package config

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// FlatLexer tokenizes the flat keyword-tagged configuration form. The
// format is line-oriented: case-insensitive bracketed keywords open a
// section, the rest of the line (and any following non-keyword lines)
// belong to it, a leading + marks an explicit continuation, and !
// starts a comment running to end of line.
var FlatLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Comments - inline, to end of line
	{Name: "Comment", Pattern: `![^\n]*`},

	// Horizontal whitespace (newlines are structure, kept separate)
	{Name: "Whitespace", Pattern: `[ \t\r]+`},

	// End of line
	{Name: "EOL", Pattern: `\n`},

	// Bracketed keyword opening a section, e.g. [Voltage Range]
	{Name: "Keyword", Pattern: `\[[^\]\n]+\]`},

	// Explicit continuation of the previous value line
	{Name: "Cont", Pattern: `\+[^\n!]*`},

	// Pin-row directives: -> names the input pin, => the enable pin
	{Name: "InputDir", Pattern: `->[^\n!]*`},
	{Name: "EnableDir", Pattern: `=>[^\n!]*`},

	// Any other value text up to comment or end of line; ordered after the
	// directive rules so a leading minus sign still reads as a number
	{Name: "Text", Pattern: `[^\[\n!+ \t][^\n!]*`},
})

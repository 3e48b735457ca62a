package main

import (
	"github.com/OpenTraceLab/spice2ibis/cmd/spice2ibis/cmd"
)

func main() {
	cmd.Execute()
}

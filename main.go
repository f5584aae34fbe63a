// The main package for the pricing-research executable.
package main

import (
	"github.com/JakeFAU/pricing-research/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

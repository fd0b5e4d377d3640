// The main package for the keiba-crawler executable.
package main

import (
	"github.com/JakeFAU/keiba-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

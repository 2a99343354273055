// The main package for the seriously-crawler executable.
package main

import (
	"github.com/Viktoriusw/seriously-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

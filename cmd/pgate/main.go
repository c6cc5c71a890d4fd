// pgate CLI entry point
//
// pgate runs the projectgate gateway core: a versioned workspace cache,
// per-client undo/redo and debounced local/remote project sync.
package main

import "github.com/jbctechsolutions/projectgate/internal/presentation/cli/commands"

func main() {
	commands.Execute()
}

// Command scoutsync runs the offline-first scouting sync engine: the
// long-running device process, one-shot maintenance commands and a
// reference remote backend.
package main

import (
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command rollcalc analyzes option rolls from the command line, either for a
// strategy described in flags or for one stored in a SQLite database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command carenote is the device-side CareNote client: it owns the local
// record store and synchronizes it with the CareNote server.
package main

import (
	"os"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

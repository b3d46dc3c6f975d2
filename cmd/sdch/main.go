// sdch is the smart document context handler: it ingests documents,
// classifies them into token tiers, and assembles query-relevant
// context within a fixed token budget.
package main

import (
	"os"

	"github.com/smartctx/sdch/cmd/sdch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

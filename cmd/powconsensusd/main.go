// Command powconsensusd is the consensus engine host: it wires the
// block store, publisher, verifier, and fork resolver together and
// exposes a status RPC and health endpoints.
package main

import (
	"fmt"
	"os"

	"github.com/gluwa/creditcoin-pow-consensus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

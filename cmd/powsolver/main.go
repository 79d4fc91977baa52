// Command powsolver is a solver worker: a single-purpose subprocess that
// hashes nonces against a target difficulty and reports back over its
// stdin/stdout, per a small command/event protocol. The
// publisher (package consensus) starts one of these per solver tag
// (PRIMARY, PERFORMANCE) and talks to it exclusively through that pipe —
// there is no shared memory between the two processes.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/gluwa/creditcoin-pow-consensus/consensus"
)

func main() {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	out := json.NewEncoder(os.Stdout)

	// standby loop: wait for a START; STOP/SWAP here are no-ops.
	for in.Scan() {
		var cmd consensus.Command
		if err := json.Unmarshal(in.Bytes(), &cmd); err != nil {
			emit(out, consensus.Event{Kind: consensus.EvtError, Description: "malformed command: " + err.Error()})
			continue
		}
		switch cmd.Kind {
		case consensus.CmdStop, consensus.CmdSwap:
			continue // no active job: silently acknowledged
		case consensus.CmdStart:
			runJob(in, out, cmd)
		default:
			emit(out, consensus.Event{Kind: consensus.EvtError, Description: fmt.Sprintf("unhandled command %q in standby", cmd.Kind)})
		}
	}
}

// runJob hashes nonces for one job until STOP is received, interleaving a
// non-blocking command poll with every inner iteration. The actual
// self-raising-target search lives in consensus.RunJob, where it can be
// unit tested against a deterministic nonce source; this function only
// wires it to the real stdin/stdout pipe and a random nonce source.
func runJob(in *bufio.Scanner, out *json.Encoder, start consensus.Command) {
	cmds := make(chan consensus.Command, 8)
	done := make(chan struct{})
	go func() {
		defer close(cmds)
		for in.Scan() {
			var cmd consensus.Command
			if err := json.Unmarshal(in.Bytes(), &cmd); err != nil {
				continue
			}
			select {
			case cmds <- cmd:
			case <-done:
				return
			}
		}
	}()
	defer close(done)

	consensus.RunJob(start, cmds, func(evt consensus.Event) { emit(out, evt) }, rand.Uint64)
}

func emit(out *json.Encoder, evt consensus.Event) {
	_ = out.Encode(evt)
}

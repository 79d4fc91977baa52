package consensus

import "fmt"

// evaluate scores one nonce attempt, returning its leading-zero count.
// A separate type (rather than calling BuildDigest/LeadingZeros inline)
// lets tests substitute a deterministic stand-in for the self-raising-
// target control flow, without depending on real SHA-256 output.
type evaluate func(prevID, pubKey, nonceASCII []byte) int

func defaultEvaluate(prevID, pubKey, nonceASCII []byte) int {
	digest := BuildDigest(prevID, pubKey, nonceASCII)
	return LeadingZeros(digest[:])
}

// RunJob drives one solver job's self-raising-target search: it hashes
// nonces against start.Target, and every time it clears the target it
// emits a HASH event and raises the target to strictly exceed the
// difficulty just found, so later solutions must improve on earlier
// ones. cmds is polled non-blockingly between attempts so a STOP or SWAP
// is never more than one hash behind. nextNonce supplies the next
// candidate nonce whenever the job starts or self-raises; a worker
// subprocess wires it to a random source, tests wire it to a fixed
// sequence.
func RunJob(start Command, cmds <-chan Command, out func(Event), nextNonce func() uint64) {
	runJob(start, cmds, out, nextNonce, defaultEvaluate)
}

func runJob(start Command, cmds <-chan Command, out func(Event), nextNonce func() uint64, score evaluate) {
	target := start.Target
	nonce := nextNonce()
	bestDifficulty := 0
	var bestNonce []byte

	out(Event{Kind: EvtWorking, ID: start.ID})

	for {
		nonceASCII := EncodeNonce(nonce)
		zeros := score(start.PrevID, start.PubKey, nonceASCII)

		if zeros >= target {
			out(Event{Kind: EvtHash, ID: start.ID, Difficulty: target, NonceASCII: nonceASCII})
			target = zeros + 1 // self-raising: next solution must strictly improve
			nonce = nextNonce()
		} else {
			nonce++
		}
		if zeros >= bestDifficulty {
			bestDifficulty = zeros
			bestNonce = nonceASCII
		}

		select {
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			switch cmd.Kind {
			case CmdSwap:
				out(Event{Kind: EvtWorking, ID: start.ID})
			case CmdStop:
				out(Event{Kind: EvtStopped, ID: start.ID, Difficulty: bestDifficulty, NonceASCII: bestNonce})
				return
			default:
				out(Event{Kind: EvtError, Description: fmt.Sprintf("unhandled command %q while working", cmd.Kind)})
				return
			}
		default:
		}
	}
}

package consensus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/gluwa/creditcoin-pow-consensus/logger"
	"github.com/gluwa/creditcoin-pow-consensus/metrics"
	"github.com/gluwa/creditcoin-pow-consensus/utils"
	"github.com/sirupsen/logrus"
)

// WorkerState is the publisher's lazily-updated view of a solver handle,
// mirroring the source's "state is a property that drains the channel"
// design.
type WorkerState int

const (
	StateStopped WorkerState = iota
	StateWorking
	StateHash
	StateError
)

func (s WorkerState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateWorking:
		return "WORKING"
	case StateHash:
		return "HASH"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SolverHandle manages one solver worker subprocess (cmd/powsolver) over a
// duplex, newline-delimited-JSON channel on its stdin/stdout. Two handles
// exist per publisher, one per SolverTag.
type SolverHandle struct {
	tag         SolverTag
	solverPath  string
	log         *logrus.Entry

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	events  chan Event
	state   WorkerState
	payload Event
}

// NewSolverHandle constructs a handle for tag, bound to the subprocess
// binary at solverPath. The subprocess is started lazily, on the first
// Start call, following a "created lazily on first publisher
// construction" lifecycle note.
func NewSolverHandle(tag SolverTag, solverPath string, log *logrus.Entry) *SolverHandle {
	return &SolverHandle{
		tag:        tag,
		solverPath: solverPath,
		log:        log.WithField("solver", string(tag)),
		state:      StateStopped,
	}
}

// spawn launches the subprocess and starts the event-reader goroutine.
// Must be called with h.mu held.
func (h *SolverHandle) spawn(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, h.solverPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("solver %s: stdin pipe: %w", h.tag, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("solver %s: stdout pipe: %w", h.tag, err)
	}
	cmd.Stderr = logWriter{h.log}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("solver %s: start: %w", h.tag, err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.events = make(chan Event, 256)

	go h.readLoop(stdout)
	return nil
}

func (h *SolverHandle) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var evt Event
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			h.events <- Event{Kind: EvtError, Description: "malformed event: " + err.Error()}
			continue
		}
		h.events <- evt
	}
	close(h.events)
}

// Ensure starts the subprocess if it isn't already running, retrying a
// couple of times in case the binary is momentarily unavailable (e.g.
// mid-deploy).
func (h *SolverHandle) Ensure(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd != nil {
		return nil
	}
	return utils.RetryWithBackoff(func() error {
		return h.spawn(ctx)
	}, 3, 50*time.Millisecond)
}

// send writes a command as one JSON line to the subprocess's stdin.
func (h *SolverHandle) send(cmd Command) error {
	h.mu.Lock()
	stdin := h.stdin
	h.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("solver %s: not started", h.tag)
	}
	line, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = stdin.Write(line)
	return err
}

// Start begins a new job. The handle must currently be in StateStopped.
func (h *SolverHandle) Start(ctx context.Context, id int64, target int, prevID, pubKey []byte) error {
	if err := h.Ensure(ctx); err != nil {
		return err
	}
	if st := h.State(); st != StateStopped {
		return fmt.Errorf("solver %s: not ready to be started (state %s)", h.tag, st)
	}
	return h.send(Command{Kind: CmdStart, Solver: h.tag, ID: id, Target: target, PrevID: prevID, PubKey: pubKey})
}

// Stop abandons the current job; the worker replies with a STOPPED event
// carrying its best-seen result. A no-op (silently acknowledged) in
// standby.
func (h *SolverHandle) Stop() error {
	return h.send(Command{Kind: CmdStop, Solver: h.tag})
}

// Swap tells the worker to treat its current best as consumed and keep
// hashing the same job for a strictly-better result.
func (h *SolverHandle) Swap() error {
	return h.send(Command{Kind: CmdSwap, Solver: h.tag})
}

// State drains all pending events non-blockingly, remembers the most
// recent one, and returns it. Callers never block waiting for a specific
// event.
func (h *SolverHandle) State() WorkerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		select {
		case evt, ok := <-h.events:
			if !ok {
				return h.state
			}
			h.payload = evt
			switch evt.Kind {
			case EvtWorking:
				h.state = StateWorking
			case EvtHash:
				h.state = StateHash
				metrics.GetMetrics().SetDifficultyGauge(evt.Difficulty)
				metrics.GetMetrics().IncrementHashRate()
			case EvtStopped:
				h.state = StateStopped
			case EvtError:
				h.state = StateError
				metrics.GetMetrics().IncrementErrorCount()
			}
			logger.LogSolverEvent(string(h.tag), string(evt.Kind), evt.Difficulty)
		default:
			return h.state
		}
	}
}

// Payload returns the most recent event observed by State.
func (h *SolverHandle) Payload() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.payload
}

// Terminate kills the subprocess, if running. Called on host shutdown
// terminable by process signal.
func (h *SolverHandle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	_ = h.cmd.Process.Kill()
}

type logWriter struct{ log *logrus.Entry }

func (w logWriter) Write(p []byte) (int, error) {
	w.log.Debugf("solver stderr: %s", string(p))
	return len(p), nil
}

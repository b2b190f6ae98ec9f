// Package encoder supervises one FFmpeg child process per output group:
// it resolves the binary, composes the tee-fanout argument vector, and
// parses the child's telemetry into typed progress samples.
package encoder

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
	"github.com/ScopeCreep-zip/spiritstream/internal/eventbus"
	"github.com/ScopeCreep-zip/spiritstream/internal/models"
	"github.com/ScopeCreep-zip/spiritstream/internal/platform"
	"github.com/ScopeCreep-zip/spiritstream/internal/progress"
)

// drainTimeout bounds how long Stop waits for a graceful exit before it
// force-kills the child.
const drainTimeout = 5 * time.Second

// runningPromotionWindow bounds how long Spawn waits, absent a progress
// sample, before promoting starting to running on the assumption the child
// did not fail outright.
const runningPromotionWindow = 2 * time.Second

// Supervisor owns one FFmpeg child process and its two reader tasks. Zero
// value is not usable; build one with New.
type Supervisor struct {
	groupID  string
	bus      *eventbus.Bus
	throttle *eventbus.Throttle
	ring     *RingBuffer

	mu          sync.Mutex
	sample      models.ProgressSample
	state       models.GroupState
	targets     []string
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	done        chan struct{}
	readers     *errgroup.Group
	firstSample chan struct{}
	sampleOnce  sync.Once
}

// New builds a Supervisor for groupID. Construct one per output group.
func New(groupID string, bus *eventbus.Bus, ringCapacity int) *Supervisor {
	return &Supervisor{
		groupID:  groupID,
		bus:      bus,
		throttle: eventbus.NewThrottle(eventbus.StreamStatsHz),
		ring:     NewRingBuffer(ringCapacity),
		state:    models.GroupIdle,
		sample:   models.ProgressSample{GroupID: groupID},
	}
}

// Spawn resolves the encoder binary, composes its arguments, and starts the
// child with piped stderr and a progress pipe. Failure transitions the
// group to stopped-error and returns the error.
func (s *Supervisor) Spawn(ctx context.Context, appDataDir string, group models.OutputGroup, inputURL string, reg *platform.Registry, disabled map[string]bool) error {
	const op = "encoder.Spawn"
	targets := make([]string, 0, len(group.StreamTargets))
	for _, t := range group.StreamTargets {
		if disabled[t.ID] {
			continue
		}
		targets = append(targets, t.ID)
	}
	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()

	s.setState(models.GroupStarting, "")

	binary, err := ResolveBinary(appDataDir)
	if err != nil {
		s.setState(models.GroupStoppedError, "binary not found")
		return err
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		s.setState(models.GroupStoppedError, "progress pipe creation failed")
		return corebus.New(op, corebus.KindIO, err)
	}

	args, err := BuildArgs(group, inputURL, reg, disabled, "pipe:3")
	if err != nil {
		pr.Close()
		pw.Close()
		s.setState(models.GroupStoppedError, "invalid argument vector")
		return corebus.New(op, corebus.KindInvalidArgument, err)
	}

	childCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(childCtx, binary, args...)
	cmd.ExtraFiles = []*os.File{pw}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		pr.Close()
		pw.Close()
		s.setState(models.GroupStoppedError, "stderr pipe unavailable")
		return corebus.New(op, corebus.KindIO, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		s.setState(models.GroupStoppedError, "spawn failed")
		return corebus.New(op, corebus.KindEncoderFailed, err)
	}
	// The parent's end of the write side must close so EOF propagates to
	// the progress reader once the child exits.
	pw.Close()

	s.mu.Lock()
	s.cmd = cmd
	s.cancel = cancel
	s.done = make(chan struct{})
	s.firstSample = make(chan struct{})
	s.sampleOnce = sync.Once{}
	done := s.done
	firstSample := s.firstSample
	s.mu.Unlock()

	readers := &errgroup.Group{}
	readers.Go(func() error {
		s.readLines(stderr, true)
		return nil
	})
	readers.Go(func() error {
		s.readLines(pr, false)
		return nil
	})
	s.mu.Lock()
	s.readers = readers
	s.mu.Unlock()

	go s.wait()
	go s.promoteToRunning(done, firstSample)

	return nil
}

// promoteToRunning advances starting to running on whichever comes first:
// a parsed progress sample, or runningPromotionWindow elapsing without the
// child having exited. If the child exits first, wait has already moved the
// group to a stopped-* terminal state, and that state is left alone.
func (s *Supervisor) promoteToRunning(done, firstSample <-chan struct{}) {
	select {
	case <-firstSample:
	case <-time.After(runningPromotionWindow):
	case <-done:
		return
	}

	s.mu.Lock()
	stillStarting := s.state == models.GroupStarting
	s.mu.Unlock()
	if stillStarting {
		s.setState(models.GroupRunning, "")
	}
}

// readLines scans lines from r, feeding each into the progress parser.
// Unparsed stderr lines are captured in the diagnostic ring buffer and
// republished as group_stderr_line events; parsed lines publish a
// throttled stream_stats snapshot.
func (s *Supervisor) readLines(r io.ReadCloser, isStderr bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()

		s.mu.Lock()
		updated := progress.ParseLine(line, &s.sample)
		snapshot := s.sample
		s.mu.Unlock()

		if updated {
			s.signalFirstSample()
			s.throttle.PublishStreamStats(s.bus, snapshot)
		} else if isStderr {
			s.ring.Add(line)
			s.bus.Publish(eventbus.Event{
				Name:    eventbus.GroupStderrLine,
				Payload: eventbus.GroupStderrLinePayload{GroupID: s.groupID, Text: line},
			})
		}
	}
}

// signalFirstSample closes firstSample on the first call only, waking
// promoteToRunning if it is still waiting.
func (s *Supervisor) signalFirstSample() {
	s.mu.Lock()
	ch := s.firstSample
	once := &s.sampleOnce
	s.mu.Unlock()
	once.Do(func() { close(ch) })
}

// wait blocks for the child to exit, determines the terminal state, and
// closes the done channel.
func (s *Supervisor) wait() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	readers := s.readers
	s.mu.Unlock()

	err := cmd.Wait()
	_ = readers.Wait()

	if err != nil {
		s.setState(models.GroupStoppedError, "child exited with error")
	} else {
		s.setState(models.GroupStoppedNormal, "")
	}
	close(done)
}

// Stop signals the child to terminate gracefully; if it has not exited
// within drainTimeout it is force-killed. Idempotent on an already-stopped
// supervisor.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	cancel := s.cancel
	done := s.done
	state := s.state
	s.mu.Unlock()

	if cmd == nil || state == models.GroupStoppedNormal || state == models.GroupStoppedError || state == models.GroupIdle {
		return nil
	}

	s.setState(models.GroupDraining, "")
	if err := cmd.Process.Signal(terminateSignal); err != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-time.After(drainTimeout):
		cancel()
		<-done
		return nil
	}
}

// IsRunning reports whether the child process is currently active.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == models.GroupStarting || s.state == models.GroupRunning || s.state == models.GroupDraining
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() models.GroupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StderrTail returns the diagnostic ring buffer's current contents.
func (s *Supervisor) StderrTail() []string {
	return s.ring.Snapshot()
}

// Targets returns the ids of the stream targets this supervisor was spawned
// with, excluding any that were runtime-disabled at spawn time.
func (s *Supervisor) Targets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.targets))
	copy(out, s.targets)
	return out
}

// GroupID returns the output-group id this supervisor was constructed for.
func (s *Supervisor) GroupID() string {
	return s.groupID
}

func (s *Supervisor) setState(next models.GroupState, reason string) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	s.bus.Publish(eventbus.Event{
		Name: eventbus.GroupStateChanged,
		Payload: eventbus.GroupStateChangedPayload{
			GroupID:   s.groupID,
			FromState: string(prev),
			ToState:   string(next),
			Reason:    reason,
		},
	})
}

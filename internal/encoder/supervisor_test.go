package encoder

import (
	"testing"
	"time"

	"github.com/ScopeCreep-zip/spiritstream/internal/eventbus"
	"github.com/ScopeCreep-zip/spiritstream/internal/models"
)

func TestPromoteToRunningOnFirstSample(t *testing.T) {
	s := New("G1", eventbus.New(), 16)
	s.setState(models.GroupStarting, "")

	done := make(chan struct{})
	firstSample := make(chan struct{})

	go s.promoteToRunning(done, firstSample)
	close(firstSample)

	waitForState(t, s, models.GroupRunning)
}

func TestPromoteToRunningOnTimeoutWithoutSample(t *testing.T) {
	s := New("G2", eventbus.New(), 16)
	s.setState(models.GroupStarting, "")

	done := make(chan struct{})
	firstSample := make(chan struct{})

	start := time.Now()
	go s.promoteToRunning(done, firstSample)

	waitForState(t, s, models.GroupRunning)
	if elapsed := time.Since(start); elapsed < runningPromotionWindow {
		t.Fatalf("expected promotion to wait at least %v, only waited %v", runningPromotionWindow, elapsed)
	}
}

func TestPromoteToRunningNeverOverridesTerminalState(t *testing.T) {
	s := New("G3", eventbus.New(), 16)
	s.setState(models.GroupStarting, "")

	done := make(chan struct{})
	firstSample := make(chan struct{})

	// Simulate the child exiting with an error before either the first
	// sample arrives or the promotion window elapses.
	s.setState(models.GroupStoppedError, "child exited with error")
	close(done)

	s.promoteToRunning(done, firstSample)

	if got := s.State(); got != models.GroupStoppedError {
		t.Fatalf("expected terminal state to be left alone, got %q", got)
	}
}

func TestSignalFirstSampleIsIdempotent(t *testing.T) {
	s := New("G4", eventbus.New(), 16)
	s.firstSample = make(chan struct{})

	s.signalFirstSample()
	s.signalFirstSample() // must not panic on double-close

	select {
	case <-s.firstSample:
	default:
		t.Fatal("expected firstSample to be closed")
	}
}

func waitForState(t *testing.T, s *Supervisor, want models.GroupState) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, last seen %q", want, s.State())
}

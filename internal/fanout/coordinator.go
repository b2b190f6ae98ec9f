// Package fanout coordinates one encoder supervisor per output group,
// providing all-or-nothing start/stop semantics and a runtime-level
// disabled-target set independent of profile edits.
package fanout

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
	"github.com/ScopeCreep-zip/spiritstream/internal/encoder"
	"github.com/ScopeCreep-zip/spiritstream/internal/eventbus"
	"github.com/ScopeCreep-zip/spiritstream/internal/models"
	"github.com/ScopeCreep-zip/spiritstream/internal/platform"
)

// Coordinator owns a map from output-group id to its active supervisor
// plus the set of runtime-disabled target ids. Methods are mutually
// exclusive under a single mutex; the mutex is never held across a
// blocking supervisor call.
type Coordinator struct {
	appDataDir string
	bus        *eventbus.Bus
	registry   *platform.Registry

	mu          sync.Mutex
	supervisors map[string]*encoder.Supervisor
	disabled    map[string]bool
}

// New builds a Coordinator. appDataDir and registry are passed through to
// each spawned supervisor.
func New(appDataDir string, bus *eventbus.Bus, registry *platform.Registry) *Coordinator {
	return &Coordinator{
		appDataDir:  appDataDir,
		bus:         bus,
		registry:    registry,
		supervisors: make(map[string]*encoder.Supervisor),
		disabled:    make(map[string]bool),
	}
}

// Start validates group, computes the effective (non-disabled) target
// list, constructs a supervisor, and spawns it. On any failure the
// coordinator's state is left unmodified.
func (c *Coordinator) Start(ctx context.Context, group models.OutputGroup, inputURL string) (string, error) {
	const op = "fanout.Start"
	if inputURL == "" {
		return "", corebus.Newf(op, corebus.KindInvalidArgument, "input URL is required")
	}
	if group.Video.Codec == "" || group.Audio.Codec == "" {
		return "", corebus.Newf(op, corebus.KindInvalidArgument, "codec names must be non-empty")
	}
	if err := group.Validate(); err != nil {
		return "", corebus.New(op, corebus.KindInvalidArgument, err)
	}

	c.mu.Lock()
	disabledSnapshot := c.snapshotDisabled()
	effective := 0
	for _, t := range group.StreamTargets {
		if !disabledSnapshot[t.ID] {
			effective++
		}
	}
	if effective == 0 {
		c.mu.Unlock()
		return "", corebus.Newf(op, corebus.KindInvalidArgument, "no enabled stream targets")
	}
	if _, exists := c.supervisors[group.ID]; exists {
		c.mu.Unlock()
		return "", corebus.Newf(op, corebus.KindConflict, "group %s already started", group.ID)
	}
	sup := encoder.New(group.ID, c.bus, encoder.DefaultRingBufferCapacity)
	c.mu.Unlock()

	if err := sup.Spawn(ctx, c.appDataDir, group, inputURL, c.registry, disabledSnapshot); err != nil {
		return "", corebus.New(op, corebus.KindEncoderFailed, err)
	}

	c.mu.Lock()
	c.supervisors[group.ID] = sup
	c.mu.Unlock()

	return group.ID, nil
}

// StartAll starts each group sequentially. If any start fails, every
// group already started in this call is stopped and the error returned:
// all-or-nothing semantics.
func (c *Coordinator) StartAll(ctx context.Context, groups []models.OutputGroup, inputURL string) ([]string, error) {
	started := make([]string, 0, len(groups))
	for _, g := range groups {
		id, err := c.Start(ctx, g, inputURL)
		if err != nil {
			for _, s := range started {
				c.Stop(s)
			}
			return nil, fmt.Errorf("start-all: group %s failed, rolled back %d group(s): %w", g.ID, len(started), err)
		}
		started = append(started, id)
	}
	return started, nil
}

// Stop terminates the supervisor for groupID, if present. Always
// succeeds from the caller's view; supervisor-level errors are not
// propagated.
func (c *Coordinator) Stop(groupID string) {
	c.mu.Lock()
	sup, ok := c.supervisors[groupID]
	if ok {
		delete(c.supervisors, groupID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	_ = sup.Stop()
}

// StopAll terminates every active supervisor in parallel, returning once
// all of them have reached a terminal state.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.supervisors))
	for id := range c.supervisors {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		id := id
		g.Go(func() error {
			c.Stop(id)
			return nil
		})
	}
	_ = g.Wait()
}

// RestartGroup stops the supervisor for groupID if present, then starts it
// with the new group definition and input URL. The old supervisor is
// fully stopped before the new one is spawned.
func (c *Coordinator) RestartGroup(ctx context.Context, group models.OutputGroup, inputURL string) (string, error) {
	c.Stop(group.ID)
	return c.Start(ctx, group, inputURL)
}

// EnableTarget clears the runtime-disabled flag for targetID.
func (c *Coordinator) EnableTarget(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.disabled, targetID)
}

// DisableTarget sets the runtime-disabled flag for targetID.
func (c *Coordinator) DisableTarget(targetID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled[targetID] = true
}

// IsTargetDisabled reports whether targetID is currently disabled.
func (c *Coordinator) IsTargetDisabled(targetID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled[targetID]
}

// ActiveCount reports how many groups currently have a supervisor.
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.supervisors)
}

// ActiveGroupIDs returns a snapshot of every group id with an active
// supervisor.
func (c *Coordinator) ActiveGroupIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.supervisors))
	for id := range c.supervisors {
		ids = append(ids, id)
	}
	return ids
}

// IsRunning reports whether groupID has an active, running supervisor.
func (c *Coordinator) IsRunning(groupID string) bool {
	c.mu.Lock()
	sup, ok := c.supervisors[groupID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	return sup.IsRunning()
}

// GroupStatus reports one active group's lifecycle state and stream
// targets, for surfacing through the control server's status endpoint.
type GroupStatus struct {
	ID      string
	State   models.GroupState
	Targets []string
}

// Status returns a snapshot of every active group's state and targets.
func (c *Coordinator) Status() []GroupStatus {
	c.mu.Lock()
	sups := make([]*encoder.Supervisor, 0, len(c.supervisors))
	for _, sup := range c.supervisors {
		sups = append(sups, sup)
	}
	c.mu.Unlock()

	out := make([]GroupStatus, 0, len(sups))
	for _, sup := range sups {
		out = append(out, GroupStatus{
			ID:      sup.GroupID(),
			State:   sup.State(),
			Targets: sup.Targets(),
		})
	}
	return out
}

func (c *Coordinator) snapshotDisabled() map[string]bool {
	out := make(map[string]bool, len(c.disabled))
	for k, v := range c.disabled {
		out[k] = v
	}
	return out
}

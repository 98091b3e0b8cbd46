package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c360/stormbridge/component"
	"github.com/c360/stormbridge/health"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/topology/natsrunner"
)

// hostRunner is the slice of natsrunner.Runner the supervisor drives.
type hostRunner interface {
	RunBolt(ctx context.Context, cfg natsrunner.BoltConfig, bolt topology.Bolt) error
	RunSpout(ctx context.Context, cfg natsrunner.SpoutConfig, spout topology.Spout) error
}

// supervisor hosts component instances, one goroutine each.
type supervisor struct {
	runner hostRunner
	logger *slog.Logger
	health *health.Monitor

	mu      sync.Mutex
	managed map[string]*component.ManagedComponent

	// failures receives the start error of each instance that could not
	// prepare or open.
	failures chan error
}

func newSupervisor(runner hostRunner, logger *slog.Logger, monitor *health.Monitor) *supervisor {
	if monitor == nil {
		monitor = health.NewMonitor()
	}
	return &supervisor{
		runner:   runner,
		logger:   logger,
		health:   monitor,
		managed:  make(map[string]*component.ManagedComponent),
		failures: make(chan error, 16),
	}
}

// Start hosts inst until ctx is done or Stop is called.
func (s *supervisor) Start(ctx context.Context, inst *component.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.managed[inst.Name]; exists {
		return fmt.Errorf("instance %s already started", inst.Name)
	}

	childCtx, cancel := context.WithCancel(ctx)
	mc := &component.ManagedComponent{
		Instance: inst,
		State:    component.StateStarted,
		Context:  childCtx,
		Cancel:   cancel,
		Done:     make(chan struct{}),
	}
	s.managed[inst.Name] = mc
	s.health.Update(inst.Name, health.FromState(inst.Name, mc.State, nil))

	go s.host(mc)
	return nil
}

func (s *supervisor) host(mc *component.ManagedComponent) {
	defer close(mc.Done)
	inst := mc.Instance

	var err error
	switch {
	case inst.Bolt != nil:
		err = s.runner.RunBolt(mc.Context, natsrunner.BoltConfig{
			Name:   inst.Name,
			Input:  inst.Config.Input,
			Output: inst.Config.Output,
		}, inst.Bolt)
	case inst.Spout != nil:
		err = s.runner.RunSpout(mc.Context, natsrunner.SpoutConfig{
			Name:   inst.Name,
			Output: inst.Config.Output,
		}, inst.Spout)
	default:
		err = fmt.Errorf("instance %s has neither bolt nor spout", inst.Name)
	}

	s.mu.Lock()
	if err != nil {
		mc.State = component.StateFailed
		mc.LastError = err
	} else {
		mc.State = component.StateStopped
	}
	s.health.Update(inst.Name, health.FromState(inst.Name, mc.State, mc.LastError))
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Component failed to start", "component", inst.Name, "error", err)
		select {
		case s.failures <- fmt.Errorf("component %s: %w", inst.Name, err):
		default:
		}
	}
}

// Failures delivers start errors.
func (s *supervisor) Failures() <-chan error {
	return s.failures
}

// States returns the state of every hosted instance.
func (s *supervisor) States() map[string]component.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]component.State, len(s.managed))
	for name, mc := range s.managed {
		out[name] = mc.State
	}
	return out
}

// Health returns the monitor fed by instance state changes.
func (s *supervisor) Health() *health.Monitor {
	return s.health
}

// Stop cancels every instance and waits up to timeout for them to return.
// Spouts are stopped before bolts so in-flight tuples can still drain.
func (s *supervisor) Stop(timeout time.Duration) error {
	s.mu.Lock()
	all := make([]*component.ManagedComponent, 0, len(s.managed))
	for _, mc := range s.managed {
		all = append(all, mc)
	}
	s.mu.Unlock()

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Instance.Spout != nil && all[j].Instance.Spout == nil
	})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var stuck []string
	for _, mc := range all {
		mc.Cancel()
		select {
		case <-mc.Done:
		case <-deadline.C:
			stuck = append(stuck, mc.Instance.Name)
			// The deadline has fired; remaining instances get no further wait.
			deadline.Reset(0)
		}
	}
	if len(stuck) > 0 {
		sort.Strings(stuck)
		return fmt.Errorf("components did not stop within %s: %v", timeout, stuck)
	}
	return nil
}

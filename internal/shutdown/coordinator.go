// Package shutdown drains live terminal connections before the process exits.
//
// A Coordinator moves through three states:
//
//	Running ──signal, no clients──────────────────────────▶ Stopped
//	Running ──signal, clients──▶ Draining(d) ──tick──▶ Draining(d-1) …
//	Draining ──tick at 0 / last client gone / second signal──▶ Stopped
//
// While Draining, every tick broadcasts the remaining seconds to connected
// clients as a "shutdownCountdownUpdate" event. Stopped is terminal.
//
// The Coordinator and its Registry are not safe for concurrent use. In the
// server every call is posted to a Loop, which runs them one at a time in
// arrival order; the HTTP guard only reads Accepting, which is atomic.
package shutdown

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AMFTech512/sillyctf-webssh2/internal/metrics"
)

// CountdownEvent is the event name broadcast on every drain tick.
const CountdownEvent = "shutdownCountdownUpdate"

// TickInterval is the spacing between drain ticks.
const TickInterval = time.Second

// Stop reasons, logged as "Stopping: <reason>".
const (
	ReasonNoClients       = "No clients connected"
	ReasonCountdownOver   = "Countdown is over"
	ReasonAllDisconnected = "All clients disconnected"
	ReasonForced          = "Safe shutdown aborted, force quitting"
)

// Broadcaster delivers an event to every connected client.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Options configures a Coordinator.
type Options struct {
	Registry    *Registry
	Broadcaster Broadcaster
	Scheduler   Scheduler
	// Duration is the drain countdown length in seconds.
	Duration int
}

// Coordinator owns the shutdown state machine.
type Coordinator struct {
	registry    *Registry
	broadcaster Broadcaster
	scheduler   Scheduler
	duration    int

	state      State
	remaining  int
	cancelTick Cancel
	reason     string
	onStop     []func(reason string)

	accepting atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

func NewCoordinator(opts Options) *Coordinator {
	reg := opts.Registry
	if reg == nil {
		reg = &Registry{}
	}
	c := &Coordinator{
		registry:    reg,
		broadcaster: opts.Broadcaster,
		scheduler:   opts.Scheduler,
		duration:    opts.Duration,
		state:       StateRunning,
		done:        make(chan struct{}),
	}
	c.accepting.Store(true)
	metrics.ShutdownState.Set(float64(StateRunning))
	return c
}

// OnStop registers fn to run when the coordinator stops. Hooks run in
// registration order on the goroutine that triggered the stop and should
// not block; they close the real-time channel and the listeners.
func (c *Coordinator) OnStop(fn func(reason string)) {
	c.onStop = append(c.onStop, fn)
}

// Signal handles a graceful shutdown request.
func (c *Coordinator) Signal() {
	switch c.state {
	case StateStopped:
		return
	case StateDraining:
		c.stop(ReasonForced)
		return
	}

	n := c.registry.Count()
	if n == 0 {
		c.stop(ReasonNoClients)
		return
	}

	c.state = StateDraining
	c.remaining = c.duration
	c.accepting.Store(false)
	metrics.ShutdownState.Set(float64(StateDraining))
	metrics.ShutdownRemaining.Set(float64(c.remaining))

	log.Printf("[shutdown] %s", connectedMessage(n))
	log.Printf("[shutdown] Starting a %d seconds countdown", c.remaining)
	log.Printf("[shutdown] Press Ctrl+C again to force quit")

	if c.scheduler != nil {
		c.cancelTick = c.scheduler.Every(TickInterval, c.Tick)
	}
}

// Tick advances the drain countdown by one second.
func (c *Coordinator) Tick() {
	if c.state != StateDraining {
		return
	}
	if c.remaining <= 0 {
		c.stop(ReasonCountdownOver)
		return
	}
	c.remaining--
	metrics.ShutdownRemaining.Set(float64(c.remaining))
	if c.broadcaster != nil {
		c.broadcaster.Broadcast(CountdownEvent, c.remaining)
		metrics.CountdownBroadcasts.Inc()
	}
}

// ConnectionOpened records a new real-time connection.
func (c *Coordinator) ConnectionOpened() {
	if c.state == StateStopped {
		return
	}
	metrics.ConnectionsActive.Set(float64(c.registry.Increment()))
}

// ConnectionClosed records a closed connection. Losing the last client while
// draining stops the coordinator without waiting for the countdown.
func (c *Coordinator) ConnectionClosed() {
	if c.state == StateStopped {
		return
	}
	n := c.registry.Decrement()
	metrics.ConnectionsActive.Set(float64(n))
	if n == 0 && c.state == StateDraining {
		c.stop(ReasonAllDisconnected)
	}
}

func (c *Coordinator) stop(reason string) {
	if c.state == StateStopped {
		return
	}
	c.state = StateStopped
	c.reason = reason
	c.accepting.Store(false)
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
	metrics.ShutdownState.Set(float64(StateStopped))
	log.Printf("[shutdown] Stopping: %s", reason)

	for _, fn := range c.onStop {
		fn(reason)
	}
	c.doneOnce.Do(func() { close(c.done) })
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// Remaining returns the seconds left while draining.
func (c *Coordinator) Remaining() int { return c.remaining }

// Connections returns the open connection count.
func (c *Coordinator) Connections() int { return c.registry.Count() }

// Reason returns why the coordinator stopped, or "" while it has not.
func (c *Coordinator) Reason() string { return c.reason }

// Accepting reports whether new requests should be served. Safe for
// concurrent use.
func (c *Coordinator) Accepting() bool { return c.accepting.Load() }

// Done is closed after the coordinator stops and its hooks have run.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func connectedMessage(n int) string {
	if n == 1 {
		return "1 client is still connected"
	}
	return fmt.Sprintf("%d clients are still connected", n)
}

package shutdown

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Loop runs posted tasks one at a time, in posting order, on a single
// goroutine. Everything that touches the Registry or the Coordinator goes
// through it.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It reports false if the loop has already exited.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Cancel stops a scheduled task. Calling it more than once is harmless.
type Cancel func()

// Scheduler runs fn every d until cancelled.
type Scheduler interface {
	Every(d time.Duration, fn func()) Cancel
}

// TickerScheduler fires on a time.Ticker and posts each firing into a Loop,
// so ticks are ordered with every other event the loop handles.
type TickerScheduler struct {
	loop *Loop
}

func NewTickerScheduler(loop *Loop) *TickerScheduler {
	return &TickerScheduler{loop: loop}
}

func (s *TickerScheduler) Every(d time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.loop.Post(fn) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// SignalSource dispatches OS signals to one handler per signal kind. The
// handler runs on the loop, never on the signal goroutine.
type SignalSource struct {
	handlers map[os.Signal]func()
}

func NewSignalSource() *SignalSource {
	return &SignalSource{handlers: make(map[os.Signal]func())}
}

// Handle registers fn for sig, replacing any earlier handler.
func (s *SignalSource) Handle(sig os.Signal, fn func()) {
	s.handlers[sig] = fn
}

// Run forwards signals from ch until ctx is cancelled or ch is closed.
func (s *SignalSource) Run(ctx context.Context, ch <-chan os.Signal, loop *Loop) {
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			fn, registered := s.handlers[sig]
			if !registered {
				log.Printf("[shutdown] ignoring unhandled signal %v", sig)
				continue
			}
			log.Printf("[shutdown] received %v", sig)
			loop.Post(fn)
		case <-ctx.Done():
			return
		}
	}
}

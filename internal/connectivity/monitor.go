// Package connectivity observes reachability of the remote API and
// reports de-duplicated online/offline transitions.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/inventorylite/internal/logging"
)

// Prober performs a single reachability check. A nil error means the
// remote is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Ping implements Prober.
func (f ProberFunc) Ping(ctx context.Context) error { return f(ctx) }

// Subscription delivers connectivity transitions. Each value on C is
// the new online state; repeated probes of the same state emit nothing.
type Subscription struct {
	C <-chan bool

	id      int
	monitor *Monitor
	once    sync.Once
}

// Close unregisters the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.monitor.unsubscribe(s.id)
	})
}

// Monitor tracks the current reachability boolean. On Start and on every
// offline-to-online transition it requests a reconciliation pass via the
// configured trigger. It never retries remote calls itself; it only
// signals opportunity.
type Monitor struct {
	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration

	mu      sync.Mutex
	online  bool
	forced  *bool // manual override, probing paused while set
	subs    map[int]chan bool
	nextID  int
	trigger func()
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor probing at the given interval.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		prober:       prober,
		interval:     interval,
		probeTimeout: 5 * time.Second,
		subs:         make(map[int]chan bool),
		stopCh:       make(chan struct{}),
	}
}

// SetSyncTrigger wires the function invoked when a sync opportunity
// appears. Set before Start.
func (m *Monitor) SetSyncTrigger(trigger func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

// Online returns the current reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers for transition events.
func (m *Monitor) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan bool, 4)
	id := m.nextID
	m.nextID++
	m.subs[id] = ch

	return &Subscription{C: ch, id: id, monitor: m}
}

// Start performs an initial probe, requests an initial sync pass in case
// the queue already holds actions from a previous run, and begins
// periodic probing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.probe(ctx)
	m.requestSync()

	m.wg.Add(1)
	go m.probeLoop(ctx)

	logging.Info("Connectivity monitor started",
		map[string]interface{}{"interval": m.interval.String()})
}

// Stop halts probing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	logging.Info("Connectivity monitor stopped")
}

// SetOnline forces the reachability state, pausing probing until
// ClearOverride. Used by the offline simulator and by tests.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	m.forced = &online
	m.mu.Unlock()

	m.setState(online)
}

// ClearOverride resumes probing.
func (m *Monitor) ClearOverride() {
	m.mu.Lock()
	m.forced = nil
	m.mu.Unlock()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.mu.Lock()
			paused := m.forced != nil
			m.mu.Unlock()
			if paused {
				continue
			}
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	m.setState(err == nil)
}

// setState records the new state and, only on an actual transition,
// notifies subscribers. A transition to online also requests a sync
// pass.
func (m *Monitor) setState(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
		}
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{"online": online})

	if online {
		m.requestSync()
	}
}

func (m *Monitor) requestSync() {
	m.mu.Lock()
	trigger := m.trigger
	m.mu.Unlock()

	if trigger != nil {
		trigger()
	}
}

func (m *Monitor) unsubscribe(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.subs[id]; ok {
		close(ch)
		delete(m.subs, id)
	}
}

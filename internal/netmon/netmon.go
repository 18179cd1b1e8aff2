// Package netmon observes network connectivity and classifies it into a
// small status snapshot consumed by the adaptive fetch pipeline. It is the
// only package that talks to a connectivity probe; everything else reads
// snapshots or subscribes to changes.
package netmon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LinkType names the class of the active network link.
type LinkType string

const (
	LinkWifi     LinkType = "wifi"
	LinkCellular LinkType = "cellular"
	LinkWired    LinkType = "wired"
	LinkUnknown  LinkType = "unknown"
)

// Status is an immutable connectivity snapshot. A new one supersedes the old
// on every observation; none is ever mutated in place.
type Status struct {
	Online     bool      `json:"online"`
	Link       LinkType  `json:"link"`
	Degraded   bool      `json:"degraded"`
	ObservedAt time.Time `json:"observedAt"`
}

// Sample is one raw probe observation. Fields the probe cannot measure stay
// at their documented unknown values and never mark the link degraded.
type Sample struct {
	Online bool
	Link   LinkType

	// CellularGen is the cellular generation (2 for 2G, 3, 4, 5); 0 unknown.
	CellularGen int

	// WifiSignalPct is the Wi-Fi signal strength in percent; -1 unknown.
	WifiSignalPct int

	// RTT is the probe round-trip time; 0 unknown.
	RTT time.Duration
}

// Probe produces raw connectivity samples. A probe reports failure to reach
// the network as Online == false rather than through an error, since deciding
// reachability is its whole job.
type Probe interface {
	Sample(ctx context.Context) Sample
}

// Defaults applied by New for any Options field left at its zero value.
const (
	DefaultInterval               = 30 * time.Second
	DefaultWifiSignalThresholdPct = 40
	DefaultRTTThreshold           = 750 * time.Millisecond
)

// Options tunes polling and the thresholds behind the degraded flag.
type Options struct {
	// Interval is the polling cadence used by Start.
	Interval time.Duration

	// WifiSignalThresholdPct marks a known Wi-Fi signal below it as degraded.
	WifiSignalThresholdPct int

	// RTTThreshold marks a probe round trip above it as degraded.
	RTTThreshold time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.WifiSignalThresholdPct <= 0 {
		o.WifiSignalThresholdPct = DefaultWifiSignalThresholdPct
	}
	if o.RTTThreshold <= 0 {
		o.RTTThreshold = DefaultRTTThreshold
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Monitor tracks the current connectivity status and notifies subscribers on
// material changes. Construct with New and inject the probe; tests drive it
// with scripted fakes.
type Monitor struct {
	probe Probe
	opts  Options
	log   *slog.Logger

	mu        sync.Mutex
	current   Status
	listeners map[string]func(Status)
	stop      chan struct{}
	running   bool
}

// New creates a monitor around the probe. Until the first observation the
// monitor assumes an online, unknown link, so early fetches attempt the
// network instead of failing cache-only.
func New(probe Probe, opts Options) *Monitor {
	opts = opts.withDefaults()
	return &Monitor{
		probe:     probe,
		opts:      opts,
		log:       opts.Logger,
		current:   Status{Online: true, Link: LinkUnknown},
		listeners: make(map[string]func(Status)),
	}
}

// Current returns the last known snapshot. It never blocks on the probe.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers a listener fired whenever Online, Link, or Degraded
// change. Redeliveries identical on those three fields are suppressed, no
// matter how the rest of the snapshot differs. The returned function removes
// the subscription; calling it more than once is harmless.
//
// Listeners run on the goroutine that observed the change and must not block.
func (m *Monitor) Subscribe(fn func(Status)) (unsubscribe func()) {
	token := uuid.NewString()

	m.mu.Lock()
	m.listeners[token] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, token)
		m.mu.Unlock()
	}
}

// Refresh forces an active probe, installs the snapshot, and notifies
// subscribers synchronously when it materially changed.
func (m *Monitor) Refresh(ctx context.Context) Status {
	return m.observe(m.probe.Sample(ctx))
}

// Start launches the polling loop that stands in for platform connectivity
// events: an immediate probe, then one per interval until Stop is called or
// ctx ends. Starting a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	stop := make(chan struct{})
	m.stop = stop
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()

		m.Refresh(ctx)
		for {
			select {
			case <-ticker.C:
				m.Refresh(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the polling loop. Refresh and Current keep working; Start may be
// called again afterwards.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
}

// observe converts the sample into a snapshot, installs it, and fans out to
// listeners outside the lock so a listener may call back into the monitor.
func (m *Monitor) observe(s Sample) Status {
	next := m.statusFrom(s)

	m.mu.Lock()
	prev := m.current
	m.current = next
	var fns []func(Status)
	if materialChange(prev, next) {
		fns = make([]func(Status), 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if fns != nil {
		m.log.Info("network status changed",
			"online", next.Online,
			"link", next.Link,
			"degraded", next.Degraded,
		)
	}
	for _, fn := range fns {
		fn(next)
	}
	return next
}

func (m *Monitor) statusFrom(s Sample) Status {
	link := s.Link
	if link == "" {
		link = LinkUnknown
	}
	return Status{
		Online:     s.Online,
		Link:       link,
		Degraded:   s.Online && m.degraded(s),
		ObservedAt: time.Now(),
	}
}

// degraded derives link quality from whatever the sample could measure: an
// old cellular generation, a weak known Wi-Fi signal, or a slow probe round
// trip. Unknown readings never count against the link.
func (m *Monitor) degraded(s Sample) bool {
	if s.Link == LinkCellular && s.CellularGen > 0 && s.CellularGen <= 3 {
		return true
	}
	if s.Link == LinkWifi && s.WifiSignalPct >= 0 && s.WifiSignalPct < m.opts.WifiSignalThresholdPct {
		return true
	}
	if s.RTT > 0 && s.RTT > m.opts.RTTThreshold {
		return true
	}
	return false
}

// materialChange compares only the three discriminating fields; ObservedAt
// alone never triggers a notification.
func materialChange(prev, next Status) bool {
	return prev.Online != next.Online || prev.Link != next.Link || prev.Degraded != next.Degraded
}

package profile

import (
	"log/slog"
	"sync"
	"time"
)

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type wallClock struct{}

func (wallClock) NowUnixNano() int64 { return time.Now().UnixNano() }

// Page-load thresholds used when no connection hint is available.
const (
	slowPageLoad   = 4 * time.Second
	mediumPageLoad = 2 * time.Second
)

// DefaultResizeThrottle bounds how often viewport resizes are re-evaluated.
const DefaultResizeThrottle = 500 * time.Millisecond

// ClassifierOptions configures a Classifier. Zero values are safe.
type ClassifierOptions struct {
	// Clock overrides the time source (tests). Nil => time.Now().
	Clock Clock
	// Logger receives tier-change records. Nil => discard.
	Logger *slog.Logger
	// ResizeThrottle is the minimum spacing between resize evaluations.
	// 0 => DefaultResizeThrottle.
	ResizeThrottle time.Duration
}

// Classifier holds the current device and network tiers and re-evaluates
// them on construction, on network-change and on (throttled) resize signals.
//
// Readers observe a new tier on their next call to Profiles; nothing is
// pushed to dependents.
type Classifier struct {
	probe    Probe
	clock    Clock
	logger   *slog.Logger
	throttle int64

	// ---- guarded by mu ----
	mu          sync.Mutex
	device      DeviceProfile
	network     NetworkProfile
	lastResize  int64
	resizeDirty bool
	stop        func()
}

// NewClassifier evaluates the probe once and, if the probe implements
// ChangeNotifier, subscribes to its change events.
func NewClassifier(p Probe, opt ClassifierOptions) *Classifier {
	if p == nil {
		p = StaticProbe{}
	}
	if opt.Clock == nil {
		opt.Clock = wallClock{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	if opt.ResizeThrottle <= 0 {
		opt.ResizeThrottle = DefaultResizeThrottle
	}
	c := &Classifier{
		probe:    p,
		clock:    opt.Clock,
		logger:   opt.Logger,
		throttle: int64(opt.ResizeThrottle),
	}
	c.device, c.network = c.evaluate()
	if n, ok := p.(ChangeNotifier); ok {
		c.stop = n.OnChange(func(k ChangeKind) {
			switch k {
			case ResizeChange:
				c.NotifyResize()
			case NetworkChange:
				c.NotifyNetworkChange()
			}
		})
	}
	return c
}

// Profiles returns the current tiers. A resize dropped by the throttle is
// picked up here once the throttle window has passed.
func (c *Classifier) Profiles() (DeviceProfile, NetworkProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resizeDirty && c.clock.NowUnixNano()-c.lastResize >= c.throttle {
		c.resizeDirty = false
		c.lastResize = c.clock.NowUnixNano()
		c.applyLocked(c.evaluate())
	}
	return c.device, c.network
}

// Refresh re-evaluates both tiers immediately.
func (c *Classifier) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(c.evaluate())
}

// NotifyNetworkChange re-evaluates immediately; connection changes are rare.
func (c *Classifier) NotifyNetworkChange() { c.Refresh() }

// NotifyResize re-evaluates at most once per throttle window. A resize that
// falls inside the window is remembered and applied on a later read.
func (c *Classifier) NotifyResize() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.NowUnixNano()
	if c.lastResize != 0 && now-c.lastResize < c.throttle {
		c.resizeDirty = true
		return
	}
	c.lastResize = now
	c.resizeDirty = false
	c.applyLocked(c.evaluate())
}

// Close unsubscribes from the probe's change notifications, if any.
func (c *Classifier) Close() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Classifier) applyLocked(d DeviceProfile, n NetworkProfile) {
	if d == c.device && n == c.network {
		return
	}
	c.logger.Info("environment profile changed",
		"device", d.String(), "network", n.String(),
		"prev_device", c.device.String(), "prev_network", c.network.String())
	c.device, c.network = d, n
}

func (c *Classifier) evaluate() (DeviceProfile, NetworkProfile) {
	w, mobile, ok := c.probe.Viewport()
	d := ClassifyDevice(w, mobile, ok)

	if eff, ok := c.probe.EffectiveConnection(); ok {
		if n, ok := ClassifyConnection(eff); ok {
			return d, n
		}
	}
	if lt, ok := c.probe.PageLoadTime(); ok {
		switch {
		case lt >= slowPageLoad:
			return d, NetworkSlow
		case lt >= mediumPageLoad:
			return d, NetworkMedium
		default:
			return d, NetworkFast
		}
	}
	return d, NetworkMedium
}

package profile

import "time"

// Probe reports the raw environment signals the Classifier works from.
// Every method may report ok=false when the platform does not expose the
// signal; the Classifier then falls back to an estimate.
type Probe interface {
	// Viewport returns the viewport width in CSS pixels and a mobile hint.
	Viewport() (width int, mobile bool, ok bool)
	// EffectiveConnection returns the platform's connection hint
	// ("slow-2g", "2g", "3g", "4g").
	EffectiveConnection() (string, bool)
	// PageLoadTime returns the most recent page-load duration.
	PageLoadTime() (time.Duration, bool)
}

// ChangeKind identifies which signal changed.
type ChangeKind int

const (
	ResizeChange ChangeKind = iota
	NetworkChange
)

// ChangeNotifier is an optional Probe capability: probes that can observe
// viewport or connection changes push them to the Classifier.
type ChangeNotifier interface {
	// OnChange registers fn and returns a function that unregisters it.
	OnChange(fn func(ChangeKind)) (stop func())
}

// StaticProbe is a fixed set of signals. The zero value reports nothing,
// which classifies as (DeviceMid, NetworkMedium).
type StaticProbe struct {
	Width      int
	Mobile     bool
	Connection string
	LoadTime   time.Duration
}

func (p StaticProbe) Viewport() (int, bool, bool) {
	return p.Width, p.Mobile, p.Width > 0
}

func (p StaticProbe) EffectiveConnection() (string, bool) {
	return p.Connection, p.Connection != ""
}

func (p StaticProbe) PageLoadTime() (time.Duration, bool) {
	return p.LoadTime, p.LoadTime > 0
}

var _ Probe = StaticProbe{}

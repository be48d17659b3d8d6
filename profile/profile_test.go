package profile

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// mutableProbe is a Probe whose signals can change between evaluations and
// which pushes change events like a platform would.
type mutableProbe struct {
	mu     sync.Mutex
	p      StaticProbe
	evals  int
	listen func(ChangeKind)
}

func (m *mutableProbe) set(p StaticProbe) {
	m.mu.Lock()
	m.p = p
	m.mu.Unlock()
}

func (m *mutableProbe) Viewport() (int, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals++
	return m.p.Viewport()
}

func (m *mutableProbe) EffectiveConnection() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p.EffectiveConnection()
}

func (m *mutableProbe) PageLoadTime() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p.PageLoadTime()
}

func (m *mutableProbe) OnChange(fn func(ChangeKind)) func() {
	m.listen = fn
	return func() { m.listen = nil }
}

func (m *mutableProbe) evaluations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evals
}

func TestClassifyDevice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		width  int
		mobile bool
		ok     bool
		want   DeviceProfile
	}{
		{"no signal desktop", 0, false, false, DeviceMid},
		{"no signal mobile", 0, true, false, DeviceLow},
		{"narrow", 400, false, true, DeviceLow},
		{"tablet mobile", 900, true, true, DeviceLow},
		{"laptop", 1280, false, true, DeviceMid},
		{"wide mobile", 1600, true, true, DeviceMid},
		{"desktop", 1920, false, true, DeviceHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyDevice(tc.width, tc.mobile, tc.ok))
		})
	}
}

func TestClassifier_NetworkFallbacks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		probe StaticProbe
		want  NetworkProfile
	}{
		{"hint 4g", StaticProbe{Connection: "4g"}, NetworkFast},
		{"hint 2g", StaticProbe{Connection: "2g", LoadTime: time.Millisecond}, NetworkSlow},
		{"unknown hint uses load time", StaticProbe{Connection: "wifi", LoadTime: 3 * time.Second}, NetworkMedium},
		{"slow page load", StaticProbe{LoadTime: 6 * time.Second}, NetworkSlow},
		{"fast page load", StaticProbe{LoadTime: 300 * time.Millisecond}, NetworkFast},
		{"no signals", StaticProbe{}, NetworkMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, n := NewClassifier(tc.probe, ClassifierOptions{}).Profiles()
			assert.Equal(t, tc.want, n)
		})
	}
}

func TestClassifier_ResizeThrottled(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: int64(time.Hour)}
	p := &mutableProbe{p: StaticProbe{Width: 1920, Connection: "4g"}}
	c := NewClassifier(p, ClassifierOptions{Clock: clk})

	d, _ := c.Profiles()
	require.Equal(t, DeviceHigh, d)

	p.set(StaticProbe{Width: 1280, Connection: "4g"})
	p.listen(ResizeChange)
	d, _ = c.Profiles()
	require.Equal(t, DeviceMid, d, "first resize is evaluated immediately")

	before := p.evaluations()
	p.set(StaticProbe{Width: 500, Connection: "4g"})
	clk.add(100 * time.Millisecond)
	c.NotifyResize()
	c.NotifyResize()
	d, _ = c.Profiles()
	assert.Equal(t, DeviceMid, d, "resizes inside the window are deferred")
	assert.Equal(t, before, p.evaluations())

	clk.add(500 * time.Millisecond)
	d, _ = c.Profiles()
	assert.Equal(t, DeviceLow, d, "deferred resize applied after the window")
}

func TestClassifier_NetworkChangeImmediate(t *testing.T) {
	t.Parallel()

	p := &mutableProbe{p: StaticProbe{Connection: "4g"}}
	c := NewClassifier(p, ClassifierOptions{})
	t.Cleanup(c.Close)

	p.set(StaticProbe{Connection: "3g"})
	p.listen(NetworkChange)
	_, n := c.Profiles()
	assert.Equal(t, NetworkMedium, n)

	c.Close()
	assert.Nil(t, p.listen)
}

func TestTables(t *testing.T) {
	t.Parallel()

	tb := DefaultTables()
	assert.Equal(t, 2, tb.ConcurrencyLimit(DeviceLow, NetworkSlow))
	assert.Equal(t, 12, tb.ConcurrencyLimit(DeviceHigh, NetworkFast))
	assert.Equal(t, int64(50<<20), tb.MemoryBudget(DeviceLow))
	assert.Equal(t, int64(200<<20), tb.MemoryBudget(DeviceHigh))

	merged := tb.Merge(Tables{
		Concurrency: map[DeviceProfile]map[NetworkProfile]int{DeviceLow: {NetworkSlow: 1}},
		Budget:      map[DeviceProfile]int64{DeviceMid: 1 << 20},
	})
	assert.Equal(t, 1, merged.ConcurrencyLimit(DeviceLow, NetworkSlow))
	assert.Equal(t, 3, merged.ConcurrencyLimit(DeviceLow, NetworkMedium))
	assert.Equal(t, int64(1<<20), merged.MemoryBudget(DeviceMid))
	assert.Equal(t, 2, tb.ConcurrencyLimit(DeviceLow, NetworkSlow), "merge must not mutate the receiver")

	var empty Tables
	assert.Equal(t, 8, empty.ConcurrencyLimit(DeviceHigh, NetworkMedium))
	assert.Equal(t, int64(100<<20), empty.MemoryBudget(DeviceMid))
}

package profile

// Tables holds the static concurrency and memory ceilings per tier.
// They are configuration only; nothing is learned at runtime.
type Tables struct {
	// Concurrency is the maximum number of in-flight fetches per
	// (device, network) combination.
	Concurrency map[DeviceProfile]map[NetworkProfile]int
	// Budget is the byte ceiling for loaded entries per device tier.
	Budget map[DeviceProfile]int64
}

const (
	minConcurrency = 1
	mb             = 1 << 20
)

// DefaultTables returns conservative ceilings for low-end/slow combinations
// (2 fetches, 50MB) and generous ones for high-end/fast (12 fetches, 200MB).
func DefaultTables() Tables {
	return Tables{
		Concurrency: map[DeviceProfile]map[NetworkProfile]int{
			DeviceLow:  {NetworkSlow: 2, NetworkMedium: 3, NetworkFast: 4},
			DeviceMid:  {NetworkSlow: 3, NetworkMedium: 4, NetworkFast: 6},
			DeviceHigh: {NetworkSlow: 4, NetworkMedium: 8, NetworkFast: 12},
		},
		Budget: map[DeviceProfile]int64{
			DeviceLow:  50 * mb,
			DeviceMid:  100 * mb,
			DeviceHigh: 200 * mb,
		},
	}
}

// ConcurrencyLimit returns the in-flight ceiling for the given tiers.
// Missing combinations fall back to the default table.
func (t Tables) ConcurrencyLimit(d DeviceProfile, n NetworkProfile) int {
	if row, ok := t.Concurrency[d]; ok {
		if v, ok := row[n]; ok && v >= minConcurrency {
			return v
		}
	}
	if row, ok := DefaultTables().Concurrency[d]; ok {
		if v, ok := row[n]; ok {
			return v
		}
	}
	return 2
}

// MemoryBudget returns the byte ceiling for the given device tier.
// Missing tiers fall back to the default table.
func (t Tables) MemoryBudget(d DeviceProfile) int64 {
	if v, ok := t.Budget[d]; ok && v > 0 {
		return v
	}
	if v, ok := DefaultTables().Budget[d]; ok {
		return v
	}
	return 50 * mb
}

// Merge returns a copy of t with every value present in o overriding t's.
func (t Tables) Merge(o Tables) Tables {
	out := Tables{
		Concurrency: make(map[DeviceProfile]map[NetworkProfile]int, len(t.Concurrency)),
		Budget:      make(map[DeviceProfile]int64, len(t.Budget)),
	}
	for d, row := range t.Concurrency {
		out.Concurrency[d] = make(map[NetworkProfile]int, len(row))
		for n, v := range row {
			out.Concurrency[d][n] = v
		}
	}
	for d, v := range t.Budget {
		out.Budget[d] = v
	}
	for d, row := range o.Concurrency {
		if out.Concurrency[d] == nil {
			out.Concurrency[d] = make(map[NetworkProfile]int, len(row))
		}
		for n, v := range row {
			out.Concurrency[d][n] = v
		}
	}
	for d, v := range o.Budget {
		out.Budget[d] = v
	}
	return out
}

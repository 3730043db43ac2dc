package allocator

// Item carries one priced entity through an allocation. Weight is the
// proportional basis (e.g. a retail price) and Multiplicity scales the
// assigned value inside the weighted total (e.g. an initial stock count).
// Assigned is the integer value being solved for; Ideal is the unrounded
// proportional target, kept so callers can audit the rounding error.
type Item struct {
	Weight       float64
	Multiplicity float64
	Assigned     int64
	Ideal        float64
}

// Result is the outcome of a single allocation run. Items preserves the
// input order. Residual is target minus achieved; a non-zero residual is
// best-effort data, not an error.
type Result struct {
	Items       []Item
	TargetSum   float64
	AchievedSum float64
	Residual    float64
	Exact       bool
}

// Summary aggregates a Result for reporting.
type Summary struct {
	Items             int
	TotalMultiplicity float64
	TargetSum         float64
	AchievedSum       float64
	Residual          float64
	Exact             bool
	AverageAssigned   float64
}

// Summary derives aggregate statistics from the allocated items.
func (r Result) Summary() Summary {
	s := Summary{
		Items:       len(r.Items),
		TargetSum:   r.TargetSum,
		AchievedSum: r.AchievedSum,
		Residual:    r.Residual,
		Exact:       r.Exact,
	}
	for _, it := range r.Items {
		s.TotalMultiplicity += it.Multiplicity
	}
	if s.TotalMultiplicity > 0 {
		s.AverageAssigned = r.AchievedSum / s.TotalMultiplicity
	}
	return s
}

// WeightedSum recomputes the multiplicity-weighted sum from the allocated
// items. It is a pure read; calling it repeatedly yields the same value.
func (r Result) WeightedSum() float64 {
	return weightedSum(r.Items)
}

// Allocator describes the behaviour required from a proportional allocator.
type Allocator interface {
	Allocate(items []Item, targetSum float64) (Result, error)
}

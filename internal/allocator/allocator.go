package allocator

import (
	"math"
	"sort"
)

type proportionalAllocator struct{}

// New creates an Allocator based on proportional scaling followed by greedy
// redistribution of the integer rounding residual.
func New() Allocator {
	return &proportionalAllocator{}
}

func (a *proportionalAllocator) Allocate(items []Item, targetSum float64) (Result, error) {
	if len(items) == 0 {
		return Result{}, ErrNoItems
	}
	if targetSum <= 0 {
		return Result{}, ErrInvalidTarget
	}

	batch := make([]Item, len(items))
	copy(batch, items)

	total := 0.0
	for _, it := range batch {
		if it.Weight <= 0 || it.Multiplicity <= 0 {
			return Result{}, ErrInvalidItem
		}
		total += it.Weight * it.Multiplicity
	}
	if total == 0 {
		return Result{}, ErrZeroWeightedSum
	}

	// Each item's share of the target is proportional to its own slice of
	// the weighted total; dividing the share back out by the multiplicity
	// gives the per-unit ideal value.
	for i := range batch {
		share := batch[i].Weight * batch[i].Multiplicity / total * targetSum
		batch[i].Ideal = share / batch[i].Multiplicity
		batch[i].Assigned = int64(math.Round(batch[i].Ideal))
		if batch[i].Assigned < 1 {
			batch[i].Assigned = 1
		}
	}

	residual := targetSum - weightedSum(batch)
	if residual != 0 {
		residual = coarsePass(batch, residual)
	}
	if residual != 0 {
		finePass(batch, residual)
	}

	achieved := weightedSum(batch)
	return Result{
		Items:       batch,
		TargetSum:   targetSum,
		AchievedSum: achieved,
		Residual:    targetSum - achieved,
		Exact:       achieved == targetSum,
	}, nil
}

// coarsePass corrects the largest rounding casualties first: one walk over
// the items ordered by descending rounding error, moving each assigned
// value one unit in the direction of the residual. Decrements respect the
// floor of 1, so this pass may leave a remainder.
func coarsePass(batch []Item, residual float64) float64 {
	order := indexed(batch)
	sort.SliceStable(order, func(i, j int) bool {
		return roundingError(order[i]) > roundingError(order[j])
	})

	if residual > 0 {
		for _, it := range order {
			if residual <= 0 {
				break
			}
			it.Assigned++
			residual -= it.Multiplicity
		}
		return residual
	}

	for _, it := range order {
		if residual >= 0 {
			break
		}
		if it.Assigned <= 1 {
			continue
		}
		it.Assigned--
		residual += it.Multiplicity
	}
	return residual
}

// finePass sweeps the items by ascending multiplicity, where a one-unit
// adjustment moves the weighted sum the least, and stops the instant the
// residual closes.
func finePass(batch []Item, residual float64) float64 {
	order := indexed(batch)
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Multiplicity < order[j].Multiplicity
	})

	for _, it := range order {
		switch {
		case residual > 0:
			it.Assigned++
			residual -= it.Multiplicity
		case residual < 0 && it.Assigned > 1:
			it.Assigned--
			residual += it.Multiplicity
		}
		if residual == 0 {
			break
		}
	}
	return residual
}

func roundingError(it *Item) float64 {
	return math.Abs(it.Ideal - float64(it.Assigned))
}

// indexed returns stable pointers into batch so the redistribution passes
// can reorder without disturbing the input order of the batch itself.
func indexed(batch []Item) []*Item {
	order := make([]*Item, len(batch))
	for i := range batch {
		order[i] = &batch[i]
	}
	return order
}

func weightedSum(batch []Item) float64 {
	sum := 0.0
	for _, it := range batch {
		sum += float64(it.Assigned) * it.Multiplicity
	}
	return sum
}

package grammar

import (
	"fmt"
	"math"
	"math/rand"
)

// Adaptive shrink factor bounds for ValidateAndRepair. The factor is the
// multiplier applied to the offending rule's weight: relaxed toward
// shrinkMax after a successful step, halved toward shrinkMin after a
// rejected one.
const (
	shrinkInit = 0.80
	shrinkMin  = 0.05
	shrinkMax  = 0.95
	shrinkUp   = 1.10
)

// RepairReport describes the outcome of ValidateAndRepair.
type RepairReport struct {
	Radius   float64 // final spectral radius
	OK       bool    // radius <= maxRadius reached within budget
	Attempts int     // repair steps tried
	Accepted int     // repair steps that improved the radius
}

// AdjustWeights rescales every nonterminal's rule weights so the group
// maximum equals targetTop. Groups whose weights are all zero are
// replaced with uniform targetTop. Every nonzero weight is floored at 1%
// of targetTop (at least 1), so the rescale never creates a new zero and
// never removes an existing one: the sparsity pattern of A is stable.
func (an *Analyzer) AdjustWeights(targetTop int) error {
	if targetTop < 1 {
		return fmt.Errorf("%w: targetTop %d", ErrBadWeight, targetTop)
	}
	floor := targetTop / 100
	if floor < 1 {
		floor = 1
	}
	weights := an.g.Weights()
	for _, nt := range an.nts {
		indices := an.g.GroupIndices(nt)
		top := 0
		for _, idx := range indices {
			if weights[idx] > top {
				top = weights[idx]
			}
		}
		if top == 0 {
			for _, idx := range indices {
				weights[idx] = targetTop
			}
			continue
		}
		for _, idx := range indices {
			if weights[idx] == 0 {
				continue
			}
			w := int(math.Round(float64(weights[idx]) * float64(targetTop) / float64(top)))
			if w < floor {
				w = floor
			}
			weights[idx] = w
		}
	}
	if err := an.g.SetWeights(weights, false); err != nil {
		return err
	}
	an.Rebuild()
	return nil
}

// ValidateAndRepair imports a candidate weight vector, normalizes it with
// AdjustWeights, and if the spectral radius exceeds maxRadius runs a
// bounded repair loop: pick a random nonzero entry (i, j) of A, find the
// single rule contributing most to it, shrink that rule's weight by the
// adaptive factor, recompute the affected row of A, and keep the step
// only if the radius improved. The shrink never zeroes a nonzero weight,
// so analysis cost stays stable across repairs.
//
// The grammar is left armed with the repaired weights; the report says
// whether the bound was met.
func (an *Analyzer) ValidateAndRepair(weights []int, targetTop int, maxRadius float64, maxAttempts int, rng *rand.Rand) (*RepairReport, error) {
	if err := an.g.SetWeights(weights, false); err != nil {
		return nil, err
	}
	if err := an.AdjustWeights(targetTop); err != nil {
		return nil, err
	}

	floor := targetTop / 100
	if floor < 1 {
		floor = 1
	}
	report := &RepairReport{Radius: an.SpectralRadius()}
	factor := shrinkInit

	for report.Radius > maxRadius && report.Attempts < maxAttempts {
		report.Attempts++

		i, j, ok := an.randomNonzeroEntry(rng)
		if !ok {
			break // A is all zero, radius is 0, loop condition was stale
		}
		idx := an.dominantRule(i, j)
		if idx < 0 {
			continue
		}
		entry := an.g.Entry(idx)
		old := entry.Weight
		shrunk := int(float64(old) * factor)
		if shrunk < floor {
			shrunk = floor
		}
		if shrunk >= old {
			// weight already at the floor, tighten and try elsewhere
			factor = math.Max(shrinkMin, factor*0.5)
			continue
		}

		entry.Weight = shrunk
		an.refreshGroup(entry.Rule.LHS)
		an.rebuildRow(i)

		radius := an.SpectralRadius()
		if radius < report.Radius {
			report.Radius = radius
			report.Accepted++
			factor = math.Min(shrinkMax, factor*shrinkUp)
		} else {
			entry.Weight = old
			an.refreshGroup(entry.Rule.LHS)
			an.rebuildRow(i)
			factor = math.Max(shrinkMin, factor*0.5)
		}
	}

	report.OK = report.Radius <= maxRadius
	return report, nil
}

// randomNonzeroEntry picks a uniformly random nonzero entry of A.
func (an *Analyzer) randomNonzeroEntry(rng *rand.Rand) (int, int, bool) {
	count := 0
	ri, rj := 0, 0
	for i, row := range an.a {
		for j, v := range row {
			if v == 0 {
				continue
			}
			count++
			// reservoir sample of size one over the nonzero entries
			if rng.Intn(count) == 0 {
				ri, rj = i, j
			}
		}
	}
	return ri, rj, count > 0
}

// dominantRule returns the rule contributing most to A[i][j], i.e. the
// rule of nonterminal i maximizing q[i][rule] * c[rule][j].
func (an *Analyzer) dominantRule(i, j int) int {
	best := -1
	bestVal := 0.0
	for _, idx := range an.g.GroupIndices(an.nts[i]) {
		v := an.q[i][idx] * an.c[idx][j]
		if v > bestVal {
			bestVal = v
			best = idx
		}
	}
	return best
}

// refreshGroup recomputes the cached weight total of one nonterminal
// after an in-place weight edit.
func (an *Analyzer) refreshGroup(nt *Symbol) {
	grp := an.g.groups[nt]
	grp.total = 0
	for _, idx := range grp.indices {
		grp.total += an.g.entries[idx].Weight
	}
}

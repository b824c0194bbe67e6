package grammar

import "math"

// Power iteration bounds. The matrices involved are small (one row per
// nonterminal), so a generous iteration cap costs little.
const (
	powerIterMax = 400
	powerIterTol = 1e-10
)

// Analyzer derives the expected-production matrix of a weighted grammar
// and decides whether stochastic expansion terminates in finite expected
// size.
//
//	Q (nonterminal x rule):   probability that the rule fires given its
//	                          left-hand nonterminal, weight / groupTotal
//	C (rule x nonterminal):   occurrences of the nonterminal on the
//	                          rule's right-hand side
//	A = Q x C (nonterminal x nonterminal): entry (i, j) is the expected
//	number of j instances produced by one expansion of i.
//
// By Perron-Frobenius the dominant eigenvalue of the nonnegative matrix
// A is its spectral radius; the grammar is usable iff that radius is
// strictly below 1. C depends only on rule structure and is built once;
// Q and A are recomputed from the current weights.
type Analyzer struct {
	g     *Grammar
	nts   []*Symbol
	ntIdx map[*Symbol]int

	c [][]float64 // rule x nonterminal, structural, never changes
	q [][]float64 // nonterminal x rule
	a [][]float64 // nonterminal x nonterminal
}

// NewAnalyzer builds the structural matrix C and the initial Q and A
// from the grammar's current weights.
func NewAnalyzer(g *Grammar) *Analyzer {
	nts := g.Nonterminals()
	ntIdx := make(map[*Symbol]int, len(nts))
	for i, nt := range nts {
		ntIdx[nt] = i
	}

	c := make([][]float64, g.RuleCount())
	for r := 0; r < g.RuleCount(); r++ {
		row := make([]float64, len(nts))
		for _, sym := range g.Entry(r).Rule.RHS {
			if j, ok := ntIdx[sym]; ok {
				row[j]++
			}
		}
		c[r] = row
	}

	a := &Analyzer{g: g, nts: nts, ntIdx: ntIdx, c: c}
	a.Rebuild()
	return a
}

// Rebuild recomputes Q and A from the grammar's current weights.
// Call after SetWeights.
func (an *Analyzer) Rebuild() {
	n := len(an.nts)
	an.q = make([][]float64, n)
	an.a = make([][]float64, n)
	for i := range an.nts {
		an.rebuildRow(i)
	}
}

// rebuildRow recomputes row i of Q and A. A weight change of a rule only
// affects the row of its left-hand nonterminal, which keeps repair loops
// cheap: the sparsity pattern of A never changes across repairs.
func (an *Analyzer) rebuildRow(i int) {
	nt := an.nts[i]
	total := an.g.GroupTotal(nt)
	qRow := make([]float64, an.g.RuleCount())
	aRow := make([]float64, len(an.nts))
	if total > 0 {
		for _, idx := range an.g.GroupIndices(nt) {
			p := float64(an.g.Entry(idx).Weight) / float64(total)
			qRow[idx] = p
			for j, cnt := range an.c[idx] {
				if cnt != 0 {
					aRow[j] += p * cnt
				}
			}
		}
	}
	an.q[i] = qRow
	an.a[i] = aRow
}

// Matrix returns the current expected-production matrix A. The returned
// slices are live; callers must not modify them.
func (an *Analyzer) Matrix() [][]float64 {
	return an.a
}

// Nonterminals returns the nonterminals in matrix row order.
func (an *Analyzer) Nonterminals() []*Symbol {
	return an.nts
}

// SpectralRadius estimates the dominant eigenvalue of A by power
// iteration: repeatedly multiply a positive vector by A, normalize, and
// read the growth ratio once it converges. Starting from the all-ones
// vector keeps a component in the dominant eigenspace of the nonnegative
// matrix.
func (an *Analyzer) SpectralRadius() float64 {
	n := len(an.nts)
	if n == 0 {
		return 0
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = 1
	}
	y := make([]float64, n)

	radius := 0.0
	for iter := 0; iter < powerIterMax; iter++ {
		norm := 0.0
		for i := 0; i < n; i++ {
			s := 0.0
			for j, v := range an.a[i] {
				if v != 0 {
					s += v * x[j]
				}
			}
			y[i] = s
			norm += s
		}
		if norm == 0 {
			return 0
		}
		// growth ratio under L1 norm; x is kept normalized so the
		// ratio is the norm of y itself
		if math.Abs(norm-radius) < powerIterTol {
			return norm
		}
		radius = norm
		for i := 0; i < n; i++ {
			x[i] = y[i] / norm
		}
	}
	return radius
}

// Consistent reports whether the grammar is safe to expand: the spectral
// radius of A must be strictly below 1, which bounds the expected
// derivation size.
func (an *Analyzer) Consistent() bool {
	return an.SpectralRadius() < 1
}

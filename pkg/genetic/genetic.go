// Package genetic implements selection, mutation and crossover over
// grammar weight vectors. Two gene granularities are supported: one
// rule's weight as a gene, or one nonterminal's whole weight group as a
// gene. Every offspring must pass the grammar consistency test before it
// replaces its parent; operators retry with rollback and fall back to
// the unmutated parent when the budget is exhausted.
package genetic

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/kasuganosora/sqlfuzz/pkg/grammar"
)

// ErrEmptyPopulation 上一代为空，无法繁育
var ErrEmptyPopulation = errors.New("种群为空")

// GeneMode selects the unit of inheritance.
type GeneMode int

const (
	// RuleGene treats each rule weight as one gene.
	RuleGene GeneMode = iota
	// NonterminalGene treats each nonterminal's weight group as one gene.
	NonterminalGene
)

func (m GeneMode) String() string {
	if m == NonterminalGene {
		return "nonterminal"
	}
	return "rule"
}

// Config holds breeding parameters. Zero values are filled by Default.
type Config struct {
	Mode           GeneMode
	PopulationSize int
	// MutationProb is the per-individual probability of the final
	// mutation sweep over a freshly assembled generation.
	MutationProb float64
	// Sigma is the stddev of the multiplicative Gaussian noise.
	Sigma float64
	// RuleFraction of weight entries perturbed in rule-gene mode.
	RuleFraction float64
	// NTFraction of nonterminals perturbed in nonterminal-gene mode.
	NTFraction float64
	// CopyFraction of remaining slots filled with unmodified copies.
	CopyFraction float64
}

// DefaultConfig returns the breeding parameters used when the caller
// leaves them unset.
func DefaultConfig() Config {
	return Config{
		Mode:           RuleGene,
		PopulationSize: 20,
		MutationProb:   0.15,
		Sigma:          0.08,
		RuleFraction:   0.05,
		NTFraction:     0.10,
		CopyFraction:   0.10,
	}
}

// Candidate is one member of a generation: a weight vector plus the
// opaque fitness assigned by the external scorer. Special marks a
// rare outcome that must survive selection unchanged.
type Candidate struct {
	Weights []int
	Score   float64
	Special bool
}

// Clone returns a deep copy of the candidate's weights.
func (c *Candidate) Clone() *Candidate {
	w := make([]int, len(c.Weights))
	copy(w, c.Weights)
	return &Candidate{Weights: w, Score: c.Score, Special: c.Special}
}

// Breeder owns the genetic operators. It arms the shared grammar with
// candidate vectors to test consistency and always restores the vector
// it found armed, so the grammar can be shared with the generation
// engine between breeding rounds.
type Breeder struct {
	g   *grammar.Grammar
	an  *grammar.Analyzer
	cfg Config
	rng *rand.Rand
}

// NewBreeder creates a breeder around an existing grammar and analyzer.
// The rng must be dedicated to this breeder; there is no locking.
func NewBreeder(g *grammar.Grammar, an *grammar.Analyzer, cfg Config, rng *rand.Rand) *Breeder {
	if cfg.PopulationSize < 2 {
		cfg.PopulationSize = DefaultConfig().PopulationSize
	}
	if cfg.Sigma <= 0 {
		cfg.Sigma = DefaultConfig().Sigma
	}
	if cfg.RuleFraction <= 0 {
		cfg.RuleFraction = DefaultConfig().RuleFraction
	}
	if cfg.NTFraction <= 0 {
		cfg.NTFraction = DefaultConfig().NTFraction
	}
	if cfg.CopyFraction <= 0 {
		cfg.CopyFraction = DefaultConfig().CopyFraction
	}
	return &Breeder{g: g, an: an, cfg: cfg, rng: rng}
}

// consistent arms the grammar with the vector and runs the analyzer.
// The previously armed vector is always restored.
func (b *Breeder) consistent(weights []int) (bool, error) {
	saved := b.g.Weights()
	if err := b.g.SetWeights(weights, true); err != nil {
		return false, err
	}
	b.an.Rebuild()
	ok := b.an.Consistent()
	if err := b.g.SetWeights(saved, false); err != nil {
		return false, err
	}
	b.an.Rebuild()
	return ok, nil
}

// jitter applies multiplicative Gaussian noise (mean 1.0) to a weight,
// floored at 1.
func (b *Breeder) jitter(w int) int {
	f := 1.0 + b.rng.NormFloat64()*b.cfg.Sigma
	out := int(float64(w)*f + 0.5)
	if out < 1 {
		out = 1
	}
	return out
}

// Mutate produces a consistent mutant of the parent vector. It retries
// up to population-size times, rolling back to the parent between
// attempts; when no consistent mutant is found it returns an exact copy
// of the parent and ok=false.
func (b *Breeder) Mutate(parent []int) (offspring []int, ok bool, err error) {
	if len(parent) != b.g.RuleCount() {
		return nil, false, fmt.Errorf("%w: 期望 %d 实际 %d", grammar.ErrWeightLength, b.g.RuleCount(), len(parent))
	}
	for attempt := 0; attempt < b.cfg.PopulationSize; attempt++ {
		cand := make([]int, len(parent))
		copy(cand, parent)
		if b.cfg.Mode == NonterminalGene {
			b.mutateNonterminals(cand)
		} else {
			b.mutateRules(cand)
		}
		good, cerr := b.consistent(cand)
		if cerr != nil {
			return nil, false, cerr
		}
		if good {
			return cand, true, nil
		}
		// roll back to the parent and retry with fresh noise
	}
	cp := make([]int, len(parent))
	copy(cp, parent)
	return cp, false, nil
}

// mutateRules perturbs a random subset of individual weight entries.
func (b *Breeder) mutateRules(weights []int) {
	n := len(weights)
	count := int(float64(n)*b.cfg.RuleFraction + 0.5)
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		idx := b.rng.Intn(n)
		weights[idx] = b.jitter(weights[idx])
	}
}

// mutateNonterminals regenerates whole weight groups for a random
// subset of nonterminals.
func (b *Breeder) mutateNonterminals(weights []int) {
	nts := b.g.Nonterminals()
	count := int(float64(len(nts))*b.cfg.NTFraction + 0.5)
	if count < 1 {
		count = 1
	}
	for i := 0; i < count; i++ {
		nt := nts[b.rng.Intn(len(nts))]
		for _, idx := range b.g.GroupIndices(nt) {
			weights[idx] = b.jitter(weights[idx])
		}
	}
}

// Crossover combines two distinct parents into a consistent offspring,
// retrying like Mutate. On failure it returns a copy of the first
// parent and ok=false.
func (b *Breeder) Crossover(a, c []int) (offspring []int, ok bool, err error) {
	if len(a) != b.g.RuleCount() || len(c) != b.g.RuleCount() {
		return nil, false, fmt.Errorf("%w: 期望 %d", grammar.ErrWeightLength, b.g.RuleCount())
	}
	for attempt := 0; attempt < b.cfg.PopulationSize; attempt++ {
		cand := make([]int, len(a))
		copy(cand, a)
		if b.cfg.Mode == NonterminalGene {
			b.crossNonterminals(cand, c)
		} else {
			b.crossRules(cand, c)
		}
		good, cerr := b.consistent(cand)
		if cerr != nil {
			return nil, false, cerr
		}
		if good {
			return cand, true, nil
		}
	}
	cp := make([]int, len(a))
	copy(cp, a)
	return cp, false, nil
}

// NextGeneration assembles a fresh population from a scored one.
// Special candidates pass through untouched, the best scorer keeps an
// elite slot, roughly CopyFraction of the remaining slots are plain
// copies and the rest are crossover offspring. Parents are drawn from a
// rank-proportional pool: the candidate at ascending rank i appears i
// times, so better scorers breed more often without starving the rest.
// A final low-probability mutation sweep runs over every non-protected
// member. Offspring scores are reset.
func (b *Breeder) NextGeneration(pop []*Candidate) ([]*Candidate, error) {
	if len(pop) == 0 {
		return nil, ErrEmptyPopulation
	}
	size := b.cfg.PopulationSize
	next := make([]*Candidate, 0, size)
	protected := 0

	for _, c := range pop {
		if c.Special && len(next) < size {
			next = append(next, c.Clone())
			protected++
		}
	}

	ranked := make([]*Candidate, len(pop))
	copy(ranked, pop)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })

	if len(next) < size {
		elite := ranked[len(ranked)-1].Clone()
		next = append(next, elite)
		protected++
	}

	var pool []*Candidate
	for i, c := range ranked {
		for n := 0; n <= i; n++ {
			pool = append(pool, c)
		}
	}

	copies := b.copyQuota(size - len(next))
	for len(next) < size {
		var w []int
		if copies > 0 {
			copies--
			w = pool[b.rng.Intn(len(pool))].Clone().Weights
		} else {
			pa, pb := b.pickParents(pool, len(ranked))
			child, _, err := b.Crossover(pa.Weights, pb.Weights)
			if err != nil {
				return nil, err
			}
			w = child
		}
		next = append(next, &Candidate{Weights: w})
	}

	for i := protected; i < len(next); i++ {
		if b.rng.Float64() >= b.cfg.MutationProb {
			continue
		}
		mutated, _, err := b.Mutate(next[i].Weights)
		if err != nil {
			return nil, err
		}
		next[i].Weights = mutated
	}
	return next, nil
}

// copyQuota computes how many of the remaining slots are filled with
// unmodified copies instead of crossover offspring.
func (b *Breeder) copyQuota(remaining int) int {
	if remaining < 0 {
		return 0
	}
	return int(float64(remaining)*b.cfg.CopyFraction + 0.5)
}

// pickParents draws two parents from the rank-proportional pool.
// Crossover needs two distinct individuals; the second draw is repeated
// until it differs from the first. With a single distinct candidate in
// the pool there is nothing else to draw, so both returns are that one.
func (b *Breeder) pickParents(pool []*Candidate, distinct int) (*Candidate, *Candidate) {
	pa := pool[b.rng.Intn(len(pool))]
	pb := pool[b.rng.Intn(len(pool))]
	for pb == pa && distinct > 1 {
		pb = pool[b.rng.Intn(len(pool))]
	}
	return pa, pb
}

// crossRules copies a random contiguous wrap-around segment of donor
// onto the receiver.
func (b *Breeder) crossRules(recv, donor []int) {
	n := len(recv)
	if n == 0 {
		return
	}
	start := b.rng.Intn(n)
	length := b.rng.Intn(n) + 1
	for i := 0; i < length; i++ {
		idx := (start + i) % n
		recv[idx] = donor[idx]
	}
}

// crossNonterminals copies whole weight groups for a random subset
// (about half) of nonterminals from donor onto the receiver.
func (b *Breeder) crossNonterminals(recv, donor []int) {
	for _, nt := range b.g.Nonterminals() {
		if b.rng.Intn(2) == 0 {
			continue
		}
		for _, idx := range b.g.GroupIndices(nt) {
			recv[idx] = donor[idx]
		}
	}
}

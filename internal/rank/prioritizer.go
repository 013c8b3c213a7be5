// Package rank scores symbols by liquidity heuristics to decide which ones
// are promoted to depth subscriptions under the connection budget.
package rank

import (
	"sort"
	"strings"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Score weights. The score only ranks candidates; it never gates inclusion.
const (
	majorPairWeight  = 100
	anchorWeight     = 50
	settlementWeight = 10
)

// Prioritizer ranks symbols for depth-pool promotion and for the quote
// feed's priority subscription set.
type Prioritizer struct {
	anchors  map[string]bool
	majors   map[string]bool
	suffixes []string
}

// NewPrioritizer creates a Prioritizer from the configured anchor
// currencies, major-pair symbols, and settlement-currency suffixes.
func NewPrioritizer(anchors, majors, suffixes []string) *Prioritizer {
	p := &Prioritizer{
		anchors:  make(map[string]bool, len(anchors)),
		majors:   make(map[string]bool, len(majors)),
		suffixes: suffixes,
	}
	for _, a := range anchors {
		p.anchors[a] = true
	}
	for _, m := range majors {
		p.majors[m] = true
	}
	return p
}

// Score returns the heuristic liquidity score for a symbol: major-pair
// membership, anchor-currency membership, and settlement-currency suffix.
func (p *Prioritizer) Score(symbol string) int {
	score := 0
	if p.majors[symbol] {
		score += majorPairWeight
	}
	for a := range p.anchors {
		if strings.HasPrefix(symbol, a) || strings.HasSuffix(symbol, a) {
			score += anchorWeight
			break
		}
	}
	for _, suf := range p.suffixes {
		if strings.HasSuffix(symbol, suf) {
			score += settlementWeight
			break
		}
	}
	return score
}

// Prioritize returns the top-budget symbols ordered by descending score,
// ties broken lexicographically for determinism. A non-positive budget
// returns the full ranking.
func (p *Prioritizer) Prioritize(symbols []string, budget int) []string {
	ranked := make([]string, len(symbols))
	copy(ranked, symbols)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := p.Score(ranked[i]), p.Score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})
	if budget > 0 && len(ranked) > budget {
		ranked = ranked[:budget]
	}
	return ranked
}

// SymbolImpact reports how many loops a missing symbol blocks.
type SymbolImpact struct {
	Symbol       string
	BlockedLoops int
}

// CoverageReport summarizes how much of the loop set the available symbols
// can serve.
type CoverageReport struct {
	TotalLoops      int
	CoveredLoops    int
	CoveredFraction float64
	// MissingImpact lists absent symbols ordered by the number of loops
	// they block, highest first.
	MissingImpact []SymbolImpact
}

// AnalyzeCoverage reports the fraction of loops fully covered by the
// available symbols and the highest-impact missing symbols, to guide
// future promotion.
func (p *Prioritizer) AnalyzeCoverage(loops []domain.Loop, available []string) CoverageReport {
	have := make(map[string]bool, len(available))
	for _, s := range available {
		have[s] = true
	}

	covered := 0
	blocked := make(map[string]int)
	for _, l := range loops {
		missing := false
		for _, pair := range l.Pairs {
			if !have[pair] {
				blocked[pair]++
				missing = true
			}
		}
		if !missing {
			covered++
		}
	}

	impact := make([]SymbolImpact, 0, len(blocked))
	for sym, n := range blocked {
		impact = append(impact, SymbolImpact{Symbol: sym, BlockedLoops: n})
	}
	sort.Slice(impact, func(i, j int) bool {
		if impact[i].BlockedLoops != impact[j].BlockedLoops {
			return impact[i].BlockedLoops > impact[j].BlockedLoops
		}
		return impact[i].Symbol < impact[j].Symbol
	})

	report := CoverageReport{
		TotalLoops:    len(loops),
		CoveredLoops:  covered,
		MissingImpact: impact,
	}
	if len(loops) > 0 {
		report.CoveredFraction = float64(covered) / float64(len(loops))
	} else {
		report.CoveredFraction = 1.0
	}
	return report
}

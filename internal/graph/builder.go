// Package graph constructs the tradable-pair graph and enumerates the
// triangular and cross-anchor loops the engine evaluates.
package graph

import (
	"log/slog"
	"sort"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Builder enumerates loops over a market snapshot. Loops are rebuilt
// wholesale whenever the market graph is refreshed.
type Builder struct {
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{logger: logger.With(slog.String("component", "loop_builder"))}
}

// BuildGraph returns the undirected adjacency map asset->neighbors over all
// tradable markets.
func (b *Builder) BuildGraph(markets []domain.Market) map[string]map[string]bool {
	adj := make(map[string]map[string]bool)
	link := func(x, y string) {
		if adj[x] == nil {
			adj[x] = make(map[string]bool)
		}
		adj[x][y] = true
	}
	for _, m := range markets {
		if !m.Tradable {
			continue
		}
		link(m.BaseAsset, m.QuoteAsset)
		link(m.QuoteAsset, m.BaseAsset)
	}
	return adj
}

// BuildLoops enumerates every loop over the given anchors:
//
//   - per anchor C, triangular loops [C,A,B,C], deduplicated by the
//     unordered intermediate pair {A,B};
//   - per unordered anchor pair (C1,C2), 2-hop loops [C1,A,C2] and 3-hop
//     loops [C1,A,B,C2], in both anchor directions.
//
// A loop is emitted only when every hop is covered by a tradable market, so
// every returned loop validates against the market set by construction.
func (b *Builder) BuildLoops(markets []domain.Market, anchors []string) []domain.Loop {
	set := domain.NewMarketSet(markets)
	adj := b.BuildGraph(markets)

	var loops []domain.Loop
	for _, anchor := range anchors {
		loops = append(loops, b.triangles(set, adj, anchor)...)
	}
	for i := 0; i < len(anchors); i++ {
		for j := i + 1; j < len(anchors); j++ {
			loops = append(loops, b.crossAnchor(set, adj, anchors[i], anchors[j])...)
			loops = append(loops, b.crossAnchor(set, adj, anchors[j], anchors[i])...)
		}
	}

	b.logger.Info("loop set built",
		slog.Int("markets", len(set)),
		slog.Int("loops", len(loops)),
	)
	return loops
}

// triangles enumerates [C,A,B,C] loops for a single anchor. Intermediates
// are iterated in sorted order with A < B so swapping A and B cannot
// produce a second loop for the same unordered pair.
func (b *Builder) triangles(set domain.MarketSet, adj map[string]map[string]bool, anchor string) []domain.Loop {
	neighbors := sortedNeighbors(adj, anchor)

	var loops []domain.Loop
	for i, a := range neighbors {
		for _, bb := range neighbors[i+1:] {
			pairCA, ok := pairSymbol(set, anchor, a)
			if !ok {
				continue
			}
			pairAB, ok := pairSymbol(set, a, bb)
			if !ok {
				continue
			}
			pairBC, ok := pairSymbol(set, bb, anchor)
			if !ok {
				continue
			}
			loops = append(loops, domain.Loop{
				Path:  []string{anchor, a, bb, anchor},
				Pairs: []string{pairCA, pairAB, pairBC},
			})
		}
	}
	return loops
}

// crossAnchor enumerates 2-hop [c1,A,c2] and 3-hop [c1,A,B,c2] loops in the
// c1->c2 direction. Intermediates never equal either anchor.
func (b *Builder) crossAnchor(set domain.MarketSet, adj map[string]map[string]bool, c1, c2 string) []domain.Loop {
	var loops []domain.Loop

	for _, a := range sortedNeighbors(adj, c1) {
		if a == c1 || a == c2 {
			continue
		}
		pair1, ok := pairSymbol(set, c1, a)
		if !ok {
			continue
		}

		// 2-hop: c1 -> A -> c2.
		if pair2, ok := pairSymbol(set, a, c2); ok {
			loops = append(loops, domain.Loop{
				Path:  []string{c1, a, c2},
				Pairs: []string{pair1, pair2},
			})
		}

		// 3-hop: c1 -> A -> B -> c2.
		for _, bb := range sortedNeighbors(adj, a) {
			if bb == a || bb == c1 || bb == c2 {
				continue
			}
			pairAB, ok := pairSymbol(set, a, bb)
			if !ok {
				continue
			}
			pairB2, ok := pairSymbol(set, bb, c2)
			if !ok {
				continue
			}
			loops = append(loops, domain.Loop{
				Path:  []string{c1, a, bb, c2},
				Pairs: []string{pair1, pairAB, pairB2},
			})
		}
	}
	return loops
}

// FilterValid drops loops that no longer validate against the market set
// (for example after loading a loop file built from an older snapshot).
// Each rejected loop is logged once.
func (b *Builder) FilterValid(loops []domain.Loop, markets []domain.Market) []domain.Loop {
	set := domain.NewMarketSet(markets)
	valid := make([]domain.Loop, 0, len(loops))
	for _, l := range loops {
		if err := l.Validate(set); err != nil {
			b.logger.Warn("rejecting invalid loop",
				slog.String("loop", l.ID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		valid = append(valid, l)
	}
	return valid
}

// pairSymbol resolves which market symbol covers the currency pair (x,y) in
// either orientation. Symbol naming carries the hop direction for the
// profit calculator.
func pairSymbol(set domain.MarketSet, x, y string) (string, bool) {
	if set.Has(x + y) {
		return x + y, true
	}
	if set.Has(y + x) {
		return y + x, true
	}
	return "", false
}

// sortedNeighbors returns the adjacency set of asset in sorted order so
// loop enumeration is deterministic.
func sortedNeighbors(adj map[string]map[string]bool, asset string) []string {
	out := make([]string, 0, len(adj[asset]))
	for n := range adj[asset] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

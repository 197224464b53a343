package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY - triangular paths and monitored cross-venue pairs
// ═══════════════════════════════════════════════════════════════════════════════
//
// Built once at startup from the first market snapshot. Never mutated after,
// so it is read without locking. A path whose legs cannot all be resolved is
// dropped, not retried.
//
// ═══════════════════════════════════════════════════════════════════════════════

// MarketData is the read side of the market snapshot
type MarketData interface {
	Price(symbol string) (types.PriceSnapshot, bool)
	Instruments() []types.Instrument
}

// PairSpec describes one reference/external pair to monitor
type PairSpec struct {
	Reference      string // reference instrument symbol, e.g. "SUI_USDC"
	ExternalSymbol string // e.g. "SUI/USDT"
}

// Registry holds the immutable scan targets
type Registry struct {
	paths []types.Path
	pairs []*types.MonitoredPair
}

// NewRegistry builds paths around the anchor assets and resolves the pair specs
func NewRegistry(market MarketData, anchors []string, specs []PairSpec) *Registry {
	instruments := market.Instruments()
	r := &Registry{
		paths: BuildPaths(CandidateCycles(instruments, anchors), instruments, market),
		pairs: BuildMonitoredPairs(specs, instruments),
	}

	log.Info().
		Int("paths", len(r.paths)).
		Int("pairs", len(r.pairs)).
		Msg("🗂️ Registry built")

	return r
}

// Paths returns the triangular paths in priority order
func (r *Registry) Paths() []types.Path { return r.paths }

// Pairs returns the monitored pairs
func (r *Registry) Pairs() []*types.MonitoredPair { return r.pairs }

// CandidateCycles lists every A -> B -> C -> A cycle that starts at an anchor
// asset and has a listed instrument for each step. Both directions of a cycle
// are returned since they trade at different prices.
func CandidateCycles(instruments []types.Instrument, anchors []string) [][3]string {
	neighbours := make(map[string]map[string]bool)
	link := func(a, b string) {
		if neighbours[a] == nil {
			neighbours[a] = make(map[string]bool)
		}
		neighbours[a][b] = true
	}
	for _, inst := range instruments {
		if inst.Base == "" || inst.Quote == "" || inst.Base == inst.Quote {
			continue
		}
		link(inst.Base, inst.Quote)
		link(inst.Quote, inst.Base)
	}

	var cycles [][3]string
	seen := make(map[[3]string]bool)
	for _, a := range anchors {
		for b := range neighbours[a] {
			for c := range neighbours[b] {
				if c == a || !neighbours[c][a] {
					continue
				}
				cycle := [3]string{a, b, c}
				if !seen[cycle] {
					seen[cycle] = true
					cycles = append(cycles, cycle)
				}
			}
		}
	}

	// map iteration order is random
	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i][:], "/") < strings.Join(cycles[j][:], "/")
	})
	return cycles
}

// BuildPaths resolves each candidate's three legs. Priority is the sum of the
// legs' 24h volumes at build time; paths are returned highest priority first.
func BuildPaths(candidates [][3]string, instruments []types.Instrument, market MarketData) []types.Path {
	paths := make([]types.Path, 0, len(candidates))

	for _, assets := range candidates {
		path := types.Path{Assets: assets, Priority: decimal.Zero}
		complete := true

		for i := 0; i < 3; i++ {
			from, to := assets[i], assets[(i+1)%3]
			inst, ok := findInstrument(instruments, from, to)
			if !ok {
				complete = false
				break
			}
			path.Instruments[i] = inst
			if snap, ok := market.Price(inst.Symbol); ok {
				path.Priority = path.Priority.Add(snap.Volume24h)
			}
		}

		if !complete {
			log.Debug().Strs("assets", assets[:]).Msg("Path has a missing leg, dropped")
			continue
		}
		paths = append(paths, path)
	}

	sort.SliceStable(paths, func(i, j int) bool {
		return paths[i].Priority.GreaterThan(paths[j].Priority)
	})
	return paths
}

// findInstrument returns the instrument trading from against to. A listing
// in the from/to orientation wins over the reversed one.
func findInstrument(instruments []types.Instrument, from, to string) (types.Instrument, bool) {
	var reversed *types.Instrument
	for i := range instruments {
		inst := instruments[i]
		if inst.Base == from && inst.Quote == to {
			return inst, true
		}
		if reversed == nil && inst.Base == to && inst.Quote == from {
			reversed = &instruments[i]
		}
	}
	if reversed != nil {
		return *reversed, true
	}
	return types.Instrument{}, false
}

// BuildMonitoredPairs resolves pair specs against the listed instruments.
// Specs whose reference instrument is not listed are dropped. Conversion is
// required whenever the external quote unit differs from the reference one.
func BuildMonitoredPairs(specs []PairSpec, instruments []types.Instrument) []*types.MonitoredPair {
	bySymbol := make(map[string]types.Instrument, len(instruments))
	for _, inst := range instruments {
		bySymbol[inst.Symbol] = inst
	}

	var pairs []*types.MonitoredPair
	for _, spec := range specs {
		ref, ok := bySymbol[spec.Reference]
		if !ok {
			log.Warn().Str("reference", spec.Reference).Msg("Monitored pair not listed, dropped")
			continue
		}

		// external venues key quotes by upper-case symbol
		extSymbol := strings.ToUpper(strings.TrimSpace(spec.ExternalSymbol))
		extQuote := ""
		if parts := strings.Split(extSymbol, "/"); len(parts) == 2 {
			extQuote = parts[1]
		}

		pairs = append(pairs, &types.MonitoredPair{
			Reference:          ref,
			ExternalSymbol:     extSymbol,
			ConversionRequired: extQuote != "" && extQuote != strings.ToUpper(ref.Quote),
			ConvertFrom:        extQuote,
			ConvertTo:          ref.Quote,
		})
	}
	return pairs
}

// ParsePairSpecs parses "SUI_USDC=SUI/USDT,DEEP_USDC=DEEP/USDT"
func ParsePairSpecs(raw string) ([]PairSpec, error) {
	var specs []PairSpec
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		ref, ext, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(ref) == "" || !strings.Contains(ext, "/") {
			return nil, fmt.Errorf("invalid pair spec %q, want REF_SYMBOL=BASE/QUOTE", item)
		}
		specs = append(specs, PairSpec{
			Reference:      strings.TrimSpace(ref),
			ExternalSymbol: strings.TrimSpace(ext),
		})
	}
	return specs, nil
}

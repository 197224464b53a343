package strategy

import (
	"context"

	"github.com/web3guy0/deeparb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DETECTOR INTERFACE - Plug-in pattern for opportunity detectors
// ═══════════════════════════════════════════════════════════════════════════════
//
// The engine calls Scan once per cycle with the current market snapshot.
// A detector returns every candidate it found; absence of data is never an
// error, the candidate is simply skipped.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	NameTriangular = "triangular"
	NameCrossVenue = "cross-venue"
)

// PriceSource is a read-only view of reference market prices
type PriceSource interface {
	Price(symbol string) (types.PriceSnapshot, bool)
}

// ExternalPriceSource quotes symbols on an external venue
type ExternalPriceSource interface {
	Price(ctx context.Context, symbol string) (types.ExternalPrice, bool)
}

// Detector is implemented by every opportunity detector
type Detector interface {
	// Name returns the detector identifier used by operator controls
	Name() string

	// Enabled returns whether the detector takes part in scans
	Enabled() bool

	// SetEnabled toggles the detector at runtime
	SetEnabled(enabled bool)

	// Scan returns candidates found against the given prices. The error is
	// non-nil only when ctx ends the scan early.
	Scan(ctx context.Context, prices PriceSource) ([]*types.Opportunity, error)
}

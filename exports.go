package tierpay

import "github.com/xraph/tierpay/types"

// Re-export common types so callers don't have to import the types package.

// Entity is re-exported from types package.
type Entity = types.Entity

// BasisPoints is the denominator of every basis-point rate.
const BasisPoints = types.BasisPoints

// Re-export amount helpers
var (
	Zero           = types.Zero
	NewAmount      = types.NewAmount
	ParseAmount    = types.ParseAmount
	ParseUnits     = types.ParseUnits
	MustParseUnits = types.MustParseUnits
	FormatUnits    = types.FormatUnits
)

// Re-export Entity constructor
var NewEntity = types.NewEntity

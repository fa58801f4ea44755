package metadata

import "errors"

// ErrMetadataRecalc wraps failures to recalculate one metadata document.
var ErrMetadataRecalc = errors.New("metadata recalculation failed")

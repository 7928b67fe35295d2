package store

import "sharedlog/internal/logerrors"

// These re-export the store's error taxonomy (internal/logerrors) so
// callers of this package don't need to import logerrors directly for
// the common checks.
var (
	IsOverwrite       = logerrors.IsOverwrite
	IsTrimmed         = logerrors.IsTrimmed
	IsDataCorruption  = logerrors.IsDataCorruption
	IsVersionMismatch = logerrors.IsVersionMismatch
	IsNoChecksum      = logerrors.IsNoChecksum
	IsIO              = logerrors.IsIO
)

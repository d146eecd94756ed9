package wsflush

import "github.com/behrlich/wsflush/internal/constants"

// Re-exported tunables, for callers that want the defaults without
// reaching into internal/constants directly.
const (
	DefaultBufferSize = constants.DefaultBufferSize
	DefaultMaxGather  = constants.DefaultMaxGather
	MinBufferSize     = constants.MinBufferSize
)

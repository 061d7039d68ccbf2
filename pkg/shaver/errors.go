package shaver

// UsageError reports an invalid argument or option passed to Shave. The
// messages are matched verbatim by callers.
type UsageError string

func (e UsageError) Error() string {
	return string(e)
}

const (
	ErrInvalidBuffer   UsageError = "first arg 'buffer' must be a Protobuf buffer object"
	ErrInvalidFilters  UsageError = "option 'filters' must be a shaver.Filters object"
	ErrMissingZoom     UsageError = "option 'zoom' not provided. Please provide a zoom level for this tile."
	ErrInvalidZoom     UsageError = "option 'zoom' must be a positive integer."
	ErrInvalidMaxZoom  UsageError = "option 'maxzoom' must be a positive integer."
	ErrMissingCompress UsageError = "compress option 'type' not provided. Please provide a compression type if using the compress option"
	ErrInvalidCompress UsageError = "compress type must equal 'none' or 'gzip'"
	ErrInvalidLevel    UsageError = "compress option 'level' must be an unsigned integer"
)

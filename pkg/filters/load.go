package filters

import (
	"github.com/flightaware/vtshaver/pkg/stylefilters"
)

// LoadStyle compiles the style document at filename and validates the
// result. When sources is not empty only those source-layers are kept.
func LoadStyle(filename string, sources []string) (*Filters, error) {
	meta, err := stylefilters.CompileFile(filename)
	if err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		meta = meta.Restrict(sources)
	}
	return FromMetadata(meta)
}

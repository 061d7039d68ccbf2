package stylefilters

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// CompileFile reads and compiles the style document at filename. Unlike
// Compile it fails when the file cannot be read or is not JSON.
func CompileFile(filename string) (Metadata, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read style (%s)", filename)
	}
	var style any
	if err := json.Unmarshal(data, &style); err != nil {
		return nil, errors.Wrapf(err, "unable to parse style (%s)", filename)
	}
	return Compile(style), nil
}

package shaver

import (
	"github.com/flightaware/vtshaver/pkg/tileutils"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// LayerInfo describes one layer of a tile.
type LayerInfo struct {
	Name     string `json:"name"`
	Version  uint32 `json:"version"`
	Extent   uint32 `json:"extent"`
	Features int    `json:"features"`
	// Properties lists the attribute keys used by any feature, sorted.
	Properties []string `json:"properties"`
}

// Summarize decodes a tile, gzipped or not, and describes its layers in
// tile order.
func Summarize(tile []byte) ([]LayerInfo, error) {
	data := tile
	if tileutils.IsGzipped(tile) {
		var err error
		if data, err = tileutils.Gunzip(tile); err != nil {
			return nil, errors.Wrap(err, "error decompressing tile")
		}
	}
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "error decoding tile")
	}
	infos := make([]LayerInfo, 0, len(layers))
	for _, l := range layers {
		keys := map[string]struct{}{}
		for _, f := range l.Features {
			for k := range f.Properties {
				keys[k] = struct{}{}
			}
		}
		props := maps.Keys(keys)
		slices.Sort(props)
		infos = append(infos, LayerInfo{
			Name:       l.Name,
			Version:    l.Version,
			Extent:     l.Extent,
			Features:   len(l.Features),
			Properties: props,
		})
	}
	return infos, nil
}

package tileutils

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TileJSON describes a tileset. It is read back from the metadata table of an
// input .mbtiles file and used to write the metadata of the shaved output.
type TileJSON struct {
	Attribution  string        `json:"attribution,omitempty"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Version      string        `json:"version,omitempty"`
	MinZoom      int           `json:"minzoom"`
	MaxZoom      int           `json:"maxzoom"`
	Bounds       []float64     `json:"bounds,omitempty"`
	Center       []float64     `json:"center,omitempty"`
	VectorLayers []VectorLayer `json:"vector_layers"`
}

type VectorLayer struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	Fields      map[string]string `json:"fields"`
	MinZoom     int               `json:"minzoom"`
	MaxZoom     int               `json:"maxzoom"`
}

// TileJSONFromMetadata builds a TileJSON from the (name,value) pairs of an
// .mbtiles metadata table. Missing zooms are -1.
func TileJSONFromMetadata(meta MbTilesMetadata) (*TileJSON, error) {
	tj := TileJSON{
		Attribution: meta["attribution"],
		Name:        meta["name"],
		Description: meta["description"],
		Version:     meta["version"],
		MinZoom:     -1,
		MaxZoom:     -1,
	}
	var err error
	if v, ok := meta["minzoom"]; ok {
		if tj.MinZoom, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return nil, errors.Wrapf(err, "invalid minzoom metadata (%s)", v)
		}
	}
	if v, ok := meta["maxzoom"]; ok {
		if tj.MaxZoom, err = strconv.Atoi(strings.TrimSpace(v)); err != nil {
			return nil, errors.Wrapf(err, "invalid maxzoom metadata (%s)", v)
		}
	}
	if v, ok := meta["bounds"]; ok {
		if tj.Bounds, err = parseFloats(v); err != nil {
			return nil, errors.Wrapf(err, "invalid bounds metadata (%s)", v)
		}
	}
	if v, ok := meta["center"]; ok {
		if tj.Center, err = parseFloats(v); err != nil {
			return nil, errors.Wrapf(err, "invalid center metadata (%s)", v)
		}
	}
	if v, ok := meta["json"]; ok && v != "" {
		var field struct {
			VectorLayers []VectorLayer `json:"vector_layers"`
		}
		if err := json.Unmarshal([]byte(v), &field); err != nil {
			return nil, errors.Wrap(err, "invalid json metadata")
		}
		tj.VectorLayers = field.VectorLayers
	}
	return &tj, nil
}

// BoundingBox returns the tileset bounds, or false when they are missing.
func (tj *TileJSON) BoundingBox() (BoundingBox, bool) {
	if len(tj.Bounds) != 4 {
		return BoundingBox{}, false
	}
	return BoundingBox{
		Left:   tj.Bounds[0],
		Bottom: tj.Bounds[1],
		Right:  tj.Bounds[2],
		Top:    tj.Bounds[3],
	}, true
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func floatToString(input []float64) []string {
	out := make([]string, len(input))
	for i := range input {
		out[i] = strconv.FormatFloat(input[i], 'f', -1, 64)
	}
	return out
}

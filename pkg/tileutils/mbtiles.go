package tileutils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/twpayne/go-mbtiles"
)

type MbTilesMetadata map[string]string

type MbTilesFormat string

const (
	MbTilesFormatPbf  MbTilesFormat = "pbf"
	MbTilesFormatJpg  MbTilesFormat = "jpg"
	MbTilesFormatPng  MbTilesFormat = "png"
	MbTilesFormatWebP MbTilesFormat = "webp"
)

type CreateMetadataOptions struct {
	Filename string
	Version  string
	Format   MbTilesFormat
	// MinZoom and MaxZoom override the source zoom range when set.
	MinZoom *int
	MaxZoom *int
}

// CreateMetadata generates the (name,value) metadata pairs for the shaved
// .mbtiles file. Name falls back to the filename and format to pbf. When fs
// is set, vector_layers only lists the layers and fields that survive
// shaving.
func CreateMetadata(tj *TileJSON, fs *filters.Filters, opts CreateMetadataOptions) MbTilesMetadata {
	format := opts.Format
	if format == "" {
		format = MbTilesFormatPbf
	}
	meta := MbTilesMetadata{
		"name":   tj.Name,
		"format": string(format),
		"type":   "overlay",
	}
	if tj.Name == "" && opts.Filename != "" {
		meta["name"] = opts.Filename
	}
	if tj.Description != "" {
		meta["description"] = tj.Description
	}
	if tj.Attribution != "" {
		meta["attribution"] = tj.Attribution
	}
	if tj.Version != "" {
		meta["version"] = tj.Version
	}
	if opts.Version != "" {
		meta["version"] = opts.Version
	}
	minzoom, maxzoom := tj.MinZoom, tj.MaxZoom
	if opts.MinZoom != nil {
		minzoom = *opts.MinZoom
	}
	if opts.MaxZoom != nil {
		maxzoom = *opts.MaxZoom
	}
	if minzoom != -1 {
		meta["minzoom"] = strconv.Itoa(minzoom)
	}
	if maxzoom != -1 {
		meta["maxzoom"] = strconv.Itoa(maxzoom)
	}
	if tj.Bounds != nil {
		meta["bounds"] = strings.Join(floatToString(tj.Bounds), ",")
	}
	if len(tj.Center) == 2 || len(tj.Center) == 3 {
		center := strings.Join(floatToString(tj.Center[:2]), ",")
		if len(tj.Center) == 3 {
			center += fmt.Sprintf(",%d", int(tj.Center[2]))
		}
		meta["center"] = center
	}

	// the json field is required for vector tilesets and meaningless for rasters
	if format == MbTilesFormatPbf {
		if metaJSONBytes, err := json.Marshal(CreateMetadataJSON(tj, fs)); err == nil {
			meta["json"] = string(metaJSONBytes)
		}
	}
	return meta
}

// CreateMetadataJSON generates the mbtiles json metadata field. Without
// source vector_layers, the layers are taken from fs.
func CreateMetadataJSON(tj *TileJSON, fs *filters.Filters) *mbtiles.MetadataJson {
	var layers []mbtiles.MetadataJsonVectorLayer
	if len(tj.VectorLayers) == 0 && fs != nil {
		layers = layersFromFilters(fs)
	} else {
		layers = shaveVectorLayers(tj.VectorLayers, fs)
	}
	return &mbtiles.MetadataJson{
		VectorLayers: layers,
	}
}

func shaveVectorLayers(in []VectorLayer, fs *filters.Filters) []mbtiles.MetadataJsonVectorLayer {
	layers := make([]mbtiles.MetadataJsonVectorLayer, 0, len(in))
	for _, vl := range in {
		l := vl
		fields := map[string]string{}
		if fs == nil {
			for k, v := range l.Fields {
				fields[k] = v
			}
		} else {
			lf, ok := fs.Layer(l.ID)
			if !ok {
				continue
			}
			for k, v := range l.Fields {
				if lf.Keeps(k) {
					fields[k] = v
				}
			}
		}
		layers = append(layers, mbtiles.MetadataJsonVectorLayer{
			ID:      &l.ID,
			Fields:  fields,
			MinZoom: &l.MinZoom,
			MaxZoom: &l.MaxZoom,
		})
	}
	return layers
}

func layersFromFilters(fs *filters.Filters) []mbtiles.MetadataJsonVectorLayer {
	names := fs.Layers()
	layers := make([]mbtiles.MetadataJsonVectorLayer, 0, len(names))
	for _, name := range names {
		lf, _ := fs.Layer(name)
		id := name
		minzoom := int(math.Floor(lf.MinZoom()))
		maxzoom := int(math.Ceil(lf.MaxZoom()))
		fields := map[string]string{}
		for _, p := range lf.Properties() {
			fields[p] = "String"
		}
		layers = append(layers, mbtiles.MetadataJsonVectorLayer{
			ID:      &id,
			Fields:  fields,
			MinZoom: &minzoom,
			MaxZoom: &maxzoom,
		})
	}
	return layers
}

package tileutils

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// TileCoords is an XYZ tile coordinate.
type TileCoords struct {
	Z int
	X int
	Y int
}

func (tc TileCoords) String() string {
	return fmt.Sprintf("%d/%d/%d", tc.Z, tc.X, tc.Y)
}

// ParseTileCoords parses a z/x/y tile coordinate.
func ParseTileCoords(s string) (TileCoords, error) {
	coords := strings.Split(strings.TrimSpace(s), "/")
	if len(coords) != 3 {
		return TileCoords{}, errors.Errorf("invalid tile, expected 3 coordinates but got %d: %s", len(coords), s)
	}
	var out [3]int
	for i, c := range coords {
		v, err := strconv.Atoi(c)
		if err != nil {
			return TileCoords{}, errors.Wrapf(err, "invalid tile coordinate %q", c)
		}
		if v < 0 {
			return TileCoords{}, errors.Errorf("invalid tile coordinate %q: must not be negative", c)
		}
		out[i] = v
	}
	tc := TileCoords{Z: out[0], X: out[1], Y: out[2]}
	if max := 1 << tc.Z; tc.X >= max || tc.Y >= max {
		return TileCoords{}, errors.Errorf("invalid tile %s: x and y must be below %d at zoom %d", tc, max, tc.Z)
	}
	return tc, nil
}

func lonToX(lon float64, zoom int) int {
	n := math.Pow(2, float64(zoom))
	return int(math.Floor((lon + 180) / 360 * n))
}

func latToY(lat float64, zoom int) int {
	latRad := lat * math.Pi / 180
	n := math.Pow(2, float64(zoom))
	return int(math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n))
}

// BoundingBox is a lat/lon set of coordinates for a bounding box
type BoundingBox struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// ParseBoundingBox parses "left,bottom,right,top", the order used by
// TileJSON and MBTiles metadata.
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, errors.Errorf("invalid bounds, expected 4 values but got %d: %s", len(parts), s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, errors.Wrapf(err, "invalid bounds value %q", p)
		}
		v[i] = f
	}
	bbox := BoundingBox{Left: v[0], Bottom: v[1], Right: v[2], Top: v[3]}
	if bbox.Left > bbox.Right || bbox.Bottom > bbox.Top {
		return BoundingBox{}, errors.Errorf("invalid bounds, expected left,bottom,right,top: %s", s)
	}
	return bbox, nil
}

// TileRange returns the inclusive tile column and row ranges covering the
// bounding box at zoom.
func (bbox BoundingBox) TileRange(zoom int) (xMin, xMax, yMin, yMax int) {
	tileMax := (1 << zoom) - 1
	clamp := func(v int) int {
		return min(max(v, 0), tileMax)
	}
	return clamp(lonToX(bbox.Left, zoom)),
		clamp(lonToX(bbox.Right, zoom)),
		clamp(latToY(bbox.Top, zoom)),
		clamp(latToY(bbox.Bottom, zoom))
}

// Contains reports whether the tile intersects the bounding box.
func (bbox BoundingBox) Contains(tc TileCoords) bool {
	xMin, xMax, yMin, yMax := bbox.TileRange(tc.Z)
	return tc.X >= xMin && tc.X <= xMax && tc.Y >= yMin && tc.Y <= yMax
}

// RoundRobinTiles assigns tiles to workers in round robin fashion
func RoundRobinTiles(input []TileCoords, numWorkers int) [][]TileCoords {
	out := make([][]TileCoords, numWorkers)
	for i, v := range input {
		index := i % numWorkers
		out[index] = append(out[index], v)
	}
	return out
}

// TilesFromFile reads tile coordinates from a file where each line is a
// z/x/y tile coordinate.
func TilesFromFile(filename string) ([]TileCoords, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read file (%s)", filename)
	}
	lines := strings.Split(string(data), "\n")
	tiles := make([]TileCoords, 0, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		tc, err := ParseTileCoords(l)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}
		tiles = append(tiles, tc)
	}
	return tiles, nil
}

package tileutils

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Tile is a tile read from an .mbtiles file, with XYZ coordinates.
type Tile struct {
	TileCoords
	Data []byte
}

// MbTilesReader reads tiles and metadata from an .mbtiles file. Rows are
// stored in TMS order and flipped to XYZ on the way out.
type MbTilesReader struct {
	Filename string
	db       *sql.DB
	readStmt *sql.Stmt
}

// OpenMbTiles opens filename read only.
func OpenMbTiles(filename string) (*MbTilesReader, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, errors.Wrapf(err, "unable to open mbtiles (%s)", filename)
	}
	db, err := sql.Open("sqlite3", "file:"+filename+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open mbtiles (%s)", filename)
	}
	stmt, err := db.Prepare(`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`)
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "unable to read tiles table (%s)", filename)
	}
	return &MbTilesReader{
		Filename: filename,
		db:       db,
		readStmt: stmt,
	}, nil
}

func (r *MbTilesReader) Close() error {
	r.readStmt.Close()
	return r.db.Close()
}

// Metadata returns the (name,value) pairs of the metadata table.
func (r *MbTilesReader) Metadata() (MbTilesMetadata, error) {
	rows, err := r.db.Query(`SELECT name, value FROM metadata`)
	if err != nil {
		return nil, errors.Wrap(err, "error reading metadata")
	}
	defer rows.Close()
	meta := MbTilesMetadata{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, errors.Wrap(err, "error reading metadata")
		}
		meta[name] = value
	}
	return meta, rows.Err()
}

// Count returns the number of tiles stored.
func (r *MbTilesReader) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM tiles`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "error counting tiles")
	}
	return n, nil
}

// ListTiles returns the coordinates of every stored tile, restricted to
// zooms when it is non-empty and to bbox when it is non-nil.
func (r *MbTilesReader) ListTiles(zooms []int, bbox *BoundingBox) ([]TileCoords, error) {
	rows, err := r.db.Query(`SELECT zoom_level, tile_column, tile_row FROM tiles ORDER BY zoom_level, tile_column, tile_row`)
	if err != nil {
		return nil, errors.Wrap(err, "error listing tiles")
	}
	defer rows.Close()
	wanted := map[int]bool{}
	for _, z := range zooms {
		wanted[z] = true
	}
	var tiles []TileCoords
	for rows.Next() {
		var z, x, row int
		if err := rows.Scan(&z, &x, &row); err != nil {
			return nil, errors.Wrap(err, "error listing tiles")
		}
		if len(wanted) > 0 && !wanted[z] {
			continue
		}
		tc := TileCoords{Z: z, X: x, Y: flipY(z, row)}
		if bbox != nil && !bbox.Contains(tc) {
			continue
		}
		tiles = append(tiles, tc)
	}
	return tiles, rows.Err()
}

// ReadTile returns the data of the tile at XYZ coordinates tc, or nil when
// the tile is not stored.
func (r *MbTilesReader) ReadTile(ctx context.Context, tc TileCoords) ([]byte, error) {
	var data []byte
	err := r.readStmt.QueryRowContext(ctx, tc.Z, tc.X, flipY(tc.Z, tc.Y)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading tile %s", tc)
	}
	return data, nil
}

// EachTile calls fn for every stored tile until fn returns an error.
func (r *MbTilesReader) EachTile(ctx context.Context, fn func(Tile) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles`)
	if err != nil {
		return errors.Wrap(err, "error reading tiles")
	}
	defer rows.Close()
	for rows.Next() {
		var t Tile
		var row int
		if err := rows.Scan(&t.Z, &t.X, &row, &t.Data); err != nil {
			return errors.Wrap(err, "error reading tiles")
		}
		t.Y = flipY(t.Z, row)
		if err := fn(t); err != nil {
			return err
		}
	}
	return rows.Err()
}

// flipY converts between TMS rows and XYZ rows; it is its own inverse.
func flipY(z, y int) int {
	return (1 << z) - 1 - y
}

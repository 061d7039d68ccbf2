package tileutils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/twpayne/go-mbtiles"
)

const (
	mbTilesInsertRetries = 5
	mbTilesRetryWait     = 100 * time.Millisecond
)

// TileWriter abstracts where shaved tiles go.
type TileWriter interface {
	// New prepares the writer and returns it with a function that finalizes
	// the output.
	New() (TileWriter, func(), error)
	// Write commits tileData at the XYZ coordinate tc.
	Write(tc TileCoords, tileData []byte) error
}

// TileBulkWriter is implemented by writers that can commit many tiles at once.
type TileBulkWriter interface {
	BulkWrite(data []mbtiles.TileData) error
}

// FileWriter writes tiles under Path as Path/{z}/{x}/{y}.mvt.
type FileWriter struct {
	Path string
}

func (fw *FileWriter) Write(tc TileCoords, tileData []byte) error {
	basePath := path.Join(fw.Path, strconv.Itoa(tc.Z), strconv.Itoa(tc.X))
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return errors.Wrapf(err, "error making directory for output (%s)", basePath)
	}
	filename := path.Join(basePath, fmt.Sprintf("%d.mvt", tc.Y))
	return os.WriteFile(filename, tileData, 0644)
}

func (fw *FileWriter) New() (TileWriter, func(), error) {
	if err := os.MkdirAll(fw.Path, 0755); err != nil {
		return nil, nil, errors.Wrapf(err, "error making output directory (%s)", fw.Path)
	}
	return fw, func() {}, nil
}

// DummyWriter reports the tiles it is given to Out (stdout when nil) and
// writes nothing.
type DummyWriter struct {
	Out io.Writer
	mu  sync.Mutex
}

func (dw *DummyWriter) Write(tc TileCoords, tileData []byte) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	out := dw.Out
	if out == nil {
		out = os.Stdout
	}
	_, err := fmt.Fprintf(out, "%s - %d bytes\n", tc, len(tileData))
	return err
}

func (dw *DummyWriter) New() (TileWriter, func(), error) {
	return dw, func() {}, nil
}

// MbTilesWriter writes tiles to the .mbtiles file Filename, retrying
// inserts that fail while other workers hold the database.
type MbTilesWriter struct {
	Filename string
	Writer   *mbtiles.Writer
}

func (w *MbTilesWriter) Write(tc TileCoords, tileData []byte) error {
	return retry(func() error {
		return w.Writer.InsertTile(tc.Z, tc.X, tc.Y, tileData)
	})
}

func (w *MbTilesWriter) BulkWrite(data []mbtiles.TileData) error {
	return retry(func() error {
		return w.Writer.BulkInsertTile(data)
	})
}

func retry(insert func() error) error {
	var err error
	for i := 0; i < mbTilesInsertRetries; i++ {
		if err = insert(); err == nil {
			return nil
		}
		slog.Warn("database write failed, waiting to retry", "attempt", i, "error", err)
		time.Sleep(mbTilesRetryWait)
	}
	return err
}

func (w *MbTilesWriter) WriteMetadata(name, value string) error {
	return w.Writer.InsertMetadata(name, value)
}

func (w *MbTilesWriter) BulkWriteMetadata(meta MbTilesMetadata) error {
	for name, value := range meta {
		if err := w.WriteMetadata(name, value); err != nil {
			return errors.Wrapf(err, "error writing metadata %q", name)
		}
	}
	return nil
}

func (w *MbTilesWriter) New() (TileWriter, func(), error) {
	// sqlite3 relies on you to create the file first
	if err := os.MkdirAll(path.Dir(w.Filename), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(w.Filename)
	if err != nil {
		return nil, nil, err
	}
	f.Close()
	writer, err := mbtiles.NewWriter(w.Filename)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating writer")
	}
	if err := writer.CreateTiles(); err != nil {
		return nil, nil, errors.Wrap(err, "error creating tiles table")
	}
	if err := writer.CreateMetadata(); err != nil {
		return nil, nil, errors.Wrap(err, "error creating metadata table")
	}
	// the index is rebuilt once all tiles are in
	if err := writer.DeleteTileIndex(); err != nil {
		return nil, nil, errors.Wrap(err, "error deleting tile index")
	}
	if err := writer.SetOptimizations(mbtiles.Optimizations{
		JournalModeMemory: true,
	}); err != nil {
		return nil, nil, errors.Wrap(err, "error setting optimizations")
	}

	w.Writer = writer
	return w,
		func() {
			if err := w.Writer.CreateTileIndex(); err != nil {
				slog.Error("error creating tile index", "file", w.Filename, "error", err)
			}
			w.Writer.Close()
		},
		nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/alexflint/go-arg"
	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/flightaware/vtshaver/pkg/tileutils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

const defaultCacheSize = 64 << 20

type Args struct {
	Input      string `arg:"positional,required" help:"input mbtiles file"`
	Style      string `arg:"-s,--style,required" help:"path to a gl style to use to shave"`
	Output     string `arg:"-o,--output" help:"output file or directory (tiles are only listed when empty)"`
	MbTiles    bool   `arg:"--mbtiles" help:"output mbtiles instead of files (automatically selected if output filename ends in '.mbtiles')"`
	NumWorkers int    `arg:"-w,--workers" help:"number of workers to spawn"`
	MaxZoom    *int   `arg:"--maxzoom" help:"maxzoom of the tileset (default is the maxzoom of the input metadata)"`
	Zoom       string `arg:"--zoom" help:"comma-delimited set of zooms to shave (eg: 2,4,6,8)"`
	Sources    string `arg:"--sources" help:"comma-delimited source layers to keep (default is every source layer the style uses)"`
	Bounds     string `arg:"--bounds" help:"only shave tiles intersecting left,bottom,right,top"`
	TilesFile  string `arg:"-f,--file" help:"only shave the tiles listed in a file where each line is a z/x/y tile coordinate"`
	Version    string `arg:"--tileversion" help:"version of the tileset (string) written to mbtiles metadata"`
	CacheSize  int64  `arg:"--cache" help:"bytes of shaved tiles kept for reuse by identical input tiles (0 disables)"`
	LogLevel   string `arg:"--loglevel" help:"log level: debug, info, warn or error"`
}

func (Args) Description() string {
	return "shave every tile of an mbtiles tileset with a gl style"
}

// newWriters creates a TileWriter and TileBulkWriter based on the input arguments
func newWriters(args Args, tj *tileutils.TileJSON, fs *filters.Filters, zooms []int, out io.Writer) (writer tileutils.TileWriter, bulkWriter tileutils.TileBulkWriter, close func(), err error) {
	if args.Output == "" {
		writer, close, err = (&tileutils.DummyWriter{Out: out}).New()
		return
	}
	if args.MbTiles {
		mbWriter := &tileutils.MbTilesWriter{
			Filename: args.Output,
		}
		bulkWriter = mbWriter
		writer, close, err = mbWriter.New()
		if err != nil {
			return
		}
		meta := tileutils.CreateMetadata(tj, fs, tileutils.CreateMetadataOptions{
			Filename: args.Input,
			Version:  args.Version,
			Format:   tileutils.MbTilesFormatPbf,
			MinZoom:  &zooms[0],
			MaxZoom:  &zooms[len(zooms)-1],
		})
		if err = writeMetadata(mbWriter, meta, close); err != nil {
			return nil, nil, nil, err
		}
		return
	}
	writer, close, err = (&tileutils.FileWriter{Path: args.Output}).New()
	return
}

type metadataWriter interface {
	BulkWriteMetadata(meta tileutils.MbTilesMetadata) error
}

// writeMetadata finalizes the output when the metadata cannot be written.
func writeMetadata(w metadataWriter, meta tileutils.MbTilesMetadata, close func()) error {
	if err := w.BulkWriteMetadata(meta); err != nil {
		close()
		return errors.Wrap(err, "error writing mbtiles metadata")
	}
	return nil
}

func parseZooms(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	strZooms := strings.Split(s, ",")
	zooms := make([]int, 0, len(strZooms))
	for _, z := range strZooms {
		intZoom, err := strconv.Atoi(strings.TrimSpace(z))
		if err != nil || intZoom < 0 {
			return nil, errors.Errorf("invalid zoom %q", z)
		}
		zooms = append(zooms, intZoom)
	}
	return zooms, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

// listTiles returns the input tiles selected by the zoom, bounds and tile
// file arguments.
func listTiles(reader *tileutils.MbTilesReader, args Args) ([]tileutils.TileCoords, error) {
	zooms, err := parseZooms(args.Zoom)
	if err != nil {
		return nil, err
	}
	var bbox *tileutils.BoundingBox
	if args.Bounds != "" {
		b, err := tileutils.ParseBoundingBox(args.Bounds)
		if err != nil {
			return nil, err
		}
		bbox = &b
	}
	tiles, err := reader.ListTiles(zooms, bbox)
	if err != nil {
		return nil, err
	}
	if args.TilesFile == "" {
		return tiles, nil
	}
	listed, err := tileutils.TilesFromFile(args.TilesFile)
	if err != nil {
		return nil, err
	}
	wanted := make(map[tileutils.TileCoords]bool, len(listed))
	for _, tc := range listed {
		wanted[tc] = true
	}
	return slices.DeleteFunc(tiles, func(tc tileutils.TileCoords) bool {
		return !wanted[tc]
	}), nil
}

func run(ctx context.Context, args Args, out io.Writer, logger *slog.Logger) (*stats, error) {
	if strings.HasSuffix(args.Output, ".mbtiles") {
		args.MbTiles = true
	}
	reader, err := tileutils.OpenMbTiles(args.Input)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	meta, err := reader.Metadata()
	if err != nil {
		return nil, err
	}
	tileJSON, err := tileutils.TileJSONFromMetadata(meta)
	if err != nil {
		return nil, err
	}
	fs, err := filters.LoadStyle(args.Style, splitList(args.Sources))
	if err != nil {
		return nil, err
	}
	maxzoom := args.MaxZoom
	if maxzoom == nil && tileJSON.MaxZoom != -1 {
		maxzoom = &tileJSON.MaxZoom
	}

	tiles, err := listTiles(reader, args)
	if err != nil {
		return nil, err
	}
	tileLen := len(tiles)
	fmt.Fprintf(out, "number of tiles: %d\n", tileLen)
	st := &stats{}
	if tileLen == 0 {
		return st, nil
	}
	zooms := make([]int, 0, tileLen)
	for _, tc := range tiles {
		zooms = append(zooms, tc.Z)
	}
	slices.Sort(zooms)

	writer, bulkWriter, done, err := newWriters(args, tileJSON, fs, zooms, out)
	if err != nil {
		return nil, err
	}
	cache, err := newTileCache(args.CacheSize)
	if err != nil {
		done()
		return nil, err
	}
	if cache != nil {
		defer cache.Close()
	}

	numWorkers := max(min(args.NumWorkers, tileLen), 1)
	prog := newProgress(tileLen)
	var wg sync.WaitGroup
	// round robin the tiles so workers are hitting similar geospatial entries and zoom at the same time
	rrTiles := tileutils.RoundRobinTiles(tiles, numWorkers)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go tileWorker(ctx, WorkerParams{
			Num:        i,
			Wg:         &wg,
			TileList:   rrTiles[i],
			Reader:     reader,
			Filters:    fs,
			MaxZoom:    maxzoom,
			GzipOutput: args.MbTiles,
			Cache:      cache,
			Writer:     writer,
			BulkWriter: bulkWriter,
			Progress:   prog,
			Stats:      st,
			Logger:     logger.With("worker", i),
		})
	}
	stop := make(chan struct{})
	go progressReporter(out, prog, stop)

	wg.Wait()
	done()
	close(stop)
	fmt.Fprintf(out, "written: %d, empty: %d, reused: %d, failed: %d\n",
		st.written.Load(), st.empty.Load(), st.reused.Load(), st.failed.Load())
	return st, ctx.Err()
}

func main() {
	args := Args{
		NumWorkers: runtime.NumCPU(),
		CacheSize:  defaultCacheSize,
	}
	p := arg.MustParse(&args)
	logger := newLogger(args.LogLevel, os.Stderr)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if _, err := run(ctx, args, os.Stdout, logger); err != nil {
		p.WriteUsage(os.Stderr)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

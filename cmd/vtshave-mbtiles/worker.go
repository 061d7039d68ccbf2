package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/flightaware/vtshaver/pkg/shaver"
	"github.com/flightaware/vtshaver/pkg/tileutils"
	"github.com/pkg/errors"
	"github.com/twpayne/go-mbtiles"
)

const (
	progressUpdateRate = time.Duration(15) * time.Second
	slowTileThreshold  = time.Duration(5) * time.Second
	mbTilesBatchSize   = 10
)

type stats struct {
	written atomic.Int64
	empty   atomic.Int64
	reused  atomic.Int64
	failed  atomic.Int64
}

// progress checks how many tiles each worker has completed
type progress struct {
	mu        sync.Mutex
	total     int
	perWorker map[int]int
}

func newProgress(total int) *progress {
	return &progress{total: total, perWorker: map[int]int{}}
}

func (p *progress) done(worker int) {
	p.mu.Lock()
	p.perWorker[worker]++
	p.mu.Unlock()
}

func (p *progress) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counter := 0
	for _, v := range p.perWorker {
		counter += v
	}
	return counter
}

func progressReporter(out io.Writer, p *progress, stop <-chan struct{}) {
	ticker := time.NewTicker(progressUpdateRate)
	defer ticker.Stop()
	start := time.Now()
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			counter := p.count()
			progress := float64(counter) / float64(p.total) * 100.0
			elapsed := time.Duration(int(t.Sub(start).Seconds())) * time.Second
			var remaining time.Duration
			if progress > 0 {
				totalTime := time.Duration(int(elapsed.Seconds()/(progress/100.0))) * time.Second
				remaining = totalTime - elapsed
			}
			fmt.Fprintf(out, "progress: %.2f%% (%s elapsed, %s remaining)\n", progress, elapsed, remaining)
		}
	}
}

// newTileCache returns a cache of shaved tiles holding up to size bytes, or
// nil when size is not positive.
func newTileCache(size int64) (*ristretto.Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e6,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error creating tile cache")
	}
	return cache, nil
}

// cacheKey identifies an input tile by content. The shaved result only
// depends on the bytes and the zoom, since the filters and maxzoom are fixed
// for a run.
func cacheKey(z int, data []byte) string {
	return fmt.Sprintf("%d:%d:%016x", z, len(data), xxhash.Sum64(data))
}

type WorkerParams struct {
	Num        int                      // worker number
	Wg         *sync.WaitGroup          // waitgroup to signal when completed
	TileList   []tileutils.TileCoords   // coords that this worker should process
	Reader     *tileutils.MbTilesReader // input tileset
	Filters    *filters.Filters         // validated filters shared by every worker
	MaxZoom    *int                     // maxzoom of the tileset, for overzoomed tiles
	GzipOutput bool                     // true if output should be gzipped even when the input is not
	Cache      *ristretto.Cache         // shaved tiles by input content, may be nil
	Writer     tileutils.TileWriter     // writer to use for output
	BulkWriter tileutils.TileBulkWriter // bulk writer if available
	Progress   *progress                // shared progress counters
	Stats      *stats                   // shared result counters
	Logger     *slog.Logger             // logger for per-tile failures
}

// shaveTile reads and shaves one tile. reused is true when the result came
// from the cache.
func shaveTile(ctx context.Context, params WorkerParams, tc tileutils.TileCoords) (shaved []byte, reused bool, err error) {
	data, err := params.Reader.ReadTile(ctx, tc)
	if err != nil || data == nil {
		return nil, false, err
	}
	key := cacheKey(tc.Z, data)
	if params.Cache != nil {
		if v, ok := params.Cache.Get(key); ok {
			return v.([]byte), true, nil
		}
	}
	opts := shaver.Options{
		Filters: params.Filters,
		Zoom:    shaver.Int(tc.Z),
		MaxZoom: params.MaxZoom,
	}
	if params.GzipOutput || tileutils.IsGzipped(data) {
		opts.Compress = &shaver.Compress{Type: shaver.CompressGzip}
	}
	if shaved, err = shaver.Shave(data, opts); err != nil {
		return nil, false, err
	}
	if params.Cache != nil {
		params.Cache.Set(key, shaved, int64(len(shaved))+1)
	}
	return shaved, false, nil
}

func tileWorker(ctx context.Context, params WorkerParams) {
	defer params.Wg.Done()

	batch := make([]mbtiles.TileData, 0, mbTilesBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := params.BulkWriter.BulkWrite(batch); err != nil {
			params.Logger.Error("error writing tiles", "count", len(batch), "error", err)
			params.Stats.failed.Add(int64(len(batch)))
		} else {
			params.Stats.written.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}
	defer flush()

	for _, tc := range params.TileList {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		shaved, reused, err := shaveTile(ctx, params, tc)
		params.Progress.done(params.Num)
		if err != nil {
			params.Logger.Error("error shaving tile", "tile", tc.String(), "error", err)
			params.Stats.failed.Add(1)
			continue
		}
		if reused {
			params.Stats.reused.Add(1)
		}
		if elapsed := time.Since(start); elapsed > slowTileThreshold {
			params.Logger.Warn("slow tile", "tile", tc.String(), "elapsed", elapsed)
		}
		if len(shaved) == 0 {
			params.Stats.empty.Add(1)
			continue
		}

		if params.BulkWriter != nil {
			batch = append(batch, mbtiles.TileData{
				Z:    tc.Z,
				X:    tc.X,
				Y:    tc.Y,
				Data: shaved,
			})
			if len(batch) == mbTilesBatchSize {
				flush()
			}
			continue
		}
		if err := params.Writer.Write(tc, shaved); err != nil {
			params.Logger.Error("error writing tile", "tile", tc.String(), "error", err)
			params.Stats.failed.Add(1)
			continue
		}
		params.Stats.written.Add(1)
	}
}

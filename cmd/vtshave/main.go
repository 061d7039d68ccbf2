package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/flightaware/vtshaver/pkg/filters"
	"github.com/flightaware/vtshaver/pkg/shaver"
	"github.com/flightaware/vtshaver/pkg/tileutils"
	"github.com/pkg/errors"
)

type Args struct {
	Tile    string `arg:"--tile" help:"path to the input vector tile"`
	Style   string `arg:"--style" help:"path to a gl style to use to shave"`
	Zoom    *int   `arg:"--zoom" help:"the zoom level of the tile"`
	MaxZoom *int   `arg:"--maxzoom" help:"the maxzoom of the tileset the tile belongs to"`
	Out     string `arg:"--out" help:"path to save the shaved tile to"`
}

func (Args) Description() string {
	return "shave a vector tile with a gl style and print the layers and feature counts before and after shaving"
}

func (Args) Epilogue() string {
	return "example: vtshave --tile tile.mvt --zoom 0 --maxzoom 16 --style style.json"
}

type summary struct {
	Layers []shaver.LayerInfo `json:"layers"`
}

func printSummary(out io.Writer, title string, tile []byte) error {
	layers, err := shaver.Summarize(tile)
	if err != nil {
		return err
	}
	jsonBytes, err := json.MarshalIndent(summary{Layers: layers}, "", " ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s:\n%s\n", title, jsonBytes)
	return nil
}

func run(args Args, out io.Writer) error {
	if args.Tile == "" {
		return errors.New("please provide the path to a tile.mvt")
	}
	if args.Style == "" {
		return errors.New("must supply path to style.json")
	}
	if args.Zoom == nil {
		return errors.New("please provide the zoom of the tile being shaved")
	}
	tile, err := os.ReadFile(args.Tile)
	if err != nil {
		return errors.Wrap(err, "please provide the path to a tile.mvt")
	}
	fs, err := filters.LoadStyle(args.Style, nil)
	if err != nil {
		return err
	}

	opts := shaver.Options{
		Filters: fs,
		Zoom:    args.Zoom,
		MaxZoom: args.MaxZoom,
	}
	if tileutils.IsGzipped(tile) {
		opts.Compress = &shaver.Compress{Type: shaver.CompressGzip}
	}
	shaved, err := shaver.Shave(tile, opts)
	if err != nil {
		return err
	}

	if err := printSummary(out, "Before", tile); err != nil {
		return err
	}
	if err := printSummary(out, "After", shaved); err != nil {
		return err
	}
	if args.Out != "" {
		if err := os.WriteFile(args.Out, shaved, 0644); err != nil {
			return errors.Wrapf(err, "unable to write shaved tile (%s)", args.Out)
		}
		fmt.Fprintf(out, "Wrote shaved tile to %s\n", args.Out)
	}
	return nil
}

func main() {
	var args Args
	p := arg.MustParse(&args)
	if err := run(args, os.Stdout); err != nil {
		p.WriteUsage(os.Stderr)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

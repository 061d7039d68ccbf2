package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexflint/go-arg"
	"github.com/flightaware/vtshaver/pkg/stylefilters"
	"github.com/pkg/errors"
)

type Args struct {
	Style   string `arg:"--style" help:"path to a gl style to parse"`
	Sources string `arg:"--sources" help:"comma-delimited source layers to display in the output (default is all)"`
	Pretty  bool   `arg:"--pretty" help:"indent the JSON output"`
}

func (Args) Description() string {
	return "output the filter metadata of each source layer of a gl style, to be used for shaving"
}

func (Args) Epilogue() string {
	return "example: vtshaver-filters --style style.json > meta.json"
}

func run(args Args, out io.Writer) error {
	if args.Style == "" {
		return errors.New("must supply path to style.json")
	}
	if _, err := os.Stat(args.Style); err != nil {
		return errors.Wrap(err, "must supply path to style.json")
	}
	meta, err := stylefilters.CompileFile(args.Style)
	if err != nil {
		return err
	}
	if args.Sources != "" {
		meta = meta.Restrict(strings.Split(args.Sources, ","))
	}
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if args.Pretty {
		enc.SetIndent("", "    ")
	}
	return enc.Encode(meta)
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

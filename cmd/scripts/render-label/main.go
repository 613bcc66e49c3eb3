package main

import (
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/skretail/console/pkg/dataset"
	"github.com/skretail/console/pkg/labels"
)

func main() {
	log := logger.New()

	var opts struct {
		Output    string `short:"o" long:"output" default:"label.pdf" description:"A path to write the label PDF"`
		PNGOutput string `short:"p" long:"png-output" description:"A path to also write the raster as PNG"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/render-label <path/to/record.json>")
		os.Exit(1)
	}

	b, err := os.ReadFile(args[0])
	if err != nil {
		log.Err(err).Fatal("file read error")
	}
	recs, err := dataset.Decode(b)
	if err != nil {
		log.Err(err).Fatal("record decode error")
	}
	if len(recs) == 0 {
		log.Fatal("no record in file")
	}

	tmpl := labels.Sanitize(labels.Layout(recs[0], time.Now()))
	img, err := labels.Rasterize(tmpl)
	if err != nil {
		log.Err(err).Fatal("rasterize error")
	}

	if opts.PNGOutput != "" {
		f, err := os.Create(opts.PNGOutput)
		if err != nil {
			log.Err(err).Fatal("png create error")
		}
		if err := png.Encode(f, img); err != nil {
			log.Err(err).Fatal("png encode error")
		}
		f.Close()
	}

	doc, err := labels.NewDocument(img)
	if err != nil {
		log.Err(err).Fatal("pdf error")
	}
	if err := os.WriteFile(opts.Output, doc.Bytes, 0o644); err != nil {
		log.Err(err).Fatal("pdf write error")
	}

	fmt.Printf("Layout: %s\nRows: %d\nPages: %d\nWrote: %s\n", tmpl.Variant, len(tmpl.Rows), doc.PageCount, opts.Output)
}

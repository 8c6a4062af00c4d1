// Command labstats inspects a Tiny ImageNet tree through the datasets
// package: it reports per-split index sizes, optionally runs a cleaning pass
// over the files, and plots per-channel Lab histograms of a sampled split.
// The a/b histograms show the color prior of the data - the distribution a
// colorization model has to learn.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Noofbiz/tinyLab/datasets"

	"github.com/gomlx/gopjrt/dtypes"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	rootFlag   = flag.String("root", "", "dataset root directory (required)")
	splitFlag  = flag.String("split", "train", "split to sample for histograms: train, val or test")
	cleanFlag  = flag.String("clean", "assume", "cleaning procedure: assume, skip or purge")
	sizeFlag   = flag.Int("size", datasets.ImageSizeActual, "output image size")
	limitFlag  = flag.Int("limit", -1, "cap on the number of visible samples (negative for none)")
	sampleFlag = flag.Int("sample", 500, "number of images to sample for the histograms")
	histFlag   = flag.String("hist-out", "", "directory to write L/a/b histogram PNGs to (empty disables)")
)

func main() {
	flag.Parse()
	if *rootFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := []datasets.Option{
		datasets.WithSplit(datasets.Split(*splitFlag)),
		datasets.WithClean(datasets.CleanMode(*cleanFlag)),
		datasets.WithImageSize(*sizeFlag),
		datasets.WithDType(dtypes.Float64),
		datasets.WithProgress(true),
	}
	if *limitFlag >= 0 {
		opts = append(opts, datasets.WithLimit(*limitFlag))
	}
	ds, err := datasets.NewTinyImageNet(*rootFlag, opts...)
	if err != nil {
		log.Fatalf("failed to open dataset: %v", err)
	}

	fmt.Printf("Dataset root: %s\n", ds.Root())
	for _, split := range []datasets.Split{datasets.Train, datasets.Val, datasets.Test} {
		fmt.Printf("  %-5s %7d images\n", split, len(ds.Index(split)))
	}
	fmt.Printf("Active split %s: %d addressable samples\n", ds.ActiveSplit(), ds.Len())

	if *histFlag == "" {
		return
	}
	if err := writeHistograms(ds, *sampleFlag, *histFlag); err != nil {
		log.Fatalf("failed to write histograms: %v", err)
	}
}

// writeHistograms samples up to sample images from the active split and
// writes one histogram PNG per Lab channel into outDir.
func writeHistograms(ds *datasets.TinyImageNet, sample int, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}
	n := ds.Len()
	if sample < n {
		n = sample
	}
	// Subsample pixels so the value sets stay manageable on the full dataset.
	const pixelStride = 7
	var channels [3]plotter.Values
	for i := 0; i < n; i++ {
		tensor, _, err := ds.Get(i)
		if err != nil {
			return err
		}
		plane := tensor.Shape().Dimensions[1] * tensor.Shape().Dimensions[2]
		tensor.ConstFlatData(func(flatAny any) {
			flat := flatAny.([]float64)
			for c := 0; c < 3; c++ {
				for p := c * plane; p < (c+1)*plane; p += pixelStride {
					channels[c] = append(channels[c], flat[p])
				}
			}
		})
	}

	names := [3]string{"L", "a", "b"}
	for c, vals := range channels {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s channel, %s split (%d images)", names[c], ds.ActiveSplit(), n)
		p.X.Label.Text = names[c]
		p.Y.Label.Text = "density"
		h, err := plotter.NewHist(vals, 64)
		if err != nil {
			return err
		}
		h.Normalize(1)
		p.Add(h)
		out := filepath.Join(outDir, fmt.Sprintf("lab-hist-%s.png", names[c]))
		if err := p.Save(6*vg.Inch, 4*vg.Inch, out); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", out)
	}
	return nil
}

package datasets

import (
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
)

// runClean applies the configured cleaning procedure to the freshly built
// indices. It always covers all three splits, not just the active one.
func (ds *TinyImageNet) runClean(mode CleanMode) error {
	switch mode {
	case CleanAssume:
		return nil
	case CleanSkip:
		return ds.filterNonRGB(false)
	case CleanPurge:
		return ds.filterNonRGB(true)
	}
	return fmt.Errorf("invalid cleaning procedure %q", mode)
}

// filterNonRGB decodes every indexed file and rebuilds each split's index
// wholesale with only the entries passing the RGB predicate, in their
// original relative order. With purge set, rejected files are also removed
// from disk.
//
// A decode failure aborts the pass: a corrupt file in the index is a data
// problem, not something to skip silently. A failed removal likewise aborts,
// leaving any splits already processed with their rebuilt index.
func (ds *TinyImageNet) filterNonRGB(purge bool) error {
	var pBar *progressbar.ProgressBar
	if ds.progress {
		total := 0
		for _, split := range splits {
			total += len(ds.indices[split])
		}
		pBar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Cleaning"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}
	for _, split := range splits {
		index := ds.indices[split]
		rgbOnly := make([]string, 0, len(index))
		for _, path := range index {
			if pBar != nil {
				_ = pBar.Add(1)
			}
			img, err := ds.decoder.Decode(path)
			if err != nil {
				return err
			}
			if isRGB(img) {
				rgbOnly = append(rgbOnly, path)
				continue
			}
			if purge {
				log.Printf("Removing %s: not an RGB image", path)
				if err := os.Remove(path); err != nil {
					return fmt.Errorf("failed to purge %s: %w", path, err)
				}
			}
		}
		ds.indices[split] = rgbOnly
	}
	if pBar != nil {
		_ = pBar.Close()
	}
	return nil
}

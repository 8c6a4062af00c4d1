package datasets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Split names one of the three fixed dataset partitions. The value doubles
// as the subdirectory name under the dataset root.
type Split string

const (
	Train Split = "train"
	Val   Split = "val"
	Test  Split = "test"
)

// splits is the fixed order indices are built and cleaned in.
var splits = [3]Split{Train, Val, Test}

// CleanMode selects how much the file indices are trusted at construction.
type CleanMode string

const (
	// CleanAssume trusts every indexed file to be a valid RGB image.
	CleanAssume CleanMode = "assume"
	// CleanSkip decodes every indexed file once and drops non-RGB entries
	// from the index.
	CleanSkip CleanMode = "skip"
	// CleanPurge is CleanSkip plus permanent deletion of the rejected files.
	CleanPurge CleanMode = "purge"
)

// ImageSizeActual is the spatial resolution every Tiny ImageNet image has on
// disk. Output sizes below it are rejected.
const ImageSizeActual = 64

const imagesSubDir = "images"

// TinyImageNet indexes a Tiny ImageNet directory tree and serves its images
// as channel-first Lab tensors. Indices for all three splits are built once
// at construction and optionally cleaned; after that the handle only reads.
//
// The active split, output size and limit remain settable and take effect on
// the next access. The handle is not safe for concurrent mutation while
// reading; only the epoch cursor used by Yield is guarded.
type TinyImageNet struct {
	root      string
	split     Split
	imageSize int
	dtype     dtypes.DType
	limit     int // negative means no cap
	clean     CleanMode
	progress  bool

	decoder   Decoder
	resizer   Resizer
	converter Converter

	// One ordered path index per split. Entries are only ever removed by
	// the cleaning pass, which replaces a split's index wholesale.
	indices map[Split][]string

	// mu guards the epoch cursor used by Yield/Reset.
	mu   sync.Mutex
	next int
}

var (
	_ Indexed       = (*TinyImageNet)(nil)
	_ train.Dataset = (*TinyImageNet)(nil)
)

// Option configures a TinyImageNet at construction time. Options validate
// immediately and NewTinyImageNet fails on the first invalid one.
type Option func(*TinyImageNet) error

// WithSplit selects the active split. Default is Train.
func WithSplit(split Split) Option {
	return func(ds *TinyImageNet) error { return ds.SetSplit(split) }
}

// WithImageSize sets the output resolution. It must be at least
// ImageSizeActual; images are rescaled only when it differs. Default is
// ImageSizeActual.
func WithImageSize(size int) Option {
	return func(ds *TinyImageNet) error { return ds.SetImageSize(size) }
}

// WithDType sets the element type of the produced tensors. Supported are
// Float32 (the default), Float64, Float16 and BFloat16.
func WithDType(dtype dtypes.DType) Option {
	return func(ds *TinyImageNet) error {
		switch dtype {
		case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
			ds.dtype = dtype
			return nil
		}
		return fmt.Errorf("unsupported image dtype %s", dtype)
	}
}

// WithLimit caps the number of addressable samples in the active split. The
// underlying index is not touched, only the visible length.
func WithLimit(limit int) Option {
	return func(ds *TinyImageNet) error {
		if limit < 0 {
			return fmt.Errorf("limit must be non-negative, got %d", limit)
		}
		ds.limit = limit
		return nil
	}
}

// WithClean selects the cleaning procedure run once right after the indices
// are built. Default is CleanAssume.
func WithClean(mode CleanMode) Option {
	return func(ds *TinyImageNet) error {
		switch mode {
		case CleanAssume, CleanSkip, CleanPurge:
			ds.clean = mode
			return nil
		}
		return fmt.Errorf("invalid cleaning procedure %q", mode)
	}
}

// WithProgress shows a progress bar while the cleaning pass decodes the
// indexed files. Useful on the full dataset, which holds 120k images.
func WithProgress(show bool) Option {
	return func(ds *TinyImageNet) error {
		ds.progress = show
		return nil
	}
}

// WithDecoder replaces the image decoder. Intended for tests.
func WithDecoder(d Decoder) Option {
	return func(ds *TinyImageNet) error {
		ds.decoder = d
		return nil
	}
}

// WithResizer replaces the resize collaborator. Intended for tests.
func WithResizer(r Resizer) Option {
	return func(ds *TinyImageNet) error {
		ds.resizer = r
		return nil
	}
}

// WithConverter replaces the color-conversion collaborator. Intended for tests.
func WithConverter(c Converter) Option {
	return func(ds *TinyImageNet) error {
		ds.converter = c
		return nil
	}
}

// NewTinyImageNet creates a dataset rooted at the given directory, builds the
// file indices for all three splits and applies the configured cleaning
// procedure. Configuration errors (bad root, bad split, undersized output,
// unknown clean mode) are returned before any index is built.
func NewTinyImageNet(root string, opts ...Option) (*TinyImageNet, error) {
	ds := &TinyImageNet{
		split:     Train,
		imageSize: ImageSizeActual,
		dtype:     dtypes.Float32,
		limit:     -1,
		clean:     CleanAssume,
		decoder:   fileDecoder{},
		resizer:   linearResizer{},
		converter: labConverter{},
	}
	if err := ds.setRoot(root); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(ds); err != nil {
			return nil, err
		}
	}
	if err := ds.buildIndices(); err != nil {
		return nil, err
	}
	if err := ds.runClean(ds.clean); err != nil {
		return nil, err
	}
	return ds, nil
}

func (ds *TinyImageNet) setRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("not a directory: %q", root)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", root, err)
	}
	ds.root = abs
	return nil
}

// Root returns the absolute dataset root directory.
func (ds *TinyImageNet) Root() string { return ds.root }

// ActiveSplit returns the split addressed by Len, Get, Slice and Yield.
func (ds *TinyImageNet) ActiveSplit() Split { return ds.split }

// ImageSize returns the configured output resolution.
func (ds *TinyImageNet) ImageSize() int { return ds.imageSize }

// SetSplit switches the active split. Takes effect on the next access.
func (ds *TinyImageNet) SetSplit(split Split) error {
	switch split {
	case Train, Val, Test:
		ds.split = split
		return nil
	}
	return fmt.Errorf("split must be either of %s, %s, %s", Train, Val, Test)
}

// SetImageSize changes the output resolution. Takes effect on the next access.
func (ds *TinyImageNet) SetImageSize(size int) error {
	if size < ImageSizeActual {
		return fmt.Errorf("image size must be at least %d, got %d", ImageSizeActual, size)
	}
	ds.imageSize = size
	return nil
}

// SetLimit caps the visible length of the active split. A negative value
// removes the cap. Takes effect on the next access.
func (ds *TinyImageNet) SetLimit(limit int) {
	ds.limit = limit
}

// buildIndices builds the ordered path index of every split.
func (ds *TinyImageNet) buildIndices() error {
	ds.indices = make(map[Split][]string, len(splits))
	for _, split := range splits {
		index, err := ds.buildIndex(split)
		if err != nil {
			return err
		}
		ds.indices[split] = index
	}
	return nil
}

// buildIndex walks one split's directory convention: train keeps its images
// in per-class subdirectories, concatenated in lexicographic class order;
// val and test keep a single flat images directory. Files within an images
// directory are numeric-suffix sorted.
func (ds *TinyImageNet) buildIndex(split Split) ([]string, error) {
	splitDir := filepath.Join(ds.root, string(split))
	if split != Train {
		return listDirNum(filepath.Join(splitDir, imagesSubDir))
	}
	classes, err := listDir(splitDir)
	if err != nil {
		return nil, err
	}
	var index []string
	for _, classDir := range classes {
		files, err := listDirNum(filepath.Join(classDir, imagesSubDir))
		if err != nil {
			return nil, err
		}
		index = append(index, files...)
	}
	return index, nil
}

// Index returns a copy of a split's file index, ignoring any configured
// limit.
func (ds *TinyImageNet) Index(split Split) []string {
	return slices.Clone(ds.indices[split])
}

// Len returns the number of addressable samples in the active split, bounded
// by the configured limit when one is set.
func (ds *TinyImageNet) Len() int {
	l := len(ds.indices[ds.split])
	if ds.limit >= 0 && ds.limit < l {
		return ds.limit
	}
	return l
}

// Get decodes and preprocesses the sample at position i of the active split:
// decode, assert 64x64 RGB, rescale if a larger output size is configured,
// convert to Lab and return the channel-first tensor with the source path.
//
// It panics (via exceptions.Panicf) when the file on disk is not a 64x64 RGB
// image: retrieval is only attempted on items presumed clean, so a violation
// means the cleaning contract was broken or the files changed afterwards.
// The size check is always against ImageSizeActual, never the output size.
func (ds *TinyImageNet) Get(i int) (*tensors.Tensor, string, error) {
	if i < 0 || i >= ds.Len() {
		return nil, "", fmt.Errorf("index %d out of range [0, %d)", i, ds.Len())
	}
	path := ds.indices[ds.split][i]
	img, err := ds.decoder.Decode(path)
	if err != nil {
		return nil, "", err
	}
	bounds := img.Bounds()
	if !isRGB(img) || bounds.Dx() != ImageSizeActual || bounds.Dy() != ImageSizeActual {
		exceptions.Panicf(
			"datasets: %s is not a %dx%d RGB image (%d channels, %dx%d) - was the dataset cleaned?",
			path, ImageSizeActual, ImageSizeActual, channelCount(img), bounds.Dx(), bounds.Dy())
	}
	if ds.imageSize != ImageSizeActual {
		img = ds.resizer.Resize(img, ds.imageSize)
	}
	return ds.converter.ToLab(img, ds.dtype), path, nil
}

// Slice returns the samples of the range [start, stop) with the given step,
// resolved against Len the way Python resolves slice indices: negative
// positions count from the end, out-of-range bounds are clamped, a negative
// step walks backwards. Positions beyond a configured limit stay unreachable.
func (ds *TinyImageNet) Slice(start, stop, step int) ([]Example, error) {
	positions, err := resolveSlice(start, stop, step, ds.Len())
	if err != nil {
		return nil, err
	}
	examples := make([]Example, 0, len(positions))
	for _, i := range positions {
		img, path, err := ds.Get(i)
		if err != nil {
			return nil, err
		}
		examples = append(examples, Example{Image: img, Path: path})
	}
	return examples, nil
}

// resolveSlice clamps (start, stop, step) against length and expands the
// resulting range into explicit positions, following Python slice semantics.
func resolveSlice(start, stop, step, length int) ([]int, error) {
	if step == 0 {
		return nil, fmt.Errorf("slice step cannot be zero")
	}
	lower, upper := 0, length
	if step < 0 {
		lower, upper = -1, length-1
	}
	if start < 0 {
		start += length
		if start < lower {
			start = lower
		}
	} else if start > upper {
		start = upper
	}
	if stop < 0 {
		stop += length
		if stop < lower {
			stop = lower
		}
	} else if stop > upper {
		stop = upper
	}
	var positions []int
	if step > 0 {
		for i := start; i < stop; i += step {
			positions = append(positions, i)
		}
	} else {
		for i := start; i > stop; i += step {
			positions = append(positions, i)
		}
	}
	return positions, nil
}

// Name implements train.Dataset.
func (ds *TinyImageNet) Name() string {
	return fmt.Sprintf("TinyImageNet (%s)", ds.split)
}

// Reset implements train.Dataset, rewinding the epoch cursor.
func (ds *TinyImageNet) Reset() {
	ds.mu.Lock()
	ds.next = 0
	ds.mu.Unlock()
}

// nextIndex returns the next cursor position and advances it, or -1 at the
// end of the epoch. Concurrency safe.
func (ds *TinyImageNet) nextIndex() int {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.next >= ds.Len() {
		return -1
	}
	i := ds.next
	ds.next++
	return i
}

// Yield implements train.Dataset. It yields one sample at a time, split into
// the pair a colorization model trains on: the L channel [1, size, size] as
// the single input and the ab channels [2, size, size] as the single label.
// Returns io.EOF at the end of the (possibly limited) split; Reset rewinds.
func (ds *TinyImageNet) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	spec = ds
	i := ds.nextIndex()
	if i < 0 {
		err = io.EOF
		return
	}
	lab, _, err := ds.Get(i)
	if err != nil {
		return nil, nil, nil, err
	}
	l, ab := splitLab(lab)
	inputs = []*tensors.Tensor{l}
	labels = []*tensors.Tensor{ab}
	return
}

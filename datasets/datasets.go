package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package exposes a Tiny ImageNet directory tree as an indexable
// collection of preprocessed Lab color samples, ready for a colorization
// training loop.
//
// The dataset uses lazy loading - only file paths are indexed up front, and
// images are decoded, resized and color-converted on each access, keeping
// memory usage flat regardless of dataset size.
//
// Layout expected on disk:
//
//	root/train/<classDir>/images/*
//	root/val/images/*
//	root/test/images/*
//
// Each access yields a channel-first tensor shaped [3, size, size] holding
// the image in CIE Lab encoding, together with the absolute path of the
// source file.
//
// The concrete type also implements gomlx's train.Dataset so it can be
// plugged directly into a train.Loop; Yield splits each sample into the L
// channel as input and the ab channels as label.
type Indexed interface {
	// Len is the number of addressable samples in the active split,
	// bounded by the configured limit when one is set.
	Len() int

	// Get decodes and preprocesses the sample at position i of the active
	// split, returning the [3, size, size] Lab tensor and the source path.
	Get(i int) (*tensors.Tensor, string, error)

	// Slice resolves a contiguous range with step against Len and returns
	// the samples in order.
	Slice(start, stop, step int) ([]Example, error)

	// To implement gomlx's train.Dataset interface.
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

// Example is one preprocessed sample: the channel-first Lab tensor and the
// absolute path of the file it was decoded from.
type Example struct {
	Image *tensors.Tensor
	Path  string
}

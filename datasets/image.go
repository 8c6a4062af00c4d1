package datasets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/x448/float16"
)

// The image pipeline is kept behind narrow interfaces so the indexing and
// cleaning logic can be exercised with fakes, without real decoding.

// Decoder loads one image file from storage.
type Decoder interface {
	Decode(path string) (image.Image, error)
}

// Resizer scales an image to size x size pixels, preserving channels.
type Resizer interface {
	Resize(img image.Image, size int) image.Image
}

// Converter turns a decoded RGB image into a channel-first [3, H, W] tensor
// holding the image in CIE Lab encoding, cast to the given dtype.
type Converter interface {
	ToLab(img image.Image, dtype dtypes.DType) *tensors.Tensor
}

// fileDecoder reads and decodes PNG or JPEG files from disk.
type fileDecoder struct{}

func (fileDecoder) Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}

// linearResizer scales with bilinear filtering.
type linearResizer struct{}

func (linearResizer) Resize(img image.Image, size int) image.Image {
	return imaging.Resize(img, size, size, imaging.Linear)
}

// channelCount reports how many color channels the file behind img carries:
// 1 for grayscale and paletted, 4 when an alpha channel is stored, 3 for
// plain truecolor (PNG truecolor decodes to *image.RGBA, JPEG to
// *image.YCbCr).
func channelCount(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Paletted:
		return 1
	case *image.NRGBA, *image.NRGBA64:
		return 4
	default:
		return 3
	}
}

// isRGB is the cleanliness predicate: exactly three color channels.
func isRGB(img image.Image) bool {
	return channelCount(img) == 3
}

// labConverter produces Lab tensors on the CIE scale: L in [0, 100], a and b
// roughly in [-100, 100].
type labConverter struct{}

func (labConverter) ToLab(img image.Image, dtype dtypes.DType) *tensors.Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := height * width
	lab := make([]float64, 3*plane)
	pos := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			c := colorful.Color{
				R: float64(r) / 0xffff,
				G: float64(g) / 0xffff,
				B: float64(b) / 0xffff,
			}
			l, a, bb := c.Lab()
			// go-colorful returns L in [0, 1]; scale to the CIE convention.
			lab[pos] = 100 * l
			lab[pos+plane] = 100 * a
			lab[pos+2*plane] = 100 * bb
			pos++
		}
	}
	t := tensors.FromShape(shapes.Make(dtype, 3, height, width))
	fillTensor(t, lab)
	return t
}

// fillTensor copies values into t, casting each element to t's dtype.
func fillTensor(t *tensors.Tensor, values []float64) {
	switch t.DType() {
	case dtypes.Float32:
		fillTensorImpl(t, values, func(v float64) float32 { return float32(v) })
	case dtypes.Float64:
		fillTensorImpl(t, values, func(v float64) float64 { return v })
	case dtypes.Float16:
		fillTensorImpl(t, values, func(v float64) float16.Float16 {
			return float16.Fromfloat32(float32(v))
		})
	case dtypes.BFloat16:
		fillTensorImpl(t, values, func(v float64) bfloat16.BFloat16 {
			return bfloat16.FromFloat32(float32(v))
		})
	default:
		exceptions.Panicf("datasets: unsupported image dtype %s", t.DType())
	}
}

func fillTensorImpl[T any](t *tensors.Tensor, values []float64, convert func(float64) T) {
	t.MutableFlatData(func(flatAny any) {
		flat := flatAny.([]T)
		for i, v := range values {
			flat[i] = convert(v)
		}
	})
}

// splitLab splits a channel-first [3, H, W] Lab tensor into the L channel
// [1, H, W] and the ab channels [2, H, W] - the input/label pair a
// colorization model trains on.
func splitLab(t *tensors.Tensor) (l, ab *tensors.Tensor) {
	switch t.DType() {
	case dtypes.Float32:
		return splitLabImpl[float32](t)
	case dtypes.Float64:
		return splitLabImpl[float64](t)
	case dtypes.Float16:
		return splitLabImpl[float16.Float16](t)
	case dtypes.BFloat16:
		return splitLabImpl[bfloat16.BFloat16](t)
	}
	exceptions.Panicf("datasets: unsupported image dtype %s", t.DType())
	return nil, nil
}

func splitLabImpl[T any](t *tensors.Tensor) (l, ab *tensors.Tensor) {
	dims := t.Shape().Dimensions
	plane := dims[1] * dims[2]
	dtype := t.DType()
	l = tensors.FromShape(shapes.Make(dtype, 1, dims[1], dims[2]))
	ab = tensors.FromShape(shapes.Make(dtype, 2, dims[1], dims[2]))
	t.ConstFlatData(func(srcAny any) {
		src := srcAny.([]T)
		l.MutableFlatData(func(dstAny any) {
			copy(dstAny.([]T), src[:plane])
		})
		ab.MutableFlatData(func(dstAny any) {
			copy(dstAny.([]T), src[plane:])
		})
	})
	return
}

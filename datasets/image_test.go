package datasets

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// writePNG encodes img to path, creating parent directories as needed.
func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// rgbImage returns a fully opaque size x size image filled with c. The png
// encoder stores opaque images as truecolor, which decodes back with three
// channels.
func rgbImage(size int, c color.NRGBA) image.Image {
	c.A = 0xff
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// grayImage returns a size x size grayscale gradient.
func grayImage(size int) image.Image {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	return img
}

// alphaImage returns a size x size translucent image, which the png encoder
// stores with an alpha channel.
func alphaImage(size int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: 128})
		}
	}
	return img
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	img, err := fileDecoder{}.Decode(path)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return img
}

func flatFloat32(t *testing.T, tensor *tensors.Tensor) []float32 {
	t.Helper()
	var out []float32
	tensor.ConstFlatData(func(flatAny any) {
		out = append(out, flatAny.([]float32)...)
	})
	return out
}

func flatFloat64(t *testing.T, tensor *tensors.Tensor) []float64 {
	t.Helper()
	var out []float64
	tensor.ConstFlatData(func(flatAny any) {
		out = append(out, flatAny.([]float64)...)
	})
	return out
}

func TestChannelCount(t *testing.T) {
	tmp := t.TempDir()

	rgbPath := filepath.Join(tmp, "rgb_0.png")
	writePNG(t, rgbPath, rgbImage(8, color.NRGBA{R: 30, G: 200, B: 90}))
	if got := channelCount(decodeFile(t, rgbPath)); got != 3 {
		t.Errorf("truecolor png: channelCount = %d, want 3", got)
	}
	if !isRGB(decodeFile(t, rgbPath)) {
		t.Error("truecolor png should pass the RGB predicate")
	}

	grayPath := filepath.Join(tmp, "gray_0.png")
	writePNG(t, grayPath, grayImage(8))
	if got := channelCount(decodeFile(t, grayPath)); got != 1 {
		t.Errorf("grayscale png: channelCount = %d, want 1", got)
	}

	alphaPath := filepath.Join(tmp, "alpha_0.png")
	writePNG(t, alphaPath, alphaImage(8))
	if got := channelCount(decodeFile(t, alphaPath)); got != 4 {
		t.Errorf("png with alpha: channelCount = %d, want 4", got)
	}
	if isRGB(decodeFile(t, alphaPath)) {
		t.Error("png with alpha must fail the RGB predicate")
	}
}

// TestLabConverterValues checks the Lab encoding on the two ends of the
// scale: white maps to L near 100 with a and b near zero, black to all
// zeros. Also checks the channel-first plane layout.
func TestLabConverterValues(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255}) // white
	img.SetNRGBA(1, 0, color.NRGBA{A: 255})                         // black

	tensor := labConverter{}.ToLab(img, dtypes.Float64)
	dims := tensor.Shape().Dimensions
	if len(dims) != 3 || dims[0] != 3 || dims[1] != 1 || dims[2] != 2 {
		t.Fatalf("unexpected tensor shape %v, want [3 1 2]", dims)
	}

	flat := flatFloat64(t, tensor)
	// Planes in L, a, b order; within a plane, row-major pixels.
	lWhite, lBlack := flat[0], flat[1]
	aWhite, aBlack := flat[2], flat[3]
	bWhite, bBlack := flat[4], flat[5]

	if math.Abs(lWhite-100) > 1 {
		t.Errorf("white L = %f, want ~100", lWhite)
	}
	if math.Abs(aWhite) > 1 || math.Abs(bWhite) > 1 {
		t.Errorf("white a/b = %f/%f, want ~0", aWhite, bWhite)
	}
	if math.Abs(lBlack) > 1 || math.Abs(aBlack) > 1 || math.Abs(bBlack) > 1 {
		t.Errorf("black Lab = %f/%f/%f, want ~0", lBlack, aBlack, bBlack)
	}
}

func TestFillTensorDTypes(t *testing.T) {
	values := []float64{1.5, -2, 0.25, 100}

	t32 := tensors.FromShape(shapes.Make(dtypes.Float32, len(values)))
	fillTensor(t32, values)
	for i, v := range flatFloat32(t, t32) {
		if float64(v) != values[i] {
			t.Errorf("float32 element %d: got %f, want %f", i, v, values[i])
		}
	}

	// Half precision loses bits but these values are exactly representable.
	t16 := tensors.FromShape(shapes.Make(dtypes.Float16, len(values)))
	fillTensor(t16, values)
	i := 0
	t16.ConstFlatData(func(flatAny any) {
		for _, v := range flatAny.([]float16.Float16) {
			if float64(v.Float32()) != values[i] {
				t.Errorf("float16 element %d: got %f, want %f", i, v.Float32(), values[i])
			}
			i++
		}
	})
}

func TestSplitLab(t *testing.T) {
	src := tensors.FromShape(shapes.Make(dtypes.Float32, 3, 2, 2))
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i)
	}
	fillTensor(src, values)

	l, ab := splitLab(src)
	if dims := l.Shape().Dimensions; len(dims) != 3 || dims[0] != 1 || dims[1] != 2 || dims[2] != 2 {
		t.Fatalf("unexpected L shape %v, want [1 2 2]", dims)
	}
	if dims := ab.Shape().Dimensions; len(dims) != 3 || dims[0] != 2 || dims[1] != 2 || dims[2] != 2 {
		t.Fatalf("unexpected ab shape %v, want [2 2 2]", dims)
	}
	for i, v := range flatFloat32(t, l) {
		if float64(v) != values[i] {
			t.Errorf("L element %d: got %f, want %f", i, v, values[i])
		}
	}
	for i, v := range flatFloat32(t, ab) {
		if float64(v) != values[i+4] {
			t.Errorf("ab element %d: got %f, want %f", i, v, values[i+4])
		}
	}
}

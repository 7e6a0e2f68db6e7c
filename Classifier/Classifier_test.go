package Classifier

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePredictor struct {
	out   []float32
	err   error
	input []float32
}

func (f *fakePredictor) Predict(input []float32) ([]float32, error) {
	f.input = input
	return f.out, f.err
}

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func testMetadata(classes ...string) Metadata {
	m := Metadata{Classes: classes, ImageSize: 2}
	m.applyDefaults()
	return m
}

func TestPredictionString(t *testing.T) {
	p := Prediction{Index: 1, Label: "ramen", Probability: 0.7}
	assert.Equal(t, "ramen - Prob:0.7", p.String())
	assert.Equal(t, "sushi - Prob:1", Prediction{Label: "sushi", Probability: 1}.String())
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float32{0.3, 0.7}))
	assert.Equal(t, 0, Argmax([]float32{0.5, 0.5}))
	assert.Equal(t, 2, Argmax([]float32{0.1, 0.2, 0.6, 0.1}))
}

func TestClassifyPicksMostProbableLabel(t *testing.T) {
	predictor := &fakePredictor{out: []float32{0.3, 0.7}}
	model, err := NewModel(predictor, testMetadata("sushi", "ramen"))
	require.NoError(t, err)

	prediction, err := model.Classify(solid(8, 8, color.White))
	require.NoError(t, err)
	assert.Equal(t, "ramen - Prob:0.7", prediction.String())
	assert.Equal(t, 1, prediction.Index)
	assert.Len(t, predictor.input, 2*2*3)
}

func TestClassifyRejectsWrongOutputSize(t *testing.T) {
	model, err := NewModel(&fakePredictor{out: []float32{1}}, testMetadata("sushi", "ramen"))
	require.NoError(t, err)

	_, err = model.Classify(solid(4, 4, color.Black))
	assert.True(t, errors.Is(err, ErrShape))
}

func TestClassifyWrapsPredictorErrors(t *testing.T) {
	model, err := NewModel(&fakePredictor{err: errors.New("boom")}, testMetadata("sushi"))
	require.NoError(t, err)

	_, err = model.Classify(solid(4, 4, color.Black))
	assert.ErrorContains(t, err, "boom")
}

func TestNewModelNeedsLabels(t *testing.T) {
	_, err := NewModel(&fakePredictor{}, testMetadata())
	assert.Error(t, err)
}

func TestPreprocessLayouts(t *testing.T) {
	img := solid(5, 3, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	nhwc := Preprocess(img, testMetadata("a"))
	assert.Equal(t, []float32{10, 20, 30, 10, 20, 30, 10, 20, 30, 10, 20, 30}, nhwc)

	m := testMetadata("a")
	m.Layout = LayoutNCHW
	m.Scale = 0.1
	nchw := Preprocess(img, m)
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}, toFloat64(nchw), 1e-5)
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func TestDecodeImage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(3, 3, color.White)))

	img, err := DecodeImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	_, err = DecodeImage(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)
}

func TestLoadMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"classes": ["ramen", "sushi", "udon"]}`), 0o644))

	m, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, "input", m.InputName)
	assert.Equal(t, "output", m.OutputName)
	assert.Equal(t, DefaultImageSize, m.ImageSize)
	assert.Equal(t, LayoutNHWC, m.Layout)
	assert.Equal(t, []int64{1, 200, 200, 3}, m.InputShape)
	assert.Equal(t, []int64{1, 3}, m.OutputShape)
	assert.EqualValues(t, 1, m.Scale)
}

func TestLoadMetadataValidation(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"layout":        `{"classes": ["a"], "layout": "hwcn"}`,
		"interpolation": `{"classes": ["a"], "interpolation": "magic"}`,
		"input":         `{"classes": ["a"], "image_size": 64, "input_shape": [1, 3, 32, 32]}`,
		"output":        `{"classes": ["a", "b"], "output_shape": [1, 3]}`,
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".json")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		_, err := LoadMetadata(path)
		assert.Error(t, err, name)
	}
}

func TestWithClassesFillsOutputShape(t *testing.T) {
	m := testMetadata()
	m = m.WithClasses([]string{"gyoza", "natto"})
	assert.Equal(t, []int64{1, 2}, m.OutputShape)
	assert.NoError(t, m.Validate())
}

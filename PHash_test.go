package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"Washoku/Classifier"
	"Washoku/Dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noise draws a seeded random grey pattern. Images sharing a seed differ only by the
// constant brightness offset, which a perceptual hash ignores.
func noise(seed int64, size int, offset uint8) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(20+rng.Intn(200)) + offset})
		}
	}
	return img
}

func writePNG(t testing.TB, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestPHashSeparatesDifferentImages(t *testing.T) {
	a, err := GeneratePHash(noise(1, 64, 0))
	require.NoError(t, err)
	b, err := GeneratePHash(noise(1, 64, 10))
	require.NoError(t, err)
	c, err := GeneratePHash(noise(2, 64, 0))
	require.NoError(t, err)

	assert.Less(t, PHashDistance(a, b), 10)
	assert.GreaterOrEqual(t, PHashDistance(a, c), 10)
	assert.Equal(t, 0, PHashDistance(a, a))
}

func TestScanImagesSkipsUndecodableFiles(t *testing.T) {
	layout := Dataset.NewLayout(t.TempDir())
	writePNG(t, filepath.Join(layout.ClassDir(Dataset.Train, "sushi"), "sushi_0.jpg"), noise(1, 32, 0))
	writePNG(t, filepath.Join(layout.ClassDir(Dataset.Test, "sushi"), "sushi_1.jpg"), noise(2, 32, 0))
	require.NoError(t, os.WriteFile(filepath.Join(layout.ClassDir(Dataset.Train, "sushi"), "broken.jpg"), []byte("<html>"), 0o644))

	images, err := scanImages(layout, Dataset.Splits, 3)
	require.NoError(t, err)
	require.Len(t, images, 2)

	assert.Equal(t, Dataset.Train, images[0].Split)
	assert.Equal(t, "sushi_0.jpg", images[0].Filename)
	assert.Equal(t, 32, images[0].Width)
	assert.Len(t, images[0].MD5, 32)
	assert.Equal(t, Dataset.Test, images[1].Split)
}

func BenchmarkPHash(b *testing.B) {
	var buffer bytes.Buffer
	if err := png.Encode(&buffer, noise(3, 400, 0)); err != nil {
		b.Fatal(err)
	}
	reader := bytes.NewReader(buffer.Bytes())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		img, err := Classifier.DecodeImage(reader)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := GeneratePHash(img); err != nil {
			b.Error("Failed to generate pHash")
		}
		_, _ = reader.Seek(0, 0)
	}
}

package Classifier

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"
)

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"lanczos3": resize.Lanczos3,
}

func DecodeImage(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	log.Trace("Decoded image of format ", format, " with size ", img.Bounds().Size())
	return img, nil
}

// Preprocess resizes img to the model's square input and flattens it into a batch of one,
// channel values 0..255 multiplied by the metadata scale.
func Preprocess(img image.Image, metadata Metadata) []float32 {
	size := uint(metadata.ImageSize)
	resized := resize.Resize(size, size, img, interpolations[metadata.Interpolation])

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [3]float32{
				float32(r>>8) * metadata.Scale,
				float32(g>>8) * metadata.Scale,
				float32(b>>8) * metadata.Scale,
			}

			pixel := y*width + x
			for c, v := range rgb {
				if metadata.Layout == LayoutNCHW {
					data[c*plane+pixel] = v
				} else {
					data[pixel*3+c] = v
				}
			}
		}
	}

	return data
}

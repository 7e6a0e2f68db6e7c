// Package Classifier turns an uploaded food photo into a label using a model
// exported to ONNX together with its metadata file.
package Classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"

	DefaultImageSize = 200
)

var ErrShape = errors.New("tensor shape mismatch")

// Metadata is stored next to the model. Classes is the ordinal label list the model was
// trained against: output i of the model is the probability of Classes[i].
type Metadata struct {
	Classes       []string `json:"classes"`
	InputName     string   `json:"input_name"`
	OutputName    string   `json:"output_name"`
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	ImageSize     int      `json:"image_size"`
	Layout        string   `json:"layout"`
	Scale         float32  `json:"scale"`
	Interpolation string   `json:"interpolation"`
}

func LoadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()

	return metadata, metadata.Validate()
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.Scale == 0 {
		m.Scale = 1
	}
	if m.Interpolation == "" {
		m.Interpolation = "nearest"
	}
	if len(m.InputShape) == 0 {
		size := int64(m.ImageSize)
		if m.Layout == LayoutNCHW {
			m.InputShape = []int64{1, 3, size, size}
		} else {
			m.InputShape = []int64{1, size, size, 3}
		}
	}
	if len(m.OutputShape) == 0 && len(m.Classes) > 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
}

// WithClasses returns a copy of m using classes as the label list.
func (m Metadata) WithClasses(classes []string) Metadata {
	m.Classes = classes
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(classes))}
	}
	return m
}

func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unknown layout %q", m.Layout)
	}
	if _, ok := interpolations[m.Interpolation]; !ok {
		return fmt.Errorf("unknown interpolation %q", m.Interpolation)
	}
	if want := int64(3 * m.ImageSize * m.ImageSize); shapeSize(m.InputShape) != want {
		return fmt.Errorf("%w: input shape %v does not hold a %dx%d RGB image", ErrShape, m.InputShape, m.ImageSize, m.ImageSize)
	}
	if len(m.Classes) > 0 && shapeSize(m.OutputShape) != int64(len(m.Classes)) {
		return fmt.Errorf("%w: output shape %v does not match %d classes", ErrShape, m.OutputShape, len(m.Classes))
	}
	return nil
}

func shapeSize(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return size
}

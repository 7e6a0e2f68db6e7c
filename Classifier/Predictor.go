package Classifier

import (
	"fmt"
	"image"
	"strconv"
)

// Predictor runs a forward pass over one preprocessed image and returns one probability per class.
type Predictor interface {
	Predict(input []float32) ([]float32, error)
}

type Prediction struct {
	Index       int     `json:"index"`
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

// String renders the prediction the way the upload form expects it: "<label> - Prob:<p>".
func (p Prediction) String() string {
	return p.Label + " - Prob:" + strconv.FormatFloat(float64(p.Probability), 'g', -1, 32)
}

// Argmax returns the index of the highest value; ties keep the first index.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Model pairs a predictor with the metadata it was exported with. It is safe to share
// between requests as long as the predictor is.
type Model struct {
	predictor Predictor
	metadata  Metadata
}

func NewModel(predictor Predictor, metadata Metadata) (*Model, error) {
	if len(metadata.Classes) == 0 {
		return nil, fmt.Errorf("model has no class labels")
	}
	return &Model{predictor: predictor, metadata: metadata}, nil
}

func (m *Model) Metadata() Metadata {
	return m.metadata
}

func (m *Model) Labels() []string {
	labels := make([]string, len(m.metadata.Classes))
	copy(labels, m.metadata.Classes)
	return labels
}

// Classify preprocesses img, runs the model and picks the most probable class.
func (m *Model) Classify(img image.Image) (Prediction, error) {
	probabilities, err := m.predictor.Predict(Preprocess(img, m.metadata))
	if err != nil {
		return Prediction{}, fmt.Errorf("inference failed: %w", err)
	}
	if len(probabilities) != len(m.metadata.Classes) {
		return Prediction{}, fmt.Errorf("%w: model returned %d values for %d classes", ErrShape, len(probabilities), len(m.metadata.Classes))
	}

	best := Argmax(probabilities)
	return Prediction{
		Index:       best,
		Label:       m.metadata.Classes[best],
		Probability: probabilities[best],
	}, nil
}

package Classifier

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// OnnxPredictor runs a model through onnxruntime. The session is bound to a single pair of
// input/output tensors, so Predict calls are serialized.
type OnnxPredictor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewOnnxPredictor loads the model at modelPath. libraryPath points at the onnxruntime
// shared library and may be empty to use the platform default.
func NewOnnxPredictor(modelPath string, libraryPath string, metadata Metadata) (*OnnxPredictor, error) {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	log.Info("Loaded ONNX model ", modelPath, " with input ", metadata.InputShape, " and output ", metadata.OutputShape)

	return &OnnxPredictor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (p *OnnxPredictor) Predict(input []float32) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := p.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("%w: expected %d input values, got %d", ErrShape, len(data), len(input))
	}
	copy(data, input)

	if err := p.session.Run(); err != nil {
		return nil, err
	}

	out := p.outputTensor.GetData()
	probabilities := make([]float32, len(out))
	copy(probabilities, out)
	return probabilities, nil
}

func (p *OnnxPredictor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inputTensor != nil {
		p.inputTensor.Destroy()
	}
	if p.outputTensor != nil {
		p.outputTensor.Destroy()
	}
	if p.session != nil {
		p.session.Destroy()
	}
	ort.DestroyEnvironment()
}

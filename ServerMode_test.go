package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"Washoku/Classifier"
	"Washoku/Database"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	out []float32
	err error
}

func (s stubPredictor) Predict([]float32) ([]float32, error) {
	return s.out, s.err
}

type stubSearcher struct {
	entries []Database.ImageEntry
	class   string
}

func (s *stubSearcher) Search(query string, class string, limit int) ([]Database.ImageEntry, int64, error) {
	s.class = class
	if limit < len(s.entries) {
		return s.entries[:limit], int64(len(s.entries)), nil
	}
	return s.entries, int64(len(s.entries)), nil
}

func (s *stubSearcher) Get(id string) (Database.ImageEntry, error) {
	for _, e := range s.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return Database.ImageEntry{}, errors.New("not found")
}

func newTestServer(t *testing.T, predictor Classifier.Predictor, images imageSearcher) (*Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metadata := Classifier.Metadata{ImageSize: 8, Layout: Classifier.LayoutNHWC, Scale: 1, Interpolation: "nearest"}
	model, err := Classifier.NewModel(predictor, metadata.WithClasses([]string{"sushi", "ramen"}))
	require.NoError(t, err)

	uploads := t.TempDir()
	return NewServer(model, uploads, "", 1<<20, images), uploads
}

func uploadRequest(t *testing.T, field string, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, noise(1, 20, 0)))
	return buf.Bytes()
}

func TestPredictReturnsLabelAndProbability(t *testing.T) {
	server, uploads := newTestServer(t, stubPredictor{out: []float32{0.3, 0.7}}, nil)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", "my lunch.png", pngBytes(t)))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ramen - Prob:0.7", w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))

	_, err := os.Stat(filepath.Join(uploads, "my_lunch.png"))
	assert.NoError(t, err)
}

func TestPredictRejectsNonImagesWithoutCrashing(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{out: []float32{0.9, 0.1}}, nil)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", "notes.txt", []byte("just some text")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", "sushi.png", pngBytes(t)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sushi - Prob:0.9", w.Body.String())
}

func TestPredictErrors(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{err: errors.New("session closed")}, nil)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "photo", "a.png", pngBytes(t)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", "a.png", pngBytes(t)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Prediction failed", w.Body.String())
}

func TestPredictRejectsOversizedUploads(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{out: []float32{1, 0}}, nil)
	server.maxUpload = 64
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "image", "big.png", pngBytes(t)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredictRejectsOversizedChunkedUploads(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{out: []float32{1, 0}}, nil)
	server.maxUpload = 64
	router := server.Router()

	req := uploadRequest(t, "image", "big.png", pngBytes(t))
	req.ContentLength = -1
	req.Header.Set("Transfer-Encoding", "chunked")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

// colorPredictor answers ramen for red-dominated inputs and sushi otherwise.
type colorPredictor struct{}

func (colorPredictor) Predict(input []float32) ([]float32, error) {
	if input[0] > input[2] {
		return []float32{0, 1}, nil
	}
	return []float32{1, 0}, nil
}

func solidPNG(t *testing.T, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPredictConcurrentUploadsWithSameName(t *testing.T) {
	server, uploads := newTestServer(t, colorPredictor{}, nil)
	router := server.Router()

	red := solidPNG(t, color.RGBA{R: 255, A: 255})
	blue := solidPNG(t, color.RGBA{B: 255, A: 255})

	const requests = 100
	results := make([]string, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		content := blue
		if i%2 == 0 {
			content = red
		}
		req := uploadRequest(t, "image", "photo.png", content)
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			results[i] = w.Body.String()
		}(i, req)
	}
	wg.Wait()

	for i, body := range results {
		if i%2 == 0 {
			assert.Equal(t, "ramen - Prob:1", body, "request %d", i)
		} else {
			assert.Equal(t, "sushi - Prob:1", body, "request %d", i)
		}
	}

	_, err := os.Stat(filepath.Join(uploads, "photo.png"))
	assert.NoError(t, err)
}

func TestIndexAndRedirect(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{}, nil)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="image"`)
	assert.Contains(t, w.Body.String(), "2 foods known")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestHealthAndLabels(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{}, nil)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/labels", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"sushi", "ramen"}, body.Labels)
}

func TestImageSearch(t *testing.T) {
	searcher := &stubSearcher{entries: []Database.ImageEntry{
		{ID: "a1", Class: "ramen", Split: "train", Filename: "ramen_0.jpg", Width: 200},
		{ID: "b2", Class: "ramen", Split: "test", Filename: "ramen_1.jpg"},
	}}
	server, _ := newTestServer(t, stubPredictor{}, searcher)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images?q=ramen&class=ramen&limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ramen", searcher.class)

	var body struct {
		Results   []ImageResult `json:"results"`
		TotalHits int64         `json:"total_hits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	assert.Equal(t, "/images/train/ramen/ramen_0.jpg", body.Results[0].URL)
	assert.Equal(t, 200, body.Results[0].Width)
	assert.EqualValues(t, 2, body.TotalHits)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/image/b2", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/images/test/ramen/ramen_1.jpg")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/image/zz", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImageSearchWithoutIndex(t *testing.T) {
	server, _ := newTestServer(t, stubPredictor{}, nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/images?q=x", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSecureFilename(t *testing.T) {
	cases := map[string]string{
		"My cool movie.mov":          "My_cool_movie.mov",
		"../../../etc/passwd":        "etc_passwd",
		"i contain cool ümläuts.txt": "i_contain_cool_umlauts.txt",
		"寿司.jpg":                     "jpg",
		"寿司":                         "",
		`C:\photos\ramen.png`:        "C_photos_ramen.png",
	}
	for in, want := range cases {
		assert.Equal(t, want, SecureFilename(in), in)
	}
}

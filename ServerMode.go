package main

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"Washoku/Classifier"
	"Washoku/Database"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

//go:embed templates/index.html
var templatesFS embed.FS

type ServerConfig struct {
	Addr         string
	ModelPath    string
	MetadataPath string
	Translations string
	ImagesDir    string
	UploadDir    string
	MaxUpload    int64
	OrtLibrary   string
	MeiliHost    string
	MeiliKey     string
}

type imageSearcher interface {
	Search(query string, class string, limit int) ([]Database.ImageEntry, int64, error)
	Get(id string) (Database.ImageEntry, error)
}

// ImageResult is an index entry as returned by the API.
type ImageResult struct {
	ID       string
	Class    string
	Split    string
	Filename string
	PHash    string
	Width    int
	Height   int
	URL      string
}

// Server is built once at startup and only read by request handlers.
type Server struct {
	model     *Classifier.Model
	uploadDir string
	imagesDir string
	maxUpload int64
	images    imageSearcher
}

// NewServer wires the handlers. images may be nil when no search index is configured.
func NewServer(model *Classifier.Model, uploadDir string, imagesDir string, maxUpload int64, images imageSearcher) *Server {
	return &Server{
		model:     model,
		uploadDir: uploadDir,
		imagesDir: imagesDir,
		maxUpload: maxUpload,
		images:    images,
	}
}

func ServerMode(cfg ServerConfig) error {
	metadata, err := Classifier.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return err
	}
	metadata, err = loadLabels(metadata, cfg.Translations)
	if err != nil {
		return err
	}

	predictor, err := Classifier.NewOnnxPredictor(cfg.ModelPath, cfg.OrtLibrary, metadata)
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer predictor.Close()

	model, err := Classifier.NewModel(predictor, metadata)
	if err != nil {
		return err
	}

	var images imageSearcher
	if cfg.MeiliHost != "" {
		client, err := Database.ConnectMeilisearch(cfg.MeiliHost, cfg.MeiliKey)
		if err != nil {
			return err
		}
		index := Database.NewImageIndex(client)
		if err := index.Migrate(); err != nil {
			return err
		}
		images = index
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return err
	}

	server := NewServer(model, cfg.UploadDir, cfg.ImagesDir, cfg.MaxUpload, images)
	log.Info("Model loaded with ", len(metadata.Classes), " classes. Check http://", cfg.Addr, "/")

	if err := server.Router().Run(cfg.Addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/index.html")))

	r.GET("/", s.index)
	r.GET("/predict", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/")
	})
	r.POST("/predict", s.predict)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": Database.GetVersion(),
			"uptime":  Database.GetUptime().String(),
		})
	})
	r.GET("/api/labels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"labels": s.model.Labels(),
		})
	})
	r.GET("/api/images", s.searchImages)
	r.GET("/api/image/:id", s.getImage)

	if s.imagesDir != "" {
		r.Static("/images/", s.imagesDir)
	}

	return r
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Labels": s.model.Labels(),
	})
}

func (s *Server) predict(c *gin.Context) {
	requestID := uuid.New().String()
	logger := log.WithField("request", requestID)

	if s.maxUpload > 0 {
		if c.Request.ContentLength > s.maxUpload {
			c.String(http.StatusRequestEntityTooLarge, "Upload larger than %d bytes", s.maxUpload)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}

	header, err := c.FormFile("image")
	if err != nil {
		if bodyTooLarge(c.Request.Body, err) {
			c.String(http.StatusRequestEntityTooLarge, "Upload larger than %d bytes", s.maxUpload)
			return
		}
		c.String(http.StatusBadRequest, "No image file provided. Use 'image' as the form field name")
		return
	}

	name := SecureFilename(header.Filename)
	if name == "" {
		name = uuid.New().String()
	}
	path := filepath.Join(s.uploadDir, name)
	if err := c.SaveUploadedFile(header, path); err != nil {
		logger.Error("Failed to save upload: ", err)
		c.String(http.StatusInternalServerError, "Failed to save upload")
		return
	}
	logger.Info("Received file ", header.Filename, " (", header.Size, " bytes) saved as ", path)

	f, err := header.Open()
	if err != nil {
		logger.Error("Failed to open upload: ", err)
		c.String(http.StatusInternalServerError, "Failed to read upload")
		return
	}
	defer f.Close()

	img, err := Classifier.DecodeImage(f)
	if err != nil {
		logger.Warn("Rejected upload: ", err)
		c.String(http.StatusBadRequest, "Invalid image format. Supported: JPEG, PNG, GIF")
		return
	}

	prediction, err := s.model.Classify(img)
	if err != nil {
		logger.Error("Prediction error: ", err)
		c.String(http.StatusInternalServerError, "Prediction failed")
		return
	}

	logger.Info("Predicted ", prediction.Label, " with probability ", prediction.Probability)
	c.String(http.StatusOK, "%s", prediction.String())
}

// bodyTooLarge reports whether err, or the exhausted request body, came from the upload limit.
func bodyTooLarge(body io.Reader, err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	if body == nil {
		return false
	}
	// the limited reader keeps returning its error once tripped
	_, err = body.Read(make([]byte, 1))
	return errors.As(err, &tooLarge)
}

func (s *Server) toResult(entry Database.ImageEntry) (ImageResult, error) {
	var result ImageResult
	if err := copier.Copy(&result, &entry); err != nil {
		return result, err
	}
	result.URL = "/images/" + entry.Split + "/" + entry.Class + "/" + entry.Filename
	return result, nil
}

func (s *Server) searchImages(c *gin.Context) {
	if s.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image search is not configured"})
		return
	}

	limit := 20
	if limitString := c.Query("limit"); limitString != "" {
		var err error
		limit, err = strconv.Atoi(limitString)
		if err != nil || limit <= 0 || limit > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit provided (0 < limit <= 100)"})
			return
		}
	}

	entries, total, err := s.images.Search(c.Query("q"), c.Query("class"), limit)
	if err != nil {
		log.Error("Image search failed: ", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search for query"})
		return
	}

	results := make([]ImageResult, 0, len(entries))
	for _, entry := range entries {
		result, err := s.toResult(entry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		results = append(results, result)
	}

	c.JSON(http.StatusOK, gin.H{
		"results":    results,
		"error":      "",
		"total_hits": total,
	})
}

func (s *Server) getImage(c *gin.Context) {
	if s.images == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image search is not configured"})
		return
	}

	entry, err := s.images.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	result, err := s.toResult(entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image": result,
		"error": "",
	})
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces an uploaded file name to ASCII letters, digits, "_", "." and "-"
// so it can be stored without escaping the upload directory.
func SecureFilename(name string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r < 128 {
			ascii.WriteRune(r)
		}
	}

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(ascii.String())
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

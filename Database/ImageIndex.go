package Database

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// ImageIndex is the meilisearch index holding one ImageEntry per dataset image.
type ImageIndex struct {
	client *meilisearch.Client
	index  *meilisearch.Index
}

func NewImageIndex(client *meilisearch.Client) *ImageIndex {
	return &ImageIndex{
		client: client,
		index:  client.Index(imageIndexUID),
	}
}

// Migrate creates or updates the index schema.
func (i *ImageIndex) Migrate() error {
	return ExecuteMigrations(i.client)
}

func (i *ImageIndex) AddImages(entries []ImageEntry) error {
	if len(entries) == 0 {
		return nil
	}
	task, err := i.index.AddDocuments(entries)
	if err != nil {
		return err
	}
	return WaitForMeilisearchTask(i.client, task)
}

// ClassFilter builds a meilisearch filter expression matching one class.
func ClassFilter(class string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(class)
	return `Class = "` + escaped + `"`
}

// Search runs a full text query, optionally restricted to one class, and returns the hits
// together with the estimated total.
func (i *ImageIndex) Search(query string, class string, limit int) ([]ImageEntry, int64, error) {
	request := &meilisearch.SearchRequest{
		Limit: int64(limit),
	}
	if class != "" {
		request.Filter = ClassFilter(class)
	}

	result, err := i.index.Search(query, request)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]ImageEntry, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var entry ImageEntry
		if err := decodeHit(hit, &entry); err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}

	return entries, result.EstimatedTotalHits, nil
}

func (i *ImageIndex) Get(id string) (ImageEntry, error) {
	var entry ImageEntry
	err := i.index.GetDocument(id, &meilisearch.DocumentQuery{}, &entry)
	return entry, err
}

func decodeHit(hit interface{}, entry *ImageEntry) error {
	raw, err := json.Marshal(hit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, entry); err != nil {
		return fmt.Errorf("decode search hit: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"Washoku/Database"
	"Washoku/Dataset"

	log "github.com/sirupsen/logrus"
)

const indexBatchSize = 100

type imageWriter interface {
	Migrate() error
	AddImages(entries []Database.ImageEntry) error
}

// IndexMode hashes every image of every split and sends it to the search index in batches.
// Files with identical content are indexed once.
func IndexMode(ctx context.Context, layout Dataset.Layout, index imageWriter, workers int) error {
	log.Info("Index mode launching, scanning ", layout.Root)

	if err := index.Migrate(); err != nil {
		return fmt.Errorf("prepare search index: %w", err)
	}

	images, err := scanImages(layout, Dataset.Splits, workers)
	if err != nil {
		return err
	}

	entries := imageEntries(images, time.Now())
	log.Info("Indexing ", len(entries), " of ", len(images), " scanned images")

	for start := 0; start < len(entries); start += indexBatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + indexBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		if err := index.AddImages(entries[start:end]); err != nil {
			return fmt.Errorf("add batch %d-%d: %w", start, end, err)
		}
		log.Debug("Sent image batch of size ", end-start, " to MeiliSearch")
	}

	log.Info("Finished indexing")
	return nil
}

func imageEntries(images []ScannedImage, added time.Time) []Database.ImageEntry {
	seen := make(map[string]string, len(images))
	entries := make([]Database.ImageEntry, 0, len(images))
	for _, img := range images {
		if first, ok := seen[img.MD5]; ok {
			log.Info("Image ", img.Path, " has the same content as ", first, ", skipping...")
			continue
		}
		seen[img.MD5] = img.Path

		entries = append(entries, Database.ImageEntry{
			ID:       img.MD5,
			Class:    img.Class,
			Split:    string(img.Split),
			Filename: img.Filename,
			PHash:    fmt.Sprintf("%016x", img.PHash),
			Size:     img.Size,
			Width:    img.Width,
			Height:   img.Height,
			Added:    strconv.FormatInt(added.Unix(), 10),
		})
	}
	return entries
}

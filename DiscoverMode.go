package main

import (
	"context"

	"Washoku/Dataset"
	"Washoku/ImageScraper"

	log "github.com/sirupsen/logrus"
)

type DiscoverConfig struct {
	URL       string
	Pages     int
	ImagesDir string
	ListFile  string
}

// DiscoverMode scrapes the food listing, creates the class directories of every split and
// writes the food list.
func DiscoverMode(ctx context.Context, cfg DiscoverConfig, client *ImageScraper.Client) ([]string, error) {
	log.Info("Discovery mode launching")

	names, err := ImageScraper.DiscoverFoodNames(ctx, client, cfg.URL, cfg.Pages)
	if err != nil {
		return nil, err
	}
	log.Info("Discovered ", len(names), " food names over ", cfg.Pages, " pages")

	layout := Dataset.NewLayout(cfg.ImagesDir)
	for _, name := range names {
		if err := layout.EnsureClass(name); err != nil {
			return names, err
		}
	}

	if err := Dataset.WriteFoodList(cfg.ListFile, names); err != nil {
		return names, err
	}
	log.Info("Wrote food list to ", cfg.ListFile)

	return names, nil
}

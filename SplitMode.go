package main

import (
	"time"

	"Washoku/Dataset"

	log "github.com/sirupsen/logrus"
)

type SplitConfig struct {
	ImagesDir string
	Seed      int64
	Manifest  string
	Revert    bool
}

func SplitMode(cfg SplitConfig) error {
	layout := Dataset.NewLayout(cfg.ImagesDir)

	if cfg.Revert {
		log.Info("Reverting valid and test splits into train")
		moved, err := Dataset.Revert(layout)
		if err != nil {
			return err
		}
		log.Info("Moved ", moved, " files back into train")
		return nil
	}

	classes, err := layout.Classes(Dataset.Train)
	if err != nil {
		return err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Info("Splitting ", len(classes), " classes with seed ", seed)

	pbar := newProgressBar(2*len(classes), "Splitting...")
	manifest, err := Dataset.SplitDataset(layout, seed, func(Dataset.Split, string) {
		_ = pbar.Add(1)
	})
	_ = pbar.Finish()

	// a partial manifest still tells where the files that did move went
	if manifest != nil && cfg.Manifest != "" {
		if werr := manifest.Write(cfg.Manifest); werr != nil {
			log.Error("Failed to write split manifest: ", werr)
		} else {
			log.Info("Recorded ", len(manifest.Moves), " moves in ", cfg.Manifest)
		}
	}
	if err != nil {
		return err
	}

	for class, counts := range manifest.Counts {
		log.Debug(class, ": train ", counts.Train, ", valid ", counts.Valid, ", test ", counts.Test)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"Washoku/Dataset"
	"Washoku/ImageScraper"
	"Washoku/TaskManager"

	log "github.com/sirupsen/logrus"
)

type CollectConfig struct {
	Translations string
	ImagesDir    string
	Quota        int
	SearchURL    string
	PageStep     int
	MaxPages     int
}

type collector struct {
	cfg    CollectConfig
	layout Dataset.Layout
	client *ImageScraper.Client
	store  Dataset.CheckpointStore
	tasks  *TaskManager.TaskList
}

// CollectMode downloads search images into train/<class> for every class of the translation
// file whose directory holds fewer than cfg.Quota files. Classes are handled one after the
// other; a class that fails is reported at the end and does not stop the others.
func CollectMode(ctx context.Context, cfg CollectConfig, client *ImageScraper.Client, store Dataset.CheckpointStore) error {
	log.Info("Collection mode launching")

	translations, err := Dataset.LoadTranslations(cfg.Translations)
	if err != nil {
		return err
	}

	c := &collector{
		cfg:    cfg,
		layout: Dataset.NewLayout(cfg.ImagesDir),
		client: client,
		store:  store,
		tasks:  TaskManager.NewTaskList(),
	}

	var errs []error
	for _, t := range translations {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		uid := c.tasks.NewTask("collect", t.Class)
		written, status, err := c.collectClass(ctx, uid, t)
		c.tasks.SetTaskOutput(uid, written)
		if err != nil {
			c.tasks.SetTaskFailed(uid, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Class, err))
			continue
		}
		c.tasks.SetTaskDone(uid, status)
	}

	c.logSummary()

	return errors.Join(errs...)
}

func (c *collector) collectClass(ctx context.Context, uid string, t Dataset.Translation) (int, string, error) {
	dir := c.layout.ClassDir(Dataset.Train, t.Class)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", err
	}

	existing, err := c.layout.CountFiles(Dataset.Train, t.Class)
	if err != nil {
		return 0, "", err
	}
	if existing >= c.cfg.Quota {
		log.Info("Images for ", t.Class, " are already downloaded")
		if err := c.store.Clear(ctx, t.Class); err != nil {
			log.Warn("Failed to clear checkpoint of ", t.Class, ": ", err)
		}
		return 0, TaskManager.StatusSkipped, nil
	}

	c.tasks.SetTaskStatus(uid, TaskManager.StatusInProgress)

	cp, err := c.store.Load(ctx, t.Class)
	if errors.Is(err, Dataset.ErrNoCheckpoint) {
		cp = Dataset.NewCheckpoint(t.Class)
	} else if err != nil {
		return 0, "", err
	} else {
		log.Info("Resuming ", t.Class, " from checkpoint with ", len(cp.URLs), " URLs and ", len(cp.Downloaded), " downloads")
	}

	log.Info("Collecting image urls for ", t.Class)
	urls := ImageScraper.NewURLSet(cp.URLs...)
	_, err = ImageScraper.GatherImageURLs(ctx, c.client, ImageScraper.SearchOptions{
		BaseURL:     c.cfg.SearchURL,
		Term:        t.Term,
		Quota:       c.cfg.Quota,
		StartOffset: cp.NextOffset,
		PageStep:    c.cfg.PageStep,
		MaxPages:    c.cfg.MaxPages,
	}, urls, func(nextOffset int) error {
		cp.URLs = urls.URLs()
		cp.NextOffset = nextOffset
		return c.store.Save(ctx, cp)
	})
	if err != nil {
		return 0, "", err
	}

	log.Info("Downloading ", urls.Len(), " images for ", t.Class)
	written, err := c.download(ctx, dir, t.Class, urls.URLs(), existing, cp)
	if err != nil {
		return written, "", err
	}

	if err := c.store.Clear(ctx, t.Class); err != nil {
		log.Warn("Failed to clear checkpoint of ", t.Class, ": ", err)
	}
	return written, TaskManager.StatusDone, nil
}

// download writes the URL at position i to "<class>_i.jpg". Positions whose file is already
// present are skipped, and downloading stops once the directory holds as many files as there
// are URLs, so the class never ends above max(have, len(urls)).
func (c *collector) download(ctx context.Context, dir string, class string, urls []string, have int, cp *Dataset.Checkpoint) (int, error) {
	pbar := newProgressBar(len(urls), "Downloading "+class+"...")
	defer func() {
		_ = pbar.Finish()
	}()

	written, failed := 0, 0
	for i, u := range urls {
		if have >= len(urls) {
			log.Debug("Stopping downloads for ", class, " with ", have, " images for ", len(urls), " URLs")
			break
		}
		_ = pbar.Add(1)
		if _, done := cp.Downloaded[u]; done {
			continue
		}
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		name := Dataset.ImageName(class, i)
		exists, err := Dataset.ImageExists(dir, name)
		if err != nil {
			return written, err
		}
		if exists {
			log.Trace("Keeping existing ", name)
			continue
		}

		if _, err := c.client.Download(ctx, u, filepath.Join(dir, name)); err != nil {
			log.Error("Failed to download ", u, ": ", err)
			failed++
			continue
		}
		written++
		have++

		cp.Downloaded[u] = name
		if err := c.store.Save(ctx, cp); err != nil {
			return written, err
		}
	}

	if failed > 0 {
		log.Warn(failed, " of ", len(urls), " downloads failed for ", class)
	}
	return written, nil
}

// logSummary reports every collected and failed class of the run.
func (c *collector) logSummary() {
	for _, task := range c.tasks.GetTasks() {
		switch task.Status {
		case TaskManager.StatusDone:
			log.Info("Collected ", task.Returned, " images for ", task.Name)
		case TaskManager.StatusFailed:
			log.Error("Collecting ", task.Name, " failed after ", task.Returned, " images: ", task.Error)
		}
	}

	counts := c.tasks.CountByStatus()
	log.Info("Collection finished: ", counts[TaskManager.StatusDone], " collected, ",
		counts[TaskManager.StatusSkipped], " already complete, ", counts[TaskManager.StatusFailed], " failed")
}

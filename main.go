package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Washoku/Classifier"
	"Washoku/Database"
	"Washoku/Dataset"
	"Washoku/ImageScraper"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "washoku",
		Usage:   "collect, split and serve a Japanese food image dataset",
		Version: Database.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", EnvVars: []string{"WASHOKU_LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			level, err := log.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			discoverCommand(),
			collectCommand(),
			splitCommand(),
			indexCommand(),
			dedupeCommand(),
			serveCommand(),
		},
	}
}

func imagesDirFlag() cli.Flag {
	return &cli.StringFlag{Name: "images-dir", Value: "images", EnvVars: []string{"WASHOKU_IMAGES_DIR"}, Usage: "root of the train/valid/test tree"}
}

func translationsFlag() cli.Flag {
	return &cli.StringFlag{Name: "translations", Value: "food_list/jap_translate.json", EnvVars: []string{"WASHOKU_TRANSLATIONS"}, Usage: "JSON object of food name to search term"}
}

func fetchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "retries", Value: 3, Usage: "attempts per request"},
		&cli.DurationFlag{Name: "backoff", Value: 500 * time.Millisecond, Usage: "delay before the first retry, doubled each time"},
		&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per request timeout"},
	}
}

func meiliFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "meili-host", EnvVars: []string{"WASHOKU_MEILI_HOST"}},
		&cli.StringFlag{Name: "meili-key", EnvVars: []string{"WASHOKU_MEILI_KEY"}},
	}
}

func scraperClient(c *cli.Context) *ImageScraper.Client {
	retry := ImageScraper.DefaultRetryPolicy()
	retry.Attempts = c.Int("retries")
	retry.InitialBackoff = c.Duration("backoff")
	return ImageScraper.NewClient(c.Duration("timeout"), retry)
}

func discoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "scrape the food listing and create one directory per food",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "url", Value: "https://www.japan-talk.com/jt/new/japanese-food-list"},
			&cli.IntFlag{Name: "pages", Value: 6},
			imagesDirFlag(),
			&cli.StringFlag{Name: "list-file", Value: "food_list/jap_list.csv"},
		}, fetchFlags()...),
		Action: func(c *cli.Context) error {
			_, err := DiscoverMode(c.Context, DiscoverConfig{
				URL:       c.String("url"),
				Pages:     c.Int("pages"),
				ImagesDir: c.String("images-dir"),
				ListFile:  c.String("list-file"),
			}, scraperClient(c))
			return err
		},
	}
}

func collectCommand() *cli.Command {
	return &cli.Command{
		Name:  "collect",
		Usage: "download search result images for every food below the quota",
		Flags: append([]cli.Flag{
			translationsFlag(),
			imagesDirFlag(),
			&cli.IntFlag{Name: "quota", Value: 500},
			&cli.StringFlag{Name: "search-url", Value: ImageScraper.DefaultSearchURL},
			&cli.IntFlag{Name: "page-step", Value: 20},
			&cli.IntFlag{Name: "max-pages", Value: 100},
			&cli.StringFlag{Name: "checkpoint-dir", Value: "images/.checkpoints"},
			&cli.StringFlag{Name: "redis", EnvVars: []string{"WASHOKU_REDIS"}, Usage: "redis address for checkpoints, files are used when empty"},
			&cli.StringFlag{Name: "redis-password", EnvVars: []string{"WASHOKU_REDIS_PASSWORD"}},
			&cli.IntFlag{Name: "redis-db", EnvVars: []string{"WASHOKU_REDIS_DB"}},
		}, fetchFlags()...),
		Action: func(c *cli.Context) error {
			var store Dataset.CheckpointStore = Dataset.NewFileCheckpointStore(c.String("checkpoint-dir"))
			if addr := c.String("redis"); addr != "" {
				redisClient, err := Database.ConnectRedis(c.Context, addr, c.String("redis-password"), c.Int("redis-db"))
				if err != nil {
					return err
				}
				defer redisClient.Close()
				store = Database.NewRedisCheckpointStore(redisClient)
			}

			return CollectMode(c.Context, CollectConfig{
				Translations: c.String("translations"),
				ImagesDir:    c.String("images-dir"),
				Quota:        c.Int("quota"),
				SearchURL:    c.String("search-url"),
				PageStep:     c.Int("page-step"),
				MaxPages:     c.Int("max-pages"),
			}, scraperClient(c), store)
		},
	}
}

func splitCommand() *cli.Command {
	return &cli.Command{
		Name:  "split",
		Usage: "move a random 20% of train into test, then 20% of the rest into valid",
		Flags: []cli.Flag{
			imagesDirFlag(),
			&cli.Int64Flag{Name: "seed", Usage: "random seed, 0 picks one from the clock"},
			&cli.StringFlag{Name: "manifest", Value: "images/split_manifest.json"},
			&cli.BoolFlag{Name: "revert", Usage: "move valid and test back into train instead"},
		},
		Action: func(c *cli.Context) error {
			return SplitMode(SplitConfig{
				ImagesDir: c.String("images-dir"),
				Seed:      c.Int64("seed"),
				Manifest:  c.String("manifest"),
				Revert:    c.Bool("revert"),
			})
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "hash every image and push it to meilisearch",
		Flags: append([]cli.Flag{
			imagesDirFlag(),
			&cli.IntFlag{Name: "workers", Value: 8},
		}, meiliFlags()...),
		Action: func(c *cli.Context) error {
			client, err := Database.ConnectMeilisearch(c.String("meili-host"), c.String("meili-key"))
			if err != nil {
				return err
			}
			return IndexMode(c.Context, Dataset.NewLayout(c.String("images-dir")), Database.NewImageIndex(client), c.Int("workers"))
		},
	}
}

func dedupeCommand() *cli.Command {
	return &cli.Command{
		Name:  "dedupe",
		Usage: "find near-duplicate images of a split by perceptual hash",
		Flags: []cli.Flag{
			imagesDirFlag(),
			&cli.StringFlag{Name: "split", Value: string(Dataset.Train)},
			&cli.IntFlag{Name: "distance", Value: 10, Usage: "hashes closer than this are duplicates"},
			&cli.IntFlag{Name: "workers", Value: 8},
			&cli.StringFlag{Name: "report", Value: "images/duplicates.json"},
			&cli.BoolFlag{Name: "remove", Usage: "delete every group member but the first"},
		},
		Action: func(c *cli.Context) error {
			_, err := DedupeMode(c.Context, DedupeConfig{
				ImagesDir: c.String("images-dir"),
				Split:     Dataset.Split(c.String("split")),
				Distance:  c.Int("distance"),
				Workers:   c.Int("workers"),
				Report:    c.String("report"),
				Remove:    c.Bool("remove"),
			})
			return err
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the upload form and predictions",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "0.0.0.0:5000", EnvVars: []string{"WASHOKU_ADDR"}},
			&cli.StringFlag{Name: "model", Value: "models/model.onnx"},
			&cli.StringFlag{Name: "metadata", Value: "models/model_metadata.json"},
			translationsFlag(),
			imagesDirFlag(),
			&cli.StringFlag{Name: "uploads", Value: "uploads"},
			&cli.Int64Flag{Name: "max-upload", Value: 10 << 20},
			&cli.StringFlag{Name: "ort-lib", EnvVars: []string{"ONNXRUNTIME_LIB"}, Usage: "path to the onnxruntime shared library"},
		}, meiliFlags()...),
		Action: func(c *cli.Context) error {
			return ServerMode(ServerConfig{
				Addr:         c.String("addr"),
				ModelPath:    c.String("model"),
				MetadataPath: c.String("metadata"),
				Translations: c.String("translations"),
				ImagesDir:    c.String("images-dir"),
				UploadDir:    c.String("uploads"),
				MaxUpload:    c.Int64("max-upload"),
				OrtLibrary:   c.String("ort-lib"),
				MeiliHost:    c.String("meili-host"),
				MeiliKey:     c.String("meili-key"),
			})
		},
	}
}

// loadLabels returns the model's label list, falling back to the sorted translation keys
// for models exported without one.
func loadLabels(metadata Classifier.Metadata, translations string) (Classifier.Metadata, error) {
	if len(metadata.Classes) > 0 {
		return metadata, nil
	}

	log.Warn("Model metadata has no classes, deriving labels from ", translations)
	entries, err := Dataset.LoadTranslations(translations)
	if err != nil {
		return metadata, err
	}
	metadata = metadata.WithClasses(Dataset.SortedClasses(entries))
	return metadata, metadata.Validate()
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	if total <= 0 {
		// unknown length renders as a spinner
		total = -1
	}
	return progressbar.Default(int64(total), description)
}

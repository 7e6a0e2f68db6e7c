package Database

import (
	"fmt"
	"sort"
	"time"

	"github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"
)

const (
	imageIndexUID   = "images"
	versionIndexUID = "version"
)

type Migration struct {
	Version int
	Handler func(client *meilisearch.Client) error
}

var migrations = []Migration{
	{Version: 1, Handler: createImageIndex},
	{Version: 2, Handler: updateImageIndexRanking},
}

func createImageIndex(client *meilisearch.Client) error {
	task, err := client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        imageIndexUID,
		PrimaryKey: "ID",
	})
	if err != nil {
		return err
	}
	if err := WaitForMeilisearchTask(client, task); err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	task, err = client.Index(imageIndexUID).UpdateFilterableAttributes(&[]string{"ID", "Class", "Split", "PHash"})
	if err != nil {
		return err
	}
	if err := WaitForMeilisearchTask(client, task); err != nil {
		return fmt.Errorf("update filterable attributes: %w", err)
	}
	return nil
}

func updateImageIndexRanking(client *meilisearch.Client) error {
	images := client.Index(imageIndexUID)

	task, err := images.UpdateSortableAttributes(&[]string{"Added", "Size"})
	if err != nil {
		return err
	}
	if err := WaitForMeilisearchTask(client, task); err != nil {
		return fmt.Errorf("update sortable attributes: %w", err)
	}

	task, err = images.UpdateSearchableAttributes(&[]string{"Class", "Filename"})
	if err != nil {
		return err
	}
	if err := WaitForMeilisearchTask(client, task); err != nil {
		return fmt.Errorf("update searchable attributes: %w", err)
	}
	return nil
}

func currentVersion(client *meilisearch.Client) int {
	type Version struct {
		Id      int `json:"id"`
		Version int `json:"version"`
	}
	var version Version
	err := client.Index(versionIndexUID).GetDocument("1", &meilisearch.DocumentQuery{
		Fields: []string{"version"},
	}, &version)
	if err != nil {
		log.Debug("No schema version stored, assuming version 0: ", err)
		return 0
	}
	return version.Version
}

// ExecuteMigrations brings the meilisearch schema up to the latest version.
func ExecuteMigrations(client *meilisearch.Client) error {
	startTime := time.Now()
	current := currentVersion(client)
	log.Info("Current search schema version: ", current)

	var pending []Migration
	for _, migration := range migrations {
		if migration.Version > current {
			pending = append(pending, migration)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, migration := range pending {
		log.Info("Executing migration for version ", migration.Version)
		if err := migration.Handler(client); err != nil {
			return fmt.Errorf("migration %d: %w", migration.Version, err)
		}
		current = migration.Version
	}

	task, err := client.Index(versionIndexUID).UpdateDocuments(&[]map[string]int{{
		"id":      1,
		"version": current,
	}}, "id")
	if err != nil {
		return fmt.Errorf("store schema version: %w", err)
	}
	if err := WaitForMeilisearchTask(client, task); err != nil {
		return fmt.Errorf("store schema version: %w", err)
	}

	log.Info("Migrations finished in ", time.Since(startTime))
	return nil
}

// WaitForMeilisearchTask polls until the task finishes. An index that already exists counts
// as success.
func WaitForMeilisearchTask(client *meilisearch.Client, info *meilisearch.TaskInfo) error {
	for {
		task, err := client.GetTask(info.TaskUID)
		if err != nil {
			return fmt.Errorf("get task %d: %w", info.TaskUID, err)
		}
		if task.Status == "failed" {
			if task.Error.Code == "index_already_exists" {
				return nil
			}
			return fmt.Errorf("task %d failed: %s (%s)", info.TaskUID, task.Error.Message, task.Error.Code)
		}
		if task.Status == "succeeded" {
			return nil
		}
		time.Sleep(time.Millisecond * 500)
	}
}

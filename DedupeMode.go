package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"Washoku/Dataset"

	log "github.com/sirupsen/logrus"
)

type DedupeConfig struct {
	ImagesDir string
	Split     Dataset.Split
	Distance  int
	Workers   int
	Report    string
	Remove    bool
}

type DuplicateMember struct {
	Class    string `json:"class"`
	Filename string `json:"filename"`
	PHash    string `json:"phash"`
	// Distance to the first member of the group.
	Distance int  `json:"distance"`
	Removed  bool `json:"removed"`
}

type DuplicateReport struct {
	Split    Dataset.Split       `json:"split"`
	Distance int                 `json:"distance"`
	Scanned  int                 `json:"scanned"`
	Groups   [][]DuplicateMember `json:"groups"`
}

// groupDuplicates links every pair of images whose hashes are closer than maxDistance and
// returns the connected groups with more than one member. Members keep the order of images.
func groupDuplicates(images []ScannedImage, maxDistance int) [][]ScannedImage {
	parent := make([]int, len(images))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range images {
		if images[i].PHash == 0 {
			continue
		}
		for j := i + 1; j < len(images); j++ {
			if images[j].PHash == 0 {
				continue
			}
			if distance := PHashDistance(images[i].PHash, images[j].PHash); distance < maxDistance {
				log.Trace("Found possible duplicate ", images[i].Path, " and ", images[j].Path, " with distance ", distance)
				a, b := find(i), find(j)
				if a < b {
					parent[b] = a
				} else if b < a {
					parent[a] = b
				}
			}
		}
	}

	members := make(map[int][]ScannedImage)
	var roots []int
	for i := range images {
		root := find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], images[i])
	}

	var groups [][]ScannedImage
	for _, root := range roots {
		if len(members[root]) > 1 {
			groups = append(groups, members[root])
		}
	}
	return groups
}

func DedupeMode(ctx context.Context, cfg DedupeConfig) (*DuplicateReport, error) {
	log.Info("Dedupe mode launching for split ", cfg.Split)
	startTime := time.Now()

	layout := Dataset.NewLayout(cfg.ImagesDir)
	images, err := scanImages(layout, []Dataset.Split{cfg.Split}, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	groups := groupDuplicates(images, cfg.Distance)
	log.Info("Found ", len(groups), " duplicate groups among ", len(images), " images in ", time.Since(startTime))

	report := &DuplicateReport{
		Split:    cfg.Split,
		Distance: cfg.Distance,
		Scanned:  len(images),
		Groups:   make([][]DuplicateMember, 0, len(groups)),
	}
	removed := 0
	for _, group := range groups {
		var members []DuplicateMember
		for i, img := range group {
			member := DuplicateMember{
				Class:    img.Class,
				Filename: img.Filename,
				PHash:    fmt.Sprintf("%016x", img.PHash),
				Distance: PHashDistance(group[0].PHash, img.PHash),
			}
			if cfg.Remove && i > 0 {
				if err := os.Remove(img.Path); err != nil {
					log.Error("Failed to remove ", img.Path, ": ", err)
				} else {
					member.Removed = true
					removed++
				}
			}
			members = append(members, member)
		}
		report.Groups = append(report.Groups, members)
	}
	if cfg.Remove {
		log.Info("Removed ", removed, " duplicate images")
	}

	if cfg.Report != "" {
		if err := writeJSON(cfg.Report, report); err != nil {
			return report, err
		}
		log.Info("Wrote duplicate report to ", cfg.Report)
	}

	return report, nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

package main

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"image"
	"os"
	"path/filepath"
	"sync"

	"Washoku/Classifier"
	"Washoku/Dataset"

	"github.com/corona10/goimagehash"
	log "github.com/sirupsen/logrus"
)

// ScannedImage is one image file of the dataset with its content and perceptual hashes.
type ScannedImage struct {
	Split    Dataset.Split
	Class    string
	Filename string
	Path     string
	MD5      string
	Size     int64
	Width    int
	Height   int
	PHash    uint64
}

func GeneratePHash(img image.Image) (uint64, error) {
	log.Trace("Generating PHash for image with size ", img.Bounds().Size())
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, err
	}
	return hash.GetHash(), nil
}

// PHashDistance is the Hamming distance between two perceptual hashes.
func PHashDistance(a, b uint64) int {
	distance, err := goimagehash.NewImageHash(a, goimagehash.PHash).Distance(goimagehash.NewImageHash(b, goimagehash.PHash))
	if err != nil {
		// both hashes share a kind, so Distance cannot fail
		return 64
	}
	return distance
}

func scanImage(split Dataset.Split, class string, path string) (ScannedImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScannedImage{}, err
	}
	sum := md5.Sum(data)

	img, err := Classifier.DecodeImage(bytes.NewReader(data))
	if err != nil {
		return ScannedImage{}, err
	}
	hash, err := GeneratePHash(img)
	if err != nil {
		return ScannedImage{}, err
	}

	return ScannedImage{
		Split:    split,
		Class:    class,
		Filename: filepath.Base(path),
		Path:     path,
		MD5:      hex.EncodeToString(sum[:]),
		Size:     int64(len(data)),
		Width:    img.Bounds().Dx(),
		Height:   img.Bounds().Dy(),
		PHash:    hash,
	}, nil
}

// scanImages hashes every image of the given splits using up to workers goroutines. Files
// that cannot be decoded are logged and left out. The result is ordered by split, class and
// file name.
func scanImages(layout Dataset.Layout, splits []Dataset.Split, workers int) ([]ScannedImage, error) {
	type job struct {
		index int
		split Dataset.Split
		class string
		path  string
	}

	var jobs []job
	for _, split := range splits {
		classes, err := layout.Classes(split)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, class := range classes {
			files, err := layout.Files(split, class)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				jobs = append(jobs, job{
					index: len(jobs),
					split: split,
					class: class,
					path:  filepath.Join(layout.ClassDir(split, class), f),
				})
			}
		}
	}

	if workers < 1 {
		workers = 1
	}

	results := make([]*ScannedImage, len(jobs))
	pbar := newProgressBar(len(jobs), "Hashing...")
	queue := make(chan job)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				scanned, err := scanImage(j.split, j.class, j.path)
				if err != nil {
					log.Warn("Skipping ", j.path, ": ", err)
				} else {
					results[j.index] = &scanned
				}
				_ = pbar.Add(1)
			}
		}()
	}

	for _, j := range jobs {
		queue <- j
	}
	close(queue)
	wg.Wait()
	_ = pbar.Finish()

	scanned := make([]ScannedImage, 0, len(results))
	for _, r := range results {
		if r != nil {
			scanned = append(scanned, *r)
		}
	}
	return scanned, nil
}

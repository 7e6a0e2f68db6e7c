package Dataset

import (
	"fmt"
	"os"
	"path/filepath"
)

// ImageName is the file name of the image gathered at position index of a class's search
// results. The same URL position always maps to the same file.
func ImageName(class string, index int) string {
	return fmt.Sprintf("%s_%d.jpg", class, index)
}

// ImageExists reports whether name is already present in dir.
func ImageExists(dir string, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

package Dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Translation maps a romanized food name (the class) to the term used for image search.
type Translation struct {
	Class string
	Term  string
}

// LoadTranslations reads a flat JSON object of class -> search term, keeping the order in
// which classes appear in the file.
func LoadTranslations(path string) ([]Translation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("read %s: expected a JSON object", path)
	}

	var translations []Translation
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		class := tok.(string)

		var term string
		if err := dec.Decode(&term); err != nil {
			return nil, fmt.Errorf("read %s: value of %q: %w", path, class, err)
		}

		// a repeated key overrides the earlier value, as in a plain map
		if i, ok := seen[class]; ok {
			translations[i].Term = term
			continue
		}
		seen[class] = len(translations)
		translations = append(translations, Translation{Class: class, Term: term})
	}

	return translations, nil
}

// SortedClasses returns the class names of translations in lexical order.
func SortedClasses(translations []Translation) []string {
	classes := make([]string, 0, len(translations))
	for _, t := range translations {
		classes = append(classes, t.Class)
	}
	sort.Strings(classes)
	return classes
}

// WriteFoodList writes names as a single CSV row with every field quoted.
func WriteFoodList(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}

	return os.WriteFile(path, []byte(strings.Join(quoted, ",")+"\r\n"), 0o644)
}

package ImageScraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultSearchURL = "https://search.yahoo.co.jp/image/search"

type SearchOptions struct {
	BaseURL string
	Term    string
	// Gathering stops once more than Quota distinct URLs are known.
	Quota       int
	StartOffset int
	PageStep    int
	// MaxPages bounds the number of result pages fetched in one call, 0 means unbounded.
	MaxPages int
}

// URLSet is a set of URLs that remembers insertion order.
type URLSet struct {
	urls []string
	seen map[string]struct{}
}

func NewURLSet(urls ...string) *URLSet {
	s := &URLSet{seen: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts u and reports whether it was new.
func (s *URLSet) Add(u string) bool {
	if _, ok := s.seen[u]; ok {
		return false
	}
	s.seen[u] = struct{}{}
	s.urls = append(s.urls, u)
	return true
}

func (s *URLSet) Len() int {
	return len(s.urls)
}

func (s *URLSet) URLs() []string {
	out := make([]string, len(s.urls))
	copy(out, s.urls)
	return out
}

func SearchPageURL(base string, term string, offset int) string {
	return base + "?p=" + url.QueryEscape(term) + "&ei=UTF-8&b=" + strconv.Itoa(offset)
}

// ParseImageSources returns the src of every <img> on a result page except the last one,
// which is the search engine's own footer image. Empty sources are ignored.
func ParseImageSources(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var sources []string
	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.Img {
			return
		}
		src, _ := attr(n, "src")
		sources = append(sources, src)
	})

	if len(sources) == 0 {
		return nil, nil
	}
	sources = sources[:len(sources)-1]

	out := sources[:0]
	for _, src := range sources {
		if src != "" {
			out = append(out, src)
		}
	}
	return out, nil
}

// GatherImageURLs pages through search results starting at opts.StartOffset and adds every
// image URL to set until set holds more than opts.Quota URLs. afterPage is called with the
// offset of the next unfetched page once a page has been merged, so callers can checkpoint.
// It returns the next offset.
func GatherImageURLs(ctx context.Context, client *Client, opts SearchOptions, set *URLSet, afterPage func(nextOffset int) error) (int, error) {
	offset := opts.StartOffset
	if offset < 1 {
		offset = 1
	}
	step := opts.PageStep
	if step < 1 {
		step = 20
	}

	for pages := 0; set.Len() <= opts.Quota; pages++ {
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			log.Warn("Reached page limit for ", opts.Term, " with ", set.Len(), " distinct URLs")
			break
		}

		pageURL := SearchPageURL(opts.BaseURL, opts.Term, offset)
		body, err := client.Fetch(ctx, pageURL)
		if err != nil {
			return offset, err
		}

		sources, err := ParseImageSources(bytes.NewReader(body))
		if err != nil {
			return offset, fmt.Errorf("parse %s: %w", pageURL, err)
		}

		added := 0
		for _, src := range sources {
			if set.Add(src) {
				added++
			}
		}
		offset += step
		log.Debug("Page ", pageURL, " gave ", added, " new URLs, ", set.Len(), " total")

		if afterPage != nil {
			if err := afterPage(offset); err != nil {
				return offset, err
			}
		}

		if added == 0 {
			log.Warn("Search results for ", opts.Term, " ran dry at ", set.Len(), " distinct URLs")
			break
		}
	}

	return offset, nil
}

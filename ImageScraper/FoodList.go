package ImageScraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const foodHeadingClass = "redLink"

// ListingPageURL returns the URL of a page of the food listing. Page 1 is the base URL,
// later pages carry a "-partN" suffix.
func ListingPageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	return fmt.Sprintf("%s-part%d", base, page)
}

// DiscoverFoodNames fetches pages 1..pages of the listing and returns every food heading
// in page order. Names repeated across pages are kept.
func DiscoverFoodNames(ctx context.Context, client *Client, base string, pages int) ([]string, error) {
	var names []string
	for page := 1; page <= pages; page++ {
		url := ListingPageURL(base, page)
		log.Info("Fetching food listing page ", url)

		body, err := client.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}

		found, err := ParseFoodNames(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", url, err)
		}
		log.Debug("Found ", len(found), " food names on ", url)
		names = append(names, found...)
	}

	return names, nil
}

// ParseFoodNames extracts the text of every <h2 class="redLink"> heading with its leading
// token (the list number) removed.
func ParseFoodNames(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var names []string
	walk(doc, func(n *html.Node) {
		if n.DataAtom != atom.H2 || !hasClass(n, foodHeadingClass) {
			return
		}
		fields := strings.Fields(textContent(n))
		if len(fields) < 2 {
			return
		}
		names = append(names, strings.Join(fields[1:], " "))
	})

	return names, nil
}

func walk(n *html.Node, visit func(*html.Node)) {
	if n.Type == html.ElementNode {
		visit(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasClass(n *html.Node, class string) bool {
	value, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(value) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return sb.String()
}

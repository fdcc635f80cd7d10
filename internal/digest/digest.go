// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Package digest post-processes a generated NewsMap site before it is published.

A NewsMap page is an illustration with numbered markers. Each marker carries
one story:

	<div class="news-marker" style="top: 20%; left: 30%;">
	  <div class="marker-number">1</div>
	  <div class="summary-box popup-down popup-center">
	    <h3>Story title</h3>
	    <span class="source">Source</span>
	    <div class="mnemonic-hint">...</div>
	    <p>Description...</p>
	    <a href="https://example.com/story" target="_blank">Read Story</a>
	  </div>
	</div>

ExtractStories reads that structure back, WriteFeed turns it into an Atom
feed and MinifyPages shrinks the HTML in place.
*/
package digest

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/feeds"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
)

// Possible errors, used in tests.
var (
	errNoStories  = errors.New("no stories found")
	errInvalidURL = errors.New("invalid site URL")
)

// Page is a generated NewsMap page.
type Page struct {
	Title   string
	Image   string // illustration path, relative to the page
	Stories []Story
}

// Story is a single marker on a page.
type Story struct {
	ID      int
	Title   string
	Source  string
	Summary string
	URL     string
}

// ExtractStories parses a generated page.
func ExtractStories(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	p := &Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	p.Image, _ = doc.Find("img.main-image").First().Attr("src")

	doc.Find(".news-marker").Each(func(i int, s *goquery.Selection) {
		st := Story{
			ID:      i + 1,
			Title:   clean(s.Find("h3").First().Text()),
			Source:  clean(s.Find(".source").First().Text()),
			Summary: clean(s.Find("p").First().Text()),
		}
		if n, err := strconv.Atoi(clean(s.Find(".marker-number").First().Text())); err == nil {
			st.ID = n
		}
		if href, ok := s.Find("a[href]").First().Attr("href"); ok && href != "#" {
			st.URL = href
		}
		p.Stories = append(p.Stories, st)
	})
	if len(p.Stories) == 0 {
		return nil, errNoStories
	}
	return p, nil
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FeedConfig describes the feed built from a page.
type FeedConfig struct {
	// Title of the feed. If empty, the page title is used.
	Title string
	// SiteURL is the public URL of the published site.
	SiteURL string
	// Author is the feed author name. Optional.
	Author string
}

// FeedFile is the name of the generated feed.
const FeedFile = "feed.xml"

// WriteFeed writes an Atom feed for page into dir.
func WriteFeed(dir string, c FeedConfig, page *Page, now time.Time) error {
	site, err := url.Parse(c.SiteURL)
	if err != nil || site.Scheme == "" || site.Host == "" {
		return fmt.Errorf("%w: %q", errInvalidURL, c.SiteURL)
	}

	title := c.Title
	if title == "" {
		title = page.Title
	}

	feed := &feeds.Feed{
		Title:   title,
		Link:    &feeds.Link{Href: site.String()},
		Id:      site.String(),
		Created: now,
		Updated: now,
	}
	if c.Author != "" {
		feed.Author = &feeds.Author{Name: c.Author}
	}

	day := now.Format("2006-01-02")
	for _, st := range page.Stories {
		link := st.URL
		if link == "" {
			link = site.String()
		}
		item := &feeds.Item{
			Title:       st.Title,
			Link:        &feeds.Link{Href: link},
			Id:          fmt.Sprintf("%s#%s-%d", site.String(), day, st.ID),
			Description: st.Summary,
			Created:     now,
		}
		if st.Source != "" {
			item.Author = &feeds.Author{Name: st.Source}
		}
		feed.Items = append(feed.Items, item)
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FeedFile), []byte(atom), 0o644)
}

// ReadPage extracts stories from the page at path.
func ReadPage(path string) (*Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := ExtractStories(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func newMinifier() *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepDefaultAttrVals: true,
		KeepEndTags:         true,
	})
	return m
}

// MinifyPages minifies every HTML file directly inside dir, in place, and
// returns the names of the files it rewrote.
func MinifyPages(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, err
	}
	m := newMinifier()

	var rewritten []string
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			return rewritten, err
		}
		out, err := m.Bytes("text/html", b)
		if err != nil {
			return rewritten, fmt.Errorf("%s: %w", path, err)
		}
		if len(out) == len(b) {
			continue
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return rewritten, err
		}
		rewritten = append(rewritten, filepath.Base(path))
	}
	return rewritten, nil
}

package extract_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/extract"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher() fetcher.Fetcher {
	return fetcher.New(fetcher.Config{Timeout: 5 * time.Second})
}

func TestExtractor_EnrichAll(t *testing.T) {
	t.Run("Album item gains album tags from its own page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<html><body><a class="tag">ambient</a><a class="tag">idm</a></body></html>`)
		}))
		defer server.Close()

		e := extract.New(newTestFetcher(), 3, 0)

		items := e.EnrichAll(context.Background(), []feed.Item{{
			"item_type": "a",
			"url":       server.URL + "/album/geogaddi",
		}})
		require.Len(t, items, 1)

		assert.Equal(t, []string{"ambient", "idm"}, items[0][extract.FieldAlbumTags])
		assert.Nil(t, items[0][extract.FieldTrackTags])
	})

	t.Run("Track in album gains track tags, album url and album tags", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/track/roygbiv", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<html><body>
				<a class="tag">electronic</a>
				<a id="buyAlbumLink" href="/album/music-has-the-right">buy album</a>
			</body></html>`)
		})
		mux.HandleFunc("/album/music-has-the-right", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<html><body><a class="tag">idm</a></body></html>`)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		e := extract.New(newTestFetcher(), 3, 0)

		items := e.EnrichAll(context.Background(), []feed.Item{{
			"item_type":   "t",
			"url":         server.URL + "/track/roygbiv",
			"album_title": "Music Has the Right to Children",
		}})
		require.Len(t, items, 1)

		item := items[0]
		assert.Equal(t, []string{"electronic"}, item[extract.FieldTrackTags])
		assert.Equal(t, server.URL+"/album/music-has-the-right", item[extract.FieldAlbumURL])
		assert.Equal(t, []string{"idm"}, item[extract.FieldAlbumTags])
	})

	t.Run("Standalone track does not look up an album page", func(t *testing.T) {
		var albumPageHits int
		mux := http.NewServeMux()
		mux.HandleFunc("/track/one-off", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<html><body><a class="tag">noise</a><a id="buyAlbumLink" href="/album/x">buy</a></body></html>`)
		})
		mux.HandleFunc("/album/", func(w http.ResponseWriter, r *http.Request) {
			albumPageHits++
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		e := extract.New(newTestFetcher(), 3, 0)

		items := e.EnrichAll(context.Background(), []feed.Item{{
			"item_type": "t",
			"url":       server.URL + "/track/one-off",
		}})
		require.Len(t, items, 1)

		assert.Equal(t, []string{"noise"}, items[0][extract.FieldTrackTags])
		assert.Nil(t, items[0][extract.FieldAlbumURL])
		assert.Zero(t, albumPageHits)
	})

	t.Run("One failing scrape does not abort sibling enrichments", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/album/ok", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<html><body><a class="tag">dub</a></body></html>`)
		})
		mux.HandleFunc("/album/gone", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		e := extract.New(newTestFetcher(), 3, 0)

		items := e.EnrichAll(context.Background(), []feed.Item{
			{"item_type": "a", "url": server.URL + "/album/gone"},
			{"item_type": "a", "url": server.URL + "/album/ok"},
		})
		require.Len(t, items, 2)

		assert.Nil(t, items[0][extract.FieldAlbumTags])
		assert.Equal(t, []string{"dub"}, items[1][extract.FieldAlbumTags])
	})

	t.Run("In-flight page fetches never exceed the configured bound", func(t *testing.T) {
		const maxConcurrent = 3

		var mu sync.Mutex
		var inFlight, peak int

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			inFlight++
			if inFlight > peak {
				peak = inFlight
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()

			_, _ = fmt.Fprint(w, `<html><body><a class="tag">tag</a></body></html>`)
		}))
		defer server.Close()

		e := extract.New(newTestFetcher(), maxConcurrent, 0)

		items := make([]feed.Item, 0, 12)
		for i := 0; i < 12; i++ {
			items = append(items, feed.Item{
				"item_type": "a",
				"url":       fmt.Sprintf("%s/album/%d", server.URL, i),
			})
		}

		results := e.EnrichAll(context.Background(), items)
		require.Len(t, results, 12)

		assert.LessOrEqual(t, peak, maxConcurrent, "concurrent fetches exceeded the semaphore bound")
	})

	t.Run("Empty input returns an empty result", func(t *testing.T) {
		e := extract.New(newTestFetcher(), 3, 0)
		assert.Empty(t, e.EnrichAll(context.Background(), nil))
	})
}

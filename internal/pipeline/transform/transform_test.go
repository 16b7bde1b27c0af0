package transform_test

import (
	"testing"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/transform"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertTimestamp(t *testing.T) {
	t.Run("Converts a float unix timestamp to a UTC time with second precision", func(t *testing.T) {
		ts, err := transform.ConvertTimestamp(1718801551.04217)
		require.NoError(t, err)
		assert.Equal(t, "2024-06-19 12:52:31", ts.Format(transform.TimestampLayout))
		assert.Equal(t, time.UTC, ts.Location())
	})

	t.Run("Accepts integer timestamps", func(t *testing.T) {
		ts, err := transform.ConvertTimestamp(int64(1718801551))
		require.NoError(t, err)
		assert.Equal(t, "2024-06-19 12:52:31", ts.Format(transform.TimestampLayout))
	})

	t.Run("Rejects non-numeric input", func(t *testing.T) {
		_, err := transform.ConvertTimestamp("1718801551")
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.InvalidInput))
	})

	t.Run("Rejects negative values", func(t *testing.T) {
		_, err := transform.ConvertTimestamp(-1.0)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.InvalidInput))
	})

	t.Run("Rejects timestamps in the future", func(t *testing.T) {
		future := float64(time.Now().Add(time.Hour).Unix())
		_, err := transform.ConvertTimestamp(future)
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.InvalidInput))
	})
}

func TestNormalizeURL(t *testing.T) {
	assert.Equal(t, "https://artist.bandcamp.com/album/geogaddi", transform.NormalizeURL("//artist.bandcamp.com/album/geogaddi"))
	assert.Equal(t, "https://artist.bandcamp.com", transform.NormalizeURL("https://artist.bandcamp.com"))
	assert.Equal(t, "http://artist.bandcamp.com", transform.NormalizeURL("http://artist.bandcamp.com"))
}

func TestStemURL(t *testing.T) {
	t.Run("Strips the last two path segments", func(t *testing.T) {
		assert.Equal(t, "https://artist.bandcamp.com", transform.StemURL("https://artist.bandcamp.com/album/geogaddi"))
		assert.Equal(t, "//artist.bandcamp.com", transform.StemURL("//artist.bandcamp.com/track/roygbiv"))
	})

	t.Run("Returns the input unchanged when there are not enough segments", func(t *testing.T) {
		assert.Equal(t, "bandcamp.com", transform.StemURL("bandcamp.com"))
		assert.Equal(t, "a/b", transform.StemURL("a/b"))
	})

	t.Run("Does not count the scheme as path segments", func(t *testing.T) {
		assert.Equal(t, "https://x.com/a", transform.StemURL("https://x.com/a"))
		assert.Equal(t, "https://x.com", transform.StemURL("https://x.com"))
		assert.Equal(t, "http://x.com/a", transform.StemURL("http://x.com/a"))
		assert.Equal(t, "//x.com/a", transform.StemURL("//x.com/a"))
	})
}

func TestCleanTags(t *testing.T) {
	t.Run("Strips hashes, trims and lowercases", func(t *testing.T) {
		got := transform.CleanTags([]string{"#Ambient", "  IDM  ", "#  Post-Rock "})
		assert.Equal(t, []string{"ambient", "idm", "post-rock"}, got)
	})

	t.Run("Strips hashes revealed after trimming surrounding whitespace", func(t *testing.T) {
		got := transform.CleanTags([]string{" #Rock ", "##Jazz"})
		assert.Equal(t, []string{"rock", "jazz"}, got)
	})

	t.Run("Drops tags that normalize to empty", func(t *testing.T) {
		got := transform.CleanTags([]string{"#", "   ", "drone"})
		assert.Equal(t, []string{"drone"}, got)
	})

	t.Run("Nil input normalizes to an empty list", func(t *testing.T) {
		got := transform.CleanTags(nil)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestTransform(t *testing.T) {
	t.Run("Produces one canonical record per item in input order", func(t *testing.T) {
		items := []feed.Item{
			{
				"item_type":        "a",
				"url":              "//boc.bandcamp.com/album/geogaddi",
				"artist_name":      "Boards of Canada",
				"item_description": "Geogaddi",
				"country":          "United Kingdom",
				"amount_paid_usd":  9.99,
				"utc_date":         1718801551.04217,
				"album_tags":       []string{"#IDM", " Ambient "},
			},
			{
				"item_type":        "t",
				"url":              "//boc.bandcamp.com/track/roygbiv",
				"artist_name":      "Boards of Canada",
				"item_description": "Roygbiv",
				"album_title":      "Music Has the Right to Children",
				"album_url":        "//boc.bandcamp.com/album/music-has-the-right",
				"country":          "Canada",
				"amount_paid_usd":  1.5,
				"utc_date":         1718801000.0,
				"track_tags":       []string{"electronic"},
				// presentational noise carried by the raw feed
				"currency":        "GBP",
				"amount_paid_fmt": "£7.99",
				"art_id":          123456,
			},
		}

		sales, err := transform.Transform(items)
		require.NoError(t, err)
		require.Len(t, sales, 2)

		album := sales[0]
		assert.Equal(t, "a", album.ItemType)
		assert.Equal(t, "https://boc.bandcamp.com/album/geogaddi", album.URL)
		assert.Equal(t, "https://boc.bandcamp.com", album.ArtistURL)
		assert.Equal(t, "Geogaddi", album.Title)
		assert.Equal(t, []string{"idm", "ambient"}, album.AlbumTags)
		assert.Empty(t, album.TrackTags)
		assert.Equal(t, "2024-06-19 12:52:31", album.Timestamp.Format(transform.TimestampLayout))
		assert.False(t, album.IsStandaloneTrack())

		track := sales[1]
		assert.Equal(t, "t", track.ItemType)
		assert.Equal(t, "Music Has the Right to Children", track.AlbumTitle)
		assert.Equal(t, "https://boc.bandcamp.com/album/music-has-the-right", track.AlbumURL)
		assert.Equal(t, []string{"electronic"}, track.TrackTags)
		assert.InDelta(t, 1.5, track.AmountUSD, 0.001)
		assert.False(t, track.IsStandaloneTrack())
	})

	t.Run("Standalone track has no album title", func(t *testing.T) {
		sales, err := transform.Transform([]feed.Item{{
			"item_type": "t",
			"url":       "//solo.bandcamp.com/track/one-off",
			"utc_date":  1718801000.0,
		}})
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.True(t, sales[0].IsStandaloneTrack())
	})

	t.Run("Invalid timestamp aborts the whole transform", func(t *testing.T) {
		_, err := transform.Transform([]feed.Item{{
			"item_type": "a",
			"url":       "//boc.bandcamp.com/album/geogaddi",
			"utc_date":  "not-a-number",
		}})
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.InvalidInput))
	})
}

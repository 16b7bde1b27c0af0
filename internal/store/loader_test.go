package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/transform"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow pgx.Row 구현체, 단일 ID 값 또는 에러를 반환한다.
type fakeRow struct {
	id  int64
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("unexpected scan destination count: %d", len(dest))
	}
	p, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unexpected scan destination type: %T", dest[0])
	}
	*p = r.id
	return nil
}

type purchaseRecord struct {
	itemID    int64
	timestamp time.Time
	amountUSD float64
	countryID int64
}

// fakeDB Querier 구현체, 적재 로직이 실행하는 SQL을 자연 키 기반의 인메모리 맵으로 흉내낸다.
type fakeDB struct {
	nextID int64

	artists   map[string]int64
	countries map[string]int64
	albums    map[string]int64
	tracks    map[string]int64
	tags      map[string]int64

	albumTagAssignments map[string]bool
	trackTagAssignments map[string]bool

	albumPurchases []purchaseRecord
	trackPurchases []purchaseRecord

	// failOnSQL이 비어있지 않으면 해당 문자열을 포함하는 SQL 실행이 실패한다.
	failOnSQL string
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		artists:             map[string]int64{},
		countries:           map[string]int64{},
		albums:              map[string]int64{},
		tracks:              map[string]int64{},
		tags:                map[string]int64{},
		albumTagAssignments: map[string]bool{},
		trackTagAssignments: map[string]bool{},
	}
}

func (db *fakeDB) allocID() int64 {
	db.nextID++
	return db.nextID
}

func key(parts ...any) string {
	ss := make([]string, 0, len(parts))
	for _, p := range parts {
		ss = append(ss, fmt.Sprint(p))
	}
	return strings.Join(ss, "|")
}

func (db *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if db.failOnSQL != "" && strings.Contains(sql, db.failOnSQL) {
		return pgconn.CommandTag{}, fmt.Errorf("fake database failure on %q", db.failOnSQL)
	}

	switch {
	case strings.Contains(sql, "INSERT INTO album_tag_assignment"):
		db.albumTagAssignments[key(args[0], args[1])] = true
	case strings.Contains(sql, "INSERT INTO track_tag_assignment"):
		db.trackTagAssignments[key(args[0], args[1])] = true
	case strings.Contains(sql, "INSERT INTO album_purchase"):
		db.albumPurchases = append(db.albumPurchases, purchaseRecord{
			itemID:    args[0].(int64),
			timestamp: args[1].(time.Time),
			amountUSD: args[2].(float64),
			countryID: args[3].(int64),
		})
	case strings.Contains(sql, "INSERT INTO track_purchase"):
		db.trackPurchases = append(db.trackPurchases, purchaseRecord{
			itemID:    args[0].(int64),
			timestamp: args[1].(time.Time),
			amountUSD: args[2].(float64),
			countryID: args[3].(int64),
		})
	default:
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec sql: %s", sql)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("query is not used by the loader")
}

func (db *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if db.failOnSQL != "" && strings.Contains(sql, db.failOnSQL) {
		return fakeRow{err: fmt.Errorf("fake database failure on %q", db.failOnSQL)}
	}

	table := db.tableFor(sql)
	if table == nil {
		return fakeRow{err: fmt.Errorf("unexpected query sql: %s", sql)}
	}

	k := db.naturalKey(sql, args)
	if strings.HasPrefix(strings.TrimSpace(sql), "SELECT") {
		if id, ok := table[k]; ok {
			return fakeRow{id: id}
		}
		return fakeRow{err: pgx.ErrNoRows}
	}

	id := db.allocID()
	table[k] = id
	return fakeRow{id: id}
}

func (db *fakeDB) tableFor(sql string) map[string]int64 {
	switch {
	case strings.Contains(sql, "album_tag_assignment"):
		return boolToIDMap(db.albumTagAssignments)
	case strings.Contains(sql, "track_tag_assignment"):
		return boolToIDMap(db.trackTagAssignments)
	case strings.Contains(sql, "FROM artist") || strings.Contains(sql, "INTO artist"):
		return db.artists
	case strings.Contains(sql, "FROM country") || strings.Contains(sql, "INTO country"):
		return db.countries
	case strings.Contains(sql, "FROM album") || strings.Contains(sql, "INTO album"):
		return db.albums
	case strings.Contains(sql, "FROM track") || strings.Contains(sql, "INTO track"):
		return db.tracks
	case strings.Contains(sql, "FROM tag") || strings.Contains(sql, "INTO tag"):
		return db.tags
	}
	return nil
}

// boolToIDMap 연결 테이블의 존재 여부 조회를 ID 맵 조회로 변환한다.
// 연결 행의 ID 값 자체는 적재 로직에서 사용되지 않는다.
func boolToIDMap(assignments map[string]bool) map[string]int64 {
	m := make(map[string]int64, len(assignments))
	for k := range assignments {
		m[k] = 1
	}
	return m
}

// naturalKey 트랙의 INSERT는 SELECT와 달리 album_id 인자를 포함하므로,
// 양쪽 모두에서 동일한 자연 키 (title, artist_id, url)를 추출한다.
func (db *fakeDB) naturalKey(sql string, args []any) string {
	if strings.Contains(sql, "INSERT INTO track(") {
		return key(args[0], args[1], args[3])
	}
	return key(args...)
}

func albumSale(title string) transform.CanonicalSale {
	return transform.CanonicalSale{
		ItemType:   "a",
		URL:        "https://artist.bandcamp.com/album/" + title,
		ArtistURL:  "https://artist.bandcamp.com",
		ArtistName: "roygbiv",
		Title:      title,
		Country:    "United Kingdom",
		AmountUSD:  7.5,
		Timestamp:  time.Date(2024, 6, 19, 12, 52, 31, 0, time.UTC),
		AlbumTags:  []string{"idm", "ambient"},
	}
}

func trackSale(title string) transform.CanonicalSale {
	return transform.CanonicalSale{
		ItemType:   "t",
		URL:        "https://artist.bandcamp.com/track/" + title,
		ArtistURL:  "https://artist.bandcamp.com",
		ArtistName: "roygbiv",
		Title:      title,
		AlbumTitle: "music has the right",
		AlbumURL:   "https://artist.bandcamp.com/album/music-has-the-right",
		Country:    "France",
		AmountUSD:  1.25,
		Timestamp:  time.Date(2024, 6, 19, 12, 53, 2, 0, time.UTC),
		TrackTags:  []string{"electronic"},
	}
}

func TestLoadSales(t *testing.T) {
	t.Run("loads an album sale with artist, country, tags and a purchase row", func(t *testing.T) {
		db := newFakeDB()

		result, err := loadSales(context.Background(), db, []transform.CanonicalSale{albumSale("lp5")})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Loaded)
		assert.Equal(t, 0, result.Skipped)
		assert.Len(t, db.artists, 1)
		assert.Len(t, db.countries, 1)
		assert.Len(t, db.albums, 1)
		assert.Len(t, db.tags, 2)
		assert.Len(t, db.albumTagAssignments, 2)
		assert.Len(t, db.albumPurchases, 1)
		assert.Empty(t, db.trackPurchases)
	})

	t.Run("loads a track sale under its album and the album row is shared", func(t *testing.T) {
		db := newFakeDB()

		sales := []transform.CanonicalSale{trackSale("roygbiv"), trackSale("windowlicker")}
		result, err := loadSales(context.Background(), db, sales)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Loaded)
		assert.Len(t, db.albums, 1, "both tracks reference the same album row")
		assert.Len(t, db.tracks, 2)
		assert.Len(t, db.trackPurchases, 2)
	})

	t.Run("loads a standalone track sale without an album row", func(t *testing.T) {
		db := newFakeDB()

		sale := trackSale("standalone")
		sale.AlbumTitle = ""
		sale.AlbumURL = ""

		result, err := loadSales(context.Background(), db, []transform.CanonicalSale{sale})
		require.NoError(t, err)

		assert.Equal(t, 1, result.Loaded)
		assert.Empty(t, db.albums)
		assert.Len(t, db.tracks, 1)
		assert.Len(t, db.trackPurchases, 1)
	})

	t.Run("reloading the same sale reuses reference rows but appends a purchase row", func(t *testing.T) {
		db := newFakeDB()

		_, err := loadSales(context.Background(), db, []transform.CanonicalSale{albumSale("lp5")})
		require.NoError(t, err)
		_, err = loadSales(context.Background(), db, []transform.CanonicalSale{albumSale("lp5")})
		require.NoError(t, err)

		assert.Len(t, db.artists, 1)
		assert.Len(t, db.albums, 1)
		assert.Len(t, db.tags, 2)
		assert.Len(t, db.albumTagAssignments, 2)
		assert.Len(t, db.albumPurchases, 2, "purchases are never deduplicated")
	})

	t.Run("skips incomplete sales and keeps loading the rest of the batch", func(t *testing.T) {
		db := newFakeDB()

		tagless := albumSale("untagged")
		tagless.AlbumTags = nil

		urlless := trackSale("no-album-url")
		urlless.AlbumURL = ""

		sales := []transform.CanonicalSale{tagless, urlless, albumSale("lp5")}
		result, err := loadSales(context.Background(), db, sales)
		require.NoError(t, err)

		assert.Equal(t, 1, result.Loaded)
		assert.Equal(t, 2, result.Skipped)
		assert.Len(t, db.albumPurchases, 1)
		assert.Empty(t, db.trackPurchases)
	})

	t.Run("skips sales with an unknown item type", func(t *testing.T) {
		db := newFakeDB()

		sale := albumSale("merch")
		sale.ItemType = "p"

		result, err := loadSales(context.Background(), db, []transform.CanonicalSale{sale})
		require.NoError(t, err)

		assert.Equal(t, 0, result.Loaded)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("returns an error when a database statement fails", func(t *testing.T) {
		db := newFakeDB()
		db.failOnSQL = "INSERT INTO album_purchase"

		_, err := loadSales(context.Background(), db, []transform.CanonicalSale{albumSale("lp5")})
		require.Error(t, err)

		assert.Contains(t, err.Error(), "적재 중 에러가 발생했습니다")
	})
}

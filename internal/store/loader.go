package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/transform"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/jackc/pgx/v5"
)

// LoadResult 적재 배치 하나의 처리 결과 요약
type LoadResult struct {
	// Loaded 적재에 성공한 판매 레코드 수
	Loaded int

	// Skipped 필수 필드 누락으로 건너뛴 판매 레코드 수
	Skipped int
}

// LoadSales 정규화된 판매 레코드 배치를 하나의 트랜잭션으로 적재합니다.
//
// 배치 전체가 단일 트랜잭션으로 처리되며, 데이터베이스 에러가 발생하면
// 전체 배치를 롤백하고 에러를 반환합니다. 부분 커밋은 발생하지 않습니다.
//
// 필수 필드가 누락된 판매 레코드는 에러가 아니며, 경고 로그와 함께 건너뛰고
// 배치의 나머지 레코드는 계속 적재됩니다.
func (s *Store) LoadSales(ctx context.Context, sales []transform.CanonicalSale) (LoadResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return LoadResult{}, apperrors.Wrap(err, apperrors.Unavailable, "적재 트랜잭션 시작에 실패했습니다")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	result, err := loadSales(ctx, tx, sales)
	if err != nil {
		return LoadResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return LoadResult{}, apperrors.Wrap(err, apperrors.Unavailable, "적재 트랜잭션 커밋에 실패했습니다")
	}

	return result, nil
}

// loadSales 판매 레코드들을 순차 처리합니다. 트랜잭션 경계는 호출자가 관리합니다.
func loadSales(ctx context.Context, q Querier, sales []transform.CanonicalSale) (LoadResult, error) {
	var result LoadResult

	for i := range sales {
		sale := &sales[i]

		var loaded bool
		var err error

		// 판매 형태별 적재 경로 분기
		switch {
		case sale.ItemType == feed.ItemTypeAlbum:
			loaded, err = insertAlbumSale(ctx, q, sale)

		case sale.ItemType == feed.ItemTypeTrack && sale.AlbumTitle != "":
			loaded, err = insertTrackSale(ctx, q, sale)

		case sale.ItemType == feed.ItemTypeTrack:
			loaded, err = insertSingleSale(ctx, q, sale)

		default:
			applog.WithComponent(component).WithFields(applog.Fields{
				"item_type": sale.ItemType,
				"url":       sale.URL,
			}).Warn("알 수 없는 판매 형태이므로 적재를 건너뜁니다")
			result.Skipped++
			continue
		}

		if err != nil {
			return LoadResult{}, apperrors.Wrap(err, apperrors.ExecutionFailed, fmt.Sprintf("판매 레코드(%s) 적재 중 에러가 발생했습니다", sale.URL))
		}

		if loaded {
			result.Loaded++
		} else {
			result.Skipped++
		}
	}

	return result, nil
}

// insertAlbumSale 앨범 판매를 적재합니다. 앨범 태그가 없으면 건너뜁니다.
func insertAlbumSale(ctx context.Context, q Querier, sale *transform.CanonicalSale) (bool, error) {
	if len(sale.AlbumTags) == 0 {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url": sale.URL,
		}).Warn("앨범 태그가 없는 앨범 판매는 적재하지 않습니다")
		return false, nil
	}

	countryID, err := getOrInsertCountry(ctx, q, sale.Country)
	if err != nil {
		return false, err
	}

	artistID, err := getOrInsertArtist(ctx, q, sale.ArtistName, sale.ArtistURL)
	if err != nil {
		return false, err
	}

	albumID, err := getOrInsertAlbum(ctx, q, sale.Title, artistID, sale.URL)
	if err != nil {
		return false, err
	}

	for _, tag := range sale.AlbumTags {
		if err := assignTagToAlbum(ctx, q, tag, albumID); err != nil {
			return false, err
		}
	}

	return true, insertAlbumPurchase(ctx, q, albumID, sale, countryID)
}

// insertTrackSale 앨범 수록 트랙의 판매를 적재합니다.
// 앨범 URL 또는 트랙 태그가 없으면 건너뜁니다.
func insertTrackSale(ctx context.Context, q Querier, sale *transform.CanonicalSale) (bool, error) {
	if sale.AlbumURL == "" || len(sale.TrackTags) == 0 {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url": sale.URL,
		}).Warn("앨범 URL 또는 트랙 태그가 없는 트랙 판매는 적재하지 않습니다")
		return false, nil
	}

	countryID, err := getOrInsertCountry(ctx, q, sale.Country)
	if err != nil {
		return false, err
	}

	artistID, err := getOrInsertArtist(ctx, q, sale.ArtistName, sale.ArtistURL)
	if err != nil {
		return false, err
	}

	albumID, err := getOrInsertAlbum(ctx, q, sale.AlbumTitle, artistID, sale.AlbumURL)
	if err != nil {
		return false, err
	}

	trackID, err := getOrInsertTrack(ctx, q, sale.Title, artistID, sale.URL, &albumID)
	if err != nil {
		return false, err
	}

	for _, tag := range sale.TrackTags {
		if err := assignTagToTrack(ctx, q, tag, trackID); err != nil {
			return false, err
		}
	}

	return true, insertTrackPurchase(ctx, q, trackID, sale, countryID)
}

// insertSingleSale 앨범에 소속되지 않은 독립 싱글 트랙의 판매를 적재합니다.
// 트랙 태그가 없으면 건너뜁니다.
func insertSingleSale(ctx context.Context, q Querier, sale *transform.CanonicalSale) (bool, error) {
	if len(sale.TrackTags) == 0 {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url": sale.URL,
		}).Warn("트랙 태그가 없는 싱글 판매는 적재하지 않습니다")
		return false, nil
	}

	countryID, err := getOrInsertCountry(ctx, q, sale.Country)
	if err != nil {
		return false, err
	}

	artistID, err := getOrInsertArtist(ctx, q, sale.ArtistName, sale.ArtistURL)
	if err != nil {
		return false, err
	}

	trackID, err := getOrInsertTrack(ctx, q, sale.Title, artistID, sale.URL, nil)
	if err != nil {
		return false, err
	}

	for _, tag := range sale.TrackTags {
		if err := assignTagToTrack(ctx, q, tag, trackID); err != nil {
			return false, err
		}
	}

	return true, insertTrackPurchase(ctx, q, trackID, sale, countryID)
}

// getOrInsertArtist 자연 키 (name, url)로 아티스트를 조회하고, 없으면 새로 추가하여 ID를 반환합니다.
func getOrInsertArtist(ctx context.Context, q Querier, name, url string) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `SELECT artist_id FROM artist WHERE name = $1 AND url = $2`, name, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := q.QueryRow(ctx, `INSERT INTO artist(name, url) VALUES ($1, $2) RETURNING artist_id`, name, url).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// getOrInsertCountry 자연 키 name으로 국가를 조회하고, 없으면 새로 추가하여 ID를 반환합니다.
func getOrInsertCountry(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `SELECT country_id FROM country WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := q.QueryRow(ctx, `INSERT INTO country(name) VALUES ($1) RETURNING country_id`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// getOrInsertAlbum 자연 키 (title, artist_id, url)로 앨범을 조회하고, 없으면 새로 추가하여 ID를 반환합니다.
// 동일한 제목의 앨범이 서로 다른 아티스트에게 존재할 수 있으므로 아티스트 ID가 식별 키에 포함됩니다.
func getOrInsertAlbum(ctx context.Context, q Querier, title string, artistID int64, url string) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `SELECT album_id FROM album WHERE title = $1 AND artist_id = $2 AND url = $3`, title, artistID, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := q.QueryRow(ctx, `INSERT INTO album(title, artist_id, url) VALUES ($1, $2, $3) RETURNING album_id`, title, artistID, url).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// getOrInsertTrack 자연 키 (title, artist_id, url)로 트랙을 조회하고, 없으면 새로 추가하여 ID를 반환합니다.
// albumID가 nil이면 앨범에 소속되지 않은 독립 싱글로 추가됩니다.
func getOrInsertTrack(ctx context.Context, q Querier, title string, artistID int64, url string, albumID *int64) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `SELECT track_id FROM track WHERE title = $1 AND artist_id = $2 AND url = $3`, title, artistID, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := q.QueryRow(ctx, `INSERT INTO track(title, artist_id, album_id, url) VALUES ($1, $2, $3, $4) RETURNING track_id`, title, artistID, albumID, url).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// getOrInsertTag 자연 키 name으로 태그를 조회하고, 없으면 새로 추가하여 ID를 반환합니다.
func getOrInsertTag(ctx context.Context, q Querier, name string) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `SELECT tag_id FROM tag WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	if err := q.QueryRow(ctx, `INSERT INTO tag(name) VALUES ($1) RETURNING tag_id`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// assignTagToAlbum 태그를 확보한 뒤 앨범과의 연결이 없는 경우에만 연결 행을 추가합니다.
// 동일한 태그가 여러 사이클에 걸쳐 반복 수집되어도 연결 행은 중복 생성되지 않습니다.
func assignTagToAlbum(ctx context.Context, q Querier, tagName string, albumID int64) error {
	tagID, err := getOrInsertTag(ctx, q, tagName)
	if err != nil {
		return err
	}

	var assignmentID int64
	err = q.QueryRow(ctx, `SELECT album_tag_assignment_id FROM album_tag_assignment WHERE tag_id = $1 AND album_id = $2`, tagID, albumID).Scan(&assignmentID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO album_tag_assignment(tag_id, album_id) VALUES ($1, $2)`, tagID, albumID)
	return err
}

// assignTagToTrack 태그를 확보한 뒤 트랙과의 연결이 없는 경우에만 연결 행을 추가합니다.
func assignTagToTrack(ctx context.Context, q Querier, tagName string, trackID int64) error {
	tagID, err := getOrInsertTag(ctx, q, tagName)
	if err != nil {
		return err
	}

	var assignmentID int64
	err = q.QueryRow(ctx, `SELECT track_tag_assignment_id FROM track_tag_assignment WHERE tag_id = $1 AND track_id = $2`, tagID, trackID).Scan(&assignmentID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = q.Exec(ctx, `INSERT INTO track_tag_assignment(tag_id, track_id) VALUES ($1, $2)`, tagID, trackID)
	return err
}

// insertAlbumPurchase 앨범 구매 기록을 추가합니다. 구매 기록은 중복 제거 없이 항상 새 행으로 추가됩니다.
func insertAlbumPurchase(ctx context.Context, q Querier, albumID int64, sale *transform.CanonicalSale, countryID int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO album_purchase(album_id, timestamp, amount_usd, country_id) VALUES ($1, $2, $3, $4)`,
		albumID, sale.Timestamp, sale.AmountUSD, countryID)
	return err
}

// insertTrackPurchase 트랙 구매 기록을 추가합니다. 구매 기록은 중복 제거 없이 항상 새 행으로 추가됩니다.
func insertTrackPurchase(ctx context.Context, q Querier, trackID int64, sale *transform.CanonicalSale, countryID int64) error {
	_, err := q.Exec(ctx,
		`INSERT INTO track_purchase(track_id, timestamp, amount_usd, country_id) VALUES ($1, $2, $3, $4)`,
		trackID, sale.Timestamp, sale.AmountUSD, countryID)
	return err
}

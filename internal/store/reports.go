package store

import (
	"context"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/jackc/pgx/v5"
)

// ReportRow 순위 보고서의 한 행입니다. 국가 미지정 조회에서 Total은 판매액(USD) 합계이고,
// 국가 지정 조회에서는 해당 국가의 구매 건수입니다.
type ReportRow struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
}

// Subscriber 보고서 수신 구독자입니다.
type Subscriber struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// 전세계 판매액 기준 상위 아티스트 조회 쿼리.
// 앨범 구매액과 트랙 구매액을 아티스트별로 각각 합산한 뒤 더한다.
const topArtistsWorldSQL = `
SELECT a.name, COALESCE(ap.total, 0) + COALESCE(tp.total, 0) AS total_sales
FROM artist a
LEFT JOIN (
    SELECT al.artist_id, SUM(ap.amount_usd) AS total
    FROM album al
    JOIN album_purchase ap ON al.album_id = ap.album_id
    GROUP BY al.artist_id) ap ON a.artist_id = ap.artist_id
LEFT JOIN (
    SELECT t.artist_id, SUM(tp.amount_usd) AS total
    FROM track t
    JOIN track_purchase tp ON t.track_id = tp.track_id
    GROUP BY t.artist_id) tp ON a.artist_id = tp.artist_id
ORDER BY total_sales DESC
LIMIT $1`

// 특정 국가의 구매 건수 기준 상위 아티스트 조회 쿼리.
const topArtistsCountrySQL = `
SELECT a.name, (COALESCE(ap.total, 0) + COALESCE(tp.total, 0))::DOUBLE PRECISION AS total_sales
FROM artist a
LEFT JOIN (
    SELECT al.artist_id, COUNT(DISTINCT ap.album_purchase_id) AS total
    FROM album al
    JOIN album_purchase ap ON al.album_id = ap.album_id
    JOIN country c ON ap.country_id = c.country_id
    WHERE c.name = $2
    GROUP BY al.artist_id) ap ON a.artist_id = ap.artist_id
LEFT JOIN (
    SELECT t.artist_id, COUNT(DISTINCT tp.track_purchase_id) AS total
    FROM track t
    JOIN track_purchase tp ON t.track_id = tp.track_id
    JOIN country c ON tp.country_id = c.country_id
    WHERE c.name = $2
    GROUP BY t.artist_id) tp ON a.artist_id = tp.artist_id
ORDER BY total_sales DESC
LIMIT $1`

const topTagsWorldSQL = `
SELECT t.name, COALESCE(ap.total, 0) + COALESCE(tp.total, 0) AS total_sales
FROM tag t
LEFT JOIN (
    SELECT ata.tag_id, SUM(ap.amount_usd) AS total
    FROM album_tag_assignment ata
    JOIN album_purchase ap ON ata.album_id = ap.album_id
    GROUP BY ata.tag_id) ap ON t.tag_id = ap.tag_id
LEFT JOIN (
    SELECT tta.tag_id, SUM(tp.amount_usd) AS total
    FROM track_tag_assignment tta
    JOIN track_purchase tp ON tta.track_id = tp.track_id
    GROUP BY tta.tag_id) tp ON t.tag_id = tp.tag_id
ORDER BY total_sales DESC
LIMIT $1`

const topTagsCountrySQL = `
SELECT t.name, (COALESCE(ap.total, 0) + COALESCE(tp.total, 0))::DOUBLE PRECISION AS total_sales
FROM tag t
LEFT JOIN (
    SELECT ata.tag_id, COUNT(DISTINCT ap.album_purchase_id) AS total
    FROM album_tag_assignment ata
    JOIN album_purchase ap ON ata.album_id = ap.album_id
    JOIN country c ON ap.country_id = c.country_id
    WHERE c.name = $2
    GROUP BY ata.tag_id) ap ON t.tag_id = ap.tag_id
LEFT JOIN (
    SELECT tta.tag_id, COUNT(DISTINCT tp.track_purchase_id) AS total
    FROM track_tag_assignment tta
    JOIN track_purchase tp ON tta.track_id = tp.track_id
    JOIN country c ON tp.country_id = c.country_id
    WHERE c.name = $2
    GROUP BY tta.tag_id) tp ON t.tag_id = tp.tag_id
ORDER BY total_sales DESC
LIMIT $1`

const topTracksWorldSQL = `
SELECT t.title, COALESCE(tp.total, 0) AS total_sales
FROM track t
LEFT JOIN (
    SELECT track_id, SUM(amount_usd) AS total
    FROM track_purchase
    GROUP BY track_id) tp ON t.track_id = tp.track_id
ORDER BY total_sales DESC
LIMIT $1`

const topTracksCountrySQL = `
SELECT t.title, COALESCE(tp.total, 0)::DOUBLE PRECISION AS total_sales
FROM track t
LEFT JOIN (
    SELECT tp.track_id, COUNT(DISTINCT tp.track_purchase_id) AS total
    FROM track_purchase tp
    JOIN country c ON tp.country_id = c.country_id
    WHERE c.name = $2
    GROUP BY tp.track_id) tp ON t.track_id = tp.track_id
ORDER BY total_sales DESC
LIMIT $1`

const topCountriesSQL = `
SELECT c.name, COALESCE(ap.total, 0) + COALESCE(tp.total, 0) AS total_sales
FROM country c
LEFT JOIN (
    SELECT country_id, SUM(amount_usd) AS total
    FROM album_purchase
    GROUP BY country_id) ap ON c.country_id = ap.country_id
LEFT JOIN (
    SELECT country_id, SUM(amount_usd) AS total
    FROM track_purchase
    GROUP BY country_id) tp ON c.country_id = tp.country_id
ORDER BY total_sales DESC
LIMIT $1`

// TopArtists 판매 상위 아티스트 목록을 조회합니다.
// country가 빈 문자열이면 전세계 판매액 기준, 아니면 해당 국가의 구매 건수 기준입니다.
func (s *Store) TopArtists(ctx context.Context, limit int, country string) ([]ReportRow, error) {
	if country == "" {
		return s.queryReportRows(ctx, topArtistsWorldSQL, normalizeReportLimit(limit))
	}
	return s.queryReportRows(ctx, topArtistsCountrySQL, normalizeReportLimit(limit), country)
}

// TopTags 판매 상위 태그 목록을 조회합니다.
// country가 빈 문자열이면 전세계 판매액 기준, 아니면 해당 국가의 구매 건수 기준입니다.
func (s *Store) TopTags(ctx context.Context, limit int, country string) ([]ReportRow, error) {
	if country == "" {
		return s.queryReportRows(ctx, topTagsWorldSQL, normalizeReportLimit(limit))
	}
	return s.queryReportRows(ctx, topTagsCountrySQL, normalizeReportLimit(limit), country)
}

// TopTracks 판매 상위 트랙 목록을 조회합니다.
// country가 빈 문자열이면 전세계 판매액 기준, 아니면 해당 국가의 구매 건수 기준입니다.
func (s *Store) TopTracks(ctx context.Context, limit int, country string) ([]ReportRow, error) {
	if country == "" {
		return s.queryReportRows(ctx, topTracksWorldSQL, normalizeReportLimit(limit))
	}
	return s.queryReportRows(ctx, topTracksCountrySQL, normalizeReportLimit(limit), country)
}

// TopCountries 판매액 상위 국가 목록을 조회합니다.
func (s *Store) TopCountries(ctx context.Context, limit int) ([]ReportRow, error) {
	return s.queryReportRows(ctx, topCountriesSQL, normalizeReportLimit(limit))
}

// Subscribers 보고서 수신 구독자 전체 목록을 조회합니다.
func (s *Store) Subscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, `SELECT email, name FROM subscriber ORDER BY email`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "구독자 목록 조회에 실패했습니다")
	}

	subscribers, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Subscriber])
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ExecutionFailed, "구독자 목록을 읽는 중에 에러가 발생했습니다")
	}
	return subscribers, nil
}

// AddSubscriber 보고서 수신 구독자를 등록합니다. 이미 등록된 이메일이면 이름을 갱신합니다.
func (s *Store) AddSubscriber(ctx context.Context, email, name string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriber(email, name) VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name`, email, name)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ExecutionFailed, "구독자 등록에 실패했습니다")
	}
	return nil
}

func (s *Store) queryReportRows(ctx context.Context, sql string, args ...any) ([]ReportRow, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "보고서 조회에 실패했습니다")
	}

	result, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ReportRow])
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ExecutionFailed, "보고서 결과를 읽는 중에 에러가 발생했습니다")
	}
	return result, nil
}

const (
	defaultReportLimit = 5
	maxReportLimit     = 100
)

func normalizeReportLimit(limit int) int {
	if limit < 1 {
		return defaultReportLimit
	}
	if limit > maxReportLimit {
		return maxReportLimit
	}
	return limit
}

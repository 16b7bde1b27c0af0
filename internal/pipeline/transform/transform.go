// Package transform 보강된 피드 아이템을 적재 가능한 정규화된 판매 레코드로 변환합니다.
//
// 이 패키지의 모든 함수는 순수 함수이며 I/O를 수행하지 않습니다.
package transform

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
)

// TimestampLayout 판매 시각의 표준 표현 형식 (UTC, 초 단위 정밀도)
const TimestampLayout = "2006-01-02 15:04:05"

// nowFunc 현재 시각 조회 함수. 미래 시각 검증 테스트에서 대체됩니다.
var nowFunc = time.Now

// CanonicalSale 적재 단계가 소비하는 정규화된 판매 레코드입니다.
//
// 피드가 전달하는 표시용 필드(통화, 포맷팅된 금액 문자열, 이미지 ID 등)는
// 변환 과정에서 제거되며, 적재와 리포팅에 필요한 필드만 유지됩니다.
type CanonicalSale struct {
	// ItemType 판매 형태 판별값 ("a": 앨범, "t": 트랙)
	ItemType string

	// URL 정규화된 상품 페이지 URL (https: 프로토콜 보장)
	URL string

	// ArtistURL 상품 URL에서 마지막 두 경로 세그먼트를 제거하여 복원한 아티스트 루트 페이지 URL
	ArtistURL string

	// ArtistName 아티스트명
	ArtistName string

	// Title 앨범명 또는 트랙명 (피드의 item_description)
	Title string

	// AlbumTitle 트랙이 소속된 앨범명. 빈 문자열이면 독립 싱글로 취급됩니다.
	AlbumTitle string

	// AlbumURL 보강 단계에서 도출된 소속 앨범의 페이지 URL (앨범 수록 트랙에만 존재)
	AlbumURL string

	// Country 구매자 국가명
	Country string

	// AmountUSD 판매 금액 (USD)
	AmountUSD float64

	// Timestamp 판매 시각 (UTC, 초 단위 정밀도)
	Timestamp time.Time

	// AlbumTags 앨범 페이지에서 수집하여 정규화한 태그 목록
	AlbumTags []string

	// TrackTags 트랙 페이지에서 수집하여 정규화한 태그 목록
	TrackTags []string
}

// IsStandaloneTrack 이 판매가 앨범에 소속되지 않은 독립 싱글 트랙인지 여부를 반환합니다.
func (s *CanonicalSale) IsStandaloneTrack() bool {
	return s.ItemType == feed.ItemTypeTrack && s.AlbumTitle == ""
}

// Transform 보강된 피드 아이템 목록을 정규화된 판매 레코드 목록으로 변환합니다.
//
// 반환 목록은 입력 순서를 유지하며, 아이템당 정확히 하나의 레코드를 생성합니다.
// 필수 필드 누락에 따른 레코드 제외는 이 단계가 아닌 적재 단계에서 수행됩니다.
//
// 유효하지 않은 판매 시각(숫자가 아님, 음수, 미래 시각)은 결정적 데이터 오류이므로
// 에러로 전파되어 현재 사이클을 중단시킵니다.
func Transform(items []feed.Item) ([]CanonicalSale, error) {
	sales := make([]CanonicalSale, 0, len(items))

	for i, item := range items {
		sale, err := transformItem(item)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("판매 아이템(인덱스: %d)의 변환에 실패했습니다", i))
		}
		sales = append(sales, sale)
	}

	return sales, nil
}

// transformItem 아이템 하나를 정규화된 판매 레코드로 변환합니다.
func transformItem(item feed.Item) (CanonicalSale, error) {
	timestamp, err := ConvertTimestamp(item["utc_date"])
	if err != nil {
		return CanonicalSale{}, err
	}

	url := NormalizeURL(item.URL())
	albumTitle, _ := item.AlbumTitle()

	var amountUSD float64
	if v, ok := item["amount_paid_usd"].(float64); ok {
		amountUSD = v
	}

	return CanonicalSale{
		ItemType:   item.ItemType(),
		URL:        url,
		ArtistURL:  StemURL(url),
		ArtistName: item.String("artist_name"),
		Title:      item.String("item_description"),
		AlbumTitle: albumTitle,
		AlbumURL:   normalizeOptionalURL(item.String("album_url")),
		Country:    item.String("country"),
		AmountUSD:  amountUSD,
		Timestamp:  timestamp,
		AlbumTags:  CleanTags(tagList(item["album_tags"])),
		TrackTags:  CleanTags(tagList(item["track_tags"])),
	}, nil
}

// ConvertTimestamp 피드의 Unix 타임스탬프(초 단위 실수)를 UTC 시각으로 변환합니다.
//
// 다음의 경우 InvalidInput 에러를 반환합니다.
//   - 값이 숫자가 아닌 경우
//   - 값이 음수인 경우
//   - 변환된 시각이 현재보다 미래인 경우 (피드 시계 오차 방어)
func ConvertTimestamp(value any) (time.Time, error) {
	var seconds float64

	switch v := value.(type) {
	case float64:
		seconds = v
	case float32:
		seconds = float64(v)
	case int:
		seconds = float64(v)
	case int64:
		seconds = float64(v)
	default:
		return time.Time{}, apperrors.New(apperrors.InvalidInput, fmt.Sprintf("판매 시각(utc_date)이 숫자 형식이 아닙니다: %v (%T)", value, value))
	}

	if seconds < 0 {
		return time.Time{}, apperrors.New(apperrors.InvalidInput, fmt.Sprintf("판매 시각(utc_date)은 음수일 수 없습니다: %f", seconds))
	}

	sec, frac := math.Modf(seconds)
	t := time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC().Truncate(time.Second)

	if t.After(nowFunc().UTC()) {
		return time.Time{}, apperrors.New(apperrors.InvalidInput, fmt.Sprintf("판매 시각(utc_date)이 미래의 시각입니다: %s", t.Format(TimestampLayout)))
	}

	return t, nil
}

// NormalizeURL URL에 http(s) 프로토콜 접두사가 없는 경우 "https:"를 앞에 붙입니다.
// 피드의 상품 URL은 프로토콜이 생략된 형태("//artist.example.com/...")로 제공됩니다.
func NormalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "https:" + url
}

// normalizeOptionalURL 빈 문자열은 그대로 유지하며, 값이 있는 경우에만 URL을 정규화합니다.
func normalizeOptionalURL(url string) string {
	if url == "" {
		return ""
	}
	return NormalizeURL(url)
}

// StemURL URL에서 마지막 두 경로 세그먼트를 제거한 스템(stem)을 반환합니다.
// 앨범/트랙 페이지 URL에서 아티스트의 루트 페이지 URL을 복원하는 데 사용됩니다.
//
// 스킴("https://", "http://") 또는 프로토콜 상대("//") 접두사는 경로 세그먼트로
// 계산하지 않으며, 호스트 뒤의 경로 세그먼트가 2개 미만인 경우 입력을 그대로
// 반환합니다.
func StemURL(url string) string {
	prefix := ""
	rest := url
	for _, p := range []string{"https://", "http://", "//"} {
		if strings.HasPrefix(rest, p) {
			prefix = p
			rest = strings.TrimPrefix(rest, p)
			break
		}
	}

	parts := strings.Split(rest, "/")
	if len(parts) <= 2 {
		return url
	}
	return prefix + strings.Join(parts[:len(parts)-2], "/")
}

// CleanTags 태그 목록을 정규화합니다.
//
// 정규화 규칙:
//   - 양끝 공백 제거
//   - 선행 해시(#) 문자 제거 (해시 제거 후 드러나는 공백도 제거)
//   - 소문자 변환
//   - 정규화 후 빈 문자열이 되는 태그는 제외
//
// 공백 제거가 해시 제거보다 먼저 수행되어야 " #Rock "과 같은
// 공백으로 둘러싸인 태그의 해시가 정상적으로 제거됩니다.
//
// nil 입력은 nil이 아닌 빈 목록으로 정규화됩니다.
func CleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimLeft(tag, "#")
		tag = strings.TrimSpace(tag)
		tag = strings.ToLower(tag)

		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}

	return cleaned
}

// tagList 보강 단계가 부가한 태그 필드 값을 문자열 슬라이스로 변환합니다.
func tagList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	default:
		return nil
	}
}

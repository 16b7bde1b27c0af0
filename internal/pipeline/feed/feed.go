// Package feed Bandcamp 판매 피드 API에서 판매 이벤트를 가져오는 클라이언트를 제공합니다.
package feed

import (
	"context"
	"fmt"
	"io"

	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/fetcher"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/tidwall/gjson"
)

// component 피드 클라이언트 로깅용 컴포넌트 이름
const component = "pipeline.feed"

// 피드 응답 본문의 최대 허용 크기 (8MB)
// 피드 API가 비정상적으로 큰 응답을 반환하는 경우 메모리 고갈을 방지합니다.
const maxFeedBodyBytes = 8 * 1024 * 1024

// 피드 아이템의 item_type 판별값
const (
	// ItemTypeAlbum 앨범 판매 아이템
	ItemTypeAlbum = "a"

	// ItemTypeTrack 트랙 판매 아이템
	ItemTypeTrack = "t"
)

// Item 피드에서 수집된 판매 아이템 하나를 나타냅니다.
//
// 피드가 반환하는 아이템의 필드 구성은 판매 형태(앨범/트랙)에 따라 달라지므로,
// 고정된 구조체 대신 동적 맵으로 유지하며 후속 변환 단계에서 필요한 필드만 선별합니다.
type Item map[string]any

// String 지정된 키의 값을 문자열로 반환합니다. 키가 없거나 문자열이 아니면 빈 문자열을 반환합니다.
func (i Item) String(key string) string {
	if v, ok := i[key].(string); ok {
		return v
	}
	return ""
}

// ItemType 아이템의 판매 형태 판별값("a" 또는 "t")을 반환합니다.
func (i Item) ItemType() string {
	return i.String("item_type")
}

// URL 아이템의 상품 페이지 URL을 반환합니다.
func (i Item) URL() string {
	return i.String("url")
}

// AlbumTitle 트랙 아이템이 소속된 앨범명을 반환합니다.
// 값이 존재하면 해당 트랙은 앨범 수록곡이며, 없으면 독립 싱글로 취급됩니다.
func (i Item) AlbumTitle() (string, bool) {
	v, ok := i["album_title"].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// IsSellable 후속 파이프라인 단계가 처리할 수 있는 판매 형태(앨범/트랙)인지 여부를 반환합니다.
func (i Item) IsSellable() bool {
	switch i.ItemType() {
	case ItemTypeAlbum, ItemTypeTrack:
		return true
	default:
		return false
	}
}

// Client 판매 피드 API 클라이언트
type Client struct {
	fetcher fetcher.Fetcher
	feedURL string
}

// NewClient 새로운 피드 클라이언트를 생성합니다.
func NewClient(f fetcher.Fetcher, feedURL string) *Client {
	return &Client{
		fetcher: f,
		feedURL: feedURL,
	}
}

// FetchSaleItems 피드 엔드포인트를 호출하여 판매(sale) 이벤트에 포함된 판매 가능한 아이템 목록을 반환합니다.
//
// 필터링 규칙:
//   - event_type이 "sale"인 이벤트만 처리합니다.
//   - 아이템 배열이 비어있는 이벤트는 무시합니다.
//   - item_type이 앨범("a") 또는 트랙("t")이 아닌 아이템(예: 굿즈)은 제외합니다.
func (c *Client) FetchSaleItems(ctx context.Context) ([]Item, error) {
	resp, err := fetcher.Get(ctx, c.fetcher, c.feedURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, fmt.Sprintf("판매 피드(%s) 요청이 실패했습니다", c.feedURL))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "판매 피드 응답 본문을 읽는 중 에러가 발생했습니다")
	}

	return ParseSaleItems(body)
}

// ParseSaleItems 피드 응답 본문(JSON)에서 판매 이벤트의 아이템 목록을 추출합니다.
//
// 피드 응답의 형태:
//
//	{"feed_data": {"events": [{"event_type": "sale", "items": [{...}, ...]}, ...]}}
func ParseSaleItems(body []byte) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperrors.New(apperrors.ParsingFailed, "판매 피드 응답이 유효한 JSON 형식이 아닙니다")
	}

	events := gjson.GetBytes(body, "feed_data.events")
	if !events.Exists() || !events.IsArray() {
		return nil, apperrors.New(apperrors.ParsingFailed, "판매 피드 응답에 이벤트 목록(feed_data.events)이 존재하지 않습니다")
	}

	var items []Item
	var skipped int

	events.ForEach(func(_, event gjson.Result) bool {
		if event.Get("event_type").String() != "sale" {
			return true
		}

		event.Get("items").ForEach(func(_, rawItem gjson.Result) bool {
			m, ok := rawItem.Value().(map[string]any)
			if !ok {
				skipped++
				return true
			}

			item := Item(m)
			if !item.IsSellable() {
				skipped++
				return true
			}

			items = append(items, item)
			return true
		})

		return true
	})

	if skipped > 0 {
		applog.WithComponent(component).WithFields(applog.Fields{
			"skipped": skipped,
			"kept":    len(items),
		}).Debug("판매 가능한 형태가 아닌 피드 아이템을 제외하였습니다")
	}

	return items, nil
}

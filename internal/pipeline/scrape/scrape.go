// Package scrape 상품 페이지(HTML)에서 태그 목록과 앨범 구매 링크를 추출하는 순수 함수들을 제공합니다.
//
// 추출 로직은 대상 사이트의 두 가지 마크업 규약에 의존합니다.
//   - 태그: "tag" 클래스를 가진 앵커 요소
//   - 앨범 구매 링크: id가 "buyAlbumLink"인 앵커 요소
package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CSS 선택자
const (
	tagSelector       = "a.tag"
	albumLinkSelector = "a#buyAlbumLink"
)

// ExtractTags HTML 문서에서 태그 링크 요소들의 텍스트를 추출합니다.
//
// 태그가 하나도 없는 경우 빈 슬라이스가 아닌 nil을 반환합니다.
// 후속 적재 단계에서 "태그 없음"은 해당 판매의 필수 필드 누락으로 취급되므로,
// nil과 빈 목록의 구분이 의미를 가집니다.
func ExtractTags(doc *goquery.Document) []string {
	var tags []string

	doc.Find(tagSelector).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			tags = append(tags, text)
		}
	})

	if len(tags) == 0 {
		return nil
	}
	return tags
}

// ExtractAlbumLink HTML 문서에서 앨범 구매 앵커의 href 속성값을 추출합니다.
// 해당 요소가 없거나 href 속성이 비어있는 경우 false를 반환합니다.
func ExtractAlbumLink(doc *goquery.Document) (string, bool) {
	href, exists := doc.Find(albumLinkSelector).First().Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return "", false
	}
	return href, true
}

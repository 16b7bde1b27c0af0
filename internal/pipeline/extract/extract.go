// Package extract 피드 아이템의 동시 보강(Enrichment)을 담당하는 파이프라인의 동시성 핵심부입니다.
//
// 판매 아이템 하나마다 상품 페이지를 스크래핑하여 태그 목록과 앨범 URL을 부가하며,
// 세마포어로 동시 요청 수를 제한하고 요청 간 최소 간격을 유지하여 대상 사이트의 요청 제한을 준수합니다.
package extract

import (
	"context"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/fetcher"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/scrape"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/transform"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// component 보강 단계 로깅용 컴포넌트 이름
const component = "pipeline.extract"

// 보강 과정에서 아이템에 부가되는 필드 키
const (
	// FieldAlbumTags 앨범 페이지에서 수집한 태그 목록
	FieldAlbumTags = "album_tags"

	// FieldTrackTags 트랙 페이지에서 수집한 태그 목록
	FieldTrackTags = "track_tags"

	// FieldAlbumURL 트랙이 소속된 앨범의 페이지 URL
	FieldAlbumURL = "album_url"
)

// Extractor 피드 아이템들의 페이지 스크래핑을 병렬로 수행하는 보강기입니다.
//
// 동시에 진행되는 페이지 요청 수는 세마포어로 제한되며,
// 각 요청은 전역 속도 제한기(rate.Limiter)를 통과한 후에만 전송됩니다.
type Extractor struct {
	fetcher fetcher.Fetcher

	// sem 동시 페이지 요청 수를 제한하는 세마포어
	sem *semaphore.Weighted

	// limiter 페이지 요청 간 최소 간격을 보장하는 속도 제한기
	limiter *rate.Limiter
}

// New 새로운 Extractor 인스턴스를 생성합니다.
//
// 매개변수:
//   - f: 페이지 요청에 사용할 Fetcher (재시도 정책 포함)
//   - maxConcurrentFetches: 동시 페이지 요청 수의 상한 (1 미만은 1로 보정)
//   - fetchDelay: 요청 간 최소 간격 (0 이하이면 간격 제한 없음)
func New(f fetcher.Fetcher, maxConcurrentFetches int, fetchDelay time.Duration) *Extractor {
	if maxConcurrentFetches < 1 {
		maxConcurrentFetches = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if fetchDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(fetchDelay), 1)
	}

	return &Extractor{
		fetcher: f,
		sem:     semaphore.NewWeighted(int64(maxConcurrentFetches)),
		limiter: limiter,
	}
}

// EnrichAll 판매 아이템 각각에 대해 페이지 스크래핑 기반 보강을 병렬로 수행합니다.
//
// 개별 아이템의 스크래핑 실패는 전체 배치를 중단시키지 않습니다.
// 실패한 아이템은 태그 필드가 부가되지 않은 채 반환되며,
// 적재 단계에서 필수 필드 누락으로 판정되어 건너뛰어집니다.
//
// 반환 목록에는 입력의 모든 아이템이 정확히 한 번씩 포함됩니다.
func (e *Extractor) EnrichAll(ctx context.Context, items []feed.Item) []feed.Item {
	if len(items) == 0 {
		return nil
	}

	results := make([]feed.Item, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, item feed.Item) {
			defer wg.Done()
			results[idx] = e.enrich(ctx, item)
		}(i, item)
	}
	wg.Wait()

	return results
}

// enrich 아이템 하나를 판매 형태에 따라 보강합니다.
//
// 판매 형태별 동작:
//   - 앨범 아이템: 상품 페이지를 스크래핑하여 album_tags를 부가합니다.
//   - 트랙 아이템: 상품 페이지를 스크래핑하여 track_tags를 부가합니다.
//   - 앨범 수록 트랙: 추가로 트랙 페이지의 앨범 구매 링크와 URL 스템(stem)을 조합하여
//     앨범 URL을 도출(album_url)하고, 해당 앨범 페이지에서 album_tags를 수집합니다.
func (e *Extractor) enrich(ctx context.Context, item feed.Item) feed.Item {
	itemURL := item.URL()
	if itemURL == "" {
		applog.WithComponent(component).Warn("페이지 URL이 없는 판매 아이템은 보강할 수 없습니다")
		return item
	}

	doc, err := e.fetchPage(ctx, transform.NormalizeURL(itemURL))
	if err != nil {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url":   itemURL,
			"error": err.Error(),
		}).Warn("상품 페이지 스크래핑에 실패하여 태그 수집을 건너뜁니다")
		return item
	}

	switch item.ItemType() {
	case feed.ItemTypeAlbum:
		if tags := scrape.ExtractTags(doc); tags != nil {
			item[FieldAlbumTags] = tags
		}

	case feed.ItemTypeTrack:
		if tags := scrape.ExtractTags(doc); tags != nil {
			item[FieldTrackTags] = tags
		}

		// 앨범 수록 트랙인 경우, 소속 앨범의 페이지에서 앨범 태그를 추가로 수집합니다.
		if _, ok := item.AlbumTitle(); ok {
			e.enrichAlbumOfTrack(ctx, item, doc)
		}
	}

	return item
}

// enrichAlbumOfTrack 앨범 수록 트랙의 소속 앨범 URL을 도출하고, 앨범 페이지에서 태그를 수집합니다.
//
// 앨범 URL은 트랙 URL에서 마지막 두 경로 세그먼트를 제거한 스템(stem)과
// 트랙 페이지의 앨범 구매 링크(href)를 이어붙여 도출합니다.
func (e *Extractor) enrichAlbumOfTrack(ctx context.Context, item feed.Item, trackDoc *goquery.Document) {
	albumLink, ok := scrape.ExtractAlbumLink(trackDoc)
	if !ok {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url": item.URL(),
		}).Warn("트랙 페이지에서 앨범 구매 링크를 찾지 못했습니다")
		return
	}

	albumURL := transform.StemURL(item.URL()) + albumLink
	item[FieldAlbumURL] = albumURL

	albumDoc, err := e.fetchPage(ctx, transform.NormalizeURL(albumURL))
	if err != nil {
		applog.WithComponent(component).WithFields(applog.Fields{
			"url":   albumURL,
			"error": err.Error(),
		}).Warn("앨범 페이지 스크래핑에 실패하여 앨범 태그 수집을 건너뜁니다")
		return
	}

	if tags := scrape.ExtractTags(albumDoc); tags != nil {
		item[FieldAlbumTags] = tags
	}
}

// fetchPage 세마포어와 속도 제한을 준수하며 지정된 URL의 HTML 문서를 가져옵니다.
func (e *Extractor) fetchPage(ctx context.Context, url string) (*goquery.Document, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	// 세마포어 획득 직후 속도 제한기를 통과해야만 실제 요청이 전송됩니다.
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return fetcher.FetchHTMLDocument(ctx, e.fetcher, url)
}

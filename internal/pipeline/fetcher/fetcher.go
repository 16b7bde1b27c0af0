// Package fetcher Bandcamp 피드 API와 상품 페이지 요청에 사용하는 HTTP 클라이언트 체인을 제공합니다.
//
// 재시도, 상태 코드 검증, User-Agent 주입 등의 기능을 데코레이터 패턴으로 조합할 수 있도록 설계되었습니다.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"golang.org/x/net/html/charset"
)

// component Fetcher 로깅용 컴포넌트 이름
const component = "pipeline.fetcher"

// Fetcher HTTP 요청을 수행하는 핵심 인터페이스입니다.
//
// 구현 시 주의사항:
//   - 반환된 응답 객체의 Body는 반드시 호출자가 닫아야 합니다.
//   - Context 취소 시 즉시 요청을 중단하고 적절한 에러를 반환해야 합니다.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Get 지정된 URL로 HTTP GET 요청을 전송하는 헬퍼 함수입니다.
// 요청 실패 시 커넥션 재사용을 위해 응답 객체의 Body를 자동으로 비우고 닫습니다.
func Get(ctx context.Context, f Fetcher, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.Do(req)
	if err != nil {
		if resp != nil {
			drainAndCloseBody(resp.Body)
		}
		return nil, err
	}

	return resp, nil
}

// FetchJSON 지정된 URL로 HTTP GET 요청을 보내 응답 본문(JSON)을 지정된 구조체(v)로 디코딩합니다.
func FetchJSON(ctx context.Context, f Fetcher, url string, v any) error {
	resp, err := Get(ctx, f, url)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, fmt.Sprintf("JSON API(%s) 요청 중 에러가 발생했습니다", url))
	}
	defer resp.Body.Close() // 응답을 받은 즉시 defer 설정하여 메모리 누수 방지

	// json.Decoder를 사용하여 스트림 방식으로 JSON 파싱 (메모리 효율적)
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return apperrors.Wrap(err, apperrors.ParsingFailed, fmt.Sprintf("불러온 페이지(%s) 데이터의 JSON 변환이 실패하였습니다", url))
	}

	return nil
}

// FetchHTMLDocument 지정된 URL로 HTTP 요청을 보내 HTML 문서를 가져오고, goquery.Document로 파싱합니다.
// 응답 헤더의 Content-Type을 분석하여, 비 UTF-8 인코딩 페이지도 자동으로 UTF-8로 변환하여 처리합니다.
func FetchHTMLDocument(ctx context.Context, f Fetcher, url string) (*goquery.Document, error) {
	resp, err := Get(ctx, f, url)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, fmt.Sprintf("HTML 페이지(%s) 요청 중 네트워크 또는 클라이언트 에러가 발생했습니다", url))
	}
	defer resp.Body.Close() // 응답을 받은 즉시 defer 설정하여 메모리 누수 방지

	// Content-Type 헤더를 기반으로 인코딩을 UTF-8로 변환
	utf8Reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ParsingFailed, fmt.Sprintf("페이지(%s)의 인코딩 변환이 실패하였습니다", url))
	}

	doc, err := goquery.NewDocumentFromReader(utf8Reader)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ParsingFailed, fmt.Sprintf("불러온 페이지(%s)의 데이터 파싱이 실패하였습니다", url))
	}

	return doc, nil
}

// maxDrainBytes 커넥션 재사용을 위해 응답 객체의 Body를 비울 때 읽을 최대 바이트 수 (64KB)
const maxDrainBytes = 64 * 1024

// drainAndCloseBody HTTP 커넥션 재사용을 위해 응답 객체의 Body를 안전하게 비우고 닫습니다.
//
// Body를 읽지 않고 닫으면 Keep-Alive 커넥션이 재사용되지 않으므로,
// 일정량(maxDrainBytes)을 읽어서 버린 후 닫아 커넥션 풀에 반환합니다.
// 이 범위를 초과하는 바디를 가진 커넥션은 재사용되지 않고 닫힙니다.
func drainAndCloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	defer body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxDrainBytes))
}

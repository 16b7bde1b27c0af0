package fetcher

import (
	"fmt"
	"io"
	"net/http"
	"slices"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
)

// StatusCodeFetcher HTTP 응답 상태 코드를 확인하고, 허용된 코드가 아니면 에러로 처리하는 미들웨어입니다.
type StatusCodeFetcher struct {
	delegate Fetcher

	// allowedStatusCodes 허용할 HTTP 상태 코드 목록입니다.
	// nil 또는 빈 슬라이스인 경우 200 OK만 허용합니다.
	allowedStatusCodes []int
}

// 컴파일 타임에 인터페이스 구현 여부를 검증합니다.
var _ Fetcher = (*StatusCodeFetcher)(nil)

// NewStatusCodeFetcher 200 OK만 허용하는 StatusCodeFetcher 인스턴스를 생성합니다.
func NewStatusCodeFetcher(delegate Fetcher, allowedStatusCodes ...int) *StatusCodeFetcher {
	return &StatusCodeFetcher{
		delegate:           delegate,
		allowedStatusCodes: allowedStatusCodes,
	}
}

// Do HTTP 요청을 수행하고 응답 상태 코드를 검사합니다.
//
// 주의사항:
//   - 상태 코드 검증 실패 시 nil Response를 반환하므로, 호출자는 에러 체크 후 Response를 사용해야 합니다.
//   - 에러 발생 시 응답 객체의 Body는 이 함수 내부에서 자동으로 정리됩니다.
func (f *StatusCodeFetcher) Do(req *http.Request) (*http.Response, error) {
	resp, err := f.delegate.Do(req)
	if err != nil {
		if resp != nil {
			// 커넥션 재사용을 위해 응답 객체의 Body를 안전하게 비우고 닫음
			drainAndCloseBody(resp.Body)
		}
		return nil, err
	}

	if statusErr := CheckResponseStatus(resp, f.allowedStatusCodes...); statusErr != nil {
		drainAndCloseBody(resp.Body)
		return nil, statusErr
	}

	return resp, nil
}

// CheckResponseStatus HTTP 응답의 상태 코드를 검증하고, 실패 시 구조화된 에러를 반환합니다.
//
// 상태 코드에 따라 적절한 도메인 에러 타입으로 매핑된 HTTPStatusError를 생성합니다.
// 429(Too Many Requests)와 5xx는 일시적 장애(Unavailable)로 분류되어 재시도 대상이 됩니다.
//
// 주의사항:
//   - 이 함수는 에러 생성 시 응답 객체의 Body 일부를 소비하므로, 에러 시 Body를 즉시 닫아야 합니다.
func CheckResponseStatus(resp *http.Response, allowedStatusCodes ...int) error {
	// 1. 응답 상태 코드가 허용할 상태 코드 목록에 있는지 확인
	var isAllowed bool
	if len(allowedStatusCodes) == 0 {
		// 허용할 상태 코드 목록이 비어있으면 200 OK만 허용
		isAllowed = resp.StatusCode == http.StatusOK
	} else {
		isAllowed = slices.Contains(allowedStatusCodes, resp.StatusCode)
	}
	if isAllowed {
		return nil
	}

	// 2. 응답 상태 코드를 도메인 에러 타입으로 매핑
	errType := apperrors.ExecutionFailed

	switch resp.StatusCode {
	case http.StatusNotFound:
		errType = apperrors.NotFound

	case http.StatusBadRequest:
		errType = apperrors.InvalidInput

	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		errType = apperrors.Unavailable

	default:
		if resp.StatusCode >= 500 {
			errType = apperrors.Unavailable
		}
	}

	// 3. 요청 URL 추출
	var urlStr string
	if resp.Request != nil && resp.Request.URL != nil {
		urlStr = resp.Request.URL.String()
	}

	// 4. 응답 객체의 Body 일부만 읽기 (디버깅 정보용)
	var bodySnippet string
	if resp.Body != nil {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err == nil && len(bodyBytes) > 0 {
			bodySnippet = string(bodyBytes)
		}
	}

	cause := apperrors.New(errType, fmt.Sprintf("HTTP 요청(%s)이 실패했습니다. 상태 코드: %s", urlStr, resp.Status))

	return &HTTPStatusError{
		StatusCode:  resp.StatusCode,
		Status:      resp.Status,
		URL:         urlStr,
		Header:      resp.Header,
		BodySnippet: bodySnippet,
		Cause:       cause,
	}
}

package fetcher

import (
	"net/http"
	"time"
)

// defaultTimeout HTTP 요청 전체(요청 전송부터 응답 본문 수신까지)에 대한 기본 제한 시간
const defaultTimeout = 30 * time.Second

// HTTPFetcher 실제 네트워크 I/O를 담당하는 체인의 최내곽 HTTP 클라이언트 구현체입니다.
type HTTPFetcher struct {
	client *http.Client
}

// 컴파일 타임에 인터페이스 구현 여부를 검증합니다.
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher 지정된 타임아웃 설정이 포함된 새로운 HTTPFetcher 인스턴스를 생성합니다.
// timeout이 0 이하인 경우 기본값(30초)으로 보정됩니다.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Do HTTP 요청을 실행합니다.
func (f *HTTPFetcher) Do(req *http.Request) (*http.Response, error) {
	return f.client.Do(req)
}

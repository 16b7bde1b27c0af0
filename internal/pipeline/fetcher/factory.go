package fetcher

import (
	"time"
)

// Config Fetcher 체인을 구성하기 위한 설정 옵션을 정의하는 구조체입니다.
type Config struct {
	// Timeout HTTP 요청 전체(요청 전송부터 응답 본문 수신까지)에 대한 타임아웃입니다.
	// 0 이하인 경우 기본값(30초)으로 보정됩니다.
	Timeout time.Duration

	// MaxRetries 최대 재시도 횟수입니다. (0: 재시도 안 함, 범위 초과 시 자동 보정)
	MaxRetries int

	// MinRetryDelay 재시도 대기 시간의 최소값입니다. (1초 미만은 1초로 보정)
	MinRetryDelay time.Duration

	// MaxRetryDelay 재시도 대기 시간의 최대값입니다. (0: 기본값 30초로 보정)
	MaxRetryDelay time.Duration

	// EnableUserAgentRandomization 요청마다 User-Agent를 랜덤으로 주입할지 여부입니다.
	EnableUserAgentRandomization bool

	// UserAgents User-Agent 주입 시 사용할 목록입니다. (비어있으면 내장 목록 사용)
	UserAgents []string

	// AllowedStatusCodes 허용할 HTTP 응답 상태 코드 목록입니다. (비어있으면 200 OK만 허용)
	AllowedStatusCodes []int
}

// New 설정값을 기반으로 Fetcher 실행 체인을 생성합니다.
//
// Fetcher 체인은 책임 연쇄 패턴을 따르며, 다음과 같은 순서로 구성됩니다 (바깥쪽 -> 안쪽):
//
//  1. UserAgentFetcher  : 각 요청에 User-Agent를 부여합니다. (활성화된 경우)
//  2. RetryFetcher      : 실패 시 지수 백오프 전략에 따라 재시도를 총괄 제어합니다.
//  3. StatusCodeFetcher : HTTP 응답 상태 코드의 유효성을 검사합니다.
//  4. HTTPFetcher       : 최하단에서 실제 네트워크 I/O를 담당합니다.
//
// 검증 로직(StatusCode)은 각 시도마다 수행되어야 하므로 RetryFetcher 안쪽에 위치합니다.
func New(cfg Config) Fetcher {
	var f Fetcher = NewHTTPFetcher(cfg.Timeout)

	f = NewStatusCodeFetcher(f, cfg.AllowedStatusCodes...)

	f = NewRetryFetcher(f, cfg.MaxRetries, cfg.MinRetryDelay, cfg.MaxRetryDelay)

	// RetryFetcher 바깥에 위치하여 재시도 시에도 동일한 User-Agent를 유지합니다.
	if cfg.EnableUserAgentRandomization {
		f = NewUserAgentFetcher(f, cfg.UserAgents)
	}

	return f
}

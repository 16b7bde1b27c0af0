package fetcher

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
)

const (
	// minAllowedRetries 허용 가능한 최소 재시도 횟수입니다. (0: 재시도 안 함)
	minAllowedRetries = 0

	// maxAllowedRetries 허용 가능한 최대 재시도 횟수입니다.
	maxAllowedRetries = 10

	// defaultMaxRetryDelay 재시도 대기 시간의 최대값을 지정하지 않았을 때 사용되는 기본값(30초)입니다.
	defaultMaxRetryDelay = 30 * time.Second
)

// ErrMaxRetriesExceeded 최대 재시도 횟수를 모두 소진하고도 요청이 실패했을 때 반환됩니다.
var ErrMaxRetriesExceeded = apperrors.New(apperrors.Unavailable, "최대 재시도 횟수를 초과하였습니다")

// RetryFetcher HTTP 요청 실패 시 자동으로 재시도를 수행하는 미들웨어입니다.
//
// 주요 특징:
//   - 지수 백오프(Exponential Backoff): 재시도 간격을 지수적으로 증가시켜 서버 부하를 분산
//   - Full Jitter: 무작위 지연을 추가하여 동시 다발적인 재시도로 인한 Thundering Herd 문제 방지
//   - Retry-After 헤더 지원: 서버가 명시한 재시도 시간을 우선적으로 준수
//   - 컨텍스트 취소 감지: 요청 취소 시 즉시 재시도 중단
//
// 재시도 대상:
//   - 네트워크 오류 (타임아웃, 연결 실패 등)
//   - 429 Too Many Requests, 408 Request Timeout
//   - 5xx 서버 에러 (단, 501/505/511 제외)
type RetryFetcher struct {
	delegate Fetcher

	// maxRetries 최대 재시도 횟수입니다. (0 ~ 10 범위로 정규화됨)
	maxRetries int

	// minRetryDelay 재시도 대기 시간의 최소값입니다. (지수 백오프의 시작점)
	minRetryDelay time.Duration

	// maxRetryDelay 재시도 대기 시간의 최대값입니다. (지수 백오프 증가 시 상한선)
	maxRetryDelay time.Duration
}

// 컴파일 타임에 인터페이스 구현 여부를 검증합니다.
var _ Fetcher = (*RetryFetcher)(nil)

// NewRetryFetcher 새로운 RetryFetcher 인스턴스를 생성합니다.
// 잘못된 설정값은 안전한 범위로 자동 보정됩니다.
func NewRetryFetcher(delegate Fetcher, maxRetries int, minRetryDelay, maxRetryDelay time.Duration) *RetryFetcher {
	maxRetries = normalizeMaxRetries(maxRetries)
	minRetryDelay, maxRetryDelay = normalizeRetryDelays(minRetryDelay, maxRetryDelay)

	return &RetryFetcher{
		delegate:      delegate,
		maxRetries:    maxRetries,
		minRetryDelay: minRetryDelay,
		maxRetryDelay: maxRetryDelay,
	}
}

// Do HTTP 요청을 수행하며, 실패 시 설정된 정책에 따라 자동으로 재시도합니다.
//
// 재시도 전략:
//  1. 지수 백오프: delay = minRetryDelay * 2^(retry-1), maxRetryDelay를 초과하지 않도록 제한
//  2. Full Jitter: 0 ~ 계산된 delay 사이의 값을 무작위로 선택
//  3. Retry-After 헤더가 있으면 해당 값을 우선 적용 (maxRetryDelay 초과 시 즉시 중단)
//  4. 비멱등 메서드(POST, PATCH)는 재시도 제외
//  5. 대기 중 컨텍스트가 취소되면 즉시 중단
func (f *RetryFetcher) Do(req *http.Request) (*http.Response, error) {
	effectiveMaxRetries := f.maxRetries

	// 비멱등 메서드(POST, PATCH)는 재시도 시 데이터 중복 생성/수정 위험이 있으므로 재시도 비활성화
	if !isIdempotentMethod(req.Method) {
		effectiveMaxRetries = 0
	}

	var lastErr error

	// 첫 번째 시도와 재시도를 포함하여 최대 effectiveMaxRetries + 1회 반복합니다.
	for i := 0; i <= effectiveMaxRetries; i++ {
		if i > 0 {
			// [단계 1] 지수 백오프 계산
			delay := f.minRetryDelay * time.Duration(1<<(i-1))
			if delay > f.maxRetryDelay {
				delay = f.maxRetryDelay
			}

			// [단계 2] Full Jitter 적용 (0 ~ delay 사이의 무작위 값)
			if delay > 0 {
				delay = time.Duration(rand.Int64N(int64(delay) + 1))
			}

			// [단계 3] Retry-After 헤더 우선 적용
			// 서버가 응답 헤더를 통해 재시도 가능한 시점을 명시한 경우 해당 값을 우선 사용합니다.
			// 단, 요구된 대기 시간이 maxRetryDelay를 초과하면 과도한 지연을 방지하기 위해 즉시 중단합니다.
			var retryAfter string

			var statusErr *HTTPStatusError
			if errors.As(lastErr, &statusErr) {
				retryAfter = statusErr.Header.Get("Retry-After")
			}

			var explicitDelayFound bool
			if retryAfter != "" {
				if retryAfterDelay, ok := parseRetryAfter(retryAfter); ok {
					if retryAfterDelay > f.maxRetryDelay {
						return nil, apperrors.New(apperrors.Unavailable,
							fmt.Sprintf("서버가 요구한 재시도 대기 시간(%s)이 최대 허용치(%s)를 초과하여 재시도를 중단합니다", retryAfterDelay, f.maxRetryDelay))
					}

					delay = retryAfterDelay
					explicitDelayFound = true
				}
			}

			// [단계 4] 최소 재시도 대기 시간 보장
			// 계산된 대기 시간(지터 포함)이 너무 짧으면 서버에 부담이 될 수 있으므로 보정합니다.
			if !explicitDelayFound && delay < time.Millisecond {
				delay = f.minRetryDelay
			}

			fields := applog.Fields{
				"url":               req.URL.String(),
				"retry":             i,
				"max_retries":       f.maxRetries,
				"remaining_retries": effectiveMaxRetries - i,
				"delay":             delay.String(),
			}
			if lastErr != nil {
				fields["error"] = lastErr.Error()
			}
			if retryAfter != "" {
				fields["retry_after_header"] = retryAfter
			}
			applog.WithComponent(component).WithFields(fields).Warn("재시도 대기 중: 일시적 오류로 인해 요청 재시도를 준비합니다")

			// [단계 5] 재시도 대기 및 취소 감지
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				if !timer.Stop() {
					<-timer.C
				}
				return nil, req.Context().Err()

			case <-timer.C:
			}
		}

		resp, err := f.delegate.Do(req)
		if err == nil {
			return resp, nil
		}

		// 전체 요청 제한 시간(Deadline)이 초과된 경우, 재시도를 해도 성공할 수 없으므로 즉시 중단합니다.
		if errors.Is(err, context.DeadlineExceeded) && req.Context().Err() != nil {
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			return nil, err
		}

		// 일시적인 오류(네트워크 지연, 429, 5xx 등)인 경우에만 재시도를 수행합니다.
		if !isRetriable(err) {
			if resp != nil && resp.Body != nil {
				drainAndCloseBody(resp.Body)
			}
			return nil, err
		}

		lastErr = err
		if resp != nil && resp.Body != nil {
			// 커넥션 재사용을 위해 응답 객체의 Body를 안전하게 비우고 닫음
			drainAndCloseBody(resp.Body)
		}
	}

	// 모든 재시도 횟수를 소진했으므로 마지막 에러를 래핑하여 반환합니다.
	return nil, apperrors.Wrap(lastErr, apperrors.Unavailable, ErrMaxRetriesExceeded.Error())
}

// normalizeMaxRetries 최대 재시도 횟수를 허용 범위(0 ~ 10) 내로 정규화합니다.
func normalizeMaxRetries(maxRetries int) int {
	if maxRetries < minAllowedRetries {
		return minAllowedRetries
	}
	if maxRetries > maxAllowedRetries {
		// 과도한 재시도로 인한 지연 방지
		return maxAllowedRetries
	}
	return maxRetries
}

// normalizeRetryDelays 재시도 대기 시간의 최소값과 최대값을 정규화합니다.
//
// 정규화 규칙:
//   - minRetryDelay 1초 미만: 서버 부하 방지를 위해 1초로 보정
//   - maxRetryDelay 0: 기본값(30초)으로 보정
//   - maxRetryDelay < minRetryDelay: minRetryDelay로 보정
func normalizeRetryDelays(minRetryDelay, maxRetryDelay time.Duration) (time.Duration, time.Duration) {
	if minRetryDelay < time.Second {
		minRetryDelay = 1 * time.Second
	}

	if maxRetryDelay == 0 {
		maxRetryDelay = defaultMaxRetryDelay
	}

	if maxRetryDelay < minRetryDelay {
		maxRetryDelay = minRetryDelay
	}

	return minRetryDelay, maxRetryDelay
}

// isRetriable 발생한 에러가 재시도 가능한 일시적인 오류인지 판단합니다.
//
// 재시도 대상:
//   - 네트워크 타임아웃 및 일시적인 연결 오류
//   - 서버 일시적 오류 (apperrors.Unavailable: 429, 408, 5xx)
//   - 분류되지 않은 일반 에러 (DNS 조회 실패, 연결 거부 등)
//
// 재시도 제외:
//   - 컨텍스트 취소 (사용자의 명시적 취소 의도)
//   - SSL/TLS 인증서 오류 (영구적 보안 문제)
//   - 영구적인 상태 코드 (501, 505, 511)
//   - 클라이언트 측 에러 (InvalidInput, NotFound, ExecutionFailed, ParsingFailed)
func isRetriable(err error) bool {
	if err == nil {
		return false
	}

	// context.Canceled는 명시적으로 요청을 취소한 것이므로 재시도 제외
	// 주의: context.DeadlineExceeded는 HTTP 클라이언트 타임아웃 시에도 발생하므로 net.Error 검사 단계에서 확인합니다.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// 인증서 에러(유효기간 만료, 신뢰할 수 없는 CA 등)는 재시도해도 해결되지 않음
	var x509HostnameErr x509.HostnameError
	var x509UnknownAuthorityErr x509.UnknownAuthorityError
	var x509CertificateInvalidErr x509.CertificateInvalidError
	if errors.As(err, &x509HostnameErr) || errors.As(err, &x509UnknownAuthorityErr) || errors.As(err, &x509CertificateInvalidErr) {
		return false
	}

	// 네트워크 타임아웃은 일시적인 지연으로 간주하여 재시도
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// 서버 측 일시적 오류 (429, 408, 5xx)
	// 단, 501/505/511은 영구적인 설정 문제이므로 재시도 대상에서 제외합니다.
	if apperrors.Is(err, apperrors.Unavailable) {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported, http.StatusNetworkAuthenticationRequired:
				return false
			}
		}
		return true
	}

	// 명확한 클라이언트 측 에러는 재시도해도 동일한 결과가 나오므로 재시도 제외
	if apperrors.Is(err, apperrors.ExecutionFailed) ||
		apperrors.Is(err, apperrors.ParsingFailed) ||
		apperrors.Is(err, apperrors.InvalidInput) ||
		apperrors.Is(err, apperrors.NotFound) {
		return false
	}

	// 명확한 실패 사유가 없다면 일시적 오류(DNS 조회 실패, 연결 거부 등)로 간주하고 재시도합니다.
	return true
}

// isIdempotentMethod 지정된 HTTP 메서드가 멱등한지(재시도가 안전한지) 여부를 반환합니다.
// 참고: RFC 7231 Section 4.2.2 (Idempotent Methods)
func isIdempotentMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete:
		return true

	default:
		return false
	}
}

// parseRetryAfter Retry-After 헤더 값을 파싱하여 대기해야 할 시간을 반환합니다.
//
// 지원 형식 (RFC 7231 Section 7.1.3):
//  1. 초 단위 정수: "120" → 120초 후 재시도
//  2. HTTP-date 형식: "Wed, 21 Oct 2015 07:28:00 GMT" → 해당 시각까지 대기
func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}

	if date, err := http.ParseTime(value); err == nil {
		duration := time.Until(date)
		if duration < 0 {
			// 서버 시간과 클라이언트 시간 차이로 과거 시각이 올 수 있으므로 즉시 재시도
			duration = 0
		}
		return duration, true
	}

	return 0, false
}

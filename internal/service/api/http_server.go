package api

import (
	"net/http"
	"time"

	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	// defaultReadHeaderTimeout 요청 헤더 읽기 제한 (Slowloris 공격 방지)
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout 요청 본문 읽기 제한
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout 응답 쓰기 제한
	defaultWriteTimeout = 30 * time.Second

	// defaultIdleTimeout Keep-Alive 연결 유휴 제한
	defaultIdleTimeout = 60 * time.Second

	// defaultMaxBodySize 요청 본문 최대 크기
	defaultMaxBodySize = "64K"
)

// HTTPServerConfig HTTP 서버 생성에 필요한 설정을 정의합니다.
type HTTPServerConfig struct {
	// Debug Echo 프레임워크의 디버그 모드 활성화 여부
	Debug bool
}

// NewHTTPServer 설정된 미들웨어를 포함한 Echo 인스턴스를 생성합니다.
//
// 미들웨어는 다음 순서로 적용됩니다.
//
//  1. Recover    - 핸들러의 Panic을 복구하여 서버 다운 방지
//  2. RequestID  - 각 요청에 고유 ID 부여 (X-Request-ID 헤더)
//  3. Server 헤더 제거 - 기술 스택 노출 방지
//  4. HTTP 로깅  - 요청/응답 정보를 구조화된 로그로 기록
//  5. BodyLimit  - 요청 본문 크기 제한
//  6. CORS       - 크로스 도메인 요청 처리 (조회 전용 API이므로 GET 중심)
//  7. Secure     - 보안 응답 헤더 추가
//
// 라우트 설정은 포함되지 않으며, 반환된 Echo 인스턴스에 별도로 설정해야 합니다.
func NewHTTPServer(cfg HTTPServerConfig) *echo.Echo {
	e := echo.New()

	e.Debug = cfg.Debug
	e.HideBanner = true

	e.Server.ReadTimeout = defaultReadTimeout
	e.Server.ReadHeaderTimeout = defaultReadHeaderTimeout
	e.Server.WriteTimeout = defaultWriteTimeout
	e.Server.IdleTimeout = defaultIdleTimeout

	// 1. Panic 복구
	e.Use(middleware.Recover())
	// 2. Request ID
	e.Use(middleware.RequestID())
	// 3. Server 헤더 제거
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderServer, "")
			return next(c)
		}
	})
	// 4. HTTP 로깅
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := applog.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"remote_ip":  v.RemoteIP,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			}
			if v.Error != nil {
				fields["error"] = v.Error
				applog.WithComponentAndFields(component, fields).Warn("HTTP 요청 처리 중 오류가 발생했습니다")
				return nil
			}

			applog.WithComponentAndFields(component, fields).Debug("HTTP 요청을 처리했습니다")
			return nil
		},
	}))
	// 5. Body Limit
	e.Use(middleware.BodyLimit(defaultMaxBodySize))
	// 6. CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	// 7. 보안 헤더
	e.Use(middleware.Secure())

	return e
}

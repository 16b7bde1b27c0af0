package api

import (
	"github.com/labstack/echo/v4"
)

// SetupRoutes 리포트 조회 API의 모든 라우트를 등록합니다.
//
//   - 시스템 엔드포인트: 서비스 상태 확인 (/healthz, 인증 불필요)
//   - 리포트 엔드포인트: 판매 상위 목록 조회 (/api/v1/reports/*)
//   - 구독자 엔드포인트: 구독자 목록 조회 및 등록 (/api/v1/subscribers)
func SetupRoutes(e *echo.Echo, h *Handler) {
	e.GET("/healthz", h.HealthCheckHandler)

	v1 := e.Group("/api/v1")

	reports := v1.Group("/reports")
	reports.GET("/top-artists", h.TopArtistsHandler)
	reports.GET("/top-tags", h.TopTagsHandler)
	reports.GET("/top-tracks", h.TopTracksHandler)
	reports.GET("/top-countries", h.TopCountriesHandler)

	v1.GET("/subscribers", h.SubscribersHandler)
	v1.POST("/subscribers", h.AddSubscriberHandler)
}

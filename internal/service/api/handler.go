package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/store"
	"github.com/labstack/echo/v4"
)

// ReportStore 리포트 조회 API가 의존하는 판매 데이터 저장소 인터페이스입니다.
type ReportStore interface {
	// Ping 저장소와의 연결 상태를 확인합니다.
	Ping(ctx context.Context) error

	// TopArtists 판매 상위 아티스트 목록을 조회합니다.
	TopArtists(ctx context.Context, limit int, country string) ([]store.ReportRow, error)

	// TopTags 판매 상위 태그 목록을 조회합니다.
	TopTags(ctx context.Context, limit int, country string) ([]store.ReportRow, error)

	// TopTracks 판매 상위 트랙 목록을 조회합니다.
	TopTracks(ctx context.Context, limit int, country string) ([]store.ReportRow, error)

	// TopCountries 판매액 상위 국가 목록을 조회합니다.
	TopCountries(ctx context.Context, limit int) ([]store.ReportRow, error)

	// Subscribers 리포트 수신 구독자 전체 목록을 조회합니다.
	Subscribers(ctx context.Context) ([]store.Subscriber, error)

	// AddSubscriber 리포트 수신 구독자를 등록합니다.
	AddSubscriber(ctx context.Context, email, name string) error
}

var _ ReportStore = (*store.Store)(nil)

// Handler 리포트 조회 API의 HTTP 핸들러입니다.
type Handler struct {
	reportStore ReportStore

	serverStartTime time.Time
}

// NewHandler Handler 인스턴스를 생성합니다.
func NewHandler(reportStore ReportStore) *Handler {
	if reportStore == nil {
		panic("ReportStore는 필수입니다")
	}

	return &Handler{
		reportStore: reportStore,

		serverStartTime: time.Now(),
	}
}

// healthResponse 헬스체크 응답
type healthResponse struct {
	Status   string `json:"status"`
	Uptime   int64  `json:"uptime"`
	Database string `json:"database"`
}

// HealthCheckHandler 서버와 데이터베이스의 상태를 반환합니다. 인증 없이 호출 가능합니다.
func (h *Handler) HealthCheckHandler(c echo.Context) error {
	resp := healthResponse{
		Status:   "healthy",
		Uptime:   int64(time.Since(h.serverStartTime).Seconds()),
		Database: "healthy",
	}

	if err := h.reportStore.Ping(c.Request().Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Database = err.Error()
	}

	return c.JSON(http.StatusOK, resp)
}

// TopArtistsHandler 판매 상위 아티스트 목록을 반환합니다.
//
// Query Parameters:
//   - limit: 조회할 최대 행 수 (기본값: 5)
//   - country: 국가명. 지정 시 해당 국가의 구매 건수 기준으로 집계합니다.
func (h *Handler) TopArtistsHandler(c echo.Context) error {
	return h.handleTopQuery(c, h.reportStore.TopArtists)
}

// TopTagsHandler 판매 상위 태그 목록을 반환합니다.
func (h *Handler) TopTagsHandler(c echo.Context) error {
	return h.handleTopQuery(c, h.reportStore.TopTags)
}

// TopTracksHandler 판매 상위 트랙 목록을 반환합니다.
func (h *Handler) TopTracksHandler(c echo.Context) error {
	return h.handleTopQuery(c, h.reportStore.TopTracks)
}

// TopCountriesHandler 판매액 상위 국가 목록을 반환합니다.
func (h *Handler) TopCountriesHandler(c echo.Context) error {
	limit, err := parseLimitParam(c)
	if err != nil {
		return err
	}

	rows, err := h.reportStore.TopCountries(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "리포트 조회 중 오류가 발생했습니다").SetInternal(err)
	}

	return c.JSON(http.StatusOK, rows)
}

// SubscribersHandler 리포트 수신 구독자 전체 목록을 반환합니다.
func (h *Handler) SubscribersHandler(c echo.Context) error {
	subscribers, err := h.reportStore.Subscribers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "구독자 목록 조회 중 오류가 발생했습니다").SetInternal(err)
	}

	return c.JSON(http.StatusOK, subscribers)
}

// subscribeRequest 구독 등록 요청 본문
type subscribeRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AddSubscriberHandler 리포트 수신 구독자를 등록합니다.
// 이미 등록된 이메일이면 이름을 갱신합니다.
func (h *Handler) AddSubscriberHandler(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "요청 본문 형식이 올바르지 않습니다").SetInternal(err)
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return echo.NewHTTPError(http.StatusBadRequest, "유효한 이메일 주소가 필요합니다")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "구독자 이름이 필요합니다")
	}

	if err := h.reportStore.AddSubscriber(c.Request().Context(), req.Email, req.Name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "구독자 등록 중 오류가 발생했습니다").SetInternal(err)
	}

	return c.NoContent(http.StatusCreated)
}

// handleTopQuery limit/country 파라미터를 받는 상위 목록 조회의 공통 처리 로직입니다.
func (h *Handler) handleTopQuery(c echo.Context, query func(ctx context.Context, limit int, country string) ([]store.ReportRow, error)) error {
	limit, err := parseLimitParam(c)
	if err != nil {
		return err
	}

	rows, err := query(c.Request().Context(), limit, c.QueryParam("country"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "리포트 조회 중 오류가 발생했습니다").SetInternal(err)
	}

	return c.JSON(http.StatusOK, rows)
}

// parseLimitParam limit 쿼리 파라미터를 파싱합니다. 생략 시 0을 반환하여 저장소의 기본값을 따릅니다.
func parseLimitParam(c echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return 0, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit 파라미터는 1 이상의 정수여야 합니다")
	}
	return limit, nil
}

package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/darkkaiser/bandcamp-tracker/internal/service/api"
	"github.com/darkkaiser/bandcamp-tracker/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReportStore 호출 인자를 기록하고 준비된 결과를 반환하는 ReportStore 구현체
type fakeReportStore struct {
	rows        []store.ReportRow
	subscribers []store.Subscriber
	err         error
	pingErr     error

	lastLimit   int
	lastCountry string

	addedEmail string
	addedName  string
}

func (f *fakeReportStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeReportStore) TopArtists(_ context.Context, limit int, country string) ([]store.ReportRow, error) {
	f.lastLimit, f.lastCountry = limit, country
	return f.rows, f.err
}

func (f *fakeReportStore) TopTags(_ context.Context, limit int, country string) ([]store.ReportRow, error) {
	f.lastLimit, f.lastCountry = limit, country
	return f.rows, f.err
}

func (f *fakeReportStore) TopTracks(_ context.Context, limit int, country string) ([]store.ReportRow, error) {
	f.lastLimit, f.lastCountry = limit, country
	return f.rows, f.err
}

func (f *fakeReportStore) TopCountries(_ context.Context, limit int) ([]store.ReportRow, error) {
	f.lastLimit = limit
	return f.rows, f.err
}

func (f *fakeReportStore) Subscribers(context.Context) ([]store.Subscriber, error) {
	return f.subscribers, f.err
}

func (f *fakeReportStore) AddSubscriber(_ context.Context, email, name string) error {
	if f.err != nil {
		return f.err
	}
	f.addedEmail, f.addedName = email, name
	return nil
}

// newTestContext 핸들러 직접 호출용 echo.Context를 생성합니다.
func newTestContext(method, target string, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}

	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHealthCheckHandler(t *testing.T) {
	t.Run("returns healthy when the database responds", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{})
		c, rec := newTestContext(http.MethodGet, "/healthz", "")

		require.NoError(t, h.HealthCheckHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
		assert.Equal(t, "healthy", resp["database"])
	})

	t.Run("returns unhealthy when the database is unreachable", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{pingErr: fmt.Errorf("connection refused")})
		c, rec := newTestContext(http.MethodGet, "/healthz", "")

		require.NoError(t, h.HealthCheckHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "unhealthy", resp["status"])
	})
}

func TestTopArtistsHandler(t *testing.T) {
	t.Run("returns report rows as JSON", func(t *testing.T) {
		fake := &fakeReportStore{rows: []store.ReportRow{
			{Name: "roygbiv", Total: 120.5},
			{Name: "bibio", Total: 88.0},
		}}
		h := api.NewHandler(fake)
		c, rec := newTestContext(http.MethodGet, "/api/v1/reports/top-artists", "")

		require.NoError(t, h.TopArtistsHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var rows []store.ReportRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		assert.Equal(t, fake.rows, rows)
		assert.Equal(t, 0, fake.lastLimit, "limit 미지정 시 저장소 기본값을 따른다")
		assert.Empty(t, fake.lastCountry)
	})

	t.Run("passes limit and country query parameters through", func(t *testing.T) {
		fake := &fakeReportStore{}
		h := api.NewHandler(fake)
		c, _ := newTestContext(http.MethodGet, "/api/v1/reports/top-artists?limit=3&country=France", "")

		require.NoError(t, h.TopArtistsHandler(c))
		assert.Equal(t, 3, fake.lastLimit)
		assert.Equal(t, "France", fake.lastCountry)
	})

	t.Run("rejects a non-numeric limit", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{})
		c, _ := newTestContext(http.MethodGet, "/api/v1/reports/top-artists?limit=abc", "")

		err := h.TopArtistsHandler(c)
		require.Error(t, err)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("maps a store failure to an internal server error", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{err: fmt.Errorf("connection refused")})
		c, _ := newTestContext(http.MethodGet, "/api/v1/reports/top-artists", "")

		err := h.TopArtistsHandler(c)
		require.Error(t, err)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	})
}

func TestTopCountriesHandler(t *testing.T) {
	fake := &fakeReportStore{rows: []store.ReportRow{{Name: "United Kingdom", Total: 512.25}}}
	h := api.NewHandler(fake)
	c, rec := newTestContext(http.MethodGet, "/api/v1/reports/top-countries?limit=10", "")

	require.NoError(t, h.TopCountriesHandler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, fake.lastLimit)
}

func TestSubscriberHandlers(t *testing.T) {
	t.Run("lists subscribers", func(t *testing.T) {
		fake := &fakeReportStore{subscribers: []store.Subscriber{{Email: "a@example.com", Name: "A"}}}
		h := api.NewHandler(fake)
		c, rec := newTestContext(http.MethodGet, "/api/v1/subscribers", "")

		require.NoError(t, h.SubscribersHandler(c))
		assert.Equal(t, http.StatusOK, rec.Code)

		var subscribers []store.Subscriber
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subscribers))
		assert.Equal(t, fake.subscribers, subscribers)
	})

	t.Run("registers a subscriber", func(t *testing.T) {
		fake := &fakeReportStore{}
		h := api.NewHandler(fake)
		c, rec := newTestContext(http.MethodPost, "/api/v1/subscribers", `{"email":" a@example.com ","name":" A "}`)

		require.NoError(t, h.AddSubscriberHandler(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "a@example.com", fake.addedEmail, "이메일 양끝 공백은 제거된다")
		assert.Equal(t, "A", fake.addedName)
	})

	t.Run("rejects an invalid email address", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{})
		c, _ := newTestContext(http.MethodPost, "/api/v1/subscribers", `{"email":"not-an-email","name":"A"}`)

		err := h.AddSubscriberHandler(c)
		require.Error(t, err)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("rejects a missing name", func(t *testing.T) {
		h := api.NewHandler(&fakeReportStore{})
		c, _ := newTestContext(http.MethodPost, "/api/v1/subscribers", `{"email":"a@example.com"}`)

		err := h.AddSubscriberHandler(c)
		require.Error(t, err)

		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestSetupRoutes(t *testing.T) {
	e := echo.New()
	api.SetupRoutes(e, api.NewHandler(&fakeReportStore{}))

	registered := make(map[string]bool)
	for _, r := range e.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	for _, route := range []string{
		"GET /healthz",
		"GET /api/v1/reports/top-artists",
		"GET /api/v1/reports/top-tags",
		"GET /api/v1/reports/top-tracks",
		"GET /api/v1/reports/top-countries",
		"GET /api/v1/subscribers",
		"POST /api/v1/subscribers",
	} {
		assert.True(t, registered[route], "route %s should be registered", route)
	}
}

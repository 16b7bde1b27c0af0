// Package api 적재된 판매 데이터의 리포트 조회 엔드포인트를 제공하는 HTTP API 서비스입니다.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/config"
	"github.com/darkkaiser/bandcamp-tracker/internal/service"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/labstack/echo/v4"
)

// component API 서비스의 로깅용 컴포넌트 이름
const component = "api.service"

// shutdownTimeout Graceful Shutdown 시 최대 대기 시간
const shutdownTimeout = 5 * time.Second

// Service 리포트 조회 API 서버의 생명주기를 관리하는 서비스입니다.
//
// Echo 기반 HTTP 서버의 시작/종료, 미들웨어 체인 설정, 라우팅 설정,
// Graceful Shutdown(5초 타임아웃)을 담당합니다.
// 서비스는 고루틴으로 실행되며, Context를 통해 종료 신호를 받습니다.
type Service struct {
	appConfig *config.AppConfig

	reportStore ReportStore

	running   bool
	runningMu sync.Mutex
}

var _ service.Service = (*Service)(nil)

// NewService Service 인스턴스를 생성합니다.
func NewService(appConfig *config.AppConfig, reportStore ReportStore) *Service {
	if appConfig == nil {
		panic("AppConfig는 필수입니다")
	}
	if reportStore == nil {
		panic("ReportStore는 필수입니다")
	}

	return &Service{
		appConfig: appConfig,

		reportStore: reportStore,
	}
}

// Start API 서비스를 시작합니다.
//
// 이 함수는 즉시 반환되며, 실제 서버는 고루틴에서 실행됩니다.
func (s *Service) Start(serviceStopCtx context.Context, serviceStopWG *sync.WaitGroup) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	applog.WithComponent(component).Info("서비스 시작 진입: API 서비스 초기화 프로세스를 시작합니다")

	if s.running {
		defer serviceStopWG.Done()
		applog.WithComponent(component).Warn("API 서비스가 이미 실행 중입니다 (중복 호출)")
		return nil
	}

	s.running = true

	go s.runServiceLoop(serviceStopCtx, serviceStopWG)

	applog.WithComponent(component).Info("서비스 시작 완료: API 서비스가 정상적으로 초기화되었습니다")

	return nil
}

// runServiceLoop 서비스의 메인 실행 루프입니다.
// 서버 설정, HTTP 서버 시작, Shutdown 대기를 순차적으로 수행합니다.
func (s *Service) runServiceLoop(serviceStopCtx context.Context, serviceStopWG *sync.WaitGroup) {
	defer serviceStopWG.Done()

	e := s.setupServer()

	httpServerDone := make(chan struct{})
	go s.startHTTPServer(e, httpServerDone)

	s.waitForShutdown(serviceStopCtx, e, httpServerDone)
}

// setupServer Echo 서버 인스턴스를 생성하고 라우트 등록까지 완료합니다.
func (s *Service) setupServer() *echo.Echo {
	h := NewHandler(s.reportStore)

	e := NewHTTPServer(HTTPServerConfig{
		Debug: s.appConfig.Debug,
	})

	SetupRoutes(e, h)

	return e
}

// startHTTPServer HTTP 서버를 시작합니다.
// 서버가 종료되면 done 채널을 닫아 대기 중인 고루틴에 신호를 보냅니다.
func (s *Service) startHTTPServer(e *echo.Echo, done chan struct{}) {
	defer close(done)

	port := s.appConfig.API.ListenPort
	applog.WithComponentAndFields(component, applog.Fields{
		"port": port,
	}).Debug("HTTP 서버를 시작합니다")

	s.handleServerError(e.Start(fmt.Sprintf(":%d", port)))
}

// handleServerError HTTP 서버 종료 시 반환된 에러를 처리합니다.
func (s *Service) handleServerError(err error) {
	if err == nil {
		return
	}

	// Graceful Shutdown에 의한 정상 종료
	if errors.Is(err, http.ErrServerClosed) {
		applog.WithComponent(component).Info("HTTP 서버가 정상적으로 종료되었습니다")
		return
	}

	applog.WithComponentAndFields(component, applog.Fields{
		"port":  s.appConfig.API.ListenPort,
		"error": err,
	}).Error("HTTP 서버 실행 중 예상치 못한 오류가 발생했습니다")
}

// waitForShutdown 종료 신호를 대기하고 Graceful Shutdown을 수행합니다.
func (s *Service) waitForShutdown(serviceStopCtx context.Context, e *echo.Echo, httpServerDone chan struct{}) {
	select {
	case <-serviceStopCtx.Done():
		applog.WithComponent(component).Info("종료 절차 진입: API 서비스 중지 시그널을 수신했습니다")
	case <-httpServerDone:
		// HTTP 서버가 예기치 않게 종료됨 (포트 바인딩 실패 등)
		// 이미 종료되었으므로 Shutdown 호출 없이 상태만 정리한다.
		applog.WithComponent(component).Error("HTTP 서버가 예기치 않게 종료되었습니다")

		s.cleanup()

		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		applog.WithComponentAndFields(component, applog.Fields{
			"error": err,
		}).Error("HTTP 서버 Shutdown 중 오류가 발생했습니다")
	}

	// HTTP 서버 고루틴의 완전한 종료를 대기
	<-httpServerDone

	s.cleanup()

	applog.WithComponent(component).Info("API 서비스 종료 완료: 모든 리소스가 정리되었습니다")
}

// cleanup 서비스 상태를 초기화합니다.
func (s *Service) cleanup() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	s.running = false
}

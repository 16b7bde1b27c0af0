// Package pipeline 판매 피드 수집부터 데이터베이스 적재까지의 ETL 사이클을
// Cron 스케줄에 맞춰 반복 실행하는 서비스를 제공합니다.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/config"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/extract"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/feed"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/fetcher"
	"github.com/darkkaiser/bandcamp-tracker/internal/pipeline/transform"
	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/darkkaiser/bandcamp-tracker/internal/service"
	"github.com/darkkaiser/bandcamp-tracker/internal/store"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// component Pipeline 서비스의 로깅용 컴포넌트 이름
const component = "pipeline.service"

// SalesLoader 정규화된 판매 레코드 배치를 적재하는 인터페이스입니다.
type SalesLoader interface {
	LoadSales(ctx context.Context, sales []transform.CanonicalSale) (store.LoadResult, error)
}

var _ SalesLoader = (*store.Store)(nil)

// Service 판매 피드의 ETL 사이클을 주기적으로 실행하는 서비스입니다.
//
// 한 사이클은 수집(Fetch) → 보강(Extract) → 정규화(Transform) → 적재(Load) 순서로
// 진행되며, 사이클 하나가 실패하더라도 다음 사이클은 정상적으로 실행됩니다.
type Service struct {
	schedule   string
	runOnStart bool

	feedClient *feed.Client
	extractor  *extract.Extractor
	loader     SalesLoader

	cron *cron.Cron

	running   bool
	runningMu sync.Mutex
}

var _ service.Service = (*Service)(nil)

// NewService 새로운 Pipeline 서비스 인스턴스를 생성합니다.
func NewService(appConfig *config.AppConfig, loader SalesLoader) *Service {
	if appConfig == nil {
		panic("AppConfig는 필수입니다")
	}
	if loader == nil {
		panic("SalesLoader는 필수입니다")
	}

	// 피드 API 요청용 Fetcher 체인 (JSON 엔드포인트이므로 User-Agent 랜덤화는 사용하지 않음)
	// 재시도는 페이지 스크래핑에만 적용되며, 피드 요청 실패는 현재 사이클만 중단시킵니다.
	feedFetcher := fetcher.New(fetcher.Config{
		Timeout: appConfig.Feed.TimeoutDuration(),
	})

	// 페이지 스크래핑용 Fetcher 체인
	scrapeFetcher := fetcher.New(fetcher.Config{
		Timeout:                      appConfig.Scrape.TimeoutDuration(),
		MaxRetries:                   appConfig.Scrape.MaxRetries,
		MinRetryDelay:                appConfig.Scrape.RetryDelayDuration(),
		EnableUserAgentRandomization: true,
	})

	return &Service{
		schedule:   appConfig.Pipeline.Schedule,
		runOnStart: appConfig.Pipeline.RunOnStart,

		feedClient: feed.NewClient(feedFetcher, appConfig.Feed.URL),
		extractor:  extract.New(scrapeFetcher, appConfig.Scrape.MaxConcurrentFetches, appConfig.Scrape.FetchDelayDuration()),
		loader:     loader,
	}
}

// Start Pipeline 서비스를 시작하고 ETL 사이클을 Cron 엔진에 등록합니다.
func (s *Service) Start(serviceStopCtx context.Context, serviceStopWG *sync.WaitGroup) error {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	applog.WithComponent(component).Info("서비스 시작 진입: Pipeline 서비스 초기화 프로세스를 시작합니다")

	if s.running {
		serviceStopWG.Done()
		applog.WithComponent(component).Warn("Pipeline 서비스가 이미 실행 중입니다 (중복 호출)")
		return nil
	}

	// Cron 엔진 초기화
	// - Recover: 사이클 도중 Panic이 발생해도 스케줄러 전체가 중단되지 않음
	// - SkipIfStillRunning: 이전 사이클이 끝나지 않았으면 다음 사이클을 건너뜀
	s.cron = cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(applog.StandardLogger())),
		cron.WithChain(
			cron.Recover(cron.VerbosePrintfLogger(applog.StandardLogger())),
			cron.SkipIfStillRunning(cron.VerbosePrintfLogger(applog.StandardLogger())),
		),
	)

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.runCycle(serviceStopCtx)
	}); err != nil {
		serviceStopWG.Done()
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("파이프라인 스케줄 등록에 실패했습니다 (Schedule: %s)", s.schedule))
	}

	s.cron.Start()
	s.running = true

	applog.WithComponentAndFields(component, applog.Fields{
		"schedule":     s.schedule,
		"run_on_start": s.runOnStart,
	}).Info("서비스 시작 완료: Pipeline 서비스가 정상적으로 초기화되었습니다")

	// 서비스 시작 직후 첫 사이클 실행 (다음 스케줄까지 기다리지 않음)
	if s.runOnStart {
		go s.runCycle(serviceStopCtx)
	}

	// 종료 신호 대기 (고루틴)
	go func() {
		defer serviceStopWG.Done()

		<-serviceStopCtx.Done()

		s.Stop()
	}()

	return nil
}

// Stop 실행 중인 스케줄러를 안전하게 중지합니다.
// 진행 중인 사이클이 있으면 완료될 때까지 대기합니다.
func (s *Service) Stop() {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if !s.running {
		return
	}

	applog.WithComponent(component).Info("종료 절차 진입: Pipeline 서비스 중지 시그널을 수신했습니다")

	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}

	s.cron = nil
	s.running = false

	applog.WithComponent(component).Info("Pipeline 서비스 종료 완료: 모든 리소스가 정리되었습니다")
}

// runCycle ETL 사이클을 한 번 실행하고, 실패하더라도 에러를 전파하지 않습니다.
// 사이클 하나의 실패가 이후 스케줄에 영향을 주지 않도록 격리합니다.
func (s *Service) runCycle(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		// 서비스 종료로 인한 사이클 중단은 오류가 아니다.
		if ctx.Err() != nil {
			applog.WithComponent(component).Info("서비스 종료로 인해 진행 중인 사이클을 중단합니다")
			return
		}

		applog.WithComponentAndFields(component, applog.Fields{
			"error": err,
		}).Error("파이프라인 사이클 실행 중 오류가 발생했습니다 (다음 사이클은 정상적으로 실행됩니다)")
	}
}

// RunOnce ETL 사이클을 한 번 실행합니다.
//
// 수집된 판매 아이템이 없으면 이후 단계를 생략하고 정상 종료합니다.
// 개별 아이템의 보강 실패는 사이클을 중단시키지 않지만,
// 피드 수집/정규화/적재 단계의 실패는 사이클 전체를 중단시킵니다.
func (s *Service) RunOnce(ctx context.Context) error {
	runID := uuid.New().String()
	logger := applog.WithComponentAndFields(component, applog.Fields{
		"run_id": runID,
	})

	started := time.Now()
	logger.Info("파이프라인 사이클을 시작합니다")

	// 1. 판매 피드 수집
	items, err := s.feedClient.FetchSaleItems(ctx)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ExecutionFailed, "판매 피드 수집에 실패했습니다")
	}
	if len(items) == 0 {
		logger.Info("수집된 판매 아이템이 없어 사이클을 종료합니다")
		return nil
	}

	// 2. 아이템별 상세 페이지 스크래핑으로 태그/앨범 정보 보강
	items = s.extractor.EnrichAll(ctx, items)

	// 3. 원본 피드 아이템을 정규화된 판매 레코드로 변환
	sales, err := transform.Transform(items)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ExecutionFailed, "판매 데이터 정규화에 실패했습니다")
	}

	// 4. 데이터베이스 적재
	result, err := s.loader.LoadSales(ctx, sales)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ExecutionFailed, "판매 데이터 적재에 실패했습니다")
	}

	logger.WithFields(applog.Fields{
		"fetched_items": len(items),
		"loaded":        result.Loaded,
		"skipped":       result.Skipped,
		"elapsed":       time.Since(started).Round(time.Millisecond).String(),
	}).Info("파이프라인 사이클이 완료되었습니다")

	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/darkkaiser/bandcamp-tracker/internal/config"
	"github.com/darkkaiser/bandcamp-tracker/internal/service"
	"github.com/darkkaiser/bandcamp-tracker/internal/service/api"
	"github.com/darkkaiser/bandcamp-tracker/internal/service/pipeline"
	"github.com/darkkaiser/bandcamp-tracker/internal/store"
	applog "github.com/darkkaiser/bandcamp-tracker/pkg/log"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// 빌드 정보 변수 (빌드 시 ldflags로 주입됨)
var (
	Version = "dev"
)

// dbConnectTimeout 시작 시 데이터베이스 연결 및 스키마 생성에 허용되는 최대 시간
const dbConnectTimeout = 10 * time.Second

const (
	banner = `
  ____                      _                                 _____                  _
 | __ )  __ _  _ __    __| | ___  __ _  _ __ ___   _ __     |_   _|_ __  __ _  ___ | | __ ___  _ __
 |  _ \ / _' || '_ \  / _' |/ __|/ _' || '_ ' _ \ | '_ \      | | | '__|/ _' |/ __|| |/ // _ \| '__|
 | |_) | (_| || | | || (_| || (__| (_| || | | | | || |_) |     | | | |  | (_| || (__ |   <|  __/| |
 |____/ \__,_||_| |_| \__,_|\___|\__,_||_| |_| |_|| .__/      |_| |_|   \__,_|\___||_|\_\\___||_|
                                                  |_|                            v%s
--------------------------------------------------------------------------------
`
)

func main() {
	// 1. .env 파일 로드 (존재하는 경우에만)
	// 데이터베이스 접속 정보(DB_*)는 환경 변수로 공급된다.
	_ = godotenv.Load()

	// 2. 환경설정 로드 (로그 설정에 필요하므로 가장 먼저 수행한다)
	appConfig, err := config.Load()
	if err != nil {
		// 로거 초기화 전이므로 표준 에러에 출력
		fmt.Fprintf(os.Stderr, "[FATAL] 환경설정 로드 실패: %v\n", err)
		os.Exit(1)
	}

	// 3. 로그 시스템 초기화
	var logOpts applog.Options
	if appConfig.Debug {
		logOpts = applog.NewDevelopmentConfig(config.AppName)
	} else {
		logOpts = applog.NewProductionConfig(config.AppName)
	}

	appLogCloser, err := applog.Setup(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] 로그 시스템 초기화 실패. 서버 구동을 중단합니다. (Cause: %v)\n", err)
		os.Exit(1)
	}
	defer appLogCloser.Close()

	// 4. 로그 레벨 최종 확정
	applog.SetDebugMode(appConfig.Debug)

	fmt.Printf(banner, Version)

	applog.WithComponentAndFields("main", log.Fields{
		"version": Version,
		"env":     map[bool]string{true: "development", false: "production"}[appConfig.Debug],
	}).Info("서버 초기화 시작")

	// 5. 데이터베이스 연결 및 스키마 생성
	dbCtx, dbCancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer dbCancel()

	dataStore, err := store.New(dbCtx, appConfig.Database.DSN())
	if err != nil {
		log.Fatalf("데이터베이스 연결 실패로 프로그램을 종료합니다: %v", err)
	}
	defer dataStore.Close()

	if err := dataStore.Migrate(dbCtx); err != nil {
		log.Fatalf("데이터베이스 스키마 생성 실패로 프로그램을 종료합니다: %v", err)
	}

	// 6. 서비스를 생성하고 초기화한다.
	services := []service.Service{
		pipeline.NewService(appConfig, dataStore),
	}
	if appConfig.API.Enabled {
		services = append(services, api.NewService(appConfig, dataStore))
	}

	// Set up cancellation context and waitgroup
	serviceStopCtx, cancel := context.WithCancel(context.Background())
	serviceStopWG := &sync.WaitGroup{}

	// 7. 서비스를 시작한다.
	for _, s := range services {
		serviceStopWG.Add(1)
		if err := s.Start(serviceStopCtx, serviceStopWG); err != nil {
			applog.WithComponentAndFields("main", log.Fields{
				"error": err,
			}).Error("서비스 초기화 실패")

			cancel() // 다른 서비스들도 종료
			serviceStopWG.Wait()

			log.Fatal("서비스 초기화 실패로 프로그램을 종료합니다")
		}
	}

	// Handle sigterm and await termC signal
	termC := make(chan os.Signal, 1)
	signal.Notify(termC, syscall.SIGINT, syscall.SIGTERM)

	applog.WithComponent("main").Info("서버 가동 완료")

	<-termC // Blocks here until interrupted

	// Handle shutdown
	applog.WithComponent("main").Info("Shutdown signal received")
	cancel()             // Signal cancellation to context.Context
	serviceStopWG.Wait() // Block here until are workers are done
}

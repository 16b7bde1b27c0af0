// Package config 애플리케이션의 환경설정 로드와 유효성 검증을 담당합니다.
//
// 설정값의 우선순위는 다음과 같습니다. (아래로 갈수록 높은 우선순위)
//
//  1. 기본값 (confmap)
//  2. JSON 설정 파일 (존재하는 경우에만)
//  3. 환경 변수 (DB_*, BCT_*)
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

const (
	// AppName 애플리케이션의 전역 고유 식별자입니다.
	AppName string = "bandcamp-tracker"

	// DefaultFilename 애플리케이션 초기화 시 참조하는 기본 설정 파일명입니다.
	// 이 파일이 존재하지 않아도 기본값과 환경 변수만으로 구동이 가능합니다.
	DefaultFilename = AppName + ".json"

	// DefaultFeedURL Bandcamp 판매 피드 API의 기본 엔드포인트입니다.
	DefaultFeedURL = "https://bandcamp.com/api/salesfeed/1/get_initial"

	// DefaultSchedule 파이프라인 사이클의 기본 실행 주기입니다. (2분 간격)
	DefaultSchedule = "@every 2m"

	// DefaultMaxConcurrentFetches 동시에 진행할 수 있는 페이지 스크래핑 요청의 최대 개수 기본값입니다.
	// 대상 사이트의 요청 제한(Rate Limit)을 준수하기 위한 값이므로 과도하게 높이지 않도록 주의합니다.
	DefaultMaxConcurrentFetches = 3

	// DefaultFetchDelay 스크래핑 요청 사이에 적용되는 최소 간격의 기본값입니다.
	DefaultFetchDelay = "500ms"

	// DefaultFetchTimeout 피드/페이지 요청 하나에 적용되는 타임아웃 기본값입니다.
	DefaultFetchTimeout = "20s"

	// DefaultMaxRetries HTTP 요청 실패 시 최대 재시도 횟수 기본값
	DefaultMaxRetries = 3

	// DefaultRetryDelay 재시도 사이의 대기 시간 기본값
	DefaultRetryDelay = "2s"

	// DefaultAPIListenPort 리포트 조회 API 서버의 기본 포트입니다.
	DefaultAPIListenPort = 8180
)

// AppConfig 애플리케이션의 모든 설정을 관장하는 최상위 루트 구조체
type AppConfig struct {
	Debug    bool           `json:"debug"`
	Database DatabaseConfig `json:"database"`
	Feed     FeedConfig     `json:"feed"`
	Scrape   ScrapeConfig   `json:"scrape"`
	Pipeline PipelineConfig `json:"pipeline"`
	API      APIConfig      `json:"api"`
}

// validate 설정 파일 로드 직후, 각 설정 항목의 정합성과 필수 값의 유효성을 검증합니다.
func (c *AppConfig) validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.Scrape.validate(); err != nil {
		return err
	}
	if err := c.Pipeline.validate(); err != nil {
		return err
	}
	return c.API.validate()
}

// DatabaseConfig 판매 데이터가 적재되는 PostgreSQL 접속 정보를 정의하는 설정 구조체
type DatabaseConfig struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"required,gte=1,lte=65535"`
	Name string `json:"name" validate:"required"`
	User string `json:"user" validate:"required"`
	Pass string `json:"pass"`
}

func (c *DatabaseConfig) validate() error {
	return validateStruct(c, "Database")
}

// DSN pgx 커넥션 풀 생성에 사용할 PostgreSQL 연결 문자열을 반환합니다.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Pass, c.Host, c.Port, c.Name)
}

// FeedConfig 판매 피드 API 연동 정보를 정의하는 설정 구조체
type FeedConfig struct {
	URL     string `json:"url" validate:"required,url"`
	Timeout string `json:"timeout" validate:"required"`
}

func (c *FeedConfig) validate() error {
	if err := validateStruct(c, "Feed"); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("피드 요청 타임아웃(feed.timeout) 설정이 올바르지 않습니다: '%s' (예: 20s, 500ms)", c.Timeout))
	}
	return nil
}

// TimeoutDuration 파싱된 피드 요청 타임아웃을 반환합니다.
// validate()를 통과한 이후에만 호출되어야 합니다.
func (c *FeedConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// ScrapeConfig 페이지 스크래핑의 동시성 및 재시도 정책을 정의하는 설정 구조체
type ScrapeConfig struct {
	MaxConcurrentFetches int    `json:"max_concurrent_fetches" validate:"required,gte=1,lte=16"`
	FetchDelay           string `json:"fetch_delay" validate:"required"`
	Timeout              string `json:"timeout" validate:"required"`
	MaxRetries           int    `json:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay           string `json:"retry_delay" validate:"required"`
}

func (c *ScrapeConfig) validate() error {
	if err := validateStruct(c, "Scrape"); err != nil {
		return err
	}
	for key, value := range map[string]string{
		"scrape.fetch_delay": c.FetchDelay,
		"scrape.timeout":     c.Timeout,
		"scrape.retry_delay": c.RetryDelay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("스크래핑 시간 설정(%s)이 올바르지 않습니다: '%s' (예: 1s, 500ms)", key, value))
		}
	}
	return nil
}

// FetchDelayDuration 파싱된 스크래핑 요청 간격을 반환합니다.
func (c *ScrapeConfig) FetchDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.FetchDelay)
	return d
}

// TimeoutDuration 파싱된 스크래핑 요청 타임아웃을 반환합니다.
func (c *ScrapeConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// RetryDelayDuration 파싱된 재시도 대기 시간을 반환합니다.
func (c *ScrapeConfig) RetryDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryDelay)
	return d
}

// PipelineConfig 파이프라인 드라이버의 실행 주기를 정의하는 설정 구조체
type PipelineConfig struct {
	// Schedule 파이프라인 사이클을 실행할 Cron 표현식입니다. (robfig/cron 형식, 예: "@every 2m")
	Schedule string `json:"schedule" validate:"required"`

	// RunOnStart 서비스 시작 직후 첫 사이클을 즉시 한 번 실행할지 여부입니다.
	RunOnStart bool `json:"run_on_start"`
}

func (c *PipelineConfig) validate() error {
	if err := validateStruct(c, "Pipeline"); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("파이프라인 스케줄(pipeline.schedule) 설정이 유효하지 않습니다: '%s'", c.Schedule))
	}
	return nil
}

// APIConfig 리포트 조회 API 서버 설정 구조체
type APIConfig struct {
	Enabled    bool `json:"enabled"`
	ListenPort int  `json:"listen_port" validate:"required,gte=1,lte=65535"`
}

func (c *APIConfig) validate() error {
	return validateStruct(c, "API")
}

// Load 기본 설정 파일을 읽어 애플리케이션 설정을 로드합니다.
func Load() (*AppConfig, error) {
	return LoadWithFile(DefaultFilename)
}

// LoadWithFile 지정된 경로의 설정 파일과 환경 변수를 읽어 AppConfig 객체를 생성합니다.
// 설정 파일이 존재하지 않는 경우, 기본값과 환경 변수만으로 설정을 구성합니다.
func LoadWithFile(filename string) (*AppConfig, error) {
	k := koanf.New(".")

	// 1. 기본값 로드 (가장 낮은 우선순위)
	err := k.Load(confmap.Provider(map[string]interface{}{
		"debug":                         false,
		"feed.url":                      DefaultFeedURL,
		"feed.timeout":                  DefaultFetchTimeout,
		"scrape.max_concurrent_fetches": DefaultMaxConcurrentFetches,
		"scrape.fetch_delay":            DefaultFetchDelay,
		"scrape.timeout":                DefaultFetchTimeout,
		"scrape.max_retries":            DefaultMaxRetries,
		"scrape.retry_delay":            DefaultRetryDelay,
		"pipeline.schedule":             DefaultSchedule,
		"pipeline.run_on_start":         true,
		"api.enabled":                   true,
		"api.listen_port":               DefaultAPIListenPort,
		"database.port":                 5432,
	}, "."), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "애플리케이션 기본 설정 로드에 실패했습니다")
	}

	// 2. JSON 설정 파일 로드 (기본값 덮어쓰기)
	// 데이터베이스 접속 정보는 환경 변수로만 공급되므로 설정 파일은 선택 사항입니다.
	if _, statErr := os.Stat(filename); statErr == nil {
		if err := k.Load(file.Provider(filename), json.Parser()); err != nil {
			return nil, apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("설정 파일 로드 중 오류가 발생했습니다: '%s'", filename))
		}
	}

	// 3. 데이터베이스 환경 변수 로드
	// 예: DB_HOST -> database.host, DB_PASS -> database.pass
	if err := k.Load(env.Provider("DB_", ".", func(s string) string {
		return "database." + strings.ToLower(strings.TrimPrefix(s, "DB_"))
	}), nil); err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "데이터베이스 환경 변수 로드에 실패했습니다")
	}

	// 4. 일반 환경 변수 로드 (최우선 순위, JSON 설정 덮어쓰기)
	// 접두사: BCT_
	// 구분자: 이중 언더스코어(__)를 점(.)으로 변환 (계층 구조 표현)
	// 예: BCT_SCRAPE__MAX_RETRIES -> scrape.max_retries
	if err := k.Load(env.Provider("BCT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BCT_")
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "환경 변수 로드에 실패했습니다")
	}

	// 5. 구조체 언마샬링 (Strict Validation 적용)
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			ErrorUnused:      true, // 파일에 존재하지만 구조체에 없는 필드가 있을 경우 에러를 발생시킴
			WeaklyTypedInput: true,
		},
	}
	var appConfig AppConfig
	if err := k.UnmarshalWithConf("", &appConfig, unmarshalConf); err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "설정 데이터를 애플리케이션 구조체로 변환하는데 실패했습니다")
	}

	// 6. 유효성 검사 수행 (정합성 체크)
	if err := appConfig.validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.InvalidInput, "설정값의 유효성 검증에 실패했습니다")
	}

	return &appConfig, nil
}

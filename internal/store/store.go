// Package store 판매 데이터의 PostgreSQL 적재와 리포트 조회를 담당합니다.
package store

import (
	"context"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// component 저장소 로깅용 컴포넌트 이름
const component = "store"

// Querier 적재 로직이 의존하는 최소한의 데이터베이스 실행 인터페이스입니다.
//
// pgxpool.Pool과 pgx.Tx가 모두 이 인터페이스를 만족하므로,
// 적재 로직은 트랜잭션 내부/외부 어디에서든 동일하게 동작하며 테스트에서 대체가 가능합니다.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// 컴파일 타임에 인터페이스 구현 여부를 검증합니다.
var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// Store PostgreSQL 기반 판매 데이터 저장소
type Store struct {
	pool *pgxpool.Pool
}

// New 지정된 DSN으로 커넥션 풀을 생성하고 연결을 검증하여 새로운 Store를 반환합니다.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.System, "데이터베이스 커넥션 풀 생성에 실패했습니다")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "데이터베이스 연결 확인에 실패했습니다")
	}

	return &Store{pool: pool}, nil
}

// Migrate 판매 데이터 스키마를 생성합니다. 이미 존재하는 테이블은 변경하지 않습니다.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return apperrors.Wrap(err, apperrors.System, "데이터베이스 스키마 생성에 실패했습니다")
	}
	return nil
}

// Ping 데이터베이스와의 연결 상태를 확인합니다.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "데이터베이스 연결 상태 확인에 실패했습니다")
	}
	return nil
}

// Close 커넥션 풀을 닫습니다.
func (s *Store) Close() {
	s.pool.Close()
}

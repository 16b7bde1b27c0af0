// Package service 애플리케이션을 구성하는 장기 실행 서비스의 공통 계약을 정의합니다.
package service

import (
	"context"
	"sync"
)

// Service 애플리케이션에서 독립적인 생명주기를 갖는 서비스의 공통 인터페이스입니다.
type Service interface {
	// Start 서비스를 시작합니다.
	//
	// serviceStopCtx가 취소되면 서비스는 종료 절차를 시작하며,
	// 모든 리소스 정리가 끝난 후 serviceStopWG.Done()을 호출해야 합니다.
	Start(serviceStopCtx context.Context, serviceStopWG *sync.WaitGroup) error
}

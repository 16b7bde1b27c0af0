package config

import (
	"fmt"
	"reflect"
	"strings"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/go-playground/validator/v10"
)

// configValidator 설정 구조체 검증에 사용하는 패키지 전역 Validator 인스턴스
var configValidator = newValidator()

// newValidator 새로운 Validator 인스턴스를 생성합니다.
func newValidator() *validator.Validate {
	v := validator.New()

	// 검증 에러가 났을 때, 에러 메시지에 Go 구조체 필드명(예: ListenPort) 대신 JSON 이름(예: listen_port)을 보여주도록 설정합니다.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// validateStruct 구조체 인스턴스의 유효성을 태그 규칙에 따라 검증하고, 발생한 오류를 사용자 친화적인 도메인 에러로 변환합니다.
func validateStruct(s interface{}, contextName string) error {
	err := configValidator.Struct(s)
	if err == nil {
		return nil
	}

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		// 첫 번째 에러만 상세히 보고
		firstErr := validationErrors[0]

		// 필드별(Field) 커스텀 에러 처리
		switch firstErr.StructField() {
		case "Port", "ListenPort":
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s 포트(%s)는 1에서 65535 사이의 값이어야 합니다", contextName, firstErr.Field()))
		case "URL":
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s URL(%s) 형식이 올바르지 않습니다: '%v'", contextName, firstErr.Field(), firstErr.Value()))
		case "MaxConcurrentFetches":
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("스크래핑 동시 요청 수(max_concurrent_fetches)는 1에서 16 사이의 값이어야 합니다: '%v'", firstErr.Value()))
		case "MaxRetries":
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("HTTP 최대 재시도 횟수(max_retries)는 0에서 10 사이의 값이어야 합니다: '%v'", firstErr.Value()))
		}

		// 태그별(Tag) 공통 에러 처리
		switch firstErr.Tag() {
		case "required":
			return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s 설정에 필수 항목(%s)이 누락되었습니다", contextName, firstErr.Field()))
		}

		return apperrors.New(apperrors.InvalidInput, fmt.Sprintf("%s 설정값이 유효하지 않습니다: %s='%v' (규칙: %s)", contextName, firstErr.Field(), firstErr.Value(), firstErr.Tag()))
	}

	return apperrors.Wrap(err, apperrors.InvalidInput, fmt.Sprintf("%s 설정 검증 중 오류가 발생했습니다", contextName))
}

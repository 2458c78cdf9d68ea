package model

import (
	"errors"
	"fmt"
)

// ErrEmailTaken は登録しようとしたメールアドレスが既に使用されている場合のエラー。
var ErrEmailTaken = errors.New("email already registered")

// ErrValidation はすべてのValidationErrorがラップするセンチネルエラー。
var ErrValidation = errors.New("validation failed")

// ValidationError は入力値検証エラーを表す。
// Messageはそのまま画面に表示できる文言とする。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Unwrap はErrValidationを返し、errors.Is(err, ErrValidation)を可能にする。
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError はValidationErrorを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError はerrがValidationErrorを含むかを判定し、含む場合はそれを返す。
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

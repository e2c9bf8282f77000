package femto

import (
	"fmt"
)

type ErrorCode string

const (
	BadRequest           ErrorCode = "bad-request"
	NotAvailable         ErrorCode = "not-available"
	NotFound             ErrorCode = "not-found"
	AlreadyExists        ErrorCode = "already-exists"
	DBParseError         ErrorCode = "db-parse-error"
	WalletNotInitialized ErrorCode = "wallet-not-initialized"
	StoreWriteFailed     ErrorCode = "store-write-failed"
	AccUpdateFailed      ErrorCode = "acc-update-failed"
	UnknownError         ErrorCode = "unknown-error"
)

type ErrorInfo struct {
	Code    ErrorCode // machine-readble ErrorCode enumeration
	Message string    // human-readable debug message (in production, logged on the server only)
}

func (e *ErrorInfo) Error() string {
	return string(e.Message)
}

func NewErr(code ErrorCode, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}

func IsDBParseError(err error) bool {
	return IsError(err, DBParseError)
}

func IsWalletNotInitializedError(err error) bool {
	return IsError(err, WalletNotInitialized)
}

func IsStoreWriteError(err error) bool {
	return IsError(err, StoreWriteFailed)
}

func IsError(err error, ofType ErrorCode) bool {
	if e, ok := err.(*ErrorInfo); ok {
		return e.Code == ofType
	}
	return false
}

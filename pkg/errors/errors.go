package widget_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotFound          = errors.New("not found")
	ErrEmptyMessage      = errors.New("empty message")
	ErrInvalidAttachment = errors.New("invalid attachment")
	ErrNotConnected      = errors.New("not connected")
	ErrUploadFailed      = errors.New("upload failed")
	ErrSendFailed        = errors.New("send failed")
	ErrClosed            = errors.New("closed")
	ErrTokenExpired      = errors.New("session token expired")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}

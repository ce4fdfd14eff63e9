package timemap

import "errors"

var (
	ErrClosed        = errors.New("timemap is closed")
	ErrKeyNotFound   = errors.New("key not found")
	ErrInvalidConfig = errors.New("invalid configuration")
)

package pipeline

import "errors"

var (
	ErrValidation        = errors.New("invalid generation request")
	ErrNotFound          = errors.New("pipeline not found")
	ErrInitialization    = errors.New("pipeline initialization failed")
	ErrStorage           = errors.New("pipeline storage error")
	ErrIntegrity         = errors.New("pipeline integrity violation")
	ErrIllegalTransition = errors.New("illegal pipeline transition")
)

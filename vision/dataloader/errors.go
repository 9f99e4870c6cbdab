package dataloader

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError is a fatal setup problem: an unreadable manifest, an
// inconsistent geometry or not enough samples for the requested skip.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dataloader config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(op string, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Op: op, Err: errors.Errorf(format, args...)}
}

// LoadError reports a sample that could not be decoded. It is recoverable:
// the packer skips the slot and moves on.
type LoadError struct {
	ImagePath string
	MaskPath  string
	Err       error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load sample %s (mask %s): %v", e.ImagePath, e.MaskPath, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err wraps a *ConfigError
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsLoadError reports whether err wraps a *LoadError
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

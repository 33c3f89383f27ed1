package jackrack

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shaban/jackrack/plugins"
)

// ErrorHandler defines the interface for handling non-fatal control-path errors
type ErrorHandler interface {
	HandleError(error)
}

// DefaultErrorHandler logs errors through a zap logger
type DefaultErrorHandler struct {
	Logger *zap.Logger
}

// HandleError implements ErrorHandler interface with warning-level logging
func (h *DefaultErrorHandler) HandleError(err error) {
	logger := h.Logger
	if logger == nil {
		logger = zap.L()
	}
	logger.Warn("rack error", zap.Error(err))
}

// PanicErrorHandler panics on any error (useful for development)
type PanicErrorHandler struct{}

// HandleError implements ErrorHandler interface by panicking
func (h *PanicErrorHandler) HandleError(err error) {
	panic(fmt.Sprintf("rack error: %v", err))
}

// PluginLoadError reports that a plugin's entry point could not be resolved.
// Node creation is aborted; nothing was allocated.
type PluginLoadError struct {
	Desc *plugins.Descriptor
	Err  error
}

func (e *PluginLoadError) Error() string {
	return fmt.Sprintf("jackrack: loading plugin %q from %s: %v", e.Desc.Name, e.Desc.ObjectFile, e.Err)
}

func (e *PluginLoadError) Unwrap() error { return e.Err }

// InstantiationError reports that one of a node's native instances failed to
// instantiate. Partial allocations have been rolled back.
type InstantiationError struct {
	Desc *plugins.Descriptor
	Copy int
	Err  error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("jackrack: instantiating copy %d of plugin %q: %v", e.Copy, e.Desc.Name, e.Err)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// PortRegistrationError reports an audio-server port registration failure.
// The rack cannot offer its promised routing surface, so holder creation
// treats this as fatal.
type PortRegistrationError struct {
	PortName string
	Err      error
}

func (e *PortRegistrationError) Error() string {
	return fmt.Sprintf("jackrack: registering port %q: %v", e.PortName, e.Err)
}

func (e *PortRegistrationError) Unwrap() error { return e.Err }

// PortUnregistrationError reports a teardown-time unregistration failure.
// It is logged and otherwise ignored; the leaked port is the least-bad
// outcome.
type PortUnregistrationError struct {
	Err error
}

func (e *PortUnregistrationError) Error() string {
	return fmt.Sprintf("jackrack: unregistering port: %v", e.Err)
}

func (e *PortUnregistrationError) Unwrap() error { return e.Err }

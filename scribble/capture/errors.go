package capture

import "errors"

var (
	// ErrNothingToExport is returned by ExportVideo when no encoded data is buffered
	ErrNothingToExport = errors.New("no video data to export, record something first")
	// ErrNoEncoder is returned by Start when no configured codec is supported
	ErrNoEncoder = errors.New("no supported video codec")
	// ErrNoSink is returned by exports when the recorder has nowhere to write
	ErrNoSink = errors.New("no export sink configured")
	// ErrInvalidFPS is returned for a non-positive frame rate
	ErrInvalidFPS = errors.New("invalid frame rate")
)

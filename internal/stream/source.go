package stream

import (
	"context"
	"image"
)

// FrameSource is the upstream decoder a session captures from. One FrameSource
// is opened per connection attempt; ReadFrame is called in a tight loop by
// the capture goroutine until it returns an error or the session stops.
type FrameSource interface {
	Open(ctx context.Context, sourceURL string) error
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// SourceFactory builds a fresh FrameSource for each (re)connect attempt,
// since most decoders cannot be reopened after Close.
type SourceFactory func() FrameSource

package pipeline

import (
	"context"
	"errors"

	"backdrop-cutout/internal/segment"
)

var (
	ErrDecode       = errors.New("decode failed")
	ErrWrite        = errors.New("write failed")
	ErrSegmentation = segment.ErrSegmentation
)

// Kind classifies a per-image failure for reporting.
type Kind string

const (
	KindNone         Kind = ""
	KindDecode       Kind = "decode"
	KindSegmentation Kind = "segmentation"
	KindWrite        Kind = "write"
	KindCanceled     Kind = "canceled"
	KindInternal     Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrSegmentation):
		return KindSegmentation
	case errors.Is(err, ErrWrite):
		return KindWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

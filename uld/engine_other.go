//go:build !(darwin || (linux && (amd64 || arm64)))

package uld

import (
	"github.com/mklimuk/tof/vl53l5cx"
)

// Engine is unavailable on this platform; use vl53l5cx.SimEngine instead.
type Engine struct {
	vl53l5cx.Engine
}

func Open(path string) (*Engine, error) {
	return nil, ErrUnsupported
}

func (e *Engine) Close() error {
	return ErrUnsupported
}

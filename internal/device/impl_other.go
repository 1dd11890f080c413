//go:build !linux

package device

import (
	"errors"
	"fmt"
	"time"
)

var errUnsupported = errors.New("device capture is only supported on linux")

type Handle struct{}

func Open(path string) (*Handle, error) {
	return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, path, errUnsupported)
}

func (h *Handle) Poll(time.Duration) (bool, error) { return false, errUnsupported }
func (h *Handle) Read([]byte) (int, error)         { return 0, errUnsupported }
func (h *Handle) Close() error                     { return nil }
func (h *Handle) Configure(int) error              { return errUnsupported }

//go:build !linux

package mux

import (
	"errors"

	"github.com/rileyhilliard/sshp/internal/logger"
)

func newPlatform(logger.Logger) (Multiplexer, error) {
	return nil, errors.New("no readiness poller on this platform")
}

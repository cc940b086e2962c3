//go:build linux

package mux

import "github.com/rileyhilliard/sshp/internal/logger"

func newPlatform(log logger.Logger) (Multiplexer, error) {
	return NewEpoll(log)
}

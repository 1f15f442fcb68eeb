//go:build !linux

package main

import "go.uber.org/zap"

func hardenProcess(logger *zap.Logger) {
	logger.Debug("process hardening not available on this platform")
}

//go:build linux

package main

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// hardenProcess keeps other processes of the same user from reading this
// one's memory through ptrace or core dumps.
func hardenProcess(logger *zap.Logger) {
	if err := unix.Prctl(unix.PR_SET_DUMPABLE, 0, 0, 0, 0); err != nil {
		logger.Warn("failed to disable ptrace", zap.Error(err))
		return
	}
	dumpable, err := unix.PrctlRetInt(unix.PR_GET_DUMPABLE, 0, 0, 0, 0)
	if err != nil || dumpable != 0 {
		logger.Warn("process is still dumpable", zap.Int("dumpable", dumpable), zap.Error(err))
		return
	}
	logger.Debug("ptrace disabled")
}

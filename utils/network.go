package utils

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

var noiseReasons = []string{
	"transport close",
	"transport error",
	"ping timeout",
	"client namespace disconnect",
	"server namespace disconnect",
	"forced close",
	"forced server close",
}

var noiseMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"use of closed network connection",
	"websocket: close",
	"i/o timeout",
}

// IsNetworkNoise reports whether err is the kind of failure an abrupt client
// disconnect produces. Those are logged at debug and never alerted on.
func IsNetworkNoise(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range noiseMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsNoiseReason classifies a socket.io disconnect reason
func IsNoiseReason(reason string) bool {
	reason = strings.ToLower(strings.TrimSpace(reason))
	for _, r := range noiseReasons {
		if reason == r {
			return true
		}
	}
	for _, m := range noiseMessages {
		if strings.Contains(reason, m) {
			return true
		}
	}
	return false
}

//go:build !linux
// +build !linux

package notify

import "errors"

var errUnsupported = errors.New("proc connector requires linux")

// Listener is a placeholder on non-Linux platforms.
type Listener struct{}

// NewListener always fails because the proc connector is Linux-only.
func NewListener(onExit func(pid int)) (*Listener, error) {
	return nil, errUnsupported
}

// Run always fails on unsupported platforms.
func (l *Listener) Run() error {
	return errUnsupported
}

// Close is a no-op stub.
func (l *Listener) Close() error {
	return nil
}

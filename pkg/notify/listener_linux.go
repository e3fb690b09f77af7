//go:build linux
// +build linux

package notify

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Listener owns the netlink connector socket subscribed to proc events.
type Listener struct {
	fd     int
	onExit func(pid int)

	closeOnce sync.Once
}

// NewListener opens the proc connector and subscribes to the multicast
// group. Requires CAP_NET_ADMIN; callers should treat failure as
// best-effort and fall back to the grace-window timeout.
func NewListener(onExit func(pid int)) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, fmt.Errorf("opening proc connector socket: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: cnIdxProc,
		Pid:    uint32(os.Getpid()),
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding proc connector socket: %w", err)
	}

	kernel := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(fd, mcastOp(procCnMcastListen), 0, kernel); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("subscribing to proc events: %w", err)
	}

	return &Listener{fd: fd, onExit: onExit}, nil
}

// Run receives proc events until the listener is closed. Exit events for
// whole processes are handed to the callback; everything else is dropped.
func (l *Listener) Run() error {
	buf := make([]byte, 4096)
	for {
		n, _, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EBADF) {
				return nil // closed
			}
			return fmt.Errorf("receiving proc events: %w", err)
		}

		msgs, err := syscall.ParseNetlinkMessage(buf[:n])
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			if msg.Header.Type != unix.NLMSG_DONE {
				continue
			}
			if pid, ok := exitPID(msg.Data); ok {
				l.onExit(pid)
			}
		}
	}
}

// Close unsubscribes and releases the socket, unblocking Run.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		kernel := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
		_ = unix.Sendto(l.fd, mcastOp(procCnMcastIgnore), 0, kernel)
		err = unix.Close(l.fd)
	})
	return err
}

package reactor

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Listen creates, binds, and listens on a non-blocking IPv4 TCP socket for
// addr (host:port; an empty host binds all interfaces). The returned fd is
// ready to register with a Reactor under Read interest — it becomes
// readable exactly when a connection is pending to accept.
func Listen(addr string) (int, error) {
	sockaddr, err := resolveInet4(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}
	if err := unix.Bind(fd, sockaddr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// Accept accepts a single pending connection on a non-blocking listening
// fd, returning the new connection's non-blocking fd and its remote
// address in host:port form. Returns unix.EAGAIN if no connection is
// actually pending (possible after a spurious readiness notification).
func Accept(listenFD int) (connFD int, remoteAddr string, err error) {
	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}
	return nfd, sockaddrString(sa), nil
}

// Connect starts a non-blocking connect(2) to addr. inProgress is true when
// the connection is still being established (the normal case for a
// non-blocking socket) and the caller should register the fd under Write
// interest and call FinishConnect once it becomes writable.
func Connect(addr string) (fd int, inProgress bool, err error) {
	sockaddr, err := resolveInet4(addr)
	if err != nil {
		return -1, false, err
	}
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, false, fmt.Errorf("socket: %w", err)
	}
	err = unix.Connect(fd, sockaddr)
	if err == nil {
		return fd, false, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, nil
	}
	unix.Close(fd)
	return -1, false, fmt.Errorf("connect: %w", err)
}

// FinishConnect checks whether a previously in-progress connect(2)
// succeeded once the socket becomes writable.
func FinishConnect(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt(SO_ERROR): %w", err)
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// RemoteAddr returns the remote address of a connected fd, or "" if it
// cannot be resolved (the peer may have already gone away).
func RemoteAddr(fd int) string {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

// LocalAddr returns the locally bound address of fd. Used by tests and by
// callers that bind to port 0 and need to discover the assigned port.
func LocalAddr(fd int) string {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return ""
	}
	return sockaddrString(sa)
}

func resolveInet4(addr string) (*unix.SockaddrInet4, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid port in %q: %w", addr, err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	if host == "" {
		return sa, nil
	}
	ip, err := net.ResolveIPAddr("ip4", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	ip4 := ip.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%q did not resolve to an IPv4 address", host)
	}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return ""
	}
	ip := net.IP(in4.Addr[:])
	return net.JoinHostPort(ip.String(), strconv.Itoa(in4.Port))
}

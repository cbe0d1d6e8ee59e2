//go:build linux

package netutil

import (
	"net"
	"net/netip"

	"golang.org/x/sys/unix"
)

func boolInt(enable bool) int {
	if enable {
		return 1
	}
	return 0
}

func SetReusePort(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolInt(enable))
}

func SetReuseAddr(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolInt(enable))
}

func SetNoDelay(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(enable))
}

// SetV6Only 关闭后 AF_INET6 监听同时接收 IPv4 映射地址。
func SetV6Only(fd int, enable bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, boolInt(enable))
}

// SocketError 读取并清除 SO_ERROR；返回 0 表示没有挂起错误。
func SocketError(fd int) (unix.Errno, error) {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return 0, err
	}
	return unix.Errno(v), nil
}

// Connected 通过 getpeername 判断非阻塞 connect 是否已经完成。
func Connected(fd int) bool {
	_, err := unix.Getpeername(fd)
	return err == nil
}

// Sockaddr 把 IP + 端口转换成 connect/bind 使用的地址，返回对应的地址族。
func Sockaddr(ip net.IP, port int) (unix.Sockaddr, int) {
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, unix.AF_INET6
}

// TCPAddr 把内核地址转换为 *net.TCPAddr；IPv4 映射地址还原为 IPv4。
func TCPAddr(sa unix.Sockaddr) *net.TCPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(a.Addr).Unmap()
		return &net.TCPAddr{IP: net.IP(ip.AsSlice()), Port: a.Port}
	}
	return nil
}

// LocalPort 返回 fd 绑定的本地端口。
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	if a := TCPAddr(sa); a != nil {
		return a.Port, nil
	}
	return 0, unix.EAFNOSUPPORT
}

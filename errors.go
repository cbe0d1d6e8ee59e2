package reactor

import "errors"

var (
	// ErrSocketAcquire socket(2) 失败
	ErrSocketAcquire = errors.New("reactor: socket acquisition failed")

	// ErrSocketBind bind(2) 失败
	ErrSocketBind = errors.New("reactor: socket bind failed")

	// ErrListenStart listen(2) 失败
	ErrListenStart = errors.New("reactor: listen failed")

	// ErrResolve 主机或服务名解析失败
	ErrResolve = errors.New("reactor: address resolution failed")

	// ErrConnectEstablish 出站连接无法建立
	ErrConnectEstablish = errors.New("reactor: connection establishment failed")

	ErrFileNotFound   = errors.New("reactor: file not found")
	ErrNotRegularFile = errors.New("reactor: not a regular file")
	ErrBadOffset      = errors.New("reactor: offset beyond end of file")

	// ErrClosed 对已关闭的 socket 或已停止的 reactor 操作
	ErrClosed = errors.New("reactor: closed")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("reactor: invalid argument")

	// ErrPlatformNotSupported 非 Linux 平台（需要 epoll）
	ErrPlatformNotSupported = errors.New("reactor: platform not supported (requires Linux/epoll)")
)

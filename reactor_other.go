//go:build !linux

package reactor

// Reactor 在非 Linux 平台不可用。
type Reactor struct{}

// New 在非 Linux 平台返回 ErrPlatformNotSupported。
func New(cfg Config) (*Reactor, error) {
	_ = cfg
	return nil, ErrPlatformNotSupported
}

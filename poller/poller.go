package poller

import "errors"

// FD 表示文件描述符。
type FD = int

// Events 为关注/就绪事件位，与 epoll 位一一对应。
type Events uint32

const (
	In Events = 1 << iota
	Out
	RdHup
	Err
	Hup
	OneShot
	Edge
)

func (e Events) Has(b Events) bool { return e&b != 0 }

// Event 为一次 Wait 返回的就绪项。
type Event struct {
	FD     FD
	Events Events
}

var ErrClosed = errors.New("poller: closed")

// Poller 提供 fd 注册与就绪等待。
// Add/Mod/Del 可在任意 goroutine 调用；Wait 只允许单个 goroutine。
type Poller interface {
	Add(fd FD, ev Events) error
	Mod(fd FD, ev Events) error
	Del(fd FD) error
	// Wait 阻塞至多 timeoutMs 毫秒，返回写入 events 的数量。
	// 被信号打断时返回 0, nil。唤醒 fd 的事件不会出现在结果中。
	Wait(events []Event, timeoutMs int) (int, error)
	// Wake 使阻塞中的 Wait 立即返回。
	Wake() error
	Close() error
}

// Package reactor 实现基于 epoll 的多 worker TCP reactor：
// master 负责 epoll_wait、accept 与 pulse 生成，worker 从共享队列取事件并独占地驱动每连接协议。
package reactor

import (
	"runtime"
	"time"
)

// Config 为 reactor 配置。
type Config struct {
	Workers     int           // worker 数量，<=0 时取 runtime.NumCPU()
	NoMaster    bool          // 不启动自有 master，由调用方驱动 Poll/Master
	PollTimeout time.Duration // 单次 epoll_wait 的上限
	WorkerWait  time.Duration // worker 空闲时的超时下限，用于复查停止标志
	MaxEvents   int           // 单次 epoll_wait 返回的最大事件数
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{
		Workers:     runtime.NumCPU(),
		PollTimeout: time.Second,
		WorkerWait:  5 * time.Second,
		MaxEvents:   1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.WorkerWait <= 0 {
		c.WorkerWait = d.WorkerWait
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	return c
}

// pulse 周期固定
const pulseInterval = 5 * time.Second

// Package client 为 framed 协议的阻塞式客户端。
package client

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/legamerdc/reactor/codec"
	"github.com/lni/dragonboat/v4/logger"
)

var clog = logger.GetLogger("client")

// Handler 的回调在读循环 goroutine 中执行，msg 仅在回调期间有效。
type Handler interface {
	OnOpen(c *Client)
	OnMessage(c *Client, api uint16, msg []byte)
	OnClose(c *Client, err error)
}

type Client struct {
	conn net.Conn
	prs  codec.Parser
	mu   sync.Mutex
	// 接收缓冲，跨多次 Read 累积，避免半包丢失
	rb   []byte
	once sync.Once
}

// Dial 连接 address 并启动读循环；maxPayload 为 0 表示不限制。
func Dial(network, address string, maxPayload int, h Handler) (*Client, error) {
	nc, err := net.DialTimeout(network, address, 5*time.Second)
	if err != nil {
		return nil, err
	}
	c := &Client{conn: nc, prs: codec.Parser{MaxPayload: maxPayload}}
	h.OnOpen(c)
	go c.readLoop(h)
	return c, nil
}

func (c *Client) readLoop(h Handler) {
	buf := make([]byte, 64<<10)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.rb = append(c.rb, buf[:n]...)
			consumed, perr := c.prs.Parse(c.rb, func(m codec.Message) error {
				h.OnMessage(c, m.Api, m.Payload)
				return nil
			})
			if perr != nil {
				clog.Warningf("parse error from %v: %v", c.conn.RemoteAddr(), perr)
				_ = c.conn.Close()
				err = perr
			}
			// 滑动缓冲：保留未消费部分
			c.rb = append(c.rb[:0], c.rb[consumed:]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = nil
			}
			c.once.Do(func() { h.OnClose(c, err) })
			return
		}
	}
}

// Write 发送一帧。
func (c *Client) Write(api uint16, msg []byte, compressed bool) error {
	frame, err := codec.AppendFrame(nil, api, msg, compressed)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

// WriteBatch 把多条消息打包为一帧发送。
func (c *Client) WriteBatch(msgs []codec.Message) error {
	frame, err := codec.AppendBatch(nil, msgs)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

func (c *Client) Close() error { return c.conn.Close() }

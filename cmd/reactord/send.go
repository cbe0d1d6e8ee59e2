//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/legamerdc/reactor"
	"github.com/legamerdc/reactor/buffer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var sendCmd = &cobra.Command{
	Use:   "send HOST SERVICE LINE...",
	Short: "Connect through the reactor, send one line and print the reply",
	Args:  cobra.MinimumNArgs(3),
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().Duration("timeout", 5*time.Second, "overall timeout")
}

// lineSender 写出一行请求，读到一行应答（或对端关闭）后终止。
type lineSender struct {
	req   []byte
	reply *buffer.Buffer
	done  chan<- result
}

type result struct {
	reply string
	err   error
}

func (s *lineSender) DefaultMask() reactor.Mask { return reactor.MaskWrite }

func (s *lineSender) Ready(c *reactor.Connection, rs reactor.Reason) (reactor.Signal, error) {
	if len(s.req) > 0 {
		n, err := c.Write(s.req)
		if err != nil {
			return s.finish(err)
		}
		s.req = s.req[n:]
		if len(s.req) > 0 {
			return reactor.Want(false, true), nil
		}
		return reactor.Want(true, false), nil
	}
	if !rs.Readable() {
		return reactor.Want(true, false), nil
	}
	_, err := c.ReadInto(s.reply)
	if errors.Is(err, io.EOF) || s.reply.IndexByte('\n') >= 0 {
		return s.finish(nil)
	}
	if err != nil {
		return s.finish(err)
	}
	return reactor.Want(true, false), nil
}

func (s *lineSender) finish(err error) (reactor.Signal, error) {
	s.done <- result{reply: string(s.reply.Bytes()), err: err}
	return reactor.Terminate(), nil
}

func (s *lineSender) Close() error {
	s.reply.Release()
	return nil
}

type sendTarget struct {
	line string
	done chan result
}

func (t *sendTarget) Instantiate() reactor.Protocol {
	return &lineSender{req: []byte(t.line), reply: buffer.New(256), done: t.done}
}

func (t *sendTarget) OnConnectError(err error) { t.done <- result{err: err} }

func runSend(cmd *cobra.Command, args []string) error {
	cfg := reactor.DefaultConfig()
	cfg.Workers = 1
	cfg.PollTimeout = 50 * time.Millisecond
	r, err := reactor.New(cfg)
	if err != nil {
		return err
	}
	defer r.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	target := &sendTarget{line: strings.Join(args[2:], " ") + "\n", done: make(chan result, 1)}
	if err := r.ConnectContext(ctx, args[0], args[1], target); err != nil {
		return err
	}
	select {
	case res := <-target.done:
		if res.err != nil {
			return res.err
		}
		cmd.Print(res.reply)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send: %w", ctx.Err())
	}
}

//go:build linux

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/legamerdc/reactor/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pingCmd = &cobra.Command{
	Use:   "ping ADDRESS",
	Short: "Measure round trips against a framed service",
	Args:  cobra.ExactArgs(1),
	RunE:  runPing,
}

func init() {
	f := pingCmd.Flags()
	f.Int("count", 5, "number of pings")
	f.Int("size", 64, "payload size in bytes")
	f.Bool("compress", false, "compress payloads")
	f.Duration("timeout", 5*time.Second, "per ping timeout")
}

type pinger struct {
	replies chan []byte
	mu      sync.Mutex
	err     error
}

func (p *pinger) OnOpen(*client.Client) {}

func (p *pinger) OnMessage(_ *client.Client, _ uint16, msg []byte) {
	p.replies <- append([]byte(nil), msg...)
}

func (p *pinger) OnClose(_ *client.Client, err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	close(p.replies)
}

const apiPing uint16 = 1

func runPing(cmd *cobra.Command, args []string) error {
	p := &pinger{replies: make(chan []byte, 1)}
	c, err := client.Dial("tcp", args[0], 0, p)
	if err != nil {
		return err
	}
	defer c.Close()

	payload := make([]byte, viper.GetInt("size"))
	timeout := viper.GetDuration("timeout")
	for i := 0; i < viper.GetInt("count"); i++ {
		start := time.Now()
		if err := c.Write(apiPing, payload, viper.GetBool("compress")); err != nil {
			return err
		}
		select {
		case msg, ok := <-p.replies:
			if !ok {
				p.mu.Lock()
				defer p.mu.Unlock()
				return fmt.Errorf("ping: connection closed: %v", p.err)
			}
			cmd.Printf("%d bytes from %s: seq=%d time=%s\n", len(msg), args[0], i, time.Since(start))
		case <-time.After(timeout):
			return fmt.Errorf("ping: seq=%d timed out", i)
		}
	}
	return nil
}

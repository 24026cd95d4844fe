package peercore

import (
	"fmt"
	"io"

	"github.com/songgao/water"

	"oxy/internal/message"
)

// tunnelStream is a tun/tap device bridged to the peer one packet at a time.
// One-to-one read/write semantics: every device read becomes exactly one
// TunnelData message and every received TunnelData becomes exactly one
// device write (spec.md §4.6 forbids aggregating packets).
type tunnelStream struct {
	ref uint64
	dev io.ReadWriteCloser
}

const tunnelReadChunk = 1500 + 64 // MTU headroom; this is a byte budget, not an aggregation boundary

func openTunDevice(tap bool, name string) (*water.Interface, error) {
	devType := water.TUN
	if tap {
		devType = water.TAP
	}
	cfg := water.Config{DeviceType: devType}
	if name != "" {
		cfg.Name = name
	}
	return water.New(cfg)
}

// tunnelReadLoop pumps packets read from dev to the peer as TunnelData under
// ref, until the device errors or the tunnel is torn down locally. Shared by
// both the request-receiving and request-sending ends: once a tunnelStream
// is registered under ref, which side opened it makes no difference.
func (c *Core) tunnelReadLoop(ref uint64, dev io.ReadWriteCloser) {
	buf := make([]byte, tunnelReadChunk)
	for {
		n, err := dev.Read(buf)
		if n > 0 {
			packet := append([]byte(nil), buf[:n]...)
			c.post(func(c *Core) {
				if _, ok := c.tunnels[ref]; !ok {
					return
				}
				if _, sendErr := c.Send(message.TunnelData{Reference: ref, Data: packet}); sendErr != nil {
					c.log.WithError(sendErr).Warn("tunnel data send failed")
				}
			})
		}
		if err != nil {
			c.post(func(c *Core) { delete(c.tunnels, ref) })
			return
		}
	}
}

func (c *Core) handleTunnelRequest(ref uint64, v message.TunnelRequest) error {
	dev, err := openTunDevice(v.Tap, v.Name)
	if err != nil {
		return fmt.Errorf("open tun/tap device: %w", err)
	}

	c.tunnels[ref] = &tunnelStream{ref: ref, dev: dev}
	go c.tunnelReadLoop(ref, dev)
	return nil
}

func (c *Core) handleTunnelData(v message.TunnelData) error {
	stream, ok := c.tunnels[v.Reference]
	if !ok {
		return fmt.Errorf("no active tunnel %d", v.Reference)
	}
	_, err := stream.dev.Write(v.Data)
	return err
}

// StartTunnel is the initiator side of tun/tap tunneling: open localName as
// a local device, ask the peer to open remoteName as its matching end, then
// bridge the two under the reference the request allocates. Grounded on
// original_source/src/core/metacommands.rs's "tun"/"tap" subcommands, which
// take exactly this local-name/remote-name pair.
func (c *Core) StartTunnel(tap bool, localName, remoteName string) error {
	dev, err := openTunDevice(tap, localName)
	if err != nil {
		return fmt.Errorf("open tun/tap device: %w", err)
	}

	ref, err := c.Send(message.TunnelRequest{Tap: tap, Name: remoteName})
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("tunnel request send failed: %w", err)
	}

	c.post(func(c *Core) { c.tunnels[ref] = &tunnelStream{ref: ref, dev: dev} })
	go c.tunnelReadLoop(ref, dev)
	return nil
}

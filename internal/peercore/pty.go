package peercore

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"oxy/internal/message"
)

// ptySession is the responder-side PTY/shell child spawned by PtyRequest.
// Only one may be active per connection.
type ptySession struct {
	cmd *exec.Cmd
	tty *os.File
}

func (c *Core) handlePtyRequest(ref uint64, v message.PtyRequest) error {
	if c.pty != nil {
		return fmt.Errorf("a pty is already active on this connection")
	}

	var cmd *exec.Cmd
	if v.Command != nil {
		cmd = exec.Command("/bin/sh", "-c", *v.Command)
	} else {
		cmd = exec.Command("/bin/sh", "-i")
	}

	tty, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}

	session := &ptySession{cmd: cmd, tty: tty}
	c.pty = session

	go func() {
		buf := make([]byte, 8192)
		for {
			n, readErr := tty.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				c.post(func(c *Core) {
					if c.pty != session {
						return
					}
					if _, sendErr := c.Send(message.PtyOutput{Data: data}); sendErr != nil {
						c.log.WithError(sendErr).Warn("pty output send failed")
					}
				})
			}
			if readErr != nil {
				return
			}
		}
	}()

	go func() {
		waitErr := cmd.Wait()
		status := exitStatus(waitErr)
		c.post(func(c *Core) {
			if c.pty != session {
				return
			}
			c.pty = nil
			if _, sendErr := c.Send(message.PtyExited{Status: status}); sendErr != nil {
				c.log.WithError(sendErr).Warn("pty exited send failed")
			}
		})
	}()

	return nil
}

func (c *Core) handlePtyInput(v message.PtyInput) error {
	if c.pty == nil {
		return fmt.Errorf("no active pty")
	}
	_, err := c.pty.tty.Write(v.Data)
	return err
}

func (c *Core) handlePtyResize(v message.PtySizeAdvertisement) error {
	if c.pty == nil {
		return nil
	}
	return pty.Setsize(c.pty.tty, &pty.Winsize{Cols: v.W, Rows: v.H})
}

func (s *ptySession) kill() error {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	_ = s.tty.Close()
	return s.cmd.Process.Kill()
}

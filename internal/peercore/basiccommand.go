package peercore

import (
	"bytes"
	"os/exec"

	"oxy/internal/message"
)

// handleBasicCommand runs a one-shot, non-interactive command to completion
// and replies with its captured stdout/stderr. Run in its own goroutine so a
// slow command never blocks the dispatch loop; the result is delivered back
// as a coreEvent once it finishes.
func (c *Core) handleBasicCommand(v message.BasicCommand) error {
	go func() {
		cmd := exec.Command("/bin/sh", "-c", v.Command)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		_ = cmd.Run()

		c.post(func(c *Core) {
			if _, err := c.Send(message.BasicCommandOutput{
				Stdout: stdout.Bytes(),
				Stderr: stderr.Bytes(),
			}); err != nil {
				c.log.WithError(err).Warn("basic command output send failed")
			}
		})
	}()
	return nil
}

package peercore

import (
	"fmt"
	"io"
	"os/exec"

	"oxy/internal/message"
)

// pipeChild is a non-interactive, long-running child process driven by
// PipeCommand: stdin is fed by PipeCommandInput, stdout/stderr are streamed
// back as PipeCommandOutput, and its exit is reported as PipeCommandExited.
// Unlike PtyRequest it has no terminal, only plain pipes.
type pipeChild struct {
	ref   uint64
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

func (c *Core) handlePipeCommand(ref uint64, v message.PipeCommand) error {
	if _, exists := c.pipes[ref]; exists {
		return fmt.Errorf("pipe command %d already active", ref)
	}

	cmd := exec.Command("/bin/sh", "-c", v.Command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pipe command: %w", err)
	}

	child := &pipeChild{ref: ref, cmd: cmd, stdin: stdin}
	c.pipes[ref] = child

	streamOutput(c, ref, stdout, func(data []byte) message.Message {
		return message.PipeCommandOutput{Reference: ref, Stdout: data}
	})
	streamOutput(c, ref, stderr, func(data []byte) message.Message {
		return message.PipeCommandOutput{Reference: ref, Stderr: data}
	})

	go func() {
		waitErr := cmd.Wait()
		c.post(func(c *Core) {
			delete(c.pipes, ref)
			c.log.WithField("status", exitStatus(waitErr)).Debug("pipe command exited")
			if _, sendErr := c.Send(message.PipeCommandExited{Reference: ref}); sendErr != nil {
				c.log.WithError(sendErr).Warn("pipe exited send failed")
			}
		})
	}()

	return nil
}

func streamOutput(c *Core, ref uint64, r io.Reader, build func([]byte) message.Message) {
	go func() {
		buf := make([]byte, 8192)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				c.post(func(c *Core) {
					if _, sendErr := c.Send(build(data)); sendErr != nil {
						c.log.WithError(sendErr).Warn("pipe output send failed")
					}
				})
			}
			if err != nil {
				return
			}
		}
	}()
}

func (c *Core) handlePipeCommandInput(v message.PipeCommandInput) error {
	child, ok := c.pipes[v.Reference]
	if !ok {
		return fmt.Errorf("no active pipe command %d", v.Reference)
	}
	if len(v.Input) == 0 {
		return child.stdin.Close()
	}
	_, err := child.stdin.Write(v.Input)
	return err
}

func (p *pipeChild) kill() error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

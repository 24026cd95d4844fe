package peercore

import "os/exec"

// exitStatus extracts a process exit code from the error exec.Cmd.Wait
// returns, or 0 if it exited cleanly.
func exitStatus(err error) int32 {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return int32(exitErr.ExitCode())
	}
	return -1
}

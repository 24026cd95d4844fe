package peercore

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"

	"oxy/internal/domain"
)

// keptEnvVars are the only environment variables a responder keeps once it
// has finished privilege handling; everything else is scrubbed, grounded on
// original_source/src/core/drop_privs.rs's whitelist (its RUST_* entries
// swapped for the Go/logrus equivalents).
var keptEnvVars = map[string]bool{
	"LANG": true, "SHELL": true, "HOME": true, "TERM": true,
	"USER": true, "PATH": true, "OXY_LOG_LEVEL": true,
}

// DropPrivileges scrubs the environment down to keptEnvVars, then, if peer
// has a configured SetUser, switches this process to that user: supplementary
// groups, gid, uid, and working directory, in that order. A responder
// running as root with no SetUser configured is a fatal misconfiguration --
// it exits the process rather than serve a connection with full privileges.
func DropPrivileges(peer domain.Peer) error {
	scrubEnv()

	if peer.SetUser == "" {
		if os.Geteuid() == 0 {
			return fmt.Errorf("running as root but peer %q has no setuser configured", peer.Name)
		}
		return nil
	}

	u, err := user.Lookup(peer.SetUser)
	if err != nil {
		return fmt.Errorf("look up setuser %q: %w", peer.SetUser, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("parse uid for %q: %w", peer.SetUser, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("parse gid for %q: %w", peer.SetUser, err)
	}

	groupIDs, err := u.GroupIds()
	if err != nil {
		return fmt.Errorf("look up supplementary groups for %q: %w", peer.SetUser, err)
	}
	groups := make([]int, 0, len(groupIDs))
	for _, g := range groupIDs {
		n, err := strconv.Atoi(g)
		if err != nil {
			continue
		}
		groups = append(groups, n)
	}
	if err := unix.Setgroups(groups); err != nil {
		return fmt.Errorf("setgroups for %q: %w", peer.SetUser, err)
	}
	if err := unix.Setgid(gid); err != nil {
		return fmt.Errorf("setgid for %q: %w", peer.SetUser, err)
	}
	if err := unix.Setuid(uid); err != nil {
		return fmt.Errorf("setuid for %q: %w", peer.SetUser, err)
	}

	os.Setenv("HOME", u.HomeDir)
	os.Setenv("USER", u.Username)
	if err := os.Chdir(u.HomeDir); err != nil {
		if err := os.Chdir("/"); err != nil {
			return fmt.Errorf("chdir after privilege drop: %w", err)
		}
	}
	return nil
}

func scrubEnv() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if !keptEnvVars[key] {
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

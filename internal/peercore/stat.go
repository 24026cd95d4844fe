package peercore

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"

	"oxy/internal/message"
)

func (c *Core) handleStatRequest(v message.StatRequest) error {
	info, err := os.Stat(v.Path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", v.Path, err)
	}

	result := message.StatResult{
		Path:       v.Path,
		Len:        uint64(info.Size()),
		IsDir:      info.IsDir(),
		IsFile:     info.Mode().IsRegular(),
		OctalPerms: uint32(info.Mode().Perm()),
	}

	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		result.Owner = lookupUsername(sys.Uid)
		result.Group = lookupGroupname(sys.Gid)
		result.ATimeUnix = sys.Atim.Sec
		result.MTimeUnix = sys.Mtim.Sec
		result.CTimeUnix = sys.Ctim.Sec
	} else {
		result.MTimeUnix = info.ModTime().Unix()
	}

	_, err = c.Send(result)
	return err
}

func (c *Core) handleReadDir(v message.ReadDir) error {
	entries, err := os.ReadDir(v.Path)
	if err != nil {
		return fmt.Errorf("readdir %q: %w", v.Path, err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	_, err = c.Send(message.ReadDirResult{Path: v.Path, Complete: true, Answers: names})
	return err
}

func lookupUsername(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return u.Username
}

func lookupGroupname(gid uint32) string {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(gid), 10)
	}
	return g.Name
}

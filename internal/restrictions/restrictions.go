// Package restrictions implements the server's forced-command filter: a
// gate run on every incoming message before dispatch that, when configured,
// substitutes a fixed command for whatever the peer requested and rejects
// anything outside a small message whitelist.
package restrictions

import (
	"fmt"
	"strings"

	"oxy/internal/message"
)

// ErrNotWhitelisted is returned for any message variant that forced-command
// mode does not allow through unmodified.
var ErrNotWhitelisted = fmt.Errorf("restrictions: message not permitted under forced-command policy")

// Policy holds the server's forced-command configuration. A zero Policy
// passes every message through unchanged.
type Policy struct {
	// ForcedCommand, if non-empty, replaces the command field of any
	// BasicCommand, PipeCommand, or PtyRequest.
	ForcedCommand string
	// SuMode synthesizes ForcedCommand as `su - <quoted peer username>`,
	// overriding any statically configured ForcedCommand.
	SuMode bool
}

// EffectiveCommand returns the command this policy forces, given the
// peer's self-advertised username (empty defaults to "root").
func (p Policy) EffectiveCommand(peerUsername string) string {
	if p.SuMode {
		user := peerUsername
		if user == "" {
			user = "root"
		}
		return "su - " + quote(user)
	}
	return p.ForcedCommand
}

// Active reports whether this policy forces anything at all.
func (p Policy) Active() bool {
	return p.SuMode || p.ForcedCommand != ""
}

// Apply runs the filter. peerUsername is the username the peer most
// recently advertised (empty if none yet). Messages outside the whitelist
// return ErrNotWhitelisted; the caller replies with Reject and does not
// dispatch.
func Apply(p Policy, peerUsername string, m message.Message) (message.Message, error) {
	if !p.Active() {
		return m, nil
	}
	forced := p.EffectiveCommand(peerUsername)

	switch v := m.(type) {
	case message.BasicCommand:
		return message.BasicCommand{Command: forced}, nil
	case message.PipeCommand:
		return message.PipeCommand{Command: forced}, nil
	case message.PtyRequest:
		cmd := forced
		return message.PtyRequest{Command: &cmd}, nil
	case message.PtySizeAdvertisement, message.PtyInput, message.PtyOutput, message.PtyExited,
		message.Success, message.Reject, message.Ping, message.Pong, message.UsernameAdvertisement:
		return v, nil
	default:
		return nil, ErrNotWhitelisted
	}
}

// quote renders s as a single POSIX shell word: wrapped in single quotes,
// with any embedded single quote closed, escaped, and reopened
// ('"'"'), matching the shlex::quote behavior the policy is ported from.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, "\t\n '\"\\$`!*?[]{}()<>|;&~#") {
		return s
	}
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' {
			b.WriteString(`'"'"'`)
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

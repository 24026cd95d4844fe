package peercore

import (
	"fmt"

	"oxy/internal/message"
)

// handle is the variant-specific dispatch table. ref is the message's
// incoming ordinal, used as the substream key for request-shaped variants
// (DownloadRequest, UploadRequest, PtyRequest, RemoteOpen, RemoteBind,
// TunnelRequest, PipeCommand) and as the Reference carried back on any
// variant keyed to a prior request (FileData, PipeCommandInput, ...).
func (c *Core) handle(ref uint64, m message.Message) error {
	switch v := m.(type) {
	case message.Ping:
		_, err := c.Send(message.Pong{})
		return err
	case message.Pong:
		return nil
	case message.Reject, message.Success:
		// Delivered to the requester via Watch; nothing to do here.
		return nil
	case message.UsernameAdvertisement:
		c.peerUsername = v.Username
		return nil
	case message.KnockForward:
		return c.handleKnockForward(v)

	case message.BasicCommand:
		return c.handleBasicCommand(v)
	case message.PipeCommand:
		return c.handlePipeCommand(ref, v)
	case message.PipeCommandInput:
		return c.handlePipeCommandInput(v)
	case message.PipeCommandOutput, message.PipeCommandExited:
		return nil // initiator side only, delivered via Watch

	case message.PtyRequest:
		return c.handlePtyRequest(ref, v)
	case message.PtyInput:
		return c.handlePtyInput(v)
	case message.PtySizeAdvertisement:
		return c.handlePtyResize(v)
	case message.PtyOutput, message.PtyExited:
		return nil // initiator side only, delivered via Watch

	case message.DownloadRequest:
		return c.handleDownloadRequest(ref, v)
	case message.UploadRequest:
		return c.handleUploadRequest(ref, v)
	case message.FileData:
		return c.handleFileData(v)
	case message.FileTruncateRequest:
		return c.handleFileTruncate(ref, v)
	case message.FileHashRequest:
		return c.handleFileHashRequest(v)
	case message.Dummy:
		return nil
	case message.FileHashData:
		return nil // initiator side only, delivered via Watch

	case message.RemoteOpen:
		return c.handleRemoteOpen(ref, v)
	case message.RemoteBind:
		return c.handleRemoteBind(ref, v)
	case message.BindConnectionAccepted:
		return c.handleBindConnectionAccepted(v)
	case message.RemoteStreamData:
		return c.handleRemoteStreamData(v)
	case message.LocalStreamData:
		return c.handleLocalStreamData(v)
	case message.RemoteStreamClosed:
		return c.handleRemoteStreamClosed(v)
	case message.LocalStreamClosed:
		return c.handleLocalStreamClosed(v)

	case message.TunnelRequest:
		return c.handleTunnelRequest(ref, v)
	case message.TunnelData:
		return c.handleTunnelData(v)

	case message.StatRequest:
		return c.handleStatRequest(v)
	case message.StatResult:
		return nil // initiator side only, delivered via Watch
	case message.ReadDir:
		return c.handleReadDir(v)
	case message.ReadDirResult:
		return nil // initiator side only, delivered via Watch

	case message.RawMessage:
		c.log.WithField("tag", v.TagValue).Debug("message not statically supported")
		return nil

	default:
		return fmt.Errorf("unhandled message type %T", m)
	}
}

func (c *Core) handleKnockForward(v message.KnockForward) error {
	// A responder relays a client's knock to another admission server on
	// its behalf (multi-hop knocking via --via). Best-effort: failures are
	// logged, not rejected back to the peer, since the forwarded knock's
	// own server will simply not admit the follow-on connection.
	addr, err := resolveUDPAddr(v.Destination)
	if err != nil {
		c.log.WithError(err).Warn("knock-forward: bad destination")
		return nil
	}
	if err := sendUDP(addr, v.Knock); err != nil {
		c.log.WithError(err).Warn("knock-forward: send failed")
	}
	return nil
}

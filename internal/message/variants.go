package message

// RawMessage is what an unrecognized tag decodes to; the dispatcher logs it
// as "not statically supported" and otherwise ignores it.
type RawMessage struct {
	TagValue Tag
	Payload  []byte
}

func (m RawMessage) Tag() Tag           { return m.TagValue }
func (m RawMessage) encodeBody() []byte { return m.Payload }

type Dummy struct{ Data []byte }

func (Dummy) Tag() Tag { return TagDummy }
func (m Dummy) encodeBody() []byte {
	w := &bodyWriter{}
	w.bytes(m.Data)
	return w.buf
}

type Ping struct{}

func (Ping) Tag() Tag           { return TagPing }
func (Ping) encodeBody() []byte { return nil }

type Pong struct{}

func (Pong) Tag() Tag           { return TagPong }
func (Pong) encodeBody() []byte { return nil }

type Reject struct {
	Reference uint64
	Note      string
}

func (Reject) Tag() Tag { return TagReject }
func (m Reject) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.str(m.Note)
	return w.buf
}

type Success struct{ Reference uint64 }

func (Success) Tag() Tag { return TagSuccess }
func (m Success) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	return w.buf
}

type BasicCommand struct{ Command string }

func (BasicCommand) Tag() Tag { return TagBasicCommand }
func (m BasicCommand) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Command)
	return w.buf
}

type PipeCommand struct{ Command string }

func (PipeCommand) Tag() Tag { return TagPipeCommand }
func (m PipeCommand) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Command)
	return w.buf
}

type BasicCommandOutput struct {
	Stdout []byte
	Stderr []byte
}

func (BasicCommandOutput) Tag() Tag { return TagBasicCommandOutput }
func (m BasicCommandOutput) encodeBody() []byte {
	w := &bodyWriter{}
	w.bytes(m.Stdout)
	w.bytes(m.Stderr)
	return w.buf
}

type PipeCommandOutput struct {
	Reference uint64
	Stdout    []byte
	Stderr    []byte
}

func (PipeCommandOutput) Tag() Tag { return TagPipeCommandOutput }
func (m PipeCommandOutput) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Stdout)
	w.bytes(m.Stderr)
	return w.buf
}

type PipeCommandInput struct {
	Reference uint64
	Input     []byte
}

func (PipeCommandInput) Tag() Tag { return TagPipeCommandInput }
func (m PipeCommandInput) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Input)
	return w.buf
}

type PipeCommandExited struct{ Reference uint64 }

func (PipeCommandExited) Tag() Tag { return TagPipeCommandExited }
func (m PipeCommandExited) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	return w.buf
}

// PtyRequest's Command is optional: nil means "run the peer's default shell".
type PtyRequest struct{ Command *string }

func (PtyRequest) Tag() Tag { return TagPtyRequest }
func (m PtyRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.optionalStr(m.Command)
	return w.buf
}

type PtySizeAdvertisement struct{ W, H uint16 }

func (PtySizeAdvertisement) Tag() Tag { return TagPtySizeAdvertisement }
func (m PtySizeAdvertisement) encodeBody() []byte {
	w := &bodyWriter{}
	w.u16(m.W)
	w.u16(m.H)
	return w.buf
}

type PtyInput struct{ Data []byte }

func (PtyInput) Tag() Tag { return TagPtyInput }
func (m PtyInput) encodeBody() []byte {
	w := &bodyWriter{}
	w.bytes(m.Data)
	return w.buf
}

type PtyOutput struct{ Data []byte }

func (PtyOutput) Tag() Tag { return TagPtyOutput }
func (m PtyOutput) encodeBody() []byte {
	w := &bodyWriter{}
	w.bytes(m.Data)
	return w.buf
}

type PtyExited struct{ Status int32 }

func (PtyExited) Tag() Tag { return TagPtyExited }
func (m PtyExited) encodeBody() []byte {
	w := &bodyWriter{}
	w.i32(m.Status)
	return w.buf
}

type DownloadRequest struct {
	Path        string
	OffsetStart *uint64
	OffsetEnd   *uint64
}

func (DownloadRequest) Tag() Tag { return TagDownloadRequest }
func (m DownloadRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.optionalU64(m.OffsetStart)
	w.optionalU64(m.OffsetEnd)
	return w.buf
}

type UploadRequest struct {
	Path        string
	Filepart    string
	OffsetStart *uint64
}

func (UploadRequest) Tag() Tag { return TagUploadRequest }
func (m UploadRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.str(m.Filepart)
	w.optionalU64(m.OffsetStart)
	return w.buf
}

// FileData carries one chunk of a transfer; an empty Data signals EOF.
type FileData struct {
	Reference uint64
	Data      []byte
}

func (FileData) Tag() Tag { return TagFileData }
func (m FileData) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Data)
	return w.buf
}

type FileTruncateRequest struct {
	Path string
	Len  uint64
}

func (FileTruncateRequest) Tag() Tag { return TagFileTruncateRequest }
func (m FileTruncateRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.u64(m.Len)
	return w.buf
}

type FileHashRequest struct {
	Path        string
	OffsetStart *uint64
	OffsetEnd   *uint64
	Algorithm   HashAlgorithm
}

func (FileHashRequest) Tag() Tag { return TagFileHashRequest }
func (m FileHashRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.optionalU64(m.OffsetStart)
	w.optionalU64(m.OffsetEnd)
	w.u8(uint8(m.Algorithm))
	return w.buf
}

type FileHashData struct {
	Path      string
	Algorithm HashAlgorithm
	Digest    []byte
}

func (FileHashData) Tag() Tag { return TagFileHashData }
func (m FileHashData) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.u8(uint8(m.Algorithm))
	w.bytes(m.Digest)
	return w.buf
}

type RemoteOpen struct{ Addr string }

func (RemoteOpen) Tag() Tag { return TagRemoteOpen }
func (m RemoteOpen) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Addr)
	return w.buf
}

type RemoteBind struct{ Addr string }

func (RemoteBind) Tag() Tag { return TagRemoteBind }
func (m RemoteBind) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Addr)
	return w.buf
}

type BindConnectionAccepted struct{ Reference uint64 }

func (BindConnectionAccepted) Tag() Tag { return TagBindConnectionAccepted }
func (m BindConnectionAccepted) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	return w.buf
}

type RemoteStreamData struct {
	Reference uint64
	Data      []byte
}

func (RemoteStreamData) Tag() Tag { return TagRemoteStreamData }
func (m RemoteStreamData) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Data)
	return w.buf
}

type LocalStreamData struct {
	Reference uint64
	Data      []byte
}

func (LocalStreamData) Tag() Tag { return TagLocalStreamData }
func (m LocalStreamData) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Data)
	return w.buf
}

type RemoteStreamClosed struct{ Reference uint64 }

func (RemoteStreamClosed) Tag() Tag { return TagRemoteStreamClosed }
func (m RemoteStreamClosed) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	return w.buf
}

type LocalStreamClosed struct{ Reference uint64 }

func (LocalStreamClosed) Tag() Tag { return TagLocalStreamClosed }
func (m LocalStreamClosed) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	return w.buf
}

type TunnelRequest struct {
	Tap  bool
	Name string
}

func (TunnelRequest) Tag() Tag { return TagTunnelRequest }
func (m TunnelRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.boolean(m.Tap)
	w.str(m.Name)
	return w.buf
}

type TunnelData struct {
	Reference uint64
	Data      []byte
}

func (TunnelData) Tag() Tag { return TagTunnelData }
func (m TunnelData) encodeBody() []byte {
	w := &bodyWriter{}
	w.u64(m.Reference)
	w.bytes(m.Data)
	return w.buf
}

type StatRequest struct{ Path string }

func (StatRequest) Tag() Tag { return TagStatRequest }
func (m StatRequest) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	return w.buf
}

type StatResult struct {
	Path        string
	Len         uint64
	IsDir       bool
	IsFile      bool
	Owner       string
	Group       string
	OctalPerms  uint32
	ATimeUnix   int64
	MTimeUnix   int64
	CTimeUnix   int64
}

func (StatResult) Tag() Tag { return TagStatResult }
func (m StatResult) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.u64(m.Len)
	w.boolean(m.IsDir)
	w.boolean(m.IsFile)
	w.str(m.Owner)
	w.str(m.Group)
	w.u32(m.OctalPerms)
	w.u64(uint64(m.ATimeUnix))
	w.u64(uint64(m.MTimeUnix))
	w.u64(uint64(m.CTimeUnix))
	return w.buf
}

type ReadDir struct{ Path string }

func (ReadDir) Tag() Tag { return TagReadDir }
func (m ReadDir) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	return w.buf
}

type ReadDirResult struct {
	Path     string
	Complete bool
	Answers  []string
}

func (ReadDirResult) Tag() Tag { return TagReadDirResult }
func (m ReadDirResult) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Path)
	w.boolean(m.Complete)
	w.u32(uint32(len(m.Answers)))
	for _, a := range m.Answers {
		w.str(a)
	}
	return w.buf
}

// UsernameAdvertisement tells the responder which local account the
// initiator is operating as, used by su-mode to build "su - <user>".
type UsernameAdvertisement struct{ Username string }

func (UsernameAdvertisement) Tag() Tag { return TagUsernameAdvertisement }
func (m UsernameAdvertisement) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Username)
	return w.buf
}

type KnockForward struct {
	Destination string
	Knock       []byte
}

func (KnockForward) Tag() Tag { return TagKnockForward }
func (m KnockForward) encodeBody() []byte {
	w := &bodyWriter{}
	w.str(m.Destination)
	w.bytes(m.Knock)
	return w.buf
}

package message

func init() {
	register(TagDummy, decodeDummy)
	register(TagPing, decodePing)
	register(TagPong, decodePong)
	register(TagReject, decodeReject)
	register(TagSuccess, decodeSuccess)
	register(TagBasicCommand, decodeBasicCommand)
	register(TagPipeCommand, decodePipeCommand)
	register(TagBasicCommandOutput, decodeBasicCommandOutput)
	register(TagPipeCommandOutput, decodePipeCommandOutput)
	register(TagPipeCommandInput, decodePipeCommandInput)
	register(TagPipeCommandExited, decodePipeCommandExited)
	register(TagPtyRequest, decodePtyRequest)
	register(TagPtySizeAdvertisement, decodePtySizeAdvertisement)
	register(TagPtyInput, decodePtyInput)
	register(TagPtyOutput, decodePtyOutput)
	register(TagPtyExited, decodePtyExited)
	register(TagDownloadRequest, decodeDownloadRequest)
	register(TagUploadRequest, decodeUploadRequest)
	register(TagFileData, decodeFileData)
	register(TagFileTruncateRequest, decodeFileTruncateRequest)
	register(TagFileHashRequest, decodeFileHashRequest)
	register(TagFileHashData, decodeFileHashData)
	register(TagRemoteOpen, decodeRemoteOpen)
	register(TagRemoteBind, decodeRemoteBind)
	register(TagBindConnectionAccepted, decodeBindConnectionAccepted)
	register(TagRemoteStreamData, decodeRemoteStreamData)
	register(TagLocalStreamData, decodeLocalStreamData)
	register(TagRemoteStreamClosed, decodeRemoteStreamClosed)
	register(TagLocalStreamClosed, decodeLocalStreamClosed)
	register(TagTunnelRequest, decodeTunnelRequest)
	register(TagTunnelData, decodeTunnelData)
	register(TagStatRequest, decodeStatRequest)
	register(TagStatResult, decodeStatResult)
	register(TagReadDir, decodeReadDir)
	register(TagReadDirResult, decodeReadDirResult)
	register(TagKnockForward, decodeKnockForward)
	register(TagUsernameAdvertisement, decodeUsernameAdvertisement)
}

func decodeUsernameAdvertisement(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	user, err := r.str()
	if err != nil {
		return fail(TagUsernameAdvertisement, err)
	}
	return UsernameAdvertisement{Username: user}, nil
}

func decodeDummy(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	data, err := r.bytes()
	if err != nil {
		return fail(TagDummy, err)
	}
	return Dummy{Data: data}, nil
}

func decodePing(b []byte) (Message, error) { return Ping{}, nil }
func decodePong(b []byte) (Message, error) { return Pong{}, nil }

func decodeReject(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagReject, err)
	}
	note, err := r.str()
	if err != nil {
		return fail(TagReject, err)
	}
	return Reject{Reference: ref, Note: note}, nil
}

func decodeSuccess(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagSuccess, err)
	}
	return Success{Reference: ref}, nil
}

func decodeBasicCommand(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	cmd, err := r.str()
	if err != nil {
		return fail(TagBasicCommand, err)
	}
	return BasicCommand{Command: cmd}, nil
}

func decodePipeCommand(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	cmd, err := r.str()
	if err != nil {
		return fail(TagPipeCommand, err)
	}
	return PipeCommand{Command: cmd}, nil
}

func decodeBasicCommandOutput(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	stdout, err := r.bytes()
	if err != nil {
		return fail(TagBasicCommandOutput, err)
	}
	stderr, err := r.bytes()
	if err != nil {
		return fail(TagBasicCommandOutput, err)
	}
	return BasicCommandOutput{Stdout: stdout, Stderr: stderr}, nil
}

func decodePipeCommandOutput(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagPipeCommandOutput, err)
	}
	stdout, err := r.bytes()
	if err != nil {
		return fail(TagPipeCommandOutput, err)
	}
	stderr, err := r.bytes()
	if err != nil {
		return fail(TagPipeCommandOutput, err)
	}
	return PipeCommandOutput{Reference: ref, Stdout: stdout, Stderr: stderr}, nil
}

func decodePipeCommandInput(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagPipeCommandInput, err)
	}
	in, err := r.bytes()
	if err != nil {
		return fail(TagPipeCommandInput, err)
	}
	return PipeCommandInput{Reference: ref, Input: in}, nil
}

func decodePipeCommandExited(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagPipeCommandExited, err)
	}
	return PipeCommandExited{Reference: ref}, nil
}

func decodePtyRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	cmd, err := r.optionalStr()
	if err != nil {
		return fail(TagPtyRequest, err)
	}
	return PtyRequest{Command: cmd}, nil
}

func decodePtySizeAdvertisement(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	w, err := r.u16()
	if err != nil {
		return fail(TagPtySizeAdvertisement, err)
	}
	h, err := r.u16()
	if err != nil {
		return fail(TagPtySizeAdvertisement, err)
	}
	return PtySizeAdvertisement{W: w, H: h}, nil
}

func decodePtyInput(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	data, err := r.bytes()
	if err != nil {
		return fail(TagPtyInput, err)
	}
	return PtyInput{Data: data}, nil
}

func decodePtyOutput(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	data, err := r.bytes()
	if err != nil {
		return fail(TagPtyOutput, err)
	}
	return PtyOutput{Data: data}, nil
}

func decodePtyExited(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	status, err := r.i32()
	if err != nil {
		return fail(TagPtyExited, err)
	}
	return PtyExited{Status: status}, nil
}

func decodeDownloadRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagDownloadRequest, err)
	}
	start, err := r.optionalU64()
	if err != nil {
		return fail(TagDownloadRequest, err)
	}
	end, err := r.optionalU64()
	if err != nil {
		return fail(TagDownloadRequest, err)
	}
	return DownloadRequest{Path: path, OffsetStart: start, OffsetEnd: end}, nil
}

func decodeUploadRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagUploadRequest, err)
	}
	filepart, err := r.str()
	if err != nil {
		return fail(TagUploadRequest, err)
	}
	start, err := r.optionalU64()
	if err != nil {
		return fail(TagUploadRequest, err)
	}
	return UploadRequest{Path: path, Filepart: filepart, OffsetStart: start}, nil
}

func decodeFileData(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagFileData, err)
	}
	data, err := r.bytes()
	if err != nil {
		return fail(TagFileData, err)
	}
	return FileData{Reference: ref, Data: data}, nil
}

func decodeFileTruncateRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagFileTruncateRequest, err)
	}
	length, err := r.u64()
	if err != nil {
		return fail(TagFileTruncateRequest, err)
	}
	return FileTruncateRequest{Path: path, Len: length}, nil
}

func decodeFileHashRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagFileHashRequest, err)
	}
	start, err := r.optionalU64()
	if err != nil {
		return fail(TagFileHashRequest, err)
	}
	end, err := r.optionalU64()
	if err != nil {
		return fail(TagFileHashRequest, err)
	}
	algo, err := r.u8()
	if err != nil {
		return fail(TagFileHashRequest, err)
	}
	return FileHashRequest{Path: path, OffsetStart: start, OffsetEnd: end, Algorithm: HashAlgorithm(algo)}, nil
}

func decodeFileHashData(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagFileHashData, err)
	}
	algo, err := r.u8()
	if err != nil {
		return fail(TagFileHashData, err)
	}
	digest, err := r.bytes()
	if err != nil {
		return fail(TagFileHashData, err)
	}
	return FileHashData{Path: path, Algorithm: HashAlgorithm(algo), Digest: digest}, nil
}

func decodeRemoteOpen(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	addr, err := r.str()
	if err != nil {
		return fail(TagRemoteOpen, err)
	}
	return RemoteOpen{Addr: addr}, nil
}

func decodeRemoteBind(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	addr, err := r.str()
	if err != nil {
		return fail(TagRemoteBind, err)
	}
	return RemoteBind{Addr: addr}, nil
}

func decodeBindConnectionAccepted(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagBindConnectionAccepted, err)
	}
	return BindConnectionAccepted{Reference: ref}, nil
}

func decodeRemoteStreamData(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagRemoteStreamData, err)
	}
	data, err := r.bytes()
	if err != nil {
		return fail(TagRemoteStreamData, err)
	}
	return RemoteStreamData{Reference: ref, Data: data}, nil
}

func decodeLocalStreamData(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagLocalStreamData, err)
	}
	data, err := r.bytes()
	if err != nil {
		return fail(TagLocalStreamData, err)
	}
	return LocalStreamData{Reference: ref, Data: data}, nil
}

func decodeRemoteStreamClosed(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagRemoteStreamClosed, err)
	}
	return RemoteStreamClosed{Reference: ref}, nil
}

func decodeLocalStreamClosed(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagLocalStreamClosed, err)
	}
	return LocalStreamClosed{Reference: ref}, nil
}

func decodeTunnelRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	tap, err := r.boolean()
	if err != nil {
		return fail(TagTunnelRequest, err)
	}
	name, err := r.str()
	if err != nil {
		return fail(TagTunnelRequest, err)
	}
	return TunnelRequest{Tap: tap, Name: name}, nil
}

func decodeTunnelData(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	ref, err := r.u64()
	if err != nil {
		return fail(TagTunnelData, err)
	}
	data, err := r.bytes()
	if err != nil {
		return fail(TagTunnelData, err)
	}
	return TunnelData{Reference: ref, Data: data}, nil
}

func decodeStatRequest(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagStatRequest, err)
	}
	return StatRequest{Path: path}, nil
}

func decodeStatResult(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagStatResult, err)
	}
	length, err := r.u64()
	if err != nil {
		return fail(TagStatResult, err)
	}
	isDir, err := r.boolean()
	if err != nil {
		return fail(TagStatResult, err)
	}
	isFile, err := r.boolean()
	if err != nil {
		return fail(TagStatResult, err)
	}
	owner, err := r.str()
	if err != nil {
		return fail(TagStatResult, err)
	}
	group, err := r.str()
	if err != nil {
		return fail(TagStatResult, err)
	}
	perms, err := r.u32()
	if err != nil {
		return fail(TagStatResult, err)
	}
	atime, err := r.u64()
	if err != nil {
		return fail(TagStatResult, err)
	}
	mtime, err := r.u64()
	if err != nil {
		return fail(TagStatResult, err)
	}
	ctime, err := r.u64()
	if err != nil {
		return fail(TagStatResult, err)
	}
	return StatResult{
		Path:       path,
		Len:        length,
		IsDir:      isDir,
		IsFile:     isFile,
		Owner:      owner,
		Group:      group,
		OctalPerms: perms,
		ATimeUnix:  int64(atime),
		MTimeUnix:  int64(mtime),
		CTimeUnix:  int64(ctime),
	}, nil
}

func decodeReadDir(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagReadDir, err)
	}
	return ReadDir{Path: path}, nil
}

func decodeReadDirResult(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	path, err := r.str()
	if err != nil {
		return fail(TagReadDirResult, err)
	}
	complete, err := r.boolean()
	if err != nil {
		return fail(TagReadDirResult, err)
	}
	count, err := r.u32()
	if err != nil {
		return fail(TagReadDirResult, err)
	}
	var answers []string
	if count > 0 {
		answers = make([]string, 0, count)
	}
	for i := uint32(0); i < count; i++ {
		a, err := r.str()
		if err != nil {
			return fail(TagReadDirResult, err)
		}
		answers = append(answers, a)
	}
	return ReadDirResult{Path: path, Complete: complete, Answers: answers}, nil
}

func decodeKnockForward(b []byte) (Message, error) {
	r := &bodyReader{buf: b}
	dest, err := r.str()
	if err != nil {
		return fail(TagKnockForward, err)
	}
	knock, err := r.bytes()
	if err != nil {
		return fail(TagKnockForward, err)
	}
	return KnockForward{Destination: dest, Knock: knock}, nil
}

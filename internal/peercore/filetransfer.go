package peercore

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"os"

	"oxy/internal/message"
)

// fileReadChunk is the per-iteration read size for an active download, per
// spec.md §4.6 ("up to 16 KiB per iteration per active transfer").
const fileReadChunk = 16 * 1024

// fileSender is the serving side of a download: a file this Core is
// streaming out as FileData chunks, one serviceOutbound iteration at a time.
type fileSender struct {
	ref       uint64
	file      *os.File
	remaining int64 // bytes left to send; transfer ends at 0
}

// fileReceiver is the writing side of an upload: incoming FileData chunks
// for this reference are appended to file until an empty chunk arrives.
type fileReceiver struct {
	ref  uint64
	path string
	file *os.File
}

func (c *Core) handleDownloadRequest(ref uint64, v message.DownloadRequest) error {
	f, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("open %q: %w", v.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat %q: %w", v.Path, err)
	}

	var start int64
	if v.OffsetStart != nil {
		start = int64(*v.OffsetStart)
	}
	end := info.Size()
	if v.OffsetEnd != nil && int64(*v.OffsetEnd) < end {
		end = int64(*v.OffsetEnd)
	}
	if start > end {
		f.Close()
		return fmt.Errorf("download offsets out of range for %q", v.Path)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek %q: %w", v.Path, err)
	}

	c.downloads[ref] = &fileSender{ref: ref, file: f, remaining: end - start}
	return nil
}

func (c *Core) handleUploadRequest(ref uint64, v message.UploadRequest) error {
	f, err := os.OpenFile(v.Path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %q for upload: %w", v.Path, err)
	}
	var start int64
	if v.OffsetStart != nil {
		start = int64(*v.OffsetStart)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return fmt.Errorf("seek %q: %w", v.Path, err)
	}
	c.uploads[ref] = &fileReceiver{ref: ref, path: v.Path, file: f}
	return nil
}

func (c *Core) handleFileData(v message.FileData) error {
	recv, ok := c.uploads[v.Reference]
	if !ok {
		// Not an upload we're serving; the requester's own Watch (registered
		// when it sent DownloadRequest/UploadRequest) already saw this via
		// fireWatchers, so there's nothing further to do here.
		return nil
	}
	if len(v.Data) == 0 {
		recv.file.Close()
		delete(c.uploads, v.Reference)
		_, err := c.Send(message.Success{Reference: v.Reference})
		return err
	}
	if _, err := recv.file.Write(v.Data); err != nil {
		recv.file.Close()
		delete(c.uploads, v.Reference)
		return fmt.Errorf("write %q: %w", recv.path, err)
	}
	return nil
}

func (c *Core) handleFileTruncate(ref uint64, v message.FileTruncateRequest) error {
	if err := os.Truncate(v.Path, int64(v.Len)); err != nil {
		return fmt.Errorf("truncate %q: %w", v.Path, err)
	}
	_, err := c.Send(message.Success{Reference: ref})
	return err
}

func (c *Core) handleFileHashRequest(v message.FileHashRequest) error {
	f, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("open %q for hashing: %w", v.Path, err)
	}
	defer f.Close()

	var start int64
	if v.OffsetStart != nil {
		start = int64(*v.OffsetStart)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("seek %q: %w", v.Path, err)
	}

	var r io.Reader = f
	if v.OffsetEnd != nil {
		r = io.LimitReader(f, int64(*v.OffsetEnd)-start)
	}

	var h hash.Hash
	switch v.Algorithm {
	case message.HashSHA1:
		h = sha1.New()
	case message.HashSHA256:
		h = sha256.New()
	case message.HashSHA512:
		h = sha512.New()
	default:
		return fmt.Errorf("unsupported hash algorithm %d", v.Algorithm)
	}
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("hash %q: %w", v.Path, err)
	}

	_, err = c.Send(message.FileHashData{Path: v.Path, Algorithm: v.Algorithm, Digest: h.Sum(nil)})
	return err
}

// serviceFileSenders drains one chunk from each active download. An empty
// FileData is the EOF marker that ends the transfer (spec.md §4.6).
func (c *Core) serviceFileSenders() {
	for ref, s := range c.downloads {
		if s.remaining <= 0 {
			s.file.Close()
			delete(c.downloads, ref)
			if _, err := c.Send(message.FileData{Reference: ref}); err != nil {
				c.log.WithError(err).Warn("failed to send download EOF marker")
			}
			continue
		}

		n := int64(fileReadChunk)
		if s.remaining < n {
			n = s.remaining
		}
		buf := make([]byte, n)
		read, err := s.file.Read(buf)
		if read > 0 {
			s.remaining -= int64(read)
			if _, sendErr := c.Send(message.FileData{Reference: ref, Data: buf[:read]}); sendErr != nil {
				c.log.WithError(sendErr).Warn("failed to send file chunk")
			}
		}
		if err != nil {
			s.file.Close()
			delete(c.downloads, ref)
			if err != io.EOF {
				c.log.WithError(err).Warn("download read error, ending transfer early")
			}
			if _, sendErr := c.Send(message.FileData{Reference: ref}); sendErr != nil {
				c.log.WithError(sendErr).Warn("failed to send download EOF marker")
			}
		}
	}
}

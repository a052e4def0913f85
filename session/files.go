package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/moffa90/go-arimu/protocol"
	"github.com/moffa90/go-arimu/transport"
)

// FileLister yields the unit's file names in batches as LISTFILES frames
// arrive. It must be closed.
type FileLister struct {
	s        *Session
	x        *transport.Exchange
	asm      listAssembler
	complete bool
	drained  bool
}

// ListFiles starts an enumeration of the files on the unit.
// The unit is switched into docking mode first if needed.
//
// Example:
//
//	lister, err := sess.ListFiles(ctx)
//	if err != nil {
//	    return err
//	}
//	defer lister.Close()
//	for {
//	    names, err := lister.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
func (s *Session) ListFiles(ctx context.Context) (*FileLister, error) {
	if err := s.ensureDockingMode(ctx); err != nil {
		return nil, err
	}

	x, err := s.link.Begin(ctx, protocol.CmdListFiles)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return &FileLister{s: s, x: x}, nil
}

// Next returns the names completed by the next frames. It returns io.EOF
// once the listing has ended. The returned batch is never empty.
func (l *FileLister) Next(ctx context.Context) ([]string, error) {
	for !l.complete {
		reply, err := l.x.Next(ctx, l.s.config.ListTimeout)
		if err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}

		var names []string
		if len(reply.Data) == 0 {
			names = l.asm.finish()
			l.complete = true
			l.drained = true
		} else {
			var closed bool
			names, closed = l.asm.feed(reply.Data)
			l.complete = closed
		}

		if len(names) > 0 {
			return names, nil
		}
	}
	return nil, io.EOF
}

// Close releases the connection. An unfinished listing, or one closed by its
// bracket but not yet terminated, is drained first so its remaining frames do
// not reach the next request.
func (l *FileLister) Close() error {
	defer l.x.Close()

	if l.drained {
		return nil
	}
	l.drained = true

	n, err := l.x.Drain(context.Background(), l.s.config.DrainQuiet, func(r *protocol.Reply) bool {
		return len(r.Data) == 0
	})
	if n > 0 {
		l.s.logDebug("drained list frames", "port", l.s.port, "frames", n)
	}
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return nil
}

// ListAllFiles collects the complete file listing. A listing interrupted by a
// timeout is restarted from the beginning; a partial listing is never
// returned.
func (s *Session) ListAllFiles(ctx context.Context) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		names, err := s.listOnce(ctx)
		if err == nil {
			s.logInfo("files listed", "port", s.port, "count", len(names))
			return names, nil
		}
		if !transport.IsTimeout(err) {
			return nil, err
		}
		lastErr = err
		s.logDebug("listing interrupted, restarting", "port", s.port, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (s *Session) listOnce(ctx context.Context) ([]string, error) {
	lister, err := s.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	defer lister.Close()

	var all []string
	for {
		names, err := lister.Next(ctx)
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, names...)
	}
}

// FileReader yields the frames of one GETFILEDATA transfer. It must be closed.
type FileReader struct {
	s    *Session
	x    *transport.Exchange
	name string
	done bool
}

// GetFileData starts a transfer of name from the unit.
// The unit is switched into docking mode first if needed.
func (s *Session) GetFileData(ctx context.Context, name string) (*FileReader, error) {
	args, err := protocol.NameArgs(name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureDockingMode(ctx); err != nil {
		return nil, err
	}

	x, err := s.link.Begin(ctx, protocol.CmdGetFileData, args...)
	if err != nil {
		return nil, fmt.Errorf("get file data %s: %w", name, err)
	}
	return &FileReader{s: s, x: x, name: name}, nil
}

// Name returns the file being transferred.
func (r *FileReader) Name() string {
	return r.name
}

// Next returns the next header or content chunk. FILESEARCHING frames are
// skipped. It returns ErrNoFile if the unit does not have the file and
// io.EOF after the final chunk.
func (r *FileReader) Next(ctx context.Context) (*protocol.FileChunk, error) {
	for !r.done {
		reply, err := r.x.Next(ctx, r.s.config.FileDataTimeout)
		if err != nil {
			return nil, fmt.Errorf("get file data %s: %w", r.name, err)
		}

		chunk, err := protocol.ParseFileDataResponse(reply.Data)
		if err != nil {
			return nil, fmt.Errorf("get file data %s: %w", r.name, err)
		}

		switch chunk.Flag {
		case protocol.FlagFileSearching:
			continue
		case protocol.FlagNoFile:
			r.done = true
			return nil, fmt.Errorf("%s: %w", r.name, ErrNoFile)
		case protocol.FlagFileHeader:
			return chunk, nil
		case protocol.FlagFileContent:
			if chunk.Final() {
				r.done = true
			}
			return chunk, nil
		default:
			return nil, fmt.Errorf("get file data %s: unexpected flag %s", r.name, chunk.Flag)
		}
	}
	return nil, io.EOF
}

// Close releases the connection, draining the rest of an abandoned transfer.
func (r *FileReader) Close() error {
	defer r.x.Close()

	if r.done {
		return nil
	}
	r.done = true

	n, err := r.x.Drain(context.Background(), r.s.config.DrainQuiet, func(reply *protocol.Reply) bool {
		chunk, err := protocol.ParseFileDataResponse(reply.Data)
		if err != nil {
			return false
		}
		return chunk.Flag == protocol.FlagNoFile || (chunk.Flag == protocol.FlagFileContent && chunk.Final())
	})
	if n > 0 {
		r.s.logDebug("drained file frames", "port", r.s.port, "file", r.name, "frames", n)
	}
	if err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return nil
}

// DeleteResult is the outcome of DELETEFILE.
type DeleteResult int

const (
	Deleted DeleteResult = iota
	NotDeleted
)

func (r DeleteResult) String() string {
	if r == Deleted {
		return "Deleted"
	}
	return "NotDeleted"
}

// DeleteFile removes name from the unit.
// The unit is switched into docking mode first if needed.
func (s *Session) DeleteFile(ctx context.Context, name string) (DeleteResult, error) {
	args, err := protocol.NameArgs(name)
	if err != nil {
		return NotDeleted, err
	}

	reply, err := s.request(ctx, true, protocol.CmdDeleteFile, args...)
	if err != nil {
		return NotDeleted, fmt.Errorf("delete %s: %w", name, err)
	}

	flag, err := protocol.ParseDeleteResponse(reply.Data)
	if err != nil {
		return NotDeleted, fmt.Errorf("delete %s: %w", name, err)
	}

	if flag != protocol.FlagFileDeleted {
		s.logInfo("file not deleted", "port", s.port, "file", name)
		return NotDeleted, nil
	}
	s.logDebug("file deleted", "port", s.port, "file", name)
	return Deleted, nil
}

// Package listener implements one receiving round of filecopy: it reads the
// initiator's decision, then either halts or receives a batch of files into
// a destination directory.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cyberinferno/filecopy/journal"
	"github.com/cyberinferno/filecopy/logger"
	"github.com/cyberinferno/filecopy/perfmonitor"
	"github.com/cyberinferno/filecopy/protocol"
)

// Outcome is the negotiated result for one received file.
type Outcome struct {
	Name           string
	Size           uint64
	Status         protocol.Status
	Elapsed        time.Duration
	BytesPerSecond float64 // payload throughput, 0 when nothing was streamed
}

// RoundResult is what a finished round reports to the acceptance loop.
type RoundResult struct {
	// Continue is false when the initiator sent the halt signal.
	Continue bool
	Outcomes []Outcome
}

// Listener receives files into Dir. Rounds must not overlap.
type Listener struct {
	dir       string
	chunkSize int
	logger    logger.Logger
	journal   journal.Journal
}

// New creates a Listener writing into dir. A nil journal records nothing.
//
// Parameters:
//   - dir: Destination directory for received files
//   - chunkSize: Payload buffer size; protocol.ChunkSize when 0
//   - log: Logger for round and per-file events
//   - j: Journal receiving one entry per outcome, may be nil
//
// Returns:
//   - A new *Listener
func New(dir string, chunkSize int, log logger.Logger, j journal.Journal) *Listener {
	if j == nil {
		j = journal.Discard{}
	}

	return &Listener{
		dir:       dir,
		chunkSize: chunkSize,
		logger:    log,
		journal:   j,
	}
}

// Dir returns the destination directory.
func (l *Listener) Dir() string {
	return l.dir
}

// round carries the per-connection state of Serve.
type round struct {
	*Listener
	id     uint32
	peer   string
	conn   io.ReadWriter
	buf    []byte
	logger logger.Logger
}

// Serve runs one round on conn. The caller owns conn and closes it.
//
// Parameters:
//   - ctx: Bounds journal writes only
//   - id: Round identifier used in logs and journal keys
//   - peer: Remote address, informational
//   - conn: The accepted connection
//
// Returns:
//   - The round result; Continue is false after a halt signal
//   - An I/O error or *protocol.ProtocolError that aborted the round
func (l *Listener) Serve(ctx context.Context, id uint32, peer string, conn io.ReadWriter) (RoundResult, error) {
	r := &round{
		Listener: l,
		id:       id,
		peer:     peer,
		conn:     conn,
		buf:      protocol.NewChunkBuffer(l.chunkSize),
		logger:   l.logger.With(logger.Field{Key: "round", Value: id}, logger.Field{Key: "peer", Value: peer}),
	}

	return r.run(ctx)
}

func (r *round) run(ctx context.Context) (RoundResult, error) {
	result := RoundResult{Continue: true}

	status, err := protocol.ReceiveStatus(r.conn)
	if err != nil {
		return result, err
	}

	if status == protocol.Halt {
		r.logger.Info(status.Describe(""))
		result.Continue = false
		return result, nil
	}

	count, err := protocol.ReadBatchHeader(r.conn)
	if err != nil {
		return result, err
	}
	r.logger.Debug("batch announced", logger.Field{Key: "count", Value: count})

	for seq := 0; seq < int(count); seq++ {
		outcome, err := r.receiveFile()
		if err != nil {
			return result, err
		}

		result.Outcomes = append(result.Outcomes, outcome)
		r.report(ctx, seq, outcome)
	}

	return result, nil
}

// receiveFile performs the header, accept, open and payload steps for one file.
func (r *round) receiveFile() (Outcome, error) {
	header, err := protocol.ReadFileHeader(r.conn)
	if errors.Is(err, protocol.ErrInvalidName) {
		return Outcome{Size: header.Size, Status: protocol.NameError}, protocol.SendStatus(r.conn, protocol.NameError)
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Name: header.Name, Size: header.Size}

	dest, ok := r.destination(header.Name)
	if !ok {
		outcome.Status = protocol.NameError
		return outcome, protocol.SendStatus(r.conn, protocol.NameError)
	}

	if exists(dest) {
		outcome.Status = protocol.FileAlreadyExists
		return outcome, protocol.SendStatus(r.conn, protocol.FileAlreadyExists)
	}

	if err := protocol.SendStatus(r.conn, protocol.Ok); err != nil {
		return outcome, err
	}

	status, err := protocol.ReceiveStatus(r.conn)
	if err != nil {
		return outcome, err
	}
	if status == protocol.FileOpenError {
		// Initiator could not open its source; nothing else follows.
		outcome.Status = status
		return outcome, nil
	}

	// O_EXCL turns a file that appeared after the existence check into an
	// open failure instead of an overwrite.
	file, openErr := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if openErr != nil {
		r.logger.Error("cannot create destination file", logger.Field{Key: "path", Value: dest}, logger.Field{Key: "error", Value: openErr})
		outcome.Status = protocol.FileOpenError
		return outcome, protocol.SendStatus(r.conn, protocol.FileOpenError)
	}

	if err := protocol.SendStatus(r.conn, protocol.Ok); err != nil {
		discard(file, dest)
		return outcome, err
	}

	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	if _, err := protocol.CopyPayload(file, r.conn, header.Size, r.buf); err != nil {
		discard(file, dest)
		return outcome, err
	}
	pm.Stop()

	if err := file.Close(); err != nil {
		_ = os.Remove(dest)
		return outcome, fmt.Errorf("close %s: %w", dest, err)
	}

	outcome.Status = protocol.Ok
	outcome.Elapsed = pm.Elapsed()
	outcome.BytesPerSecond = pm.BytesPerSecond(outcome.Size)
	return outcome, nil
}

// destination maps a received name into the listener directory. Empty
// names and names escaping the directory are rejected.
func (r *round) destination(name string) (string, bool) {
	if name == "" || !filepath.IsLocal(name) {
		return "", false
	}

	return filepath.Join(r.dir, name), true
}

func (r *round) report(ctx context.Context, seq int, o Outcome) {
	fields := []logger.Field{
		{Key: "name", Value: o.Name},
		{Key: "size", Value: o.Size},
		{Key: "status", Value: o.Status.String()},
	}

	if o.Status == protocol.Ok {
		r.logger.Info(o.Status.Describe(o.Name), append(fields,
			logger.Field{Key: "elapsed", Value: o.Elapsed},
			logger.Field{Key: "bytes_per_sec", Value: o.BytesPerSecond})...)
	} else {
		r.logger.Warn(o.Status.Describe(o.Name), fields...)
	}

	err := r.journal.Record(ctx, journal.Entry{
		Side:           journal.SideListener,
		Round:          r.id,
		Seq:            seq,
		Peer:           r.peer,
		Name:           o.Name,
		Size:           o.Size,
		Status:         o.Status,
		ElapsedMs:      float64(o.Elapsed) / float64(time.Millisecond),
		BytesPerSecond: o.BytesPerSecond,
	})
	if err != nil {
		r.logger.Warn("failed to journal outcome", logger.Field{Key: "error", Value: err})
	}
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// discard closes and removes a partially written destination.
func discard(file *os.File, path string) {
	_ = file.Close()
	_ = os.Remove(path)
}

// Package initiator implements the sending side of filecopy: it connects to
// a listener and either sends the halt signal or offers a batch of files,
// negotiating each one before any payload is written.
package initiator

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/filecopy/journal"
	"github.com/cyberinferno/filecopy/logger"
	"github.com/cyberinferno/filecopy/perfmonitor"
	"github.com/cyberinferno/filecopy/protocol"
)

// Outcome is the negotiated result for one sent file.
type Outcome struct {
	Path           string
	Name           string
	Size           uint64
	Status         protocol.Status
	Elapsed        time.Duration
	BytesPerSecond float64 // payload throughput, 0 when nothing was streamed
}

// Report collects what happened to every requested path of a batch.
type Report struct {
	Skipped  []Skipped
	Outcomes []Outcome
}

// Sent returns the number of files whose payload was delivered.
func (r *Report) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == protocol.Ok {
			n++
		}
	}

	return n
}

// Initiator opens one connection per operation. It is safe for concurrent
// use; every operation owns its own connection.
type Initiator struct {
	config  Config
	logger  logger.Logger
	journal journal.Journal
	ops     atomic.Uint32
}

// New creates an Initiator. A nil journal records nothing.
//
// Parameters:
//   - config: Connection settings (e.g. from DefaultConfig)
//   - log: Logger for per-file outcomes
//   - j: Journal receiving one entry per outcome, may be nil
//
// Returns:
//   - A new *Initiator
func New(config Config, log logger.Logger, j journal.Journal) *Initiator {
	if j == nil {
		j = journal.Discard{}
	}

	return &Initiator{
		config:  config,
		logger:  log.With(logger.Field{Key: "peer", Value: config.Address}),
		journal: j,
	}
}

func (i *Initiator) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: i.config.ConnectionTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", i.config.Address)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", i.config.Address, err)
	}

	return conn, nil
}

// SendHalt connects and tells the listener to stop serving further rounds.
func (i *Initiator) SendHalt(ctx context.Context) error {
	conn, err := i.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := Halt(conn); err != nil {
		return err
	}

	i.logger.Info("halt signal sent")
	return nil
}

// SendFiles connects and offers paths as one batch.
//
// Parameters:
//   - ctx: Bounds the dial and journal writes; the transfer itself is not cancellable
//   - paths: Local files to send, in order
//
// Returns:
//   - The report of skipped paths and per-file outcomes (partial on error)
//   - A transport error, a local read error or a *protocol.ProtocolError
func (i *Initiator) SendFiles(ctx context.Context, paths []string) (*Report, error) {
	conn, err := i.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	return i.SendBatch(ctx, conn, paths)
}

// Halt sends the halt status on an established connection.
func Halt(w io.Writer) error {
	return protocol.SendStatus(w, protocol.Halt)
}

// SendBatch runs the batch exchange on an established connection: it drops
// paths that cannot be sent, announces the batch, then negotiates and sends
// each remaining file in order. Negotiated refusals are outcomes, not errors.
func (i *Initiator) SendBatch(ctx context.Context, conn io.ReadWriter, paths []string) (*Report, error) {
	op := i.ops.Add(1)
	files, skipped := FilterFiles(paths)
	report := &Report{Skipped: skipped}

	for _, s := range skipped {
		i.logger.Warn(fmt.Sprintf("%s %v", s.Path, s.Reason), logger.Field{Key: "path", Value: s.Path})
	}

	if err := protocol.SendStatus(conn, protocol.Ok); err != nil {
		return report, err
	}

	if err := protocol.WriteBatchHeader(conn, int16(len(files))); err != nil {
		return report, err
	}

	buf := protocol.NewChunkBuffer(i.config.ChunkSize)
	for seq, path := range files {
		outcome, err := i.sendFile(conn, path, buf)
		if err != nil {
			return report, fmt.Errorf("send %s: %w", path, err)
		}

		report.Outcomes = append(report.Outcomes, outcome)
		i.report(ctx, op, seq, outcome)
	}

	return report, nil
}

// sendFile performs the header, accept, open and payload steps for one file.
func (i *Initiator) sendFile(conn io.ReadWriter, path string, buf []byte) (Outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("query size: %w", err)
	}

	outcome := Outcome{
		Path: path,
		Name: protocol.WireName(path),
		Size: uint64(info.Size()),
	}

	if err := protocol.WriteFileHeader(conn, protocol.FileHeader{Name: outcome.Name, Size: outcome.Size}); err != nil {
		return outcome, err
	}

	status, err := protocol.ReceiveStatus(conn)
	if err != nil {
		return outcome, err
	}
	if status != protocol.Ok {
		outcome.Status = status
		return outcome, nil
	}

	file, openErr := os.Open(path)
	if openErr != nil {
		// The listener expects no further exchange for this file.
		i.logger.Error("cannot open source file", logger.Field{Key: "path", Value: path}, logger.Field{Key: "error", Value: openErr})
		outcome.Status = protocol.FileOpenError
		return outcome, protocol.SendStatus(conn, protocol.FileOpenError)
	}
	defer func() { _ = file.Close() }()

	if err := protocol.SendStatus(conn, protocol.Ok); err != nil {
		return outcome, err
	}

	// Only FileOpenError cancels the payload at this step.
	status, err = protocol.ReceiveStatus(conn)
	if err != nil {
		return outcome, err
	}
	if status == protocol.FileOpenError {
		outcome.Status = status
		return outcome, nil
	}

	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	if _, err := protocol.CopyPayload(conn, file, outcome.Size, buf); err != nil {
		return outcome, err
	}
	pm.Stop()

	outcome.Status = protocol.Ok
	outcome.Elapsed = pm.Elapsed()
	outcome.BytesPerSecond = pm.BytesPerSecond(outcome.Size)
	return outcome, nil
}

func (i *Initiator) report(ctx context.Context, op uint32, seq int, o Outcome) {
	fields := []logger.Field{
		{Key: "name", Value: o.Name},
		{Key: "size", Value: o.Size},
		{Key: "status", Value: o.Status.String()},
	}

	if o.Status == protocol.Ok {
		i.logger.Info(o.Status.Describe(o.Name), append(fields,
			logger.Field{Key: "elapsed", Value: o.Elapsed},
			logger.Field{Key: "bytes_per_sec", Value: o.BytesPerSecond})...)
	} else {
		i.logger.Warn(o.Status.Describe(o.Name), fields...)
	}

	err := i.journal.Record(ctx, journal.Entry{
		Side:           journal.SideInitiator,
		Round:          op,
		Seq:            seq,
		Peer:           i.config.Address,
		Name:           o.Name,
		Size:           o.Size,
		Status:         o.Status,
		ElapsedMs:      float64(o.Elapsed) / float64(time.Millisecond),
		BytesPerSecond: o.BytesPerSecond,
	})
	if err != nil {
		i.logger.Warn("failed to journal outcome", logger.Field{Key: "error", Value: err})
	}
}

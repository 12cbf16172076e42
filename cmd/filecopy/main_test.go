package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/filecopy/initiator"
	"github.com/cyberinferno/filecopy/journal"
	"github.com/cyberinferno/filecopy/listener"
	"github.com/cyberinferno/filecopy/logger"
	"github.com/cyberinferno/filecopy/protocol"
	"github.com/cyberinferno/filecopy/tcpserver"
)

// execute runs the CLI with args and returns what it printed, the log
// output and the error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var logs bytes.Buffer
	old := stderr
	stderr = &logs
	t.Cleanup(func() { stderr = old })

	var out bytes.Buffer
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}

	err := app.Run(append([]string{"filecopy"}, args...))
	return out.String(), logs.String(), err
}

// run executes the CLI with args and returns the log output and the error.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	_, logs, err := execute(t, args...)
	return logs, err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()

	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)
	return coder.ExitCode()
}

func freePort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return port
}

func TestParseNumber(t *testing.T) {
	n, err := parseNumber("8080", "port")
	require.NoError(t, err)
	assert.Equal(t, uint16(8080), n)

	for _, v := range []string{"abc", "-1", "65536", ""} {
		_, err := parseNumber(v, "port")
		require.Error(t, err, v)
		assert.Contains(t, err.Error(), fmt.Sprintf("'%s' is an invalid port number - ", v))
	}

	_, err = parseNumber("70000", "count")
	assert.ErrorContains(t, err, "'70000' is an invalid count number")
}

func TestCLI_InputErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"client missing port", []string{"client", "localhost"}, "<addr> <port>"},
		{"client bad port", []string{"client", "localhost", "http", "a.txt"}, "'http' is an invalid port number"},
		{"client no files", []string{"client", "localhost", "9000"}, "no files"},
		{"client stop with files", []string{"client", "--stop", "localhost", "9000", "a.txt"}, "--stop takes no files"},
		{"server no port", []string{"server"}, "exactly one"},
		{"server bad port", []string{"server", "99999"}, "'99999' is an invalid port number"},
		{"server bad count", []string{"server", "--count", "many", "9000"}, "'many' is an invalid count number"},
		{"server count and keep", []string{"server", "--count", "2", "--keep", "9000"}, "mutually exclusive"},
		{"server missing dir", []string{"server", "--dir", "/nonexistent/filecopy", "9000"}, "not a directory"},
		{"client stop after files", []string{"client", "localhost", "9000", "a.txt", "--stop"}, "--stop takes no files"},
		{"client unknown late flag", []string{"client", "localhost", "9000", "a.txt", "--force"}, "unknown flag --force"},
		{"server two ports", []string{"server", "9000", "9001"}, "exactly one"},
		{"server keep and count after port", []string{"server", "9000", "-k", "-c", "2"}, "mutually exclusive"},
		{"server bad count after port", []string{"server", "9000", "--count=lots"}, "'lots' is an invalid count number"},
		{"server count without value", []string{"server", "9000", "--count"}, "--count needs a value"},
		{"server unknown late flag", []string{"server", "9000", "--forever"}, "unknown flag --forever"},
		{"bad log format", []string{"--log-format", "xml", "client", "--stop", "localhost", "9000"}, "log.format"},
		{"missing config", []string{"--config", "/nonexistent/filecopy.yaml", "client", "--stop", "localhost", "9000"}, "config file not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, exitInvalidInput, exitCode(t, err))
		})
	}
}

func TestParseServerArgs(t *testing.T) {
	tests := []struct {
		args   []string
		policy tcpserver.Policy
		dir    string
	}{
		{[]string{"9000"}, tcpserver.Once(), ""},
		{[]string{"--keep", "9000"}, tcpserver.Forever(), ""},
		{[]string{"9000", "--keep"}, tcpserver.Forever(), ""},
		{[]string{"9000", "-k"}, tcpserver.Forever(), ""},
		{[]string{"-c", "3", "9000"}, tcpserver.Count(3), ""},
		{[]string{"9000", "--count", "3"}, tcpserver.Count(3), ""},
		{[]string{"9000", "--count=3"}, tcpserver.Count(3), ""},
		{[]string{"9000", "-c", "0", "-d", "/srv/in"}, tcpserver.Count(0), "/srv/in"},
	}

	for _, tt := range tests {
		var got serverOptions
		cmd := serverCommand()
		cmd.Action = func(c *cli.Context) error {
			var err error
			got, err = parseServerArgs(c)
			return err
		}

		app := &cli.App{Commands: []*cli.Command{cmd}}
		require.NoError(t, app.Run(append([]string{"filecopy", "server"}, tt.args...)), tt.args)
		assert.Equal(t, uint16(9000), got.port, tt.args)
		assert.Equal(t, tt.policy, got.policy, tt.args)
		assert.Equal(t, tt.dir, got.dir, tt.args)
	}
}

func TestParseClientArgs(t *testing.T) {
	tests := []struct {
		args  []string
		stop  bool
		files []string
	}{
		{[]string{"host", "9000", "--stop"}, true, nil},
		{[]string{"host", "9000", "-s"}, true, nil},
		{[]string{"-s", "host", "9000"}, true, nil},
		{[]string{"host", "9000", "a", "b"}, false, []string{"a", "b"}},
		{[]string{"host", "9000", "a", "-t", "2s", "b"}, false, []string{"a", "b"}},
		{[]string{"host", "9000", "--", "-odd", "--stop"}, false, []string{"-odd", "--stop"}},
	}

	for _, tt := range tests {
		var got clientOptions
		cmd := clientCommand()
		cmd.Action = func(c *cli.Context) error {
			var err error
			got, err = parseClientArgs(c)
			return err
		}

		app := &cli.App{Commands: []*cli.Command{cmd}}
		require.NoError(t, app.Run(append([]string{"filecopy", "client"}, tt.args...)), tt.args)
		assert.Equal(t, "host:9000", got.address, tt.args)
		assert.Equal(t, tt.stop, got.stop, tt.args)
		assert.Equal(t, len(tt.files), len(got.files), tt.args)
		if len(tt.files) > 0 {
			assert.Equal(t, tt.files, got.files, tt.args)
		}
	}
}

func TestParseClientArgs_LateTimeout(t *testing.T) {
	var got clientOptions
	cmd := clientCommand()
	cmd.Action = func(c *cli.Context) error {
		var err error
		got, err = parseClientArgs(c)
		return err
	}

	app := &cli.App{Commands: []*cli.Command{cmd}}
	require.NoError(t, app.Run([]string{"filecopy", "client", "host", "9000", "a", "--timeout=3s"}))
	require.NotNil(t, got.timeout)
	assert.Equal(t, 3*time.Second, *got.timeout)
}

func TestCLI_ClientSendsToListener(t *testing.T) {
	dest := t.TempDir()
	l := listener.New(dest, 0, logger.NewNopLogger(), nil)
	s := &tcpserver.TCPServer{
		Logger: logger.NewNopLogger(),
		Name:   "test",
		Addr:   "127.0.0.1:0",
		Policy: tcpserver.Once(),
		NewSession: func(id uint32, conn net.Conn) tcpserver.TCPServerSession {
			return l.NewSession(context.Background(), id, conn)
		},
	}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0644))
	_, port, err := net.SplitHostPort(s.ListenAddr().String())
	require.NoError(t, err)

	logs, err := run(t, "--log-format", "json", "client", "127.0.0.1", port, src, filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
	assert.Contains(t, logs, `"sent":1`)
	assert.Contains(t, logs, `"skipped":1`)
}

func TestCLI_ServerReceivesUntilHalt(t *testing.T) {
	dest := t.TempDir()
	port := freePort(t)
	addr := net.JoinHostPort("127.0.0.1", port)

	done := make(chan error, 1)
	go func() { done <- runServer(dest, port) }()

	src := filepath.Join(t.TempDir(), "b.bin")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{7}, 5000), 0644))

	i := initiator.New(initiator.DefaultConfig(addr), logger.NewNopLogger(), nil)
	require.Eventually(t, func() bool {
		_, err := i.SendFiles(context.Background(), []string{src})
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	require.NoError(t, i.SendHalt(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after halt")
	}

	info, err := os.Stat(filepath.Join(dest, "b.bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), info.Size())
}

// runServer runs the server command without touching the shared stderr.
func runServer(dir, port string) error {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app.Run([]string{"filecopy", "--log-level", "error", "server", "--keep", "--dir", dir, port})
}

func TestCLI_StopAfterPortHaltsListener(t *testing.T) {
	l := listener.New(t.TempDir(), 0, logger.NewNopLogger(), nil)
	s := &tcpserver.TCPServer{
		Logger: logger.NewNopLogger(),
		Name:   "test",
		Addr:   "127.0.0.1:0",
		Policy: tcpserver.Forever(),
		NewSession: func(id uint32, conn net.Conn) tcpserver.TCPServerSession {
			return l.NewSession(context.Background(), id, conn)
		},
	}
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	_, port, err := net.SplitHostPort(s.ListenAddr().String())
	require.NoError(t, err)

	_, err = run(t, "client", "127.0.0.1", port, "--stop")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener kept serving after --stop")
	}
	assert.Equal(t, uint32(1), s.Rounds())
}

// seedJournal starts a Redis server with two recorded rounds and returns a
// config file pointing at it.
func seedJournal(t *testing.T) (*miniredis.Miniredis, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	j := journal.NewRedisJournal(client, "filecopy", 0)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, journal.Entry{Side: journal.SideListener, Round: 1, Seq: 0, Name: "a.txt", Size: 4, Status: protocol.Ok}))
	require.NoError(t, j.Record(ctx, journal.Entry{Side: journal.SideListener, Round: 2, Seq: 0, Name: "b.txt", Status: protocol.FileAlreadyExists}))
	require.NoError(t, j.Record(ctx, journal.Entry{Side: journal.SideInitiator, Round: 1, Seq: 0, Name: "c.txt", Status: protocol.NameError}))

	path := filepath.Join(t.TempDir(), "filecopy.yaml")
	cfg := fmt.Sprintf("journal:\n  backend: redis\n  redis_addr: %s\n", mr.Addr())
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return mr, path
}

func TestCLI_JournalList(t *testing.T) {
	_, cfg := seedJournal(t)

	out, _, err := execute(t, "--config", cfg, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "name: a.txt")
	assert.Contains(t, out, "name: b.txt")
	assert.Contains(t, out, "name: c.txt")

	out, _, err = execute(t, "--config", cfg, "journal", "--side", "listener", "--round", "2")
	require.NoError(t, err)
	assert.NotContains(t, out, "a.txt")
	assert.Contains(t, out, "name: b.txt")
	assert.Contains(t, out, "status: FileAlreadyExists")

	key := journal.Entry{Side: journal.SideListener, Round: 1, Seq: 0, Name: "a.txt"}.Key()
	out, _, err = execute(t, "--config", cfg, "journal", "--key", key)
	require.NoError(t, err)
	assert.Contains(t, out, "name: a.txt")
	assert.Contains(t, out, "size: 4")
	assert.NotContains(t, out, "b.txt")

	_, _, err = execute(t, "--config", cfg, "journal", "--key", "listener:missing")
	assert.ErrorContains(t, err, "no journal entry")
}

func TestCLI_JournalClear(t *testing.T) {
	mr, cfg := seedJournal(t)
	require.NoError(t, mr.Set("unrelated", "keep"))

	out, _, err := execute(t, "--config", cfg, "journal", "--clear", "--side", "initiator")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 1 entries")

	out, _, err = execute(t, "--config", cfg, "journal", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "journal cleared")

	out, _, err = execute(t, "--config", cfg, "journal")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
	assert.True(t, mr.Exists("unrelated"))
}

func TestCLI_JournalInputErrors(t *testing.T) {
	_, cfg := seedJournal(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"memory backend", []string{"journal"}, "set journal.backend to redis"},
		{"round without side", []string{"--config", cfg, "journal", "--round", "1"}, "--round requires --side"},
		{"bad side", []string{"--config", cfg, "journal", "--side", "both"}, "--side must be"},
		{"bad round", []string{"--config", cfg, "journal", "--side", "listener", "--round", "x"}, "'x' is an invalid round number"},
		{"key and clear", []string{"--config", cfg, "journal", "--key", "k", "--clear"}, "mutually exclusive"},
		{"stray argument", []string{"--config", cfg, "journal", "all"}, "unexpected argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, exitInvalidInput, exitCode(t, err))
		})
	}
}

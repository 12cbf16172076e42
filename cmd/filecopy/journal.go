package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/cyberinferno/filecopy/config"
	"github.com/cyberinferno/filecopy/journal"
)

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "Show or clear recorded transfer outcomes (needs a shared journal backend)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "side",
				Usage: "Only entries recorded by the initiator or the listener",
			},
			&cli.StringFlag{
				Name:  "round",
				Usage: "Only entries of this round (requires --side)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Show the single entry stored under this key",
			},
			&cli.BoolFlag{
				Name:  "clear",
				Usage: "Delete the selected entries instead of showing them",
			},
		},
		Action: journalAction,
	}
}

// journalQuery is the validated command line of the journal command.
type journalQuery struct {
	key    string
	prefix string
	clear  bool
}

func parseJournalArgs(c *cli.Context) (journalQuery, error) {
	args, late, err := splitArgs(c)
	if err != nil {
		return journalQuery{}, err
	}
	if len(args) > 0 {
		return journalQuery{}, fmt.Errorf("unexpected argument %q", args[0])
	}

	var q journalQuery
	if q.clear, err = late.Bool(c, "clear"); err != nil {
		return journalQuery{}, err
	}
	q.key, _ = late.String(c, "key")
	if q.key != "" && q.clear {
		return journalQuery{}, errors.New("--key and --clear are mutually exclusive")
	}

	side, hasSide := late.String(c, "side")
	round, hasRound := late.String(c, "round")
	switch {
	case hasSide && side != string(journal.SideInitiator) && side != string(journal.SideListener):
		return journalQuery{}, fmt.Errorf("--side must be %s or %s, got %q", journal.SideInitiator, journal.SideListener, side)
	case hasRound && !hasSide:
		return journalQuery{}, errors.New("--round requires --side")
	case hasRound:
		n, err := strconv.ParseUint(round, 10, 32)
		if err != nil {
			return journalQuery{}, fmt.Errorf("'%s' is an invalid round number - %w", round, err)
		}
		q.prefix = journal.RoundPrefix(journal.Side(side), uint32(n))
	case hasSide:
		q.prefix = side + ":"
	}

	return q, nil
}

// entryView is the printed form of a journal entry.
type entryView struct {
	Key            string  `yaml:"key"`
	Side           string  `yaml:"side"`
	Round          uint32  `yaml:"round"`
	Seq            int     `yaml:"seq"`
	Peer           string  `yaml:"peer"`
	Name           string  `yaml:"name"`
	Size           uint64  `yaml:"size"`
	Status         string  `yaml:"status"`
	ElapsedMs      float64 `yaml:"elapsed_ms"`
	BytesPerSecond float64 `yaml:"bytes_per_sec"`
	RecordedAt     string  `yaml:"recorded_at"`
}

func newEntryView(e journal.Entry) entryView {
	return entryView{
		Key:            e.Key(),
		Side:           string(e.Side),
		Round:          e.Round,
		Seq:            e.Seq,
		Peer:           e.Peer,
		Name:           e.Name,
		Size:           e.Size,
		Status:         e.Status.String(),
		ElapsedMs:      e.ElapsedMs,
		BytesPerSecond: e.BytesPerSecond,
		RecordedAt:     e.RecordedAt.Format(time.RFC3339),
	}
}

func journalAction(c *cli.Context) error {
	q, err := parseJournalArgs(c)
	if err != nil {
		return inputError(err)
	}

	rt, err := setup(c, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if rt.config.Journal.Backend != config.JournalRedis {
		return inputError(fmt.Errorf("the %s journal lives inside the server process; set journal.backend to redis", rt.config.Journal.Backend))
	}

	out := c.App.Writer
	switch {
	case q.key != "":
		e, found, err := rt.journal.Get(c.Context, q.key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("no journal entry %q", q.key)
		}
		return writeYAML(out, []entryView{newEntryView(e)})

	case q.clear && q.prefix == "":
		if err := rt.journal.Clear(c.Context); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "journal cleared")
		return err

	case q.clear:
		n, err := rt.journal.DeleteByPrefix(c.Context, q.prefix)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "deleted %d entries\n", n)
		return err
	}

	entries, err := rt.journal.List(c.Context, q.prefix)
	if err != nil {
		return err
	}

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e))
	}
	return writeYAML(out, views)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode entries: %w", err)
	}

	return enc.Close()
}

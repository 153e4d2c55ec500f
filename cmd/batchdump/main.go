// Command batchdump prints the sensor records inside archived telemetry
// batches, one JSON object per item.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bobobo1618/ninesleep/internal/archive"
	"github.com/bobobo1618/ninesleep/internal/codec"
	"github.com/bobobo1618/ninesleep/internal/config"
	"github.com/bobobo1618/ninesleep/internal/db"
	"github.com/bobobo1618/ninesleep/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	dir      string
	sqlite   string
	ids      []string
	envelope bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var opts options

	flagSet := pflag.NewFlagSet("batchdump", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.dir, "dir", "", "archive directory written by the file backend")
	flagSet.StringVar(&opts.sqlite, "sqlite", "", "archive database written by the sqlite backend")
	flagSet.StringSliceVar(&opts.ids, "id", nil, "batch key to dump, as 8 hex digits (repeatable)")
	flagSet.BoolVar(&opts.envelope, "envelope", false, "print the envelope in CBOR diagnostic notation instead of decoding items")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}

	ctx := context.Background()
	out := json.NewEncoder(stdout)

	files := flagSet.Args()
	switch {
	case len(files) > 0:
		if opts.dir != "" || opts.sqlite != "" || len(opts.ids) > 0 {
			return errors.New("file arguments cannot be combined with --dir, --sqlite or --id")
		}
		for _, path := range files {
			raw, err := archive.ReadFile(path)
			if err != nil {
				return err
			}
			if err := dump(out, stdout, filepath.Base(path), raw, opts.envelope); err != nil {
				return err
			}
		}
		return nil

	case opts.dir != "" && opts.sqlite != "":
		return errors.New("--dir and --sqlite are mutually exclusive")

	case opts.dir != "" && len(opts.ids) == 0:
		paths, err := archivedFiles(opts.dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			raw, err := archive.ReadFile(path)
			if err != nil {
				return err
			}
			if err := dump(out, stdout, filepath.Base(path), raw, opts.envelope); err != nil {
				return err
			}
		}
		return nil

	case opts.dir != "" || opts.sqlite != "":
		if len(opts.ids) == 0 {
			return errors.New("--sqlite needs at least one --id")
		}
		store, err := openStore(ctx, opts)
		if err != nil {
			return err
		}
		defer store.Close()
		for _, key := range opts.ids {
			id, err := archive.ParseKey(key)
			if err != nil {
				return err
			}
			raw, err := store.Get(ctx, id)
			if err != nil {
				return err
			}
			if err := dump(out, stdout, archive.Key(id), raw, opts.envelope); err != nil {
				return err
			}
		}
		return nil

	default:
		printHelp(stderr, flagSet)
		return errors.New("nothing to dump")
	}
}

func openStore(ctx context.Context, opts options) (archive.Store, error) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.dir != "" {
		return archive.NewFileStore(opts.dir, archive.CompressionNone, quiet)
	}
	if _, err := os.Stat(opts.sqlite); err != nil {
		return nil, err
	}
	conn, err := db.Open(ctx, config.Config{SQLitePath: opts.sqlite, DBMaxOpenConns: 1}, quiet)
	if err != nil {
		return nil, err
	}
	return archive.NewSQLiteStore(conn, archive.CompressionNone), nil
}

// archivedFiles lists the batch files in dir in key order, skipping
// temporary files from interrupted writes.
func archivedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		key, _, _ := strings.Cut(e.Name(), ".")
		if _, err := archive.ParseKey(key); err != nil {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

type itemLine struct {
	Batch      string `json:"batch"`
	Seq        uint64 `json:"seq"`
	Type       string `json:"type,omitempty"`
	Record     any    `json:"record,omitempty"`
	Error      string `json:"error,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func dump(out *json.Encoder, w io.Writer, name string, raw []byte, envelope bool) error {
	if envelope {
		diag, err := codec.Diagnose(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		_, err = fmt.Fprintf(w, "%s: %s\n", name, diag)
		return err
	}

	var env telemetry.Envelope
	if err := codec.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: envelope: %w", name, err)
	}
	if env.Part != telemetry.PartBatch {
		return fmt.Errorf("%s: not a batch envelope (part %q)", name, env.Part)
	}

	outcomes, decodeErr := telemetry.DecodeItems(env.Stream)
	for _, o := range outcomes {
		line := itemLine{Batch: name, Seq: o.Seq}
		if o.Err != nil {
			line.Error = o.Err.Error()
			line.Diagnostic = o.Diagnostic()
		} else {
			line.Type = o.Record.Type()
			line.Record = o.Record
		}
		if err := out.Encode(line); err != nil {
			return err
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("%s: %w", name, decodeErr)
	}
	return nil
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `batchdump prints the records inside archived telemetry batches.

Usage:
  batchdump [flags] [file...]

Examples:
  # Every batch in the file archive
  batchdump --dir batches

  # One batch from the sqlite archive
  batchdump --sqlite batches/archive.db --id 0000002a

  # A single archived file, as CBOR diagnostic notation
  batchdump --envelope batches/0000002a.zst

Flags:
`)
	flagSet.PrintDefaults()
}

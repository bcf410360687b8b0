package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/NoahNelson/Pipes/internal/config"
	"github.com/NoahNelson/Pipes/pkg/logger"
	"github.com/NoahNelson/Pipes/pkg/pipes"
)

var errUsage = errors.New("usage")

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
)

// app holds the parsed global flags and output streams of one invocation.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	settings config.Settings
	log      *logger.Logger
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, log: logger.GetLogger()}

	rest, err := a.parseGlobal(args)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		a.printUsage()
		return 1
	}
	if len(rest) == 0 {
		a.printUsage()
		return 1
	}

	command, cmdArgs := rest[0], rest[1:]
	a.log.Debugf("Executing command: %s", command)

	switch command {
	case "match":
		err = a.handleMatch(cmdArgs)
	case "ingest":
		err = a.handleIngest(cmdArgs)
	case "list":
		err = a.handleList(cmdArgs)
	case "delete":
		err = a.handleDelete(cmdArgs)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		a.printUsage()
		return 1
	}

	if errors.Is(err, errUsage) {
		a.printUsage()
		return 1
	}
	if err != nil {
		failColor.Fprintf(stderr, "❌ %v\n", err)
		a.log.Errorf("%s failed: %v", command, err)
		return 1
	}
	return 0
}

// parseGlobal resolves settings as defaults < config file < environment <
// flags and returns the remaining arguments.
func (a *app) parseGlobal(args []string) ([]string, error) {
	fs := flag.NewFlagSet("pipes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	def := config.Default()
	configPath := fs.String("config", "", "Settings file (.toml or .json)")
	corpus := fs.String("corpus", def.Corpus, "Corpus locator: SQLite path, postgres:// or mongodb:// URL")
	binSize := fs.Int64("bin", def.BinSize, "Offset bin size")
	threshold := fs.Int("threshold", def.Threshold, "Minimum count a corpus match must exceed")
	delim := fs.String("delim", string(def.Delimiter), `Fingerprint field delimiter ("," or "tab")`)
	workers := fs.Int("workers", def.Workers, "Concurrent lookups per match")
	timeout := fs.Duration("timeout", def.Timeout, "Limit for one operation (0 for none)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	s, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "corpus":
			s.Corpus = *corpus
		case "bin":
			s.BinSize = *binSize
		case "threshold":
			s.Threshold = *threshold
		case "workers":
			s.Workers = *workers
		case "timeout":
			s.Timeout = *timeout
		case "delim":
			d, err := config.ParseDelimiter(*delim)
			if err != nil {
				flagErr = err
				return
			}
			s.Delimiter = d
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	a.settings = s
	return fs.Args(), nil
}

func (a *app) newService(opts ...pipes.Option) (pipes.Service, error) {
	opts = append([]pipes.Option{pipes.WithSettings(a.settings), pipes.WithLogger(a.log)}, opts...)
	return pipes.NewService(opts...)
}

// handleMatch scores a snippet against a master fingerprint file, or against
// a corpus when the second argument is a corpus locator.
func (a *app) handleMatch(args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(a.stderr, "Usage: pipes match <snippet> <master-file | corpus-locator>")
		return errUsage
	}
	snippet, target := args[0], args[1]

	if !pipes.IsCorpus(target) {
		svc, err := a.newService()
		if err != nil {
			return err
		}
		defer svc.Close()

		res, err := svc.MatchFiles(context.Background(), snippet, target)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "%s\t%s\t%d\n", res.Master, res.Snippet, res.Score)
		return nil
	}

	svc, err := a.newService(pipes.WithCorpus(target))
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.MatchCorpus(context.Background(), snippet)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CandidateId:\tMatches:\tOffset:\tName:")
	for _, c := range res.Scores {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", c.ID, c.Count, c.Offset, c.Name)
	}
	tw.Flush()

	if !res.Matched {
		fmt.Fprintf(a.stdout, "no match (threshold %d)\n", res.Threshold)
		return nil
	}
	okColor.Fprintf(a.stdout, "✅ best match: %d", res.Best.ID)
	if res.Best.Name != "" {
		fmt.Fprintf(a.stdout, " (%s)", res.Best.Name)
	}
	fmt.Fprintf(a.stdout, " with %s aligned hashes at offset %d\n", humanize.Comma(int64(res.Best.Count)), res.Best.Offset)
	return nil
}

func (a *app) handleIngest(args []string) error {
	// The fingerprint file may come before or after the flags.
	var path string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		path, args = args[0], args[1:]
	}

	ingestCmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestCmd.SetOutput(a.stderr)
	name := ingestCmd.String("name", "", "Recording name (default: file name without extension)")
	corpus := ingestCmd.String("corpus", a.settings.Corpus, "Corpus locator")
	if err := ingestCmd.Parse(args); err != nil {
		return errUsage
	}
	if path == "" {
		path = ingestCmd.Arg(0)
	}
	if path == "" {
		fmt.Fprintln(a.stderr, "Usage: pipes ingest <fingerprint-file> [-name <name>] [-corpus <locator>]")
		return errUsage
	}
	if !pipes.IsCorpus(*corpus) {
		return fmt.Errorf("%q is not a corpus locator", *corpus)
	}

	svc, err := a.newService(pipes.WithCorpus(*corpus))
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Ingest(context.Background(), path, *name)
	if err != nil {
		return err
	}

	okColor.Fprintln(a.stdout, "✅ Ingested recording")
	fmt.Fprintf(a.stdout, "   ID:           %d\n", res.RecordingID)
	fmt.Fprintf(a.stdout, "   Name:         %s\n", res.Name)
	fmt.Fprintf(a.stdout, "   Fingerprints: %s\n", humanize.Comma(int64(res.Fingerprints)))
	return nil
}

func (a *app) handleList(args []string) error {
	if len(args) != 0 {
		fmt.Fprintln(a.stderr, "Usage: pipes list")
		return errUsage
	}

	svc, err := a.newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	recs, err := svc.ListRecordings(context.Background())
	if err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Fprintln(a.stdout, "📭 No recordings in corpus")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFINGERPRINTS\tADDED")
	for _, r := range recs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.Name, humanize.Comma(int64(r.Fingerprints)), humanize.RelTime(r.CreatedAt, time.Now(), "ago", "from now"))
	}
	return tw.Flush()
}

func (a *app) handleDelete(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "Usage: pipes delete <recording_id>")
		return errUsage
	}

	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid recording ID: %w", err)
	}

	svc, err := a.newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.DeleteRecording(context.Background(), id); err != nil {
		return err
	}

	okColor.Fprintf(a.stdout, "✅ Deleted recording %d\n", id)
	return nil
}

func (a *app) printUsage() {
	w := a.stderr
	fmt.Fprintln(w, "Pipes - fingerprint snippet matcher")
	fmt.Fprintln(w, "\nGlobal Options:")
	fmt.Fprintln(w, "  -config <file>     Settings file, .toml or .json")
	fmt.Fprintln(w, "  -corpus <locator>  SQLite path, postgres:// or mongodb:// URL (env: PIPES_CORPUS, default: pipes.sqlite)")
	fmt.Fprintln(w, "  -bin <n>           Offset bin size (default: 5)")
	fmt.Fprintln(w, "  -threshold <n>     Count a corpus match must exceed (default: 100)")
	fmt.Fprintln(w, "  -delim <d>         Field delimiter, \",\" or \"tab\" (default: \",\")")
	fmt.Fprintln(w, "  -workers <n>       Concurrent lookups per match (default: 1)")
	fmt.Fprintln(w, "  -timeout <d>       Limit for one operation, e.g. 30s")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  pipes [global-options] match <snippet> <master-file>")
	fmt.Fprintln(w, "  pipes [global-options] match <snippet> <corpus-locator>")
	fmt.Fprintln(w, "  pipes [global-options] ingest <fingerprint-file> [-name <name>] [-corpus <locator>]")
	fmt.Fprintln(w, "  pipes [global-options] list")
	fmt.Fprintln(w, "  pipes [global-options] delete <recording_id>")
	fmt.Fprintln(w, "\nExamples:")
	fmt.Fprintln(w, "  pipes match snippet.csv master.csv")
	fmt.Fprintln(w, "  pipes -corpus corpus.sqlite ingest master.csv -name \"Master take\"")
	fmt.Fprintln(w, "  pipes -threshold 50 match snippet.csv postgres://localhost/pipes")
}

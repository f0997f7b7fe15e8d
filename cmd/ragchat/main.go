// Command ragchat ingests documents into a local knowledge base and answers
// questions about them, remembering the conversation per session.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/0xcro3dile/ragchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat-go/internal/domain/entities"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/config"
	"github.com/0xcro3dile/ragchat-go/internal/infrastructure/logging"
)

const usage = `Usage: ragchat [flags] <command> [args]

Commands:
  init                        write a config file with the defaults
  ingest <file|dir|glob>...   add documents to the knowledge base
  watch <dir>                 ingest documents as they appear or change
  ask <question>              answer one question in the session
  chat                        interactive question loop (empty line or "exit" quits)
  history [-limit N]          print the session's conversation
  clear                       forget the session's conversation
  stats                       print knowledge base statistics

Flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ragchat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", "config.yaml", "path to YAML config file (defaults apply if missing)")
	envFile := fs.String("env", ".env", "dotenv file with API keys (ignored if missing)")
	session := fs.String("session", "", "session ID (overrides config session_id)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(stderr, "ragchat: %v\n", err)
		return 1
	}
	if fs.Arg(0) == "init" {
		if err := cmdInit(*cfgPath, stdout); err != nil {
			fmt.Fprintf(stderr, "ragchat: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "ragchat: %v\n", err)
		return 1
	}
	if *session != "" {
		cfg.SessionID = *session
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "ragchat: %v\n", err)
		return 1
	}

	a := newApp(cfg, log)
	defer a.Close()
	a.serveMetrics(ctx)

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "ingest":
		err = a.cmdIngest(ctx, cmdArgs, stdout)
	case "watch":
		err = a.cmdWatch(ctx, cmdArgs)
	case "ask":
		err = a.cmdAsk(ctx, cmdArgs, stdout)
	case "chat":
		err = a.cmdChat(ctx, stdin, stdout)
	case "history":
		err = a.cmdHistory(cmdArgs, stdout, stderr)
	case "clear":
		err = a.cmdClear(stdout)
	case "stats":
		err = a.cmdStats(ctx, stdout)
	default:
		fmt.Fprintf(stderr, "ragchat: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "ragchat %s: %v\n", cmd, err)
			return 2
		}
		log.WithError(err).Error(cmd + " failed")
		return 1
	}
	return 0
}

var errUsage = errors.New("invalid arguments")

func (a *app) cmdIngest(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: need at least one file, directory or glob", errUsage)
	}
	paths, err := a.loader.Expand(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no loadable files match %s", strings.Join(args, " "))
	}

	sync, err := a.syncUseCase()
	if err != nil {
		return err
	}
	reports, err := sync.IngestFiles(ctx, paths)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: [error] %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", r.Path, r.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(reports))
	}
	return nil
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: need exactly one directory", errUsage)
	}
	sync, err := a.syncUseCase()
	if err != nil {
		return err
	}
	w, err := a.watcher()
	if err != nil {
		return err
	}
	defer w.Stop()

	err = sync.Watch(ctx, w, args[0])
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) cmdAsk(ctx context.Context, args []string, stdout io.Writer) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("%w: need a question", errUsage)
	}
	svc, err := a.ragService(a.cfg.SessionID)
	if err != nil {
		return err
	}
	answer, err := svc.AskWithHistory(ctx, question)
	fmt.Fprintln(stdout, answer)
	return err
}

func (a *app) cmdChat(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	svc, err := a.ragService(a.cfg.SessionID)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "exit" || line == "quit" {
			return nil
		}

		// Failures are logged by the service; the loop keeps going with the fallback text.
		answer, _ := svc.AskWithHistory(ctx, line)
		fmt.Fprintln(stdout, answer)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) cmdHistory(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	limit := fs.Int("limit", 0, "number of most recent messages (0 = all)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	store, err := a.historyStore()
	if err != nil {
		return err
	}
	if err := store.Restore(a.cfg.SessionID); err != nil {
		if !entities.IsKind(err, entities.KindDeserialization) {
			return err
		}
		a.log.WithError(err).Warn("ignoring unreadable conversation history")
	}
	msgs := store.History(a.cfg.SessionID, *limit)
	if len(msgs) == 0 {
		fmt.Fprintln(stdout, entities.NoHistory)
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(stdout, "[%s] %s: %s\n", m.Timestamp.Format(entities.CreateTimeLayout), m.Role, m.Content)
	}
	return nil
}

// cmdInit writes the default configuration to path unless a file is already there.
func cmdInit(path string, stdout io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.Save(path, config.Default()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func (a *app) cmdClear(stdout io.Writer) error {
	store, err := a.historyStore()
	if err != nil {
		return err
	}
	if err := store.Clear(a.cfg.SessionID); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "cleared session %s\n", a.cfg.SessionID)
	return nil
}

func (a *app) cmdStats(ctx context.Context, stdout io.Writer) error {
	fingerprints, err := a.ledger.Count(ctx)
	if err != nil {
		return err
	}
	// Counting needs no embedder, so stats works without model credentials.
	idx, err := vectordb.NewSQLiteIndex(a.cfg.VectorStore.Dir, a.cfg.VectorStore.Collection, nil)
	if err != nil {
		return err
	}
	defer idx.Close()
	chunks, err := idx.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "documents: %d\nchunks: %d\ncollection: %s\nledger: %s\n",
		fingerprints, chunks, a.cfg.VectorStore.Collection, a.ledger.Path())
	return nil
}

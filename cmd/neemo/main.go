// Command neemo is the interactive front end of the neemo document store.
//
// It translates line-oriented commands (INSERT, GET, DELETE, QUERY, RANGE,
// SEARCH, AGGREGATE, LIST, EXPORT, IMPORT, BACKUP, RESTORE, USE, STATS)
// into calls on the core database; all consistency logic lives there.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/neemodb/neemo"
)

var commands = []string{
	"INSERT", "GET", "DELETE", "QUERY", "RANGE", "SEARCH", "AGGREGATE",
	"LIST", "STATS", "EXPORT", "IMPORT", "BACKUP", "RESTORE", "USE",
	"HELP", "EXIT", "QUIT",
}

func main() {
	var (
		configPath string
		dbPath     string
		logLevel   string
		logFormat  string
	)
	pflag.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	pflag.StringVar(&dbPath, "db", "", "database directory (overrides config)")
	pflag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pflag.StringVar(&logFormat, "log-format", "", "log format: text or json")
	pflag.Parse()

	cfg, err := neemo.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	setupLogging(cfg.Logging)

	db, err := neemo.Open(cfg.Database.Path, neemo.Options{})
	if err != nil {
		// Failure to open either sub-store is fatal to the process.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	sess := &session{db: db, cfg: cfg}
	if err := sess.run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		sess.close()
		os.Exit(1)
	}
	sess.close()
}

func setupLogging(cfg neemo.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// session holds the single current database handle. USE swaps it: the old
// handle is closed before the new one goes live, so two databases are
// never open side by side.
type session struct {
	db    *neemo.DB
	cfg   *neemo.Config
	liner *liner.State
}

func (s *session) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("closing database", "err", err)
		}
		s.db = nil
	}
}

func (s *session) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(func(line string) []string {
		var out []string
		upper := strings.ToUpper(line)
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, upper) {
				out = append(out, cmd+" ")
			}
		}
		return out
	})

	if s.cfg.CLI.HistoryFile != "" {
		if f, err := os.Open(s.cfg.CLI.HistoryFile); err == nil {
			s.liner.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Printf("neemo - document store (%s)\n", s.db.Dir())
	fmt.Println("Type HELP for available commands.")

	for {
		line, err := s.liner.Prompt(s.cfg.CLI.Prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])
		args := parts[1:]

		if cmd == "EXIT" || cmd == "QUIT" {
			break
		}
		s.dispatch(cmd, args)
	}

	s.saveHistory()
	return nil
}

func (s *session) saveHistory() {
	if s.cfg.CLI.HistoryFile == "" {
		return
	}
	f, err := os.Create(s.cfg.CLI.HistoryFile)
	if err != nil {
		slog.Warn("cannot save history", "err", err)
		return
	}
	defer f.Close()
	s.liner.WriteHistory(f)
}

func (s *session) dispatch(cmd string, args []string) {
	switch cmd {
	case "HELP", "?":
		printHelp()
	case "INSERT":
		s.cmdInsert(args)
	case "GET":
		s.cmdGet(args)
	case "DELETE":
		s.cmdDelete(args)
	case "QUERY":
		s.cmdQuery(args)
	case "RANGE":
		s.cmdRange(args)
	case "SEARCH":
		s.cmdSearch(args)
	case "AGGREGATE":
		s.cmdAggregate(args)
	case "LIST":
		s.cmdList()
	case "STATS":
		s.cmdStats()
	case "EXPORT":
		s.cmdBulk(args, "EXPORT", s.db.Export)
	case "IMPORT":
		s.cmdBulk(args, "IMPORT", s.db.Import)
	case "BACKUP":
		s.cmdBulk(args, "BACKUP", s.db.Backup)
	case "RESTORE":
		s.cmdBulk(args, "RESTORE", s.db.Restore)
	case "USE":
		s.cmdUse(args)
	default:
		fmt.Printf("Unknown command %s (type HELP for commands)\n", cmd)
	}
}

func printHelp() {
	fmt.Print(`Commands:
  INSERT <key>                 insert or replace a document (fields prompted)
  GET <key>                    print one document
  DELETE <key>                 delete a document
  QUERY <field> <value>        documents with field equal to value
  RANGE <field> <start> <end>  documents with field in [start, end)
  SEARCH <substring>           documents with a string field containing substring
  AGGREGATE <field> <op>       sum, count or avg over numeric field values
  LIST                         all document keys
  STATS                        document and index entry counts
  EXPORT <path>                write all documents as JSON lines
  IMPORT <path>                insert documents from an export file
  BACKUP <path>                write a compressed archive of the whole store
  RESTORE <path>               replace the store from a backup archive
  USE <dir>                    switch to another database directory
  EXIT / QUIT                  end the session
Values are parsed as JSON; anything that is not valid JSON is a string.
`)
}

// parseValue interprets a command argument as a JSON value, falling back
// to a plain string (so QUERY name Alice works without quoting).
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}

func (s *session) cmdInsert(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: INSERT <key>")
		return
	}
	key := args[0]

	fields := make(map[string]any)
	fmt.Println("Enter fields as field=value, empty line to finish:")
	for {
		line, err := s.liner.Prompt("  field> ")
		if err != nil || strings.TrimSpace(line) == "" {
			break
		}
		field, value, ok := strings.Cut(line, "=")
		if !ok {
			fmt.Println("expected field=value")
			continue
		}
		fields[strings.TrimSpace(field)] = parseValue(strings.TrimSpace(value))
	}

	if err := s.db.Insert(key, fields); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("Document %q inserted.\n", key)
}

func (s *session) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: GET <key>")
		return
	}
	doc, err := s.db.Get(args[0])
	if err != nil {
		if neemo.IsNotFound(err) {
			fmt.Printf("Key %q not found.\n", args[0])
		} else {
			fmt.Println("error:", err)
		}
		return
	}
	printDocument(args[0], doc)
}

func (s *session) cmdDelete(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: DELETE <key>")
		return
	}
	prev, err := s.db.Delete(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if prev == nil {
		fmt.Printf("Key %q not found.\n", args[0])
		return
	}
	fmt.Printf("Document %q deleted.\n", args[0])
}

func (s *session) cmdQuery(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: QUERY <field> <value>")
		return
	}
	results, err := s.db.QueryEqual(args[0], parseValue(args[1]))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printResults(results)
}

func (s *session) cmdRange(args []string) {
	if len(args) != 3 {
		fmt.Println("usage: RANGE <field> <start> <end>")
		return
	}
	results, err := s.db.QueryRange(args[0], parseValue(args[1]), parseValue(args[2]))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printResults(results)
}

func (s *session) cmdSearch(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: SEARCH <substring>")
		return
	}
	results, err := s.db.SearchText(strings.Join(args, " "))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printResults(results)
}

func (s *session) cmdAggregate(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: AGGREGATE <field> <sum|count|avg>")
		return
	}
	op, err := neemo.ParseAggOp(args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	value, ok, err := s.db.Aggregate(args[0], op)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if !ok {
		fmt.Println("undefined (no matching documents)")
		return
	}
	fmt.Printf("%s(%s) = %g\n", op, args[0], value)
}

func (s *session) cmdList() {
	keys, err := s.db.Keys()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(keys) == 0 {
		fmt.Println("The database is empty.")
		return
	}
	for _, key := range keys {
		fmt.Println("-", key)
	}
}

func (s *session) cmdStats() {
	stats, err := s.db.Stats()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("documents: %d\nindex entries: %d\ndata bytes: %d\nindex bytes: %d\n",
		stats.Documents, stats.IndexEntries, stats.DataBytes, stats.IndexBytes)
	if s.db.NeedsReconcile() {
		fmt.Println("warning: index drift possible, reconciliation recommended")
	}
}

// cmdBulk starts an asynchronous bulk operation and waits on its handle,
// so the outcome is always observed before the next command runs.
func (s *session) cmdBulk(args []string, name string, start func(string) *neemo.Task) {
	if len(args) != 1 {
		fmt.Printf("usage: %s <path>\n", name)
		return
	}
	task := start(args[0])
	if err := task.Wait(); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("%s finished: %d documents.\n", name, task.Documents())
}

func (s *session) cmdUse(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: USE <dir>")
		return
	}
	db, err := neemo.Open(args[0], neemo.Options{})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	// Swap only after the new database opened; the old handle is retired,
	// never left live alongside the new one.
	s.close()
	s.db = db
	fmt.Printf("Using %s.\n", args[0])
}

func printResults(results []neemo.Result) {
	if len(results) == 0 {
		fmt.Println("No documents found.")
		return
	}
	for _, r := range results {
		printDocument(r.Key, r.Doc)
	}
}

func printDocument(key string, doc neemo.Document) {
	fields := doc.Fields()

	var b strings.Builder
	fmt.Fprintf(&b, "%s: {", key)
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		data, err := json.Marshal(doc[f])
		if err != nil {
			data = []byte(fmt.Sprintf("%v", doc[f]))
		}
		fmt.Fprintf(&b, "%s=%s", f, data)
	}
	b.WriteString("}")
	fmt.Println(b.String())
}

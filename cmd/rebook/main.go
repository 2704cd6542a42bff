package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aduong/rebook/internal/config"
	"github.com/aduong/rebook/internal/ingest"
	"github.com/aduong/rebook/internal/library"
	"github.com/aduong/rebook/internal/logging"
	"github.com/aduong/rebook/internal/reader"
	"github.com/aduong/rebook/internal/search"
	"github.com/aduong/rebook/internal/settings"
	"github.com/aduong/rebook/internal/storage"
	"github.com/aduong/rebook/internal/web"
)

var cfg config.Config

func main() {
	// Parse global flags
	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	dataDirFlag := globalFlags.String("data-dir", "", "Directory for database and index files (default: ./data)")
	configFlag := globalFlags.String("config", "", "YAML config file (default: ./rebook.yaml if present)")

	// Check if we have any arguments
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Find where the command starts (skip global flags)
	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}

	// Parse global flags if any exist before the command
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	var err error
	cfg, err = config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	logging.New(cfg.LogLevel, cfg.LogFormat)

	command := os.Args[commandIdx]
	args := os.Args[commandIdx+1:]

	switch command {
	case "import":
		if len(args) < 1 {
			usageError("at least one file required", "import <file.epub>...")
		}
		runImport(args)
	case "import-dir":
		if len(args) < 1 {
			usageError("directory required", "import-dir <dir>")
		}
		runImportDir(args[0])
	case "list":
		listFlags := flag.NewFlagSet("list", flag.ExitOnError)
		sortFlag := listFlags.String("sort", string(library.SortLastRead), "Sort order: lastReadAt, addedAt or title")
		listFlags.Parse(args)
		runList(*sortFlag)
	case "delete":
		if len(args) < 1 {
			usageError("document ID required", "delete <document-id>")
		}
		runDelete(args[0])
	case "bookmarks":
		if len(args) < 1 {
			usageError("document ID required", "bookmarks <document-id>")
		}
		runBookmarks(args[0])
	case "search":
		if len(args) < 1 {
			usageError("search query required", "search <query>")
		}
		runSearch(strings.Join(args, " "))
	case "reindex":
		runReindex()
	case "stats":
		runStats()
	case "export":
		if len(args) < 2 {
			usageError("document ID and output path required", "export <document-id> <out.epub>")
		}
		runExport(args[0], args[1])
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveFlags.String("port", cfg.Port, "Port to listen on")
		host := serveFlags.String("host", cfg.Host, "Host to bind to")
		serveFlags.Parse(args)
		cfg.Host, cfg.Port = *host, *port
		runServe()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("rebook - Local EPUB library and reader")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  rebook [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --data-dir=<dir>   Directory for database and index files (default: ./data)")
	fmt.Println("  --config=<file>    YAML config file (default: ./rebook.yaml if present)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  import <file>...         Import EPUB files")
	fmt.Println("  import-dir <dir>         Import every EPUB under a directory")
	fmt.Println("  list [-sort=<order>]     List the library (lastReadAt, addedAt, title)")
	fmt.Println("  delete <id>              Delete a book and its bookmarks")
	fmt.Println("  bookmarks <id>           List a book's bookmarks")
	fmt.Println("  search <query>           Search titles and authors")
	fmt.Println("  reindex                  Rebuild the search index")
	fmt.Println("  stats                    Show library statistics")
	fmt.Println("  export <id> <out>        Write a book's EPUB file to disk")
	fmt.Println("  serve [flags]            Start the local web server")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>      Host to bind to (default: localhost)")
	fmt.Println("  -port=<port>      Port to listen on (default: 6894)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  REBOOK_DATA_DIR, REBOOK_LOG_LEVEL, REBOOK_PORT, ... override the config file")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  rebook import ~/Downloads/dune.epub")
	fmt.Println("  rebook import-dir ~/Books")
	fmt.Println("  rebook list -sort=title")
	fmt.Println("  rebook search herbert")
	fmt.Println("  rebook --data-dir=$HOME/.rebook serve -port=3000")
}

func usageError(msg, usage string) {
	fmt.Printf("Error: %s\n", msg)
	fmt.Printf("Usage: rebook [--data-dir=<dir>] %s\n", usage)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// app holds the stores every command opens.
type app struct {
	db      *storage.DB
	docs    *storage.DocumentRepository
	marks   *storage.BookmarkRepository
	index   *search.Index
	library *library.Controller
}

func openApp() *app {
	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fatalf("Error creating data directory: %v", err)
	}

	var opts []storage.Option
	if cfg.UniqueBookmarkPositions {
		opts = append(opts, storage.WithUniqueBookmarkPositions())
	}
	db, err := storage.Open(cfg.DBPath(), opts...)
	if err != nil {
		fatalf("Error opening database: %v", err)
	}

	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		db.Close()
		fatalf("Error opening search index: %v", err)
	}

	docs := storage.NewDocumentRepository(db)
	lib := library.New(library.Config{
		Store:          docs,
		Index:          idx,
		Logger:         slog.Default(),
		MaxImportBytes: cfg.MaxImportBytes,
	})

	return &app{
		db:      db,
		docs:    docs,
		marks:   storage.NewBookmarkRepository(db),
		index:   idx,
		library: lib,
	}
}

func (a *app) Close() {
	a.index.Close()
	a.db.Close()
}

func runImport(paths []string) {
	a := openApp()
	defer a.Close()

	ctx := context.Background()
	failed := 0
	for _, path := range paths {
		meta, ok, err := a.library.ImportFile(ctx, path)
		switch {
		case err != nil:
			fmt.Printf("✗ %s: %v\n", path, err)
			failed++
		case !ok:
			fmt.Printf("- Skipped (not an EPUB): %s\n", path)
		default:
			fmt.Printf("✓ Imported: %s by %s (%s, %s)\n", meta.Title, meta.Author, meta.ID, library.FormatFileSize(meta.FileSize))
		}
	}
	if failed > 0 {
		a.Close()
		os.Exit(1)
	}
}

func runImportDir(dir string) {
	a := openApp()
	defer a.Close()

	worker := ingest.NewWorker(a.library, cfg.ImportConcurrency, slog.Default())
	stats, err := worker.ImportDir(context.Background(), dir)
	if err != nil {
		a.Close()
		fatalf("Error importing directory: %v", err)
	}

	// Print summary
	fmt.Println()
	fmt.Println("=== Import Complete ===")
	fmt.Printf("Files found:   %d\n", stats.Total)
	fmt.Printf("Imported:      %d\n", stats.Imported)
	fmt.Printf("Duplicates:    %d\n", stats.Duplicates)
	fmt.Printf("Skipped:       %d\n", stats.Skipped)
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration)
}

func runList(sortName string) {
	order, err := library.ParseSortOrder(sortName)
	if err != nil {
		fatalf("Error: %v", err)
	}

	a := openApp()
	defer a.Close()

	if err := a.library.Load(context.Background()); err != nil {
		a.Close()
		fatalf("Error loading library: %v", err)
	}
	_ = a.library.SetSortOrder(order)

	books := a.library.Books()
	if len(books) == 0 {
		fmt.Println("Library is empty")
		return
	}

	fmt.Printf("%d books (sorted by %s):\n\n", len(books), order)
	for i, b := range books {
		fmt.Printf("%d. %s\n", i+1, b.Title)
		fmt.Printf("   Author:    %s\n", b.Author)
		fmt.Printf("   ID:        %s\n", b.ID)
		fmt.Printf("   Progress:  %d%%\n", b.Progress)
		fmt.Printf("   Size:      %s\n", library.FormatFileSize(b.FileSize))
		fmt.Printf("   Last read: %s\n", b.LastReadAt.Local().Format(time.DateTime))
		fmt.Println()
	}
}

func runDelete(id string) {
	a := openApp()
	defer a.Close()

	ctx := context.Background()
	if _, found, err := a.docs.Get(ctx, id); err != nil {
		a.Close()
		fatalf("Error retrieving document: %v", err)
	} else if !found {
		fmt.Printf("Document not found: %s\n", id)
		a.Close()
		os.Exit(1)
	}

	if err := a.library.Delete(ctx, id); err != nil {
		a.Close()
		fatalf("Error deleting document: %v", err)
	}
	fmt.Printf("✓ Deleted %s\n", id)
}

func runBookmarks(id string) {
	a := openApp()
	defer a.Close()

	marks, err := a.marks.ListByDocument(context.Background(), id)
	if err != nil {
		a.Close()
		fatalf("Error listing bookmarks: %v", err)
	}
	if len(marks) == 0 {
		fmt.Println("No bookmarks")
		return
	}

	for _, m := range marks {
		fmt.Printf("%s  %-30s  %s\n", m.CreatedAt.Local().Format(time.DateTime), m.ChapterName, m.CFI)
		if m.Excerpt != "" {
			fmt.Printf("   %q\n", m.Excerpt)
		}
	}
}

func runSearch(query string) {
	a := openApp()
	defer a.Close()

	results, err := a.library.Search(query, 10)
	if err != nil {
		a.Close()
		fatalf("Error searching: %v", err)
	}

	// Display results
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("\nFound %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Printf("%d. %s\n", i+1, result.Title)
		if result.Author != "" {
			fmt.Printf("   Author: %s\n", result.Author)
		}
		fmt.Printf("   ID: %s\n", result.ID)
		fmt.Printf("   Score: %.3f\n", result.Score)
		fmt.Println()
	}
}

func runReindex() {
	fmt.Println("Rebuilding search index...")
	fmt.Println()

	a := openApp()
	defer a.Close()

	startTime := time.Now()
	progressFn := func(current, total int) {
		percent := float64(current) / float64(total) * 100
		fmt.Printf("\rIndexing: %d/%d (%.1f%%)  ", current, total, percent)
	}

	count, err := a.library.Reindex(context.Background(), progressFn)
	if err != nil {
		a.Close()
		fatalf("\nError rebuilding index: %v", err)
	}

	indexCount, err := a.index.Count()
	if err != nil {
		a.Close()
		fatalf("\nError getting index count: %v", err)
	}

	fmt.Println()
	fmt.Println()
	fmt.Println("=== Reindex Complete ===")
	fmt.Printf("Books in database: %d\n", count)
	fmt.Printf("Books in index:    %d\n", indexCount)
	fmt.Printf("Duration:          %v\n", time.Since(startTime))
}

func runStats() {
	a := openApp()
	defer a.Close()

	ctx := context.Background()
	docCount, err := a.docs.Count(ctx)
	if err != nil {
		a.Close()
		fatalf("Error getting database count: %v", err)
	}
	markCount, err := a.marks.Count(ctx)
	if err != nil {
		a.Close()
		fatalf("Error getting bookmark count: %v", err)
	}
	indexCount, err := a.index.Count()
	if err != nil {
		a.Close()
		fatalf("Error getting index count: %v", err)
	}

	fmt.Println("=== Library Statistics ===")
	fmt.Printf("Books in database: %d\n", docCount)
	fmt.Printf("Books in index:    %d\n", indexCount)
	fmt.Printf("Bookmarks:         %d\n", markCount)
}

func runExport(id, out string) {
	a := openApp()
	defer a.Close()

	doc, found, err := a.docs.Get(context.Background(), id)
	if err != nil {
		a.Close()
		fatalf("Error retrieving document: %v", err)
	}
	if !found {
		fmt.Printf("Document not found: %s\n", id)
		a.Close()
		os.Exit(1)
	}

	if err := os.WriteFile(out, doc.FileData, 0644); err != nil {
		a.Close()
		fatalf("Error writing %s: %v", out, err)
	}
	fmt.Printf("✓ Wrote %s (%s) to %s\n", doc.Title, library.FormatFileSize(doc.FileSize), out)
}

func runServe() {
	a := openApp()
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.library.Load(ctx); err != nil {
		a.Close()
		fatalf("Error loading library: %v", err)
	}

	prefs := settings.NewStore(storage.NewPreferenceRepository(a.db), slog.Default())
	current, err := prefs.Load(ctx)
	if err != nil {
		slog.Warn("using default reader settings", "error", err)
	}

	session := reader.New(reader.Config{
		Documents:  a.docs,
		Bookmarks:  a.marks,
		Logger:     slog.Default(),
		Debounce:   cfg.ProgressDebounce,
		Settings:   current,
		OnProgress: a.library.ProgressSaved,
	})

	server := web.NewServer(web.Config{
		Library:        a.library,
		Reader:         session,
		Settings:       prefs,
		Documents:      a.docs,
		Index:          a.index,
		Logger:         slog.Default(),
		MaxUploadBytes: cfg.MaxImportBytes,
	})

	addr := cfg.Addr()
	fmt.Println()
	fmt.Println("=== rebook ===")
	fmt.Printf("Server running at: http://%s\n", addr)
	fmt.Printf("Library: %d books\n", len(a.library.Books()))
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	serveErr := server.ListenAndServe(ctx, addr)

	// Persist any pending progress before the store closes.
	if err := session.Close(context.Background()); err != nil {
		slog.Error("flush reading progress", "error", err)
	}
	if serveErr != nil {
		a.Close()
		fatalf("Server error: %v", serveErr)
	}
}

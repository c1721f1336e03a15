// llmgatectl manages gateway API keys directly against the SQLite database.
// It is meant to run on the gateway host; there is no network admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/llmgate/llmgate/internal/apikey"
	"github.com/llmgate/llmgate/internal/store"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("llmgatectl %s\n", version)
	case "create":
		doCreate(args)
	case "list":
		doList(args)
	case "deactivate":
		doDeactivate(args)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `llmgatectl — manage llmgate API keys

Usage: llmgatectl <command> [arguments]

Commands:
  create -name <name> [-rate <per-minute>]   Create a key; prints the plaintext once
  list                                       List all keys
  deactivate <key-id>                        Deactivate a key

Environment:
  DATABASE_URL   SQLite database path (default: llmgate.db)
`)
}

func openStore() (*store.SQLiteStore, *apikey.Manager) {
	path := os.Getenv("DATABASE_URL")
	if path == "" {
		path = "llmgate.db"
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		fatal("open database: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		fatal("migrate: %v", err)
	}
	return st, apikey.NewManager(st)
}

func doCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "human-readable key name")
	rate := fs.Int("rate", 60, "rate limit in requests per minute")
	_ = fs.Parse(args)
	if *name == "" {
		fatal("create: -name is required")
	}

	st, mgr := openStore()
	defer func() { _ = st.Close() }()

	plaintext, rec, err := mgr.Generate(context.Background(), *name, *rate)
	if err != nil {
		fatal("create key: %v", err)
	}
	fmt.Printf("id:   %s\n", rec.ID)
	fmt.Printf("name: %s\n", rec.Name)
	fmt.Printf("rate: %d req/min\n", rec.RateLimitPerMinute)
	fmt.Printf("key:  %s\n", plaintext)
	fmt.Println("\nStore the key now; it cannot be recovered later.")
}

func doList(args []string) {
	st, mgr := openStore()
	defer func() { _ = st.Close() }()

	keys, err := mgr.List(context.Background())
	if err != nil {
		fatal("list keys: %v", err)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRATE/MIN\tACTIVE\tCREATED")
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n",
			k.ID, k.Name, k.RateLimitPerMinute, k.IsActive,
			k.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	_ = w.Flush()
}

func doDeactivate(args []string) {
	if len(args) != 1 {
		fatal("deactivate: expected exactly one key id")
	}
	st, mgr := openStore()
	defer func() { _ = st.Close() }()

	if err := mgr.Deactivate(context.Background(), args[0]); err != nil {
		fatal("deactivate: %v", err)
	}
	fmt.Printf("deactivated %s\n", args[0])
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

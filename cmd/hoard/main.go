// Command hoard is the CLI for the hoard cache engine.
//
// Usage:
//
//	hoard [-config path] put <key> [file]     store a file (or stdin)
//	hoard [-config path] get <key> [file]     read to a file (or stdout)
//	hoard [-config path] meta <key>           print the index entry
//	hoard [-config path] rm [-content] <key>  remove a key
//	hoard [-config path] ls                   list live entries
//	hoard [-config path] clear                remove everything
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/hoardfs/hoard/internal/logger"
	"github.com/hoardfs/hoard/pkg/cache"
	"github.com/hoardfs/hoard/pkg/config"
	"github.com/hoardfs/hoard/pkg/integrity"
	"github.com/hoardfs/hoard/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	root := flag.String("root", "", "Cache root directory (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (DEBUG, INFO, WARN, ERROR; overrides config)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *root != "" {
		cfg.Cache.Root = *root
		cfg.Content.Filesystem["path"] = *root
		cfg.Index.File["path"] = *root
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	logger.SetLevel(cfg.Logging.Level)
	if err := logger.SetOutput(cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	ctx := context.Background()
	c, err := config.CreateCache(ctx, cfg, metrics.CacheOptions()...)
	if err != nil {
		log.Fatalf("Failed to open cache: %v", err)
	}
	defer c.Close()

	if err := run(ctx, c, cfg, args[0], args[1:]); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func run(ctx context.Context, c *cache.Cache, cfg *config.Config, command string, args []string) error {
	switch command {
	case "put":
		return cmdPut(ctx, c, cfg, args)
	case "get":
		return cmdGet(ctx, c, args)
	case "meta":
		return cmdMeta(ctx, c, args)
	case "rm":
		return cmdRemove(ctx, c, args)
	case "ls":
		return cmdList(ctx, c)
	case "clear":
		return c.Clear(ctx)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdPut(ctx context.Context, c *cache.Cache, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	metaJSON := fs.String("metadata", "", "JSON metadata to attach to the entry")
	expected := fs.String("integrity", "", "Expected digest in <algorithm>-<base64> form")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: put <key> [file]")
	}
	key := fs.Arg(0)

	source := os.Stdin
	if fs.NArg() > 1 {
		f, err := os.Open(fs.Arg(1))
		if err != nil {
			return err
		}
		defer f.Close()
		source = f
	}

	opts := &cache.WriteOpts{Algorithm: integrity.Algorithm(cfg.Cache.Algorithm)}
	if *metaJSON != "" {
		if !json.Valid([]byte(*metaJSON)) {
			return fmt.Errorf("metadata is not valid JSON")
		}
		opts.Metadata = json.RawMessage(*metaJSON)
	}
	if *expected != "" {
		sri, err := integrity.Parse(*expected)
		if err != nil {
			return err
		}
		opts.Integrity = sri
	}

	w, err := c.OpenWriter(ctx, key, opts)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, source); err != nil {
		_ = w.Abort()
		return err
	}
	sri, err := w.Commit(ctx)
	if err != nil {
		return err
	}
	fmt.Println(sri)
	return nil
}

func cmdGet(ctx context.Context, c *cache.Cache, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <key> [file]")
	}
	if len(args) > 1 {
		return c.CopyFile(ctx, args[0], args[1])
	}

	r, err := c.OpenReader(ctx, args[0])
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := io.Copy(os.Stdout, r); err != nil {
		return err
	}
	return r.Verify()
}

func cmdMeta(ctx context.Context, c *cache.Cache, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: meta <key>")
	}
	entry, err := c.Metadata(ctx, args[0])
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("no entry for key %q", args[0])
	}
	out, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func cmdRemove(ctx context.Context, c *cache.Cache, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	withContent := fs.Bool("content", false, "Also delete the content blob (affects other keys sharing it)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: rm [-content] <key>")
	}
	mode := cache.RemoveIndexOnly
	if *withContent {
		mode = cache.RemoveContentAndIndex
	}
	return c.Remove(ctx, fs.Arg(0), mode)
}

func cmdList(ctx context.Context, c *cache.Cache) error {
	for entry, err := range c.List(ctx) {
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%d\t%s\n",
			entry.Key, entry.Integrity, entry.Size,
			time.UnixMilli(entry.Time).UTC().Format(time.RFC3339))
	}
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `hoard - content-addressable disk cache

Usage:
  hoard [flags] put [-metadata json] [-integrity sri] <key> [file]
  hoard [flags] get <key> [file]
  hoard [flags] meta <key>
  hoard [flags] rm [-content] <key>
  hoard [flags] ls
  hoard [flags] clear

Flags:
`)
	flag.PrintDefaults()
}

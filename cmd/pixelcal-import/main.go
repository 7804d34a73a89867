// Command pixelcal-import loads CSV hit dumps into a SQLite hit store, and
// manages the store's schema with the migrate subcommand:
//
//	pixelcal-import -db hits.db scan_a.csv scan_b.csv
//	pixelcal-import -db hits.db migrate status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/pixelcal/internal/db"
	"github.com/banshee-data/pixelcal/internal/monitoring"
	"github.com/banshee-data/pixelcal/internal/pixel/hits"
)

var (
	dbPath    = flag.String("db", "hits.db", "Path to the hit store")
	chunkSize = flag.Int("chunk", 100000, "Rows per insert transaction")
)

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: pixelcal-import [-db hits.db] [-chunk N] file.csv... | migrate <action>")
		os.Exit(2)
	}

	if args[0] == "migrate" {
		if err := db.RunMigrateCommand(args[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	store := db.NewHitStore(database)
	for _, path := range args {
		if err := importFile(ctx, store, path, *chunkSize); err != nil {
			log.Fatalf("import %s: %v", path, err)
		}
	}
	total, err := store.Count(ctx)
	if err != nil {
		log.Fatalf("count: %v", err)
	}
	log.Printf("%s now holds %d hits", *dbPath, total)
}

// importFile streams one CSV dump into store, one transaction per chunk.
func importFile(ctx context.Context, store *db.HitStore, path string, chunk int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := hits.NewCSVSource(f, chunk)
	if err != nil {
		return err
	}
	return copyHits(ctx, store, src, path)
}

func copyHits(ctx context.Context, store *db.HitStore, src hits.Source, name string) error {
	start := time.Now()
	var n uint64
	for {
		events, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := store.Insert(ctx, events); err != nil {
			return err
		}
		n += uint64(len(events))
	}
	monitoring.Throughput("import "+name, n, "hits", time.Since(start))
	return nil
}

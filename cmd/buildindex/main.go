// Command buildindex opens or builds a B+-tree index over a relation's
// INTEGER attribute and runs a demonstration range scan against it. With no
// existing relation data to point it at, it synthesizes one with gofakeit so
// the whole open/build/insert/scan path can be exercised end to end.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/RichardKnop/btreeindex/internal/btreeindex"
	"github.com/RichardKnop/btreeindex/internal/pkg/logging"
	"github.com/RichardKnop/btreeindex/internal/relscan"
)

func main() {
	var (
		dir       = flag.String("dir", ".", "directory holding the index file")
		relation  = flag.String("relation", "widgets", "relation name the index is built over")
		offset    = flag.Int("offset", 0, "byte offset of the INTEGER attribute within a row")
		rows      = flag.Int("rows", 10000, "number of synthetic rows to bulk-load on first build")
		seed      = flag.Int64("seed", 1, "seed for synthetic row generation")
		low       = flag.Int("low", 0, "inclusive low bound of the demonstration scan")
		high      = flag.Int("high", 100, "inclusive high bound of the demonstration scan")
		logLevel  = flag.String("log-level", "info", "zap log level")
	)
	flag.Parse()

	logger, err := buildLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, logger, *dir, *relation, *offset, *rows, *seed, int32(*low), int32(*high)); err != nil {
		logger.Sugar().With("error", err).Error("buildindex failed")
		os.Exit(1)
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	logConf := logging.DefaultConfig()
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing -log-level: %w", err)
	}
	logConf.Level = zap.NewAtomicLevelAt(parsed)
	return logConf.Build()
}

func run(ctx context.Context, logger *zap.Logger, dir, relation string, offset, rows int, seed int64, low, high int32) error {
	faker := gofakeit.NewUnlocked(seed)
	var scanned []relscan.Row
	for i := 0; i < rows; i++ {
		row := make([]byte, offset+4)
		key := int32(faker.Number(0, rows*10))
		binary.NativeEndian.PutUint32(row[offset:], uint32(key))
		scanned = append(scanned, relscan.Row{
			RID: btreeindex.RID{PageID: uint32(i / 64), Slot: uint32(i % 64)},
			Row: row,
		})
	}
	scanner := relscan.NewSliceScanner(scanned)

	idx, fileName, err := btreeindex.Open(ctx, logger, dir, relation, int32(offset), btreeindex.TypeInteger, scanner)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer idx.Close(ctx)

	logger.Sugar().With("file", fileName).Info("index ready")

	if err := idx.StartScan(ctx, low, btreeindex.GTE, high, btreeindex.LTE); err != nil {
		return fmt.Errorf("starting scan [%d, %d]: %w", low, high, err)
	}
	defer idx.EndScan(ctx)

	var matched int
	for {
		rid, err := idx.Next(ctx)
		if err != nil {
			break
		}
		matched++
		logger.Sugar().With("page", rid.PageID, "slot", rid.Slot).Debug("matched row")
	}

	logger.Sugar().With("matched", matched, "low", low, "high", high).Info("scan complete")
	return nil
}


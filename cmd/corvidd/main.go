// Command corvidd is a small demo binary: it opens a page file, wires
// up the buffer pool, catalog, and transaction manager, and runs two
// scripted transactions (an insert, then a point lookup) through the
// executor pipeline end to end.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/corvidb/corvid/buffer"
	"github.com/corvidb/corvid/catalog"
	"github.com/corvidb/corvid/concurrency"
	"github.com/corvidb/corvid/config"
	"github.com/corvidb/corvid/execution"
	"github.com/corvidb/corvid/expression"
	"github.com/corvidb/corvid/index"
	"github.com/corvidb/corvid/optimizer"
	"github.com/corvidb/corvid/storage/disk"
	"github.com/corvidb/corvid/storage/table"
	"github.com/corvidb/corvid/types"
)

var (
	dataFile  = "corvid.db"
	poolSize  = 64
	replacerK = 2
	logLevel  = "info"
)

var rootCmd = &cobra.Command{
	Use:   "corvidd",
	Short: "corvidd is a demo driver for the corvid storage kernel",
	Long:  "corvidd opens a page file and runs two scripted transactions through the buffer pool, catalog, and executor pipeline.",
	RunE:  runDemo,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&dataFile, "data-file", dataFile, "`path` to the backing page file")
	fs.IntVar(&poolSize, "pool-size", poolSize, "number of frames in the buffer pool")
	fs.IntVar(&replacerK, "replacer-k", replacerK, "k used by the LRU-k replacer")
	fs.StringVar(&logLevel, "log-level", logLevel, "log level: debug, info, warn, or error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	var level zap.AtomicLevel
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("corvidd: bad log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	return cfg.Build()
}

func runDemo(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.New(
		config.WithPoolSize(poolSize),
		config.WithReplacerK(replacerK),
		config.WithDataFile(dataFile),
	)
	if err != nil {
		return fmt.Errorf("corvidd: %w", err)
	}

	file, err := os.OpenFile(cfg.DataFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("corvidd: open data file: %w", err)
	}
	defer file.Close()

	dm, err := disk.NewManager(file)
	if err != nil {
		return fmt.Errorf("corvidd: disk manager: %w", err)
	}
	sched := disk.NewScheduler(dm)
	defer sched.Close()

	pool := buffer.NewPoolManager(cfg.PoolSize, cfg.ReplacerK, sched, log)

	cat := catalog.New()
	schema := types.NewSchema(
		types.Column{Name: "id", Kind: types.Integer},
		types.Column{Name: "name", Kind: types.Varchar},
	)
	heap, err := table.NewHeap(pool)
	if err != nil {
		return fmt.Errorf("corvidd: new heap: %w", err)
	}
	tableInfo, err := cat.CreateTable("birds", schema, heap)
	if err != nil {
		return fmt.Errorf("corvidd: create table: %w", err)
	}

	tree, err := index.NewBPlusTree("birds_id_idx", pool)
	if err != nil {
		return fmt.Errorf("corvidd: new index: %w", err)
	}
	if _, err := cat.CreateIndex("birds_id_idx", "birds", []int{0}, tree); err != nil {
		return fmt.Errorf("corvidd: create index: %w", err)
	}

	tm := concurrency.NewTransactionManager(log)

	seedRows := []types.Row{
		{Values: []types.Value{types.NewInteger(1), types.NewVarchar("corvid")}},
		{Values: []types.Value{types.NewInteger(2), types.NewVarchar("magpie")}},
		{Values: []types.Value{types.NewInteger(3), types.NewVarchar("jay")}},
	}

	insertTxn := tm.Begin(concurrency.SnapshotIsolation)
	insertCtx := &execution.ExecutorContext{Txn: insertTxn, TxnManager: tm, Catalog: cat}
	insertPlan := &execution.InsertPlan{
		Table: tableInfo,
		Input: &execution.ValuesPlan{Schema: schema, Rows: seedRows},
	}
	if err := runPlan(insertCtx, insertPlan, log, "insert"); err != nil {
		return err
	}
	if _, err := tm.Commit(insertTxn, cat.Resolver()); err != nil {
		return fmt.Errorf("corvidd: commit insert: %w", err)
	}

	queryTxn := tm.Begin(concurrency.SnapshotIsolation)
	queryCtx := &execution.ExecutorContext{Txn: queryTxn, TxnManager: tm, Catalog: cat}
	pred := expression.Comparison{
		Op:    expression.Eq,
		Left:  expression.ColumnRef{Name: "id"},
		Right: expression.Literal{Value: types.NewInteger(2)},
	}
	scanPlan := optimizer.Optimize(&execution.SeqScanPlan{Table: tableInfo, Predicate: pred}, cat)
	if err := runPlan(queryCtx, scanPlan, log, "lookup"); err != nil {
		return err
	}
	if _, err := tm.Commit(queryTxn, cat.Resolver()); err != nil {
		return fmt.Errorf("corvidd: commit lookup: %w", err)
	}

	return tm.GarbageCollect(func(rid concurrency.RID) (int64, error) {
		meta, err := tableInfo.Heap.GetTupleMeta(table.RID{PageID: rid.PageID, SlotNum: rid.SlotNum})
		if err != nil {
			return 0, err
		}
		return meta.Ts, nil
	})
}

func runPlan(ctx *execution.ExecutorContext, plan execution.Plan, log *zap.Logger, label string) error {
	ex, err := execution.Build(ctx, plan)
	if err != nil {
		return fmt.Errorf("corvidd: build %s plan: %w", label, err)
	}
	if err := ex.Init(); err != nil {
		return fmt.Errorf("corvidd: init %s: %w", label, err)
	}
	for {
		row, _, ok, err := ex.Next()
		if err != nil {
			return fmt.Errorf("corvidd: %s: %w", label, err)
		}
		if !ok {
			return nil
		}
		fields := make([]zap.Field, len(row.Values))
		for i, v := range ex.Schema().Columns {
			fields[i] = zap.Any(v.Name, valueString(row.Values[i]))
		}
		log.Info(label, fields...)
	}
}

func valueString(v types.Value) string {
	if v.IsNull() {
		return "NULL"
	}
	switch v.Kind() {
	case types.Integer:
		return fmt.Sprintf("%d", v.Integer())
	case types.Varchar:
		return v.Varchar()
	case types.Boolean:
		return fmt.Sprintf("%t", v.Boolean())
	default:
		return "?"
	}
}

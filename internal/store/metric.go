package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ngrok/sqlmw"
	"github.com/prometheus/client_golang/prometheus"
)

// instrumentedDriver is the name of the pgx driver wrapped by the metric
// interceptor.
const instrumentedDriver = "pgx-instrumented"

var (
	statementRegex = regexp.MustCompile(`^\s*(\w+)`)
	dbOpLatency    *prometheus.HistogramVec
	dbOpTotal      *prometheus.CounterVec
	registerOnce   sync.Once
)

func init() {
	dbOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "db_op_duration_milliseconds",
		Help:      "Time spent on a database operation",
		Subsystem: "transcriber",
		Buckets:   []float64{5, 25, 100, 300, 1000, 5000},
	},
		[]string{"op", "statement"},
	)
	dbOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "db_op_total",
		Help:      "Number of database operations",
		Subsystem: "transcriber",
	},
		[]string{"op", "result"},
	)

	prometheus.MustRegister(dbOpLatency)
	prometheus.MustRegister(dbOpTotal)
}

// registerInstrumentedDriver makes the instrumented pgx driver available to
// database/sql. It is safe to call more than once.
func registerInstrumentedDriver() string {
	registerOnce.Do(func() {
		sql.Register(instrumentedDriver, sqlmw.Driver(stdlib.GetDefaultDriver(), &metricInterceptor{}))
	})
	return instrumentedDriver
}

type metricInterceptor struct {
	sqlmw.NullInterceptor
}

func (mi *metricInterceptor) ConnBeginTx(ctx context.Context, conn driver.ConnBeginTx, opts driver.TxOptions) (context.Context, driver.Tx, error) {
	start := time.Now()
	tx, err := conn.BeginTx(ctx, opts)
	measure("begin", "begin", start, err)
	return ctx, tx, err
}

func (mi *metricInterceptor) ConnPing(ctx context.Context, conn driver.Pinger) error {
	start := time.Now()
	err := conn.Ping(ctx)
	measure("ping", "ping", start, err)
	return err
}

func (mi *metricInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	result, err := conn.ExecContext(ctx, query, args)
	measure("exec", statement(query), start, err)
	return result, err
}

func (mi *metricInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	start := time.Now()
	rows, err := conn.QueryContext(ctx, query, args)
	measure("query", statement(query), start, err)
	return ctx, rows, err
}

func (mi *metricInterceptor) StmtExecContext(ctx context.Context, conn driver.StmtExecContext, query string, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	result, err := conn.ExecContext(ctx, args)
	measure("stmt-exec", statement(query), start, err)
	return result, err
}

func (mi *metricInterceptor) StmtQueryContext(ctx context.Context, conn driver.StmtQueryContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	start := time.Now()
	rows, err := conn.QueryContext(ctx, args)
	measure("stmt-query", statement(query), start, err)
	return ctx, rows, err
}

func (mi *metricInterceptor) TxCommit(ctx context.Context, conn driver.Tx) error {
	start := time.Now()
	err := conn.Commit()
	measure("commit", "commit", start, err)
	return err
}

func (mi *metricInterceptor) TxRollback(ctx context.Context, conn driver.Tx) error {
	start := time.Now()
	err := conn.Rollback()
	measure("rollback", "rollback", start, err)
	return err
}

// statement returns the leading keyword of query, lower cased.
func statement(query string) string {
	matches := statementRegex.FindStringSubmatch(query)
	if len(matches) < 2 {
		return "unknown"
	}
	return strings.ToLower(matches[1])
}

func measure(op, stmt string, start time.Time, err error) {
	result := "ok"
	if err != nil && err != driver.ErrSkip {
		result = "error"
	}
	dbOpTotal.With(prometheus.Labels{"op": op, "result": result}).Inc()
	dbOpLatency.With(prometheus.Labels{"op": op, "statement": stmt}).Observe(float64(time.Since(start).Milliseconds()))
}

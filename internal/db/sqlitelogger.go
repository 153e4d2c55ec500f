package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// maxLoggedArg caps how much of a text argument reaches the log.
const maxLoggedArg = 64

// loggingConnector opens mattn/go-sqlite3 connections whose statements are
// logged at debug level.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
	driver *sqlite3.SQLiteDriver
}

type loggingConn struct {
	driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

// NewLoggingConnector returns a connector for sql.OpenDB. A nil logger
// means slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if dsn == "" {
		return nil, errors.New("empty dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger, driver: &sqlite3.SQLiteDriver{}}, nil
}

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{Conn: conn, logger: c.logger}, nil
}

func (c *loggingConnector) Driver() driver.Driver { return c.driver }

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if prep, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = prep.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &loggingStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if beginTx, ok := c.Conn.(driver.ConnBeginTx); ok {
		return beginTx.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019 fallback for drivers without ConnBeginTx
	return c.Conn.Begin()
}

// ExecContext runs unprepared statements (including multi-statement
// scripts such as migrations) on the underlying connection.
func (c *loggingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	exec, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logSQL(ctx, c.logger, "exec", query, args)
	return exec.ExecContext(ctx, query, args)
}

func (c *loggingConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	logSQL(ctx, c.logger, "query", query, args)
	return q.QueryContext(ctx, query, args)
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	logSQL(ctx, s.logger, "exec", s.query, args)
	if exec, ok := s.Stmt.(driver.StmtExecContext); ok {
		return exec.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without StmtExecContext
	return s.Stmt.Exec(values(args))
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	logSQL(ctx, s.logger, "query", s.query, args)
	if query, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return query.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019 fallback for statements without StmtQueryContext
	return s.Stmt.Query(values(args))
}

func logSQL(ctx context.Context, logger *slog.Logger, op, query string, args []driver.NamedValue) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	formatted := make([]string, len(args))
	for i, a := range args {
		formatted[i] = formatArg(a.Value)
		if a.Name != "" {
			formatted[i] = a.Name + "=" + formatted[i]
		}
	}
	logger.DebugContext(ctx, "sql", "op", op, "sql", query, "args", formatted)
}

func values(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

// formatArg renders one bound value. Blobs are summarised by length since
// batch payloads are binary.
func formatArg(v driver.Value) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	case string:
		if len(t) > maxLoggedArg {
			return t[:maxLoggedArg] + "..."
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

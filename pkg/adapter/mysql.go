package adapter

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/m-mizutani/goerr/v2"
	"github.com/neuraly-ai/neuraly/pkg/model"
)

// identifierPattern restricts database and table names that get
// interpolated into DDL statements, which cannot be parameterized.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return goerr.Wrap(model.ErrInvalidArgument, "invalid SQL identifier", goerr.V("name", name))
	}
	return nil
}

// MySQLEngine executes queries against one tenant database. It satisfies
// the pipeline's QueryEngine seam.
type MySQLEngine struct {
	db *sql.DB
}

// NewMySQLEngine opens a connection pool for the given DSN and performs
// the handshake. DSN format: user:pass@tcp(host:port)/dbname
func NewMySQLEngine(ctx context.Context, dsn string) (*MySQLEngine, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open MySQL connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping MySQL")
	}
	return &MySQLEngine{db: db}, nil
}

func (e *MySQLEngine) Dialect() string { return "mysql" }

// Schema returns the CREATE TABLE statements of every table in the bound
// database, used as context for query generation.
func (e *MySQLEngine) Schema(ctx context.Context) (string, error) {
	rows, err := e.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return "", goerr.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", goerr.Wrap(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return "", goerr.Wrap(err, "failed to iterate tables")
	}

	var sb strings.Builder
	for _, table := range tables {
		if err := validIdentifier(table); err != nil {
			continue
		}
		var tbl, ddl string
		if err := e.db.QueryRowContext(ctx, "SHOW CREATE TABLE `"+table+"`").Scan(&tbl, &ddl); err != nil {
			return "", goerr.Wrap(err, "failed to describe table", goerr.V("table", table))
		}
		sb.WriteString(ddl)
		sb.WriteString(";\n\n")
	}
	return sb.String(), nil
}

// Execute runs a query and returns all rows as generic maps.
func (e *MySQLEngine) Execute(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read result columns")
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, goerr.Wrap(err, "failed to scan result row")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate result rows")
	}
	return results, nil
}

func (e *MySQLEngine) Close() error {
	return e.db.Close()
}

// MySQLAdmin provisions and drops per-tenant databases on a MySQL server.
// It connects without a default database selected.
type MySQLAdmin struct {
	db *sql.DB

	host string
	user string
	pass string
}

// NewMySQLAdmin opens an administrative connection. dsn is the server DSN
// without a database name, e.g. "root:secret@tcp(localhost:3306)/"
func NewMySQLAdmin(ctx context.Context, user, pass, host string) (*MySQLAdmin, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s)/", user, pass, host)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open MySQL admin connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to ping MySQL server", goerr.V("host", host))
	}
	return &MySQLAdmin{db: db, host: host, user: user, pass: pass}, nil
}

// DSN returns the connection string for a tenant database, in the format
// stored on agent records.
func (a *MySQLAdmin) DSN(dbName string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", a.user, a.pass, a.host, dbName)
}

func (a *MySQLAdmin) CreateDatabase(ctx context.Context, name string) error {
	if err := validIdentifier(name); err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`"); err != nil {
		return goerr.Wrap(err, "failed to create database", goerr.V("db", name))
	}
	return nil
}

func (a *MySQLAdmin) DropDatabase(ctx context.Context, name string) error {
	if err := validIdentifier(name); err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, "DROP DATABASE IF EXISTS `"+name+"`"); err != nil {
		return goerr.Wrap(err, "failed to drop database", goerr.V("db", name))
	}
	return nil
}

// ExecuteQuery runs one passthrough statement against a tenant database.
func (a *MySQLAdmin) ExecuteQuery(ctx context.Context, dbName, query string) error {
	if err := validIdentifier(dbName); err != nil {
		return err
	}
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE `"+dbName+"`"); err != nil {
		return goerr.Wrap(err, "failed to select database", goerr.V("db", dbName))
	}
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return goerr.Wrap(err, "failed to execute query", goerr.V("db", dbName))
	}
	return nil
}

// ImportCSV creates a table named after the file contents' header row and
// loads every record as TEXT columns.
func (a *MySQLAdmin) ImportCSV(ctx context.Context, dbName, table string, r io.Reader) error {
	if err := validIdentifier(dbName); err != nil {
		return err
	}
	if err := validIdentifier(table); err != nil {
		return err
	}

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "failed to read CSV header")
	}

	columns := make([]string, 0, len(header))
	for _, col := range header {
		col = strings.TrimSpace(col)
		if err := validIdentifier(col); err != nil {
			return err
		}
		columns = append(columns, col)
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE `"+dbName+"`"); err != nil {
		return goerr.Wrap(err, "failed to select database", goerr.V("db", dbName))
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = "`" + col + "` TEXT"
	}
	createStmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", table, strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, createStmt); err != nil {
		return goerr.Wrap(err, "failed to create table from CSV header", goerr.V("table", table))
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(columns)), ",")
	insertStmt := fmt.Sprintf("INSERT INTO `%s` VALUES (%s)", table, placeholders)

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return goerr.Wrap(model.ErrInvalidArgument, "failed to read CSV record")
		}
		args := make([]any, len(record))
		for i, v := range record {
			args[i] = v
		}
		if _, err := conn.ExecContext(ctx, insertStmt, args...); err != nil {
			return goerr.Wrap(err, "failed to insert CSV record", goerr.V("table", table))
		}
	}
	return nil
}

// ImportSQL executes a script of semicolon-separated statements against a
// tenant database.
func (a *MySQLAdmin) ImportSQL(ctx context.Context, dbName string, r io.Reader) error {
	if err := validIdentifier(dbName); err != nil {
		return err
	}

	script, err := io.ReadAll(r)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "failed to read SQL script")
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "USE `"+dbName+"`"); err != nil {
		return goerr.Wrap(err, "failed to select database", goerr.V("db", dbName))
	}

	for _, stmt := range strings.Split(string(script), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return goerr.Wrap(err, "failed to execute script statement", goerr.V("db", dbName))
		}
	}
	return nil
}

func (a *MySQLAdmin) Close() error {
	return a.db.Close()
}

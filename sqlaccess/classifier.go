package sqlaccess

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"slices"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// SQLSTATE classes that describe the server or the connection rather than the
// statement: connection exception, transaction rollback, insufficient resources,
// operator intervention and system error.
var transientClasses = []string{"08", "40", "53", "57", "58"}

// MySQL error numbers worth another attempt: lock wait timeout, deadlock, server
// gone away, lost connection, too many connections and server shutdown. Every
// other server error describes the statement or the credentials.
var transientMySQLErrors = []uint16{1205, 1213, 2006, 2013, 1040, 1053}

// SQLite primary result codes worth another attempt: busy, locked and I/O error.
var transientSQLiteCodes = []int{5, 6, 10}

// Classifier decides whether a database error is transient. Connection loss,
// transient SQLSTATE classes and busy SQLite databases are retried; syntax,
// constraint, data and authorisation errors are not. Errors it does not recognise
// are treated as transient.
type Classifier struct{}

// IsRetryable implements access.ErrorClassifier.
func (Classifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrScan), errors.Is(err, sql.ErrNoRows), errors.Is(err, sql.ErrTxDone):
		return false
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, mysql.ErrInvalidConn):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientState(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return slices.Contains(transientMySQLErrors, myErr.Number)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientState(pgErr.Code)
	}

	var coded interface{ Code() int }
	if errors.As(err, &coded) {
		return slices.Contains(transientSQLiteCodes, coded.Code()&0xff)
	}

	// Network failures land here too.
	return true
}

func transientState(code string) bool {
	if len(code) < 2 {
		return true
	}
	return slices.Contains(transientClasses, code[:2])
}

package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// MySQL server error numbers (read-relevant only)
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	myErrAccessDenied  = 1045
	myErrUnknownDB     = 1049
	myErrNoSuchTable   = 1146
	myErrSyntax        = 1064
	myErrUnknownColumn = 1054
)

// mapError converts a go-sql-driver error into the unified *errs.Error.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, "mysql operation cancelled", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, "record not found", err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myErrAccessDenied:
			return errs.Wrap(errs.ErrKindConnectionFailed, "access denied", err)
		case myErrUnknownDB, myErrNoSuchTable, myErrUnknownColumn:
			return errs.Wrap(errs.ErrKindNotFound, fmt.Sprintf("unknown relation: %s", myErr.Message), err)
		case myErrSyntax:
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("query error: %s", myErr.Message), err)
		}
	}

	if errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, "connection lost", err)
	}

	return errs.Wrap(errs.ErrKindUnknown, err.Error(), err)
}

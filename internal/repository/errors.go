// Package repository is the MySQL backend. It stores establishments, areas,
// tables, reservations, waitlist entries and guest lists, and maps database
// failures onto the source sentinels so handlers never see driver errors.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/restaurant-reservation/internal/source"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique key violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// translate maps sql.ErrNoRows to source.ErrNotFound and a duplicate key to
// source.ErrConflict; anything else is returned wrapped with what.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, source.ErrNotFound)
	case isDuplicate(err):
		return fmt.Errorf("%s: %w", what, source.ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

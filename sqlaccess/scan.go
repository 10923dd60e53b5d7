package sqlaccess

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrScan marks a row that could not be decoded into the requested type. Retrying
// does not help, so Classifier treats it as fatal.
var ErrScan = errors.New("scan row")

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
)

// scanRow decodes the current row. Maps receive every column by name, structs are
// matched on db tags, anything else must be a single column.
func scanRow[T any](rows *sqlx.Rows) (T, error) {
	var v T

	var err error
	switch dest := any(&v).(type) {
	case *map[string]any:
		m := make(map[string]any)
		err = rows.MapScan(m)
		*dest = m
	default:
		if isStruct(reflect.TypeFor[T]()) {
			err = rows.StructScan(&v)
		} else {
			err = rows.Scan(&v)
		}
	}
	if err != nil {
		return v, fmt.Errorf("%w: %w", ErrScan, err)
	}
	return v, nil
}

func isStruct(t reflect.Type) bool {
	if t.Kind() != reflect.Struct || t == timeType {
		return false
	}
	return !reflect.PointerTo(t).Implements(scannerType)
}

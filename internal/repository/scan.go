package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// timestamp scans a time column whichever way the driver hands it back.
// sqlite returns text for RETURNING columns since they carry no declared
// type.
type timestamp struct {
	dst *time.Time
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.dst = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case int64:
		*ts.dst = time.Unix(v, 0).UTC()
		return nil
	case nil:
		*ts.dst = time.Time{}
		return nil
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (ts timestamp) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*ts.dst = t.UTC()
			return nil
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, s+"Z"); err == nil {
		*ts.dst = t.UTC()
		return nil
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

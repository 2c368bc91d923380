package mssql

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	mssql "github.com/microsoft/go-mssqldb"
)

// transientNumbers are SQL Server error numbers worth retrying.
var transientNumbers = map[int32]struct{}{
	-2:    {}, // client timeout
	1205:  {}, // deadlock victim
	1222:  {}, // lock request timeout
	40197: {}, // service error processing request
	40501: {}, // service busy
	40613: {}, // database unavailable
	49918: {}, // not enough resources
}

// IsTransient reports lock, deadlock and connectivity blips.
func (e *Endpoint) IsTransient(err error) bool { return isTransient(err) }

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var me mssql.Error
	if errors.As(err, &me) {
		_, ok := transientNumbers[me.Number]
		return ok
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF)
}

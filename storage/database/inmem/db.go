// Package inmemdb keeps identities and attendance records in process memory.
// Used by tests and by kiosks started with an ephemeral store.
package inmemdb

import (
	"sync"

	"github.com/trezcool/hazira/core/attendance"
	"github.com/trezcool/hazira/core/identity"
)

type (
	DB struct {
		identity   *identityTable
		attendance *attendanceTable
	}

	identityTable struct {
		sync.RWMutex
		table map[string]*identity.EnrolledIdentity // {externalRef: identity}
	}

	attendanceTable struct {
		sync.RWMutex
		table map[attendance.Key]*attendance.Record
	}
)

func Open() *DB {
	return &DB{
		identity:   &identityTable{table: make(map[string]*identity.EnrolledIdentity)},
		attendance: &attendanceTable{table: make(map[attendance.Key]*attendance.Record)},
	}
}

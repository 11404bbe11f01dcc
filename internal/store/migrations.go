package store

import "go.etcd.io/bbolt"

// migrationFn applies one forward-only schema step within the open
// transaction. Migrations run in version order with no gaps (§4.2).
type migrationFn func(tx *bbolt.Tx) error

// migrations maps schema version -> the step that produces it. Version 1
// is the bucket layout created by Open itself, so its migration is a no-op
// placeholder; future schema changes append migrations[2], migrations[3], ...
var migrations = map[int]migrationFn{
	1: func(tx *bbolt.Tx) error { return nil },
}

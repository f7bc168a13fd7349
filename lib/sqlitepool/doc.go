// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database behind the store sink.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies one set
// of pragmas to every connection:
//
//   - journal_mode=WAL so the purge and insert of one delivery never
//     block a concurrent reader of OPCData.
//   - synchronous=NORMAL: rows survive a process crash.
//   - busy_timeout=5000: fan-out workers writing at the same moment
//     wait for the lock instead of failing with SQLITE_BUSY.
//   - temp_store=MEMORY.
//
// Callers either [Pool.Take] and [Pool.Put] a connection themselves or
// run a function inside an IMMEDIATE transaction with [Pool.Transact],
// which takes the write lock up front and commits when the function
// returns nil.
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, PoolSize: 4})
//	...
//	err = pool.Transact(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, insertSQL, &sqlitex.ExecOptions{Args: args})
//	})
package sqlitepool

// Package userstore persists users and provider account linkages in a
// single SQLite file, using modernc.org/sqlite so deployments need no
// cgo toolchain.
//
// The store is the durability boundary for identity data. Case-insensitive
// email uniqueness is enforced here, by a unique index on lower(email),
// not by the engine: under concurrent registration SQLite picks exactly
// one winner and the rest observe a duplicate error.
//
// Schema evolution is embedded. Open applies the bundled *.sql
// migrations in lexical order, tracked in a schema_migrations table,
// so the file can only ever be at a schema this binary understands.
package userstore

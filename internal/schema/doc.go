// Package schema holds the ident tables, attribute metadata and entid
// partitions a transaction is validated against.
//
// A Schema is built once when a store opens (from the bootstrap vocabulary
// plus whatever attributes have been installed since) and is replaced
// wholesale after a schema-altering commit. Readers hold *Snapshot values
// loaded from a Cache; nothing in this package is global or mutable once
// published.
package schema

// Package core defines the shared language of the changefeed client.
//
// This package contains:
//   - Query terms (Term, Table, Filter, Changes, FieldAccess, Literal, Comparison, ...)
//   - Option specifications for changes and run options
//   - Decoded response values (Document, Change)
//   - The error taxonomy (Error, ErrorKind)
//   - Transport interfaces (Conn, Cursor) and adapter configuration
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core

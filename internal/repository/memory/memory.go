// Package memory provides in-memory repository implementations. They back
// the service test suites and the no-database development mode; the
// conditional-update semantics match the postgres implementations exactly.
package memory

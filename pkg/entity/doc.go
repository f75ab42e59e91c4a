// Package entity holds the circulation data model shared by the resolver,
// the pure evaluators, and the orchestrator: canonical records returned by
// the backend (items, users, instances, loans), patron block inputs, and
// the transient form-session state the orchestrator owns.
//
// Everything in this package is a plain value. Nothing here performs I/O,
// and nothing is persisted by this module; records are fetched through
// pkg/backend collaborators and submitted back through the same.
package entity

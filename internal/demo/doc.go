// Package demo holds example reactors and the registry the harness and CLI
// use to build them by name.
//
// Counter shows sync and async batches. Search shows I/O through an async
// batch, a bootstrap mutation prepended in TransformMutation, and action
// deduplication in TransformAction. Dashboard nests a Counter and follows
// its states with reactor.Forward.
//
// Instance erases the type parameters so a scenario file can address any
// registered reactor with action and mutation names plus YAML arguments.
package demo

// Package state contains the migration state store contract and the types
// shared by its backends.
//
// A Store records the names of applied migrations in application order, and
// guards concurrent runs with an exclusive advisory lock. Concrete backends
// live in subpackages, so that packages that only need the contract don't
// depend on a specific implementation.
package state

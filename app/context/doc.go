// Package context contains the application context, which carries the
// dependencies of CLI commands: the filesystem, the environment, the standard
// streams, the logger, the migration state store and the migration plan.
//
// It's a separate package to avoid a circular import between app and cli.
package context

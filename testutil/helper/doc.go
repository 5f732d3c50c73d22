// Package helper provides test doubles and fixtures shared by the docsync test suites.
//
// The spies capture slog records, metrics and tracing calls so tests can assert on the
// observability output of the repository, the message hub and the cache.
package helper

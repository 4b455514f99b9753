// Package interfaces defines the contract between the storage coordinator and
// the providers it drives, separating interface definitions from implementations.
//
// # Provider Interfaces
//
// Provider: the mandatory capability set of a storage backend. Every provider
// reads through a stream, writes through a Sink and deletes by URL, and declares
// a name and the URL schemes it owns.
//
// ScalarReader and ScalarWriter: optional single-call variants of reading and
// writing. The coordinator prefers them when present and falls back to the
// streaming operations otherwise.
//
// Prioritized: optional declared priority. Providers without one are assigned a
// priority by the coordinator on admission.
//
// # Sinks
//
// A Sink receives the bytes of exactly one write. Commit ends the input and blocks
// until the provider has persisted the content, returning the URL the content can
// be read back from. Abort discards whatever was written so far.
//
// # URLs
//
// URLs are opaque to everything but their owning provider, except for the scheme
// (the text before the first colon), which is matched case-insensitively:
//
//	mem://<name>
//	file:///var/lib/storage/<path>/<name>
//	s3://bucket/<prefix>/<path>/<name>
//	minio://bucket/<prefix>/<path>/<name>
//	ipfs://<cid>
//	vault://<mount>/<data-path>/<path>/<name>
//
// # Errors
//
// Routing errors (ErrInvalidURL, ErrInvalidScheme, ErrNoProviderForScheme) are
// sentinel values. Provider failures are reported as *ProviderError, and fan-out
// failures as *AggregateWriteError carrying every underlying *ProviderError.
package interfaces

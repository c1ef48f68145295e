package attic

import "errors"

// Sentinel errors returned (optionally wrapped) by the mapper. Callers should
// use errors.Is against these rather than comparing strings.
var (
	// ErrUnserializableType is raised synchronously during a walk when no
	// transformer is registered for an encountered runtime type.
	ErrUnserializableType = errors.New("attic: no transformer registered for type")

	// ErrConstructorFailure wraps an error returned by a registered
	// zero-argument constructor during deserialization.
	ErrConstructorFailure = errors.New("attic: constructor failed")

	// ErrMalformedEnvelope is raised by the envelope codec when required
	// fields are missing, ids are out of range, or a box carries zero or
	// multiple payloads.
	ErrMalformedEnvelope = errors.New("attic: malformed envelope")

	// ErrIndexOutOfRange is returned by Index.ValueOf for ids outside
	// [1, size].
	ErrIndexOutOfRange = errors.New("attic: index id out of range")

	// ErrUnknownTransformer is raised when an envelope's transformer table
	// names a GUID the registry cannot resolve. Unlike an unknown *type*
	// GUID this is fatal: transformers are the dispatch mechanism itself,
	// so deserialization cannot proceed without one.
	ErrUnknownTransformer = errors.New("attic: unknown transformer guid in envelope")
)

// Cancellation is not reported as an error: Serialize and Deserialize
// return a partial result with Partial set on their info record when the
// caller's Cancellation token fired before the walk completed, rather than
// a distinguished error value.

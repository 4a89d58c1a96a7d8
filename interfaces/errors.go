package interfaces

import "errors"

// Validation errors. Surfaced immediately, never partially applied.
var (
	// ErrInvalidContentHash indicates a null or malformed content hash.
	ErrInvalidContentHash = errors.New("invalid content hash")

	// ErrInvalidID indicates a null or malformed identifier.
	ErrInvalidID = errors.New("invalid identifier")

	// ErrEmptyJustification indicates a missing emergency justification.
	ErrEmptyJustification = errors.New("justification must not be empty")

	// ErrBatchSizeExceeded indicates a paginated or batched request beyond
	// the configured limit.
	ErrBatchSizeExceeded = errors.New("batch size exceeded")
)

// Authorization errors. No implied retry.
var (
	// ErrUnauthorized indicates the caller holds neither ownership nor a
	// valid executor binding for the target document.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrWrongBinding indicates an executor operation whose target binding
	// does not match this registry's expectation.
	ErrWrongBinding = errors.New("operation target binding mismatch")

	// ErrEmergencyPowersExpired indicates an emergency unlock attempted by
	// the emergency authority after the emergency window closed.
	ErrEmergencyPowersExpired = errors.New("emergency powers expired")
)

// Document registry errors.
var (
	// ErrAlreadyExists indicates a registration for an id already in use.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrNotFound indicates an operation on an unregistered document.
	ErrNotFound = errors.New("document not found")

	// ErrSameOwner indicates an ownership transfer to the current owner.
	ErrSameOwner = errors.New("new owner is the current owner")

	// ErrNullOwner indicates an ownership transfer to the null identity.
	ErrNullOwner = errors.New("new owner must not be the null identity")

	// ErrExecutorIsOwner indicates an executor authorization for the owner
	// itself.
	ErrExecutorIsOwner = errors.New("executor must not be the document owner")

	// ErrNoExecutor indicates a revocation when no executor is bound.
	ErrNoExecutor = errors.New("no executor authorized")

	// ErrResolverConfigurationLocked indicates a resolver mutation after the
	// configuration was locked.
	ErrResolverConfigurationLocked = errors.New("resolver configuration locked")
)

// Component registry errors.
var (
	// ErrAlreadyRegistered indicates a component registration for an id
	// already in use.
	ErrAlreadyRegistered = errors.New("component already registered")

	// ErrNotExecutable indicates a component ref that does not resolve to
	// loadable code.
	ErrNotExecutable = errors.New("component ref does not resolve to loadable code")

	// ErrIdentityChanged indicates a reactivation attempt for a component
	// whose live identity digest no longer matches the registered one.
	ErrIdentityChanged = errors.New("component identity digest changed")

	// ErrComponentNotFound indicates lifecycle operations on an unknown id.
	ErrComponentNotFound = errors.New("component not found")
)

// Concurrency and system-state errors.
var (
	// ErrReentrantCall indicates a nested invocation on a resource with an
	// operation already in flight. Always fatal to the nested call.
	ErrReentrantCall = errors.New("reentrant call")

	// ErrSystemPaused indicates a mutating operation while the system-wide
	// pause flag is set.
	ErrSystemPaused = errors.New("system paused")
)

// Governance errors. Fatal, no workaround.
var (
	// ErrInvalidStageTransition indicates an out-of-order or reverse
	// governance transition.
	ErrInvalidStageTransition = errors.New("invalid governance stage transition")

	// ErrOssified indicates an upgrade or reconfiguration attempt after
	// governance was frozen.
	ErrOssified = errors.New("governance frozen, configuration is immutable")
)

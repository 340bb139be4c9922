// Package errors provides the structured error type used across the
// firebase-jwt module. Every failure that is not a constraint violation or
// a raw token decode error is reported as an [*Error] carrying a stable,
// machine-readable [Code].
//
// # Error Categories
//
//   - Validation errors (VAL): invalid arguments and configuration values
//   - Authentication errors (AUTH): missing or rejected tokens at the edge
//   - Key set errors (KEYSET): the remote public key source is unusable or
//     does not know the requested key id
//   - Internal errors (INT): cache, signing or configuration failures
//   - Unavailable errors (UNAVAIL): a dependency such as Redis is down
//   - Timeout errors (TIMEOUT): a dependency call exceeded its deadline
//
// # Usage
//
//	err := errors.New(errors.CodeKeySet, "the key set is invalid: empty response")
//
//	if errors.IsKeyNotFound(err) {
//	    // the kid was rotated out, ask the client to refresh its token
//	}
//
//	if e, ok := errors.AsError(err); ok {
//	    logger.Warn("verification failed", "code", e.Code)
//	}
package errors

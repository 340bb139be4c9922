package errors

// Code is a machine-readable error code of the form CATEGORY_XXX.
// Codes are stable once assigned and safe to alert or branch on.
type Code string

// Error code categories:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	AUTH_xxx    - Authentication errors (401 Unauthorized)
//	KEYSET_xxx  - Public key set errors (401 or 503, see HTTPStatus)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required value is missing.
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationFormat indicates a value has an invalid format.
	CodeValidationFormat Code = "VAL_003"

	// CodeValidationLeeway indicates a negative leeway was configured.
	CodeValidationLeeway Code = "VAL_004"

	// CodeAuthentication indicates that no usable credential was presented.
	CodeAuthentication Code = "AUTH_001"

	// CodeAuthenticationInvalid indicates the presented token was rejected.
	CodeAuthenticationInvalid Code = "AUTH_002"

	// CodeKeySet indicates the remote key set could not be fetched or parsed.
	CodeKeySet Code = "KEYSET_001"

	// CodeKeyNotFound indicates the key set does not contain the requested key id.
	CodeKeyNotFound Code = "KEYSET_002"

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalCache indicates a cache store operation failed.
	CodeInternalCache Code = "INT_002"

	// CodeInternalConfiguration indicates invalid or unreadable configuration
	// or credentials.
	CodeInternalConfiguration Code = "INT_003"

	// CodeInternalSigning indicates a token could not be signed.
	CodeInternalSigning Code = "INT_004"

	// CodeUnavailable indicates a dependency is unavailable.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeTimeout indicates a dependency call timed out.
	CodeTimeout Code = "TIMEOUT_001"
)

// String returns the code as a string.
func (c Code) String() string {
	return string(c)
}

// Category returns the prefix before the first underscore ("VAL", "KEYSET").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}

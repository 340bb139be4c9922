package credentials

// Secret holds sensitive text such as a private key. It prints and
// serializes as a placeholder; only Value exposes the content.
type Secret string

const redacted = "[REDACTED]"

// String implements fmt.Stringer and never reveals the value.
func (s Secret) String() string { return redacted }

// GoString implements fmt.GoStringer for %#v.
func (s Secret) GoString() string { return redacted }

// Value returns the raw secret. Call it only where a crypto routine needs
// the bytes.
func (s Secret) Value() string { return string(s) }

// MarshalText keeps the secret out of JSON, YAML and text logs.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }

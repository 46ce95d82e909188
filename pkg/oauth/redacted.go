package oauth

// RedactedToken wraps a sensitive credential string to prevent accidental
// logging.
//
// This type implements fmt.Stringer to return "[REDACTED]" instead of the
// actual value, preventing credential leakage in log messages, error strings,
// or debug output.
//
// Usage:
//
//	secret := oauth.NewRedactedToken("client-secret-value")
//	fmt.Println(secret)          // prints: [REDACTED]
//	actualValue := secret.Value() // returns: "client-secret-value"
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual credential value.
// Use this method only when the value needs to be sent in a request body or
// header. Never log the result of this method.
func (t RedactedToken) Value() string {
	return t.value
}

// String implements fmt.Stringer, returning "[REDACTED]" to prevent
// accidental logging of the value.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting, also returning
// "[REDACTED]" to prevent accidental logging.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{[REDACTED]}"
}

// IsEmpty returns true if the wrapped value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]"
// to prevent accidental serialization of the value.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler, returning "[REDACTED]"
// to prevent accidental JSON serialization of the value.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}

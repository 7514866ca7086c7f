package jwt

// Reason says why a token was rejected. It exists for logs and metrics.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonSignature Reason = "signature"
	ReasonExpired   Reason = "expired"
	ReasonClaims    Reason = "claims"
)

// Result is the outcome of [Codec.Decrypt]: either a verified payload or an invalid token.
type Result struct {
	payload Payload
	ok      bool
	reason  Reason
	cause   error
}

func invalid(reason Reason, cause error) Result {
	return Result{reason: reason, cause: cause}
}

// OK reports whether the token verified.
func (r Result) OK() bool { return r.ok }

// Payload returns the verified payload and true, or the zero Payload and false.
func (r Result) Payload() (Payload, bool) {
	if !r.ok {
		return Payload{}, false
	}
	return r.payload, true
}

// Reason returns ReasonNone for a valid token.
func (r Result) Reason() Reason { return r.reason }

// Cause is the underlying parser error, if any. Log it; do not branch on it.
func (r Result) Cause() error { return r.cause }

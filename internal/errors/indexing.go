package errors

// Kind classifies an error by the policy the dispatcher applies to it,
// independent of the underlying error code. See the error handling
// table: each kind has a fixed local-recovery and surfacing rule.
type Kind string

const (
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindIO                 Kind = "io"
	KindParse              Kind = "parse"
	KindTimeout            Kind = "timeout"
	KindCorruption         Kind = "corruption"
	KindPluginUnavailable  Kind = "plugin_unavailable"
	KindCache              Kind = "cache"
	KindSecurity           Kind = "security"
)

var kindCodes = map[Kind]string{
	KindInvalidInput:      ErrCodeInvalidInput,
	KindNotFound:          ErrCodeNotFound,
	KindIO:                ErrCodeFileNotFound,
	KindParse:             ErrCodeParseFailed,
	KindTimeout:           ErrCodePluginTimeout,
	KindCorruption:        ErrCodeCorruptIndex,
	KindPluginUnavailable: ErrCodePluginUnavailable,
	KindCache:             ErrCodeCacheFailed,
	KindSecurity:          ErrCodeSecurityViolation,
}

// NewKind builds a CidxError for one of the dispatcher's error kinds.
func NewKind(kind Kind, message string, cause error) *CidxError {
	code, ok := kindCodes[kind]
	if !ok {
		code = ErrCodeInternal
	}
	err := New(code, message, cause)
	err.Details = map[string]string{"kind": string(kind)}
	return err
}

// KindOf reports the dispatcher error kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	ae, ok := err.(*CidxError)
	if !ok || ae.Details == nil {
		return "", false
	}
	k, ok := ae.Details["kind"]
	return Kind(k), ok
}

// IsKind reports whether err was constructed with the given Kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

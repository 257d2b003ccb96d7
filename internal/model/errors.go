package model

// ErrorKind is the closed failure taxonomy shared by every protocol.
type ErrorKind string

const (
	KindConfigurationError              ErrorKind = "ConfigurationError"
	KindInvalidToken                    ErrorKind = "InvalidToken"
	KindInsufficientPermissions         ErrorKind = "InsufficientPermissions"
	KindMissingToken                    ErrorKind = "MissingToken"
	KindUnrecoverableNegotiationFailure ErrorKind = "UnrecoverableNegotiationFailure"
	KindDriverNotFound                  ErrorKind = "DriverNotFound"
	KindTimeout                         ErrorKind = "Timeout"
	KindConnectionRefused               ErrorKind = "ConnectionRefused"
	KindUnclassified                    ErrorKind = "Unclassified"
)

// ErrorKinds returns every kind in the taxonomy
func ErrorKinds() []ErrorKind {
	return []ErrorKind{
		KindConfigurationError,
		KindInvalidToken,
		KindInsufficientPermissions,
		KindMissingToken,
		KindUnrecoverableNegotiationFailure,
		KindDriverNotFound,
		KindTimeout,
		KindConnectionRefused,
		KindUnclassified,
	}
}

// IsTerminalForCredential reports whether retrying with the same credential is pointless.
func (k ErrorKind) IsTerminalForCredential() bool {
	switch k {
	case KindInvalidToken, KindInsufficientPermissions, KindMissingToken, KindConfigurationError:
		return true
	default:
		return false
	}
}

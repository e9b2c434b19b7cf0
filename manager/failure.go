package manager

import (
	"errors"
	"fmt"
)

type FailureKind int

const (
	InvalidInput FailureKind = iota + 1
	NetworkError
	EmptyResponse
	DecodeError
)

const (
	messageInvalidInput  = "URL invalide"
	messageNetworkError  = "Erreur réseau : "
	messageEmptyResponse = "Pas de données reçues"
	messageDecodeError   = "Ville non trouvée ou problème de décodage"
)

func (k FailureKind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case NetworkError:
		return "network_error"
	case EmptyResponse:
		return "empty_response"
	case DecodeError:
		return "decode_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Failure is a categorized, per-query error. Its message is the fixed
// user-facing text for the kind; Err keeps the underlying cause.
type Failure struct {
	Kind FailureKind
	Err  error
}

func NewFailure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err}
}

func (f *Failure) Message() string {
	switch f.Kind {
	case InvalidInput:
		return messageInvalidInput
	case NetworkError:
		if f.Err == nil {
			return messageNetworkError
		}
		return messageNetworkError + f.Err.Error()
	case EmptyResponse:
		return messageEmptyResponse
	case DecodeError:
		return messageDecodeError
	default:
		return f.Kind.String()
	}
}

func (f *Failure) Error() string {
	return f.Message()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure categorizes err. Errors that are not already a *Failure are
// treated as transport failures.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	return NewFailure(NetworkError, err)
}

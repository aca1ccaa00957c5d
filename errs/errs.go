package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for the presentation layer.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindRecipientRequired
	KindInvalidRecipient
	KindAmountMustBePositive
	KindInsufficientBalance
	KindUserCancelled
	KindUnsupportedEnvironment
	KindCredentialInvalid
	KindNetwork
)

// Validation failures. These are returned as values, never raised.
var (
	ErrRecipientRequired    = errors.New("recipient is required")
	ErrInvalidRecipient     = errors.New("invalid recipient address")
	ErrAmountMustBePositive = errors.New("amount must be greater than zero")
	ErrInsufficientBalance  = errors.New("insufficient balance")
)

// Collaborator failures.
var (
	ErrUserCancelled          = errors.New("signing ceremony cancelled by user")
	ErrUnsupportedEnvironment = errors.New("platform cannot perform the signing ceremony")
	ErrCredentialInvalid      = errors.New("no matching credential")
	ErrNetwork                = errors.New("network error")
	ErrUnknown                = errors.New("unknown error")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrRecipientRequired, KindRecipientRequired},
	{ErrInvalidRecipient, KindInvalidRecipient},
	{ErrAmountMustBePositive, KindAmountMustBePositive},
	{ErrInsufficientBalance, KindInsufficientBalance},
	{ErrUserCancelled, KindUserCancelled},
	{context.Canceled, KindUserCancelled},
	{ErrUnsupportedEnvironment, KindUnsupportedEnvironment},
	{ErrCredentialInvalid, KindCredentialInvalid},
	{ErrNetwork, KindNetwork},
	{context.DeadlineExceeded, KindNetwork},
}

func (k Kind) String() string {
	switch k {
	case KindRecipientRequired:
		return "RecipientRequired"
	case KindInvalidRecipient:
		return "InvalidRecipient"
	case KindAmountMustBePositive:
		return "AmountMustBePositive"
	case KindInsufficientBalance:
		return "InsufficientBalance"
	case KindUserCancelled:
		return "UserCancelled"
	case KindUnsupportedEnvironment:
		return "UnsupportedEnvironment"
	case KindCredentialInvalid:
		return "CredentialInvalid"
	case KindNetwork:
		return "NetworkError"
	default:
		return "Unknown"
	}
}

// KindOf returns the kind of err, KindUnknown if it is not part of the taxonomy.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsValidation reports whether err is a local input validation failure.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case KindRecipientRequired, KindInvalidRecipient, KindAmountMustBePositive, KindInsufficientBalance:
		return true
	}
	return false
}

// Failure is a classified collaborator error handed to the transfer state machine.
type Failure struct {
	Kind  Kind
	Cause error
}

// Classify maps err into the taxonomy. A nil error yields a nil Failure.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: KindOf(err), Cause: err}
}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// Retryable reports whether retrying the same request can succeed.
func (f *Failure) Retryable() bool {
	switch f.Kind {
	case KindUnsupportedEnvironment, KindCredentialInvalid:
		return false
	}
	return true
}

// Guidance returns a short hint for the user.
func (f *Failure) Guidance() string {
	switch f.Kind {
	case KindUserCancelled:
		return "The confirmation was dismissed. Retry when ready."
	case KindUnsupportedEnvironment:
		return "This device or browser cannot confirm transfers. Switch to a supported platform."
	case KindCredentialInvalid:
		return "No matching credential was found. Create a new credential to continue."
	case KindNetwork:
		return "The network could not be reached. Retry in a moment."
	default:
		return "Something went wrong. Retry the transfer."
	}
}

package chain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed chat turn so callers can map it to an HTTP
// status or a user-facing message without string-matching error text.
type ErrorKind string

const (
	// KindConfig indicates missing or invalid configuration (API keys,
	// model settings) detected before or during a turn.
	KindConfig ErrorKind = "config"
	// KindDocumentProcessing indicates a failure while loading, splitting,
	// or embedding documents.
	KindDocumentProcessing ErrorKind = "document_processing"
	// KindNoVectorStore indicates a question was asked before any documents
	// were processed. No model call is made in this case.
	KindNoVectorStore ErrorKind = "no_vector_store"
	// KindModelInvocation indicates the embedding or chat model call failed
	// (network, auth, rate limit, timeout).
	KindModelInvocation ErrorKind = "model_invocation"
	// KindCorruptStore indicates the persisted vector store on disk is
	// inconsistent and could not be loaded.
	KindCorruptStore ErrorKind = "corrupt_store"
	// KindInvalidInput indicates the question was rejected before any model
	// interaction, for example because it was blank.
	KindInvalidInput ErrorKind = "invalid_input"
)

// TurnError wraps a failure from any stage of a chat turn with its kind.
// Every error that crosses the chain boundary is a *TurnError.
type TurnError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Err is the underlying cause.
	Err error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("chain: %s: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err if it is (or wraps) a *TurnError,
// or the empty string otherwise.
func KindOf(err error) ErrorKind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// User-facing fallback messages for failed turns. These are returned to the
// client instead of raw error text, which may contain URLs or internal detail.
const (
	// NoStoreMessage is shown when a question arrives before any documents
	// have been processed.
	NoStoreMessage = "No documents have been processed yet. Please upload and process a PDF before asking questions."
	// ModelFailureMessage is shown when the model call fails after retry.
	ModelFailureMessage = "Sorry, I ran into a problem while generating an answer. Please try again in a moment."
	// CorruptStoreMessage is shown when the on-disk index could not be loaded.
	CorruptStoreMessage = "The saved document index appears to be damaged. Please re-process your documents."
	// EmptyQuestionMessage is shown when the question is blank.
	EmptyQuestionMessage = "Please enter a question."
)

// FallbackMessage maps a turn error to the message shown to the user.
func FallbackMessage(err error) string {
	switch KindOf(err) {
	case KindNoVectorStore:
		return NoStoreMessage
	case KindCorruptStore:
		return CorruptStoreMessage
	case KindInvalidInput:
		return EmptyQuestionMessage
	default:
		return ModelFailureMessage
	}
}

package ipc

import (
	"fmt"

	"github.com/torosent/pipebench/internal/metrics"
)

// Kind identifies which variant of a Message is active.
type Kind uint8

const (
	// KindResult carries an accumulator batch from a worker.
	KindResult Kind = iota
	// KindExit asks a worker to stop.
	KindExit
	// KindWillExit announces that the sender is about to stop.
	KindWillExit
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindExit:
		return "exit"
	case KindWillExit:
		return "will-exit"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is the unit exchanged over a Channel. Result is set only for KindResult.
type Message struct {
	Kind   Kind
	Result *metrics.Accumulator
}

// ResultMessage wraps a snapshot of acc. The caller may reset acc afterwards.
func ResultMessage(acc *metrics.Accumulator) Message {
	return Message{Kind: KindResult, Result: acc.Clone()}
}

func ExitMessage() Message     { return Message{Kind: KindExit} }
func WillExitMessage() Message { return Message{Kind: KindWillExit} }

// Equal reports whether two messages carry the same kind and payload.
func (m Message) Equal(other Message) bool {
	if m.Kind != other.Kind {
		return false
	}
	if m.Kind != KindResult {
		return true
	}
	return m.Result.Equal(other.Result)
}

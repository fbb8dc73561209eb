//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=../../internal/mocks/mock_collaborators.go -package=mocks
package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Broadcaster fans an event out to every connection of a session.
// Delivery is fire-and-forget; the return value is the number of
// connections that accepted the frame.
type Broadcaster interface {
	Broadcast(ctx context.Context, sessionID, event string, payload interface{}) int
}

// TypingStopper is the slice of the typing coordinator the pipeline needs
type TypingStopper interface {
	StopTyping(sessionID, userID string) bool
}

// AIGateway resolves a provider and generates a reply. It never returns an
// error; failures come back as AIResponse with Success=false.
type AIGateway interface {
	Generate(ctx context.Context, provider types.Provider, message string, turns []types.Turn) types.AIResponse
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// embeddedPath is where list responses inline a conversation's messages.
const embeddedPath = "messages"

// MessageSource yields the messages of one conversation.
type MessageSource interface {
	Messages(ctx context.Context, conversation models.Payload, conversationID string) ([]models.Payload, error)
}

// MessageLister is the part of the source client the pipeline needs.
type MessageLister interface {
	ListMessages(ctx context.Context, conversationID string) ([]models.Payload, error)
}

// FetchSource asks the upstream API for every conversation's messages.
type FetchSource struct {
	Client MessageLister
}

func (s FetchSource) Messages(ctx context.Context, _ models.Payload, conversationID string) ([]models.Payload, error) {
	if s.Client == nil {
		return nil, fmt.Errorf("pipeline: no message client configured")
	}
	return s.Client.ListMessages(ctx, conversationID)
}

// EmbeddedSource reads the messages inlined in the conversation payload. A
// conversation without them has no messages.
type EmbeddedSource struct{}

func (EmbeddedSource) Messages(_ context.Context, conversation models.Payload, _ string) ([]models.Payload, error) {
	list, ok := conversation.List(embeddedPath)
	if !ok {
		return nil, nil
	}
	return models.Payloads(list), nil
}

// AutoSource uses the inlined messages when the payload carries them and
// fetches otherwise.
type AutoSource struct {
	Fetch FetchSource
}

func (s AutoSource) Messages(ctx context.Context, conversation models.Payload, conversationID string) ([]models.Payload, error) {
	if list, ok := conversation.List(embeddedPath); ok {
		return models.Payloads(list), nil
	}
	return s.Fetch.Messages(ctx, conversation, conversationID)
}

// NewMessageSource builds the source for a SOURCE_MESSAGE_MODE value.
func NewMessageSource(mode string, client MessageLister) (MessageSource, error) {
	switch mode {
	case utils.MessageModeFetch, "":
		return FetchSource{Client: client}, nil
	case utils.MessageModeEmbedded:
		return EmbeddedSource{}, nil
	case utils.MessageModeAuto:
		return AutoSource{Fetch: FetchSource{Client: client}}, nil
	default:
		return nil, fmt.Errorf("pipeline: unknown message mode %q", mode)
	}
}

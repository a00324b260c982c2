package service

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/AgentDeck/internal/domain"
	"github.com/Strob0t/AgentDeck/internal/domain/chat"
)

// DefaultThinkingDelay is how long the agent "thinks" before replying.
const DefaultThinkingDelay = 1500 * time.Millisecond

const chatReply = "I'll help you create a workflow for that. " +
	"I've analyzed your requirements and prepared a suggested workflow structure."

// ChatSuggestions are the prompts offered on an empty conversation.
var ChatSuggestions = []string{
	"Create a web scraping workflow",
	"Build a data processing pipeline",
	"Set up a document analysis workflow",
	"Design a content moderation system",
}

// Exchange is a user prompt and the agent's reply to it.
type Exchange struct {
	Prompt chat.Message `json:"prompt"`
	Reply  chat.Message `json:"reply"`
}

// ChatService answers workflow prompts with a model recommendation and a
// suggested workflow.
type ChatService struct {
	delay time.Duration
	sleep func(context.Context, time.Duration) error
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewChatService creates a ChatService with the default thinking delay.
func NewChatService() *ChatService {
	return &ChatService{
		delay: DefaultThinkingDelay,
		sleep: sleepCtx,
		now:   time.Now,
		rng:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)), //nolint:gosec // simulation only
	}
}

// SetThinkingDelay replaces the reply delay.
func (s *ChatService) SetThinkingDelay(d time.Duration) {
	s.delay = d
}

// Analyze scores the prompt and recommends a model and workflow.
func (s *ChatService) Analyze(input string) chat.Analysis {
	complexity := chat.Complexity(input)
	s.rngMu.Lock()
	confidence := 0.8 + s.rng.Float64()*0.2
	s.rngMu.Unlock()
	return chat.Analysis{
		Model:      chat.SelectModel(complexity),
		Complexity: complexity,
		Confidence: confidence,
		Workflow:   chat.SuggestedWorkflow(),
	}
}

// Send analyzes the prompt and replies after the thinking delay.
func (s *ChatService) Send(ctx context.Context, input string) (*Exchange, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &UserError{Message: "message is required", Err: domain.ErrValidation}
	}
	prompt := chat.Message{
		ID:        uuid.NewString(),
		Content:   input,
		Sender:    "user",
		Timestamp: s.now(),
	}
	analysis := s.Analyze(input)

	if err := s.sleep(ctx, s.delay); err != nil {
		return nil, err
	}

	return &Exchange{
		Prompt: prompt,
		Reply: chat.Message{
			ID:        uuid.NewString(),
			Content:   chatReply,
			Sender:    "agent",
			Timestamp: s.now(),
			Analysis:  &analysis,
		},
	}, nil
}

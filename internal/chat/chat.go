// Package chat runs one conversational turn: pick an affordable model, stream
// the completion back to the client and charge the user for it.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"secretari/internal/config"
	"secretari/internal/errors"
	"secretari/internal/model"
)

// Message types sent to the client.
const (
	TypeStream = "stream"
	TypeResult = "result"
)

// InsufficientBalanceAnswer is the answer of a turn the user cannot pay for.
const InsufficientBalanceAnswer = "Insufficient balance"

// HistoryItem is one earlier question and answer kept by the client.
type HistoryItem struct {
	Q string `json:"Q"`
	A string `json:"A"`
}

// Input is the user content of a turn.
type Input struct {
	Query   string        `json:"query"`
	RawText string        `json:"rawtext"`
	History []HistoryItem `json:"history,omitempty"`
}

// Parameters select the provider and model of a turn.
type Parameters struct {
	LLM         string      `json:"llm"`
	Model       string      `json:"model"`
	Temperature json.Number `json:"temperature,omitempty"`
}

// Event is one client message on the chat socket.
type Event struct {
	User       string     `json:"user"`
	Input      Input      `json:"input"`
	Parameters Parameters `json:"parameters"`
}

// StreamMessage carries one chunk of an answer.
type StreamMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// ResultMessage closes a turn.
type ResultMessage struct {
	Type   string          `json:"type"`
	Answer string          `json:"answer"`
	Tokens string          `json:"tokens"`
	Cost   string          `json:"cost"`
	User   *model.UserView `json:"user,omitempty"`
}

// Request is what a Completer is asked to answer.
type Request struct {
	Model       string
	Prompt      string
	RawText     string
	Temperature float64
}

// Usage is what a completion cost.
type Usage struct {
	Tokens int64
	Cost   decimal.Decimal
}

// Completer produces an answer, calling emit for every chunk as it arrives.
type Completer interface {
	Complete(ctx context.Context, req Request, emit func(chunk string) error) (Usage, error)
}

// Accounts is the ledger side of a turn.
type Accounts interface {
	SelectModel(ctx context.Context, username, requested string) (string, *model.UserRecord, error)
	Bookkeep(ctx context.Context, username, modelName string, cost decimal.Decimal, tokens int64) (*model.UserRecord, error)
}

// Service handles chat turns.
type Service struct {
	accounts  Accounts
	completer Completer
	catalog   *config.Catalog
}

// NewService creates a chat service.
func NewService(accounts Accounts, completer Completer, catalog *config.Catalog) *Service {
	return &Service{accounts: accounts, completer: completer, catalog: catalog}
}

// Handle runs one turn for username and writes every outgoing message via send.
// An unaffordable turn is answered with InsufficientBalanceAnswer, not an error.
func (s *Service) Handle(ctx context.Context, username string, ev Event, send func(v interface{}) error) error {
	requested := ev.Parameters.Model
	if requested == "" {
		requested = s.catalog.FallbackModel
	}

	billed, rec, err := s.accounts.SelectModel(ctx, username, requested)
	if errors.Is(err, errors.ErrInsufficientBalance) {
		res := ResultMessage{Type: TypeResult, Answer: InsufficientBalanceAnswer, Tokens: "0", Cost: "0.00"}
		if rec != nil {
			v := rec.View()
			res.User = &v
		}
		return send(res)
	}
	if err != nil {
		return fmt.Errorf("select model: %w", err)
	}

	temp, _ := ev.Parameters.Temperature.Float64()
	req := Request{
		Model:       billed,
		Prompt:      BuildPrompt(ev.Input, s.catalog.MaxTokens(billed)),
		RawText:     ev.Input.RawText,
		Temperature: temp,
	}

	var answer strings.Builder
	usage, err := s.completer.Complete(ctx, req, func(chunk string) error {
		answer.WriteString(chunk)
		return send(StreamMessage{Type: TypeStream, Data: chunk})
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	rec, err = s.accounts.Bookkeep(ctx, username, billed, usage.Cost, usage.Tokens)
	if err != nil {
		return fmt.Errorf("bookkeep: %w", err)
	}

	v := rec.View()
	return send(ResultMessage{
		Type:   TypeResult,
		Answer: answer.String(),
		Tokens: fmt.Sprintf("%d", usage.Tokens),
		Cost:   usage.Cost.String(),
		User:   &v,
	})
}

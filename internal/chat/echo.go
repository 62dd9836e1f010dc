package chat

import (
	"context"

	"github.com/shopspring/decimal"
)

// EchoCompleter answers with the raw text of the request and reports a fixed
// usage. It stands in for a real model provider.
type EchoCompleter struct {
	Tokens int64
	Cost   decimal.Decimal
}

// Complete emits the raw text as a single chunk.
func (e EchoCompleter) Complete(ctx context.Context, req Request, emit func(chunk string) error) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	text := req.RawText
	if text == "" {
		text = req.Prompt
	}
	if err := emit(text); err != nil {
		return Usage{}, err
	}
	return Usage{Tokens: e.Tokens, Cost: e.Cost}, nil
}

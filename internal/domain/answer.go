package domain

import "context"

// Answerer turns the raw text of a message into reply text.
type Answerer interface {
	Answer(ctx context.Context, text string) (string, error)
}

// AnswerFunc adapts an ordinary function to the Answerer interface.
type AnswerFunc func(ctx context.Context, text string) (string, error)

func (f AnswerFunc) Answer(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

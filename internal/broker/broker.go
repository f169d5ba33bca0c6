// Package broker defines the Broker interface and the in-memory simulator
// that fills backtest orders.
package broker

import (
	"context"
	"errors"

	"stockbt/internal/domain"
)

// ErrInsufficientCash is returned when a buy would drive cash below zero.
var ErrInsufficientCash = errors.New("insufficient cash")

// ErrNoPosition is returned when a sell arrives while flat.
var ErrNoPosition = errors.New("no open position")

// Broker abstracts order execution and account state.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// SubmitOrder executes an order and returns it with its fill recorded.
	SubmitOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)

	// Position returns the open position for symbol, if any.
	Position(symbol string) (domain.Position, bool)

	// Account values the account with open positions marked at price.
	Account(price float64) domain.AccountInfo

	// Trades returns the closed round trips in the order they were closed.
	Trades() []domain.Trade
}

// Package ledger holds the bookkeeping rules applied to a fetched user record.
//
// Functions here never touch storage. Callers fetch a record, apply Charge and
// persist the result; two concurrent charges racing between fetch and store
// lose one update (last write wins).
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"secretari/internal/errors"
	"secretari/internal/model"
)

// Charge debits one model call from rec and returns rec.
//
// Lifetime dollar usage accumulates, the prepaid token balance is floored at
// zero, and the month-to-date usage restarts from costDelta when now falls in a
// different UTC calendar month than the previous update (or on the first charge).
func Charge(rec *model.UserRecord, modelName string, costDelta decimal.Decimal, tokenDelta int64, now time.Time) *model.UserRecord {
	rec.EnsureMaps()

	if prev, ok := rec.TokenUsage[modelName]; ok {
		rec.TokenUsage[modelName] = prev.Add(costDelta)
	} else {
		rec.TokenUsage[modelName] = costDelta
	}

	left := rec.TokenCount[modelName] - tokenDelta
	if left < 0 {
		left = 0
	}
	rec.TokenCount[modelName] = left

	last := rec.LastUpdate()
	if !last.IsZero() && SameMonth(last, now) {
		rec.CurrentUsage[modelName] = rec.CurrentUsage[modelName].Add(costDelta)
	} else {
		rec.CurrentUsage[modelName] = costDelta
	}

	rec.LastUpdateTimestamp = now.Unix()
	return rec
}

// CheckAffordability returns the model that should be billed for a request.
// An exhausted requested model falls back to fallback; if that is exhausted
// too, ErrInsufficientBalance is returned and no paid call should be made.
func CheckAffordability(rec *model.UserRecord, requested, fallback string) (string, error) {
	if rec.TokenCount[requested] > 0 {
		return requested, nil
	}
	if rec.TokenCount[fallback] > 0 {
		return fallback, nil
	}
	return "", errors.ErrInsufficientBalance
}

// Credit adds prepaid tokens for a model, e.g. from a redeemed coupon.
func Credit(rec *model.UserRecord, modelName string, tokens int64) *model.UserRecord {
	rec.EnsureMaps()
	rec.TokenCount[modelName] += tokens
	return rec
}

// SameMonth reports whether a and b fall in the same UTC calendar month.
func SameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

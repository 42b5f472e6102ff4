package models

import (
	"errors"
	"time"
)

var (
	ErrChallengeConsumed = errors.New("two-factor challenge already consumed")
	ErrChallengeExpired  = errors.New("two-factor challenge expired")
)

// TwoFactorChallenge is the state between the first and second step of a
// broker login. It is created when the broker demands an OTP, consumed
// exactly once by the second-factor step, and invalid afterwards or after
// its deadline.
type TwoFactorChallenge struct {
	token    string
	deadline time.Time
	consumed bool
}

func NewTwoFactorChallenge(token string, ttl time.Duration) *TwoFactorChallenge {
	return &TwoFactorChallenge{
		token:    token,
		deadline: time.Now().Add(ttl),
	}
}

// Consume returns the challenge token once. Subsequent calls and calls
// after the deadline fail.
func (c *TwoFactorChallenge) Consume(now time.Time) (string, error) {
	if c.consumed {
		return "", ErrChallengeConsumed
	}
	if now.After(c.deadline) {
		return "", ErrChallengeExpired
	}
	c.consumed = true
	return c.token, nil
}

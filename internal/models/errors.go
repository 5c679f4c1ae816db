package models

import "errors"

// ErrTrialExhausted surfaces a failed trial-counter increment: the
// account has no free searches left and must upgrade.
var ErrTrialExhausted = errors.New("trial searches exhausted")

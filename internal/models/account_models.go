package models

import "time"

// UserAccount is the per-identity record backing the access gate.
// Created with (0, false) on first sign-in, never deleted.
type UserAccount struct {
	Email         string `json:"email" dynamodbav:"email"`
	SearchesUsed  int    `json:"searches_used" dynamodbav:"searches_used"`
	IsPremium     bool   `json:"is_premium" dynamodbav:"is_premium"`
	CreatedAtUnix int64  `json:"created_at" dynamodbav:"created_at"`
}

// HistoryRecord is one completed search. Append-only. CreatedAt is Unix
// nanoseconds: it doubles as the review table's sort key, so it must not
// collide for back-to-back searches by the same user.
type HistoryRecord struct {
	ID           string  `json:"id" dynamodbav:"id"`
	Email        string  `json:"email" dynamodbav:"email"`
	Product      string  `json:"product" dynamodbav:"product"`
	AvgScore     float64 `json:"avg_score" dynamodbav:"avg_score"`
	Overall      string  `json:"overall" dynamodbav:"overall"`
	DetailsJSON  string  `json:"details" dynamodbav:"details"`
	SearchesUsed int     `json:"searches_used" dynamodbav:"searches_used"`
	CreatedAt    int64   `json:"created_at" dynamodbav:"created_at"`
}

// Session carries the signed-in identity through the request chain.
// Typed fields, not ambient flag lookups.
type Session struct {
	Token        string    `json:"token"`
	Email        string    `json:"email"`
	SearchesUsed int       `json:"searches_used"`
	IsPremium    bool      `json:"is_premium"`
	CreatedAt    time.Time `json:"created_at"`
}

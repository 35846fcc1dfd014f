package domain

import "errors"

var (
	// ErrTestNotFound indicates the test schema could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrSessionNotFound is returned when a questionnaire session has not been started.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionCompleted is returned when acting on an already finished session.
	ErrSessionCompleted = errors.New("session already completed")
	// ErrInvalidSelection indicates the submitted label matches no option of the current question.
	ErrInvalidSelection = errors.New("option does not belong to current question")
	// ErrSchemaMismatch indicates the answers and schema disagree (length or dimension set).
	ErrSchemaMismatch = errors.New("answers do not match test schema")
)

package db

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

// mockMongoDuplicateKeyError creates an error that IsMongoDuplicateKeyError recognizes.
func mockMongoDuplicateKeyError(key string) error {
	return mongo.WriteException{WriteErrors: []mongo.WriteError{{
		Code:    11000,
		Message: fmt.Sprintf("E11000 duplicate key error collection: market.listings index: slug_1 dup key: { : %q }", key),
	}}}
}

func TestWithRetries_SuccessfulFirstAttempt(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return nil
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_FailureNonDuplicateKey(t *testing.T) {
	var opCalled int
	expectedErr := errors.New("connection reset")
	operation := func() error {
		opCalled++
		return expectedErr
	}

	err := WithRetries(operation, 3, IsMongoDuplicateKeyError)
	if !errors.Is(err, expectedErr) {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if opCalled != 1 {
		t.Errorf("Expected operation to be called 1 time, got %d", opCalled)
	}
}

func TestWithRetries_ExhaustRetries(t *testing.T) {
	var opCalled int
	operation := func() error {
		opCalled++
		return mockMongoDuplicateKeyError("summer-dress")
	}

	maxRetries := 3
	err := WithRetries(operation, maxRetries, IsMongoDuplicateKeyError)
	if err == nil {
		t.Fatal("Expected a duplicate key error, got nil")
	}
	if !IsMongoDuplicateKeyError(err) {
		t.Errorf("Expected a Mongo duplicate key error, got %T: %v", err, err)
	}
	if opCalled != maxRetries+1 {
		t.Errorf("Expected operation to be called %d times, got %d", maxRetries+1, opCalled)
	}
}

func TestWithRetries_CollisionResolves(t *testing.T) {
	// Simulates the slug disambiguation loop: the first two candidates
	// collide with an existing row, the third lands.
	taken := map[string]bool{"dresses": true, "dresses-2": true}
	candidates := []string{"dresses", "dresses-2", "dresses-3"}

	var opCalled int
	operation := func() error {
		candidate := candidates[opCalled]
		opCalled++
		if taken[candidate] {
			return mockMongoDuplicateKeyError(candidate)
		}
		taken[candidate] = true
		return nil
	}

	if err := WithRetries(operation, 3, IsMongoDuplicateKeyError); err != nil {
		t.Fatalf("Expected collision to resolve, got: %v", err)
	}
	if opCalled != 3 {
		t.Errorf("Expected operation to be called 3 times, got %d", opCalled)
	}
	if !taken["dresses-3"] {
		t.Error("Expected final candidate to be recorded")
	}
}

func TestIsMongoDuplicateKeyError_OtherErrors(t *testing.T) {
	if IsMongoDuplicateKeyError(errors.New("not a mongo error")) {
		t.Error("Plain errors must not be classified as duplicate key errors")
	}
	other := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 121, Message: "document validation failure"}}}
	if IsMongoDuplicateKeyError(other) {
		t.Error("Non-11000 write errors must not be classified as duplicate key errors")
	}
}

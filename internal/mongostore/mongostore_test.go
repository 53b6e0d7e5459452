package mongostore

import (
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
)

// A message append only retries outside a transaction when the server
// rejected the transaction itself; anything else may have committed.
func TestTransactionsUnsupported(t *testing.T) {
	standaloneMsg := "Transaction numbers are only allowed on a replica set member or mongos"
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"illegal operation code", mongo.CommandError{Code: 20, Message: standaloneMsg}, true},
		{"transaction numbers message only", mongo.CommandError{Message: standaloneMsg}, true},
		{"wrapped command error", fmt.Errorf("run transaction: %w", mongo.CommandError{Code: 20, Message: standaloneMsg}), true},
		{"ambiguous commit", mongo.CommandError{Code: 91, Message: "shutdown in progress", Labels: []string{"UnknownTransactionCommitResult"}}, false},
		{"duplicate key", mongo.CommandError{Code: 11000, Message: "E11000 duplicate key error"}, false},
		{"plain error", errors.New("network down"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := transactionsUnsupported(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

package db

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

const duplicateKeyCode = 11000

// IsDuplicateKeyError checks if an error from MongoDB is a unique index
// violation (code 11000). The reconciliation engine treats this as "the
// action already exists" rather than as a failure.
func IsDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, writeError := range we.WriteErrors {
			if writeError.Code == duplicateKeyCode {
				return true
			}
		}
	}

	// Bulk writes report the same condition through a different type.
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		for _, writeError := range bwe.WriteErrors {
			if writeError.Code == duplicateKeyCode {
				return true
			}
		}
	}
	return false
}

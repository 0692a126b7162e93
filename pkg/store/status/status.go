// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/store and one
// of its implementions.
package status

import "github.com/oneconcern/revstore/pkg/errors"

var (
	// ErrKeyNotFound indicates that the fetched key does not exist
	ErrKeyNotFound = errors.New("key not found")

	// ErrEmptyKey indicates an attempt to read or write an empty key
	ErrEmptyKey = errors.New("key is required")

	// ErrStoreClosed indicates an operation on a closed store
	ErrStoreClosed = errors.New("store is closed")

	// ErrTxnConflict indicates a write transaction that kept conflicting with concurrent writers
	ErrTxnConflict = errors.New("transaction conflict")
)

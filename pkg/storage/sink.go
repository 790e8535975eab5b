// Package storage holds what the csv and sqlite stores have in common.
package storage

import (
	"fmt"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

type RowSink interface {
	WriteRows(rows []da.DensifiedRow) error
}

// MultiSink writes every flush to each of its sinks in order and stops at the
// first failure.
type MultiSink []RowSink

func (ms MultiSink) WriteRows(rows []da.DensifiedRow) error {
	for i, s := range ms {
		if err := s.WriteRows(rows); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

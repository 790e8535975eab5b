package storage

import (
	"errors"
	"testing"
	"time"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/stretchr/testify/assert"
)

type countingSink struct {
	rows int
	err  error
}

func (c *countingSink) WriteRows(rows []da.DensifiedRow) error {
	if c.err != nil {
		return c.err
	}
	c.rows += len(rows)
	return nil
}

func TestMultiSink(t *testing.T) {
	rows := []da.DensifiedRow{{Time: time.Unix(0, 0)}, {Time: time.Unix(1, 0)}}

	a, b := &countingSink{}, &countingSink{}
	assert.NoError(t, MultiSink{a, b}.WriteRows(rows))
	assert.Equal(t, 2, a.rows)
	assert.Equal(t, 2, b.rows)

	failing := &countingSink{err: errors.New("disk full")}
	c := &countingSink{}
	err := MultiSink{failing, c}.WriteRows(rows)
	assert.ErrorContains(t, err, "sink 0: disk full")
	assert.Equal(t, 0, c.rows)
}

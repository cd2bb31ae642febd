package ordering

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id  snowflake.ID
	pos int
}

func (r *row) SequenceID() snowflake.ID { return r.id }
func (r *row) SequencePos() int         { return r.pos }
func (r *row) SetSequencePos(p int)     { r.pos = p }

func rows(n int) []*row {
	out := make([]*row, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, &row{id: snowflake.ID(i), pos: i})
	}
	return out
}

func TestSort_RestoresPositionOrder(t *testing.T) {
	items := []*row{{id: 3, pos: 3}, {id: 1, pos: 1}, {id: 2, pos: 2}}
	Sort(items)

	assert.Equal(t, snowflake.ID(1), items[0].id)
	assert.Equal(t, snowflake.ID(2), items[1].id)
	assert.Equal(t, snowflake.ID(3), items[2].id)
}

func TestAppend(t *testing.T) {
	items := rows(2)
	extra := &row{id: 99}
	Append(items, extra)
	assert.Equal(t, 3, extra.pos)
}

func TestInsertAt_ShiftsSubsequent(t *testing.T) {
	items := rows(3)
	extra := &row{id: 99}
	seq := InsertAt(items, extra, 2)

	require.Len(t, seq, 4)
	assert.Equal(t, snowflake.ID(1), seq[0].id)
	assert.Equal(t, snowflake.ID(99), seq[1].id)
	assert.Equal(t, snowflake.ID(2), seq[2].id)
	assert.Equal(t, snowflake.ID(3), seq[3].id)
	assert.True(t, Validate(seq))
}

func TestInsertAt_OutOfRangeAppends(t *testing.T) {
	items := rows(2)
	extra := &row{id: 99}
	seq := InsertAt(items, extra, 10)
	assert.Equal(t, 3, extra.pos)
	assert.True(t, Validate(seq))
}

func TestRemove_ClosesGap(t *testing.T) {
	items := rows(3)
	seq, err := Remove(items, snowflake.ID(2))
	require.NoError(t, err)

	require.Len(t, seq, 2)
	assert.Equal(t, snowflake.ID(1), seq[0].id)
	assert.Equal(t, 1, seq[0].pos)
	assert.Equal(t, snowflake.ID(3), seq[1].id)
	assert.Equal(t, 2, seq[1].pos)
}

func TestRemove_LastLeavesValidEmptySequence(t *testing.T) {
	items := rows(1)
	seq, err := Remove(items, snowflake.ID(1))
	require.NoError(t, err)
	assert.Empty(t, seq)
	assert.True(t, Validate(seq))
}

func TestRemove_UnknownID(t *testing.T) {
	_, err := Remove(rows(2), snowflake.ID(42))
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestApply_FullPermutation(t *testing.T) {
	items := rows(3)
	seq, err := Apply(items, []snowflake.ID{3, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, snowflake.ID(3), seq[0].id)
	assert.Equal(t, 1, seq[0].pos)
	assert.Equal(t, snowflake.ID(1), seq[1].id)
	assert.Equal(t, 2, seq[1].pos)
	assert.Equal(t, snowflake.ID(2), seq[2].id)
	assert.Equal(t, 3, seq[2].pos)
}

func TestApply_RejectsPartialAndForeignOrders(t *testing.T) {
	_, err := Apply(rows(3), []snowflake.ID{1, 2})
	assert.ErrorIs(t, err, ErrOrderMismatch)

	_, err = Apply(rows(3), []snowflake.ID{1, 2, 99})
	assert.ErrorIs(t, err, ErrOrderMismatch)

	_, err = Apply(rows(3), []snowflake.ID{1, 2, 2})
	assert.ErrorIs(t, err, ErrOrderMismatch)
}

func TestPositionsStayDenseAcrossMutations(t *testing.T) {
	items := rows(5)
	var err error

	items, err = Remove(items, snowflake.ID(3))
	require.NoError(t, err)
	items = InsertAt(items, &row{id: 10}, 1)
	items, err = Apply(items, []snowflake.ID{4, 10, 1, 2, 5})
	require.NoError(t, err)

	assert.True(t, Validate(items))
	for i, item := range items {
		assert.Equal(t, i+1, item.pos)
	}
}

func TestValidate_DetectsGapsAndDuplicates(t *testing.T) {
	gap := []*row{{id: 1, pos: 1}, {id: 2, pos: 3}}
	assert.False(t, Validate(gap))

	dup := []*row{{id: 1, pos: 1}, {id: 2, pos: 1}}
	assert.False(t, Validate(dup))
}

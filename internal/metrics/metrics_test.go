package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergerSnapshotReflectsCounters(t *testing.T) {
	m := NewMerger()
	m.PushesAccepted.Add(3)
	m.ChunksEmitted.Add(1)

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.PushesAccepted)
	assert.EqualValues(t, 1, snap.ChunksEmitted)
	assert.Zero(t, snap.PushesRejected)
	assert.Zero(t, snap.LaggardTimeouts)
	assert.Zero(t, snap.SchemaMismatches)
}

func TestWriterSnapshotReflectsCounters(t *testing.T) {
	w := NewWriter()
	w.RowsAppended.Add(10)
	w.Rotations.Add(2)

	snap := w.Snapshot()
	assert.EqualValues(t, 10, snap.RowsAppended)
	assert.EqualValues(t, 2, snap.Rotations)
	assert.Zero(t, snap.WriteErrors)
}

package match

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplica_ConvergesToHost(t *testing.T) {
	m, _, rec := newTestMatch(DefaultConfig(), "A", "B")
	m.Start()
	m.RecordElimination("A", "B")
	m.RecordElimination("A", "B")

	replica := NewReplica()
	for _, s := range rec.published {
		replica.Apply(s)
	}
	assert.Equal(t, m.Scores(), replica.Scores())
	assert.Equal(t, PhaseActive, replica.Phase())
}

func TestReplica_RejectsStaleVersions(t *testing.T) {
	replica := NewReplica()
	var seen []uint64
	replica.OnChange(func(s Snapshot) { seen = append(seen, s.Version) })

	assert.True(t, replica.Apply(Snapshot{Version: 2, Scores: []Entry{{ID: "A", Score: 2}}}))
	assert.False(t, replica.Apply(Snapshot{Version: 1, Scores: []Entry{{ID: "A", Score: 1}}}))
	assert.False(t, replica.Apply(Snapshot{Version: 2, Scores: []Entry{{ID: "A", Score: 9}}}))

	score, ok := replica.Score("A")
	require.True(t, ok)
	assert.Equal(t, 2, score)
	assert.Equal(t, []uint64{2}, seen)
}

func TestReplica_SnapshotIsACopy(t *testing.T) {
	replica := NewReplica()
	replica.Apply(Snapshot{Version: 1, Scores: []Entry{{ID: "A", Score: 1}}})

	snap, ok := replica.Snapshot()
	require.True(t, ok)
	snap.Scores[0].Score = 99

	score, _ := replica.Score("A")
	assert.Equal(t, 1, score)
}

func TestSnapshotPhaseEncodesAsText(t *testing.T) {
	data, err := json.Marshal(Snapshot{RoomCode: "1234", Phase: PhaseEnded})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"ended"`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, PhaseEnded, back.Phase)

	assert.Error(t, json.Unmarshal([]byte(`{"phase":"paused"}`), &back))
}

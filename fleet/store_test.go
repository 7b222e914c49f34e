package fleet

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

// sequence replays values in order and repeats the last one.
func sequence(values ...float64) Source {
	var mu sync.Mutex
	i := 0
	return SourceFunc(func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	})
}

func sampleTasks() map[string][]string {
	return map[string][]string{
		"sat-001": {"Data Dump", "Status Check", "Calibration"},
	}
}

func TestAdvanceAllRotatesTasks(t *testing.T) {
	store, err := NewStore([]model.Entity{
		{ID: "sat-001", OrbitSlot: "LEO-1", Latency: 50, Task: "Data Dump"},
	}, sampleTasks(), WithSource(sequence(0.5)))
	require.NoError(t, err)

	store.AdvanceAll()
	got, ok := store.Entity("sat-001")
	require.True(t, ok)
	assert.Equal(t, "Status Check", got.Task)

	store.AdvanceAll()
	store.AdvanceAll()
	got, _ = store.Entity("sat-001")
	assert.Equal(t, "Data Dump", got.Task)
}

func TestAdvanceAllDefaultsMissingTaskList(t *testing.T) {
	store, err := NewStore([]model.Entity{
		{ID: "sat-009", Latency: 40, Task: "Imaging"},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{model.DefaultTask}, store.TaskList("sat-009"))
	for range 4 {
		store.AdvanceAll()
		got, _ := store.Entity("sat-009")
		assert.Equal(t, model.DefaultTask, got.Task)
	}
}

func TestEmptyTaskListFallsBackToDefault(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "sat-002", Latency: 30}},
		map[string][]string{"sat-002": {}},
		WithDefaultTasks([]string{"Idle", "Beacon"}))
	require.NoError(t, err)

	store.AdvanceAll()
	got, _ := store.Entity("sat-002")
	assert.Equal(t, "Beacon", got.Task)
}

func TestAdvanceAllJittersLatencyExactly(t *testing.T) {
	store, err := NewStore([]model.Entity{
		{ID: "a", Latency: 50},
		{ID: "b", Latency: 100},
	}, nil, WithSource(sequence(0.75, 0.0)))
	require.NoError(t, err)

	store.AdvanceAll()
	ents := store.Entities()
	assert.InDelta(t, 55.0, ents[0].Latency, 1e-9)
	assert.InDelta(t, 90.0, ents[1].Latency, 1e-9)
}

func TestAdvanceAllFloorsLatency(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "a", Latency: 22}}, nil, WithSource(sequence(0)))
	require.NoError(t, err)

	store.AdvanceAll()
	got, _ := store.Entity("a")
	assert.Equal(t, MinLatency, got.Latency)
}

func TestZeroLatencyIsPinned(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "sat-005", Latency: 0}}, nil, WithSource(sequence(0.99)))
	require.NoError(t, err)

	for range 100 {
		store.AdvanceAll()
	}
	got, _ := store.Entity("sat-005")
	assert.Zero(t, got.Latency)
}

func TestAdvanceAllLeavesStatusSignalAndIdentity(t *testing.T) {
	seed := []model.Entity{
		{ID: "x", OrbitSlot: "GEO-2", Status: model.StatusDegraded, Signal: 71, Latency: 40},
		{ID: "y", OrbitSlot: "MEO-1", Status: model.StatusOffline, Signal: 0, Latency: 0},
	}
	store, err := NewStore(seed, nil)
	require.NoError(t, err)

	store.AdvanceAll()
	got := store.Entities()
	require.Len(t, got, 2)
	for i := range seed {
		assert.Equal(t, seed[i].ID, got[i].ID)
		assert.Equal(t, seed[i].OrbitSlot, got[i].OrbitSlot)
		assert.Equal(t, seed[i].Status, got[i].Status)
		assert.Equal(t, seed[i].Signal, got[i].Signal)
	}
}

func TestNewStoreRejectsBadSeed(t *testing.T) {
	_, err := NewStore([]model.Entity{{ID: "a"}, {ID: "a"}}, nil)
	assert.ErrorIs(t, err, ErrDuplicateEntity)

	_, err = NewStore([]model.Entity{{ID: ""}}, nil)
	assert.ErrorIs(t, err, ErrInvalidEntity)

	_, err = NewStore([]model.Entity{{ID: "a", Latency: -1}}, nil)
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestSetStatusAndNominalCount(t *testing.T) {
	store, err := NewStore([]model.Entity{
		{ID: "a", Status: model.StatusNominal},
		{ID: "b"},
		{ID: "c", Status: model.StatusCritical},
	}, nil)
	require.NoError(t, err)

	nominal, total := store.NominalCount()
	assert.Equal(t, 2, nominal)
	assert.Equal(t, 3, total)

	require.NoError(t, store.SetStatus("a", model.StatusDegraded))
	nominal, _ = store.NominalCount()
	assert.Equal(t, 1, nominal)

	assert.ErrorIs(t, store.SetStatus("missing", model.StatusNominal), ErrEntityNotFound)
	assert.ErrorIs(t, store.SetStatus("a", model.Status("exploded")), model.ErrUnknownStatus)
}

func TestEntitiesReturnsCopy(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "a", Task: "Idle"}}, nil)
	require.NoError(t, err)

	view := store.Entities()
	view[0].Task = "mutated"
	got, _ := store.Entity("a")
	assert.Equal(t, "Idle", got.Task)
}

func TestFindBySlot(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "a", OrbitSlot: "LEO-7"}}, nil)
	require.NoError(t, err)

	got, ok := store.FindBySlot("LEO-7")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	_, ok = store.FindBySlot("LEO-8")
	assert.False(t, ok)
}

func TestSubscribeReceivesEachTick(t *testing.T) {
	store, err := NewStore([]model.Entity{{ID: "sat-001", Latency: 50}}, sampleTasks())
	require.NoError(t, err)

	var seen []string
	unsubscribe := store.Subscribe(func(ents []model.Entity) {
		seen = append(seen, ents[0].Task)
	})
	store.AdvanceAll()
	store.AdvanceAll()
	unsubscribe()
	store.AdvanceAll()

	assert.Equal(t, []string{"Status Check", "Calibration"}, seen)
}

func TestConcurrentReadsDuringAdvance(t *testing.T) {
	store, err := NewStore([]model.Entity{
		{ID: "sat-001", Latency: 50},
		{ID: "sat-002", Latency: 60},
	}, sampleTasks())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				for _, e := range store.Entities() {
					if e.Latency < MinLatency {
						t.Errorf("latency %v below floor", e.Latency)
						return
					}
				}
			}
		}()
	}
	for range 200 {
		store.AdvanceAll()
	}
	wg.Wait()
}

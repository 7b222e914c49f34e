package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

func TestDefaultFleet(t *testing.T) {
	snap, err := Default()
	require.NoError(t, err)

	require.Len(t, snap.Entities, 5)
	assert.Equal(t, "sat-001", snap.Entities[0].ID)
	assert.Equal(t, model.StatusNominal, snap.Entities[0].Status)
	assert.Equal(t, model.StatusOffline, snap.Entities[4].Status)
	assert.Zero(t, snap.Entities[4].Latency)
	assert.Equal(t, []string{"Data Dump", "Status Check", "Calibration"}, snap.Tasks["sat-001"])
	_, hasTasks := snap.Tasks["sat-005"]
	assert.False(t, hasTasks)

	active := 0
	for _, p := range snap.Phases {
		if p.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	body := `{
	  "entities": [{"id": "sat-001", "orbitSlot": "LEO-1", "status": "Degraded", "latency": 50}],
	  "phases": [{"name": "A", "isActive": true, "progress": 98}],
	  "tasks": {"sat-001": ["Data Dump", "Status Check"]}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	snap, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDegraded, snap.Entities[0].Status)
	assert.Equal(t, 98, snap.Phases[0].Progress)
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	snap, err := Load("")
	require.NoError(t, err)
	assert.Len(t, snap.Entities, 5)
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	_, err := Decode(strings.NewReader("entities:\n  - id: a\n    status: exploded\n"), FormatYAML)
	assert.ErrorIs(t, err, model.ErrUnknownStatus)
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("entities:\n  - id: a\n    lattency: 3\n"), FormatYAML)
	assert.Error(t, err)
}

func TestLoadUnsupportedExtension(t *testing.T) {
	_, err := Load("fleet.toml")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

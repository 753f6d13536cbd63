package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferlab/modelmgr/pkg/config"
	"github.com/inferlab/modelmgr/pkg/driver"
	"github.com/inferlab/modelmgr/pkg/events"
	"github.com/inferlab/modelmgr/pkg/models"
)

func TestReconcileAdoptsHealthyContainer(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.driver.inspect["llama-8b-ctr"] = driver.ContainerInfo{Present: true, Running: true}
	f.prober.setSamples(healthySample())

	f.engine.Reconcile(context.Background())

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateRunning, v.State)
	require.NotNil(t, v.LastProbe)
	assert.Equal(t, models.OutcomeOK, v.LastProbe.Outcome)
	assert.Equal(t, 0, f.driver.startCount(), "adoption must not run the start command")

	payloads := f.events.snapshot()
	require.Len(t, payloads, 1)
	assert.Equal(t, models.StateRunning, payloads[0].Status)
	assert.Equal(t, models.StateStopped, payloads[0].Previous)
}

func TestReconcileLeavesUnreachableContainer(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.driver.inspect["llama-8b-ctr"] = driver.ContainerInfo{Present: true, Running: true}
	// Prober keeps reporting transport errors

	f.engine.Reconcile(context.Background())

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateStopped, v.State)
	assert.Empty(t, f.events.snapshot())
}

func TestReconcileSkipsAbsentAndExited(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100), testSpec("qwen-coder", 8101))
	// llama-8b has no container at all; qwen-coder left an exited one behind
	f.driver.inspect["qwen-coder-ctr"] = driver.ContainerInfo{Present: true, Running: false, StatusLine: "exited"}

	f.engine.Reconcile(context.Background())

	for _, id := range []string{"llama-8b", "qwen-coder"} {
		v, _ := f.engine.Get(id)
		assert.Equal(t, models.StateStopped, v.State, id)
	}
	assert.Equal(t, 0, f.prober.callCount(), "nothing to probe when no container is running")
}

func TestReconcileInspectErrorContinues(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.driver.inspectErr = assert.AnError

	f.engine.Reconcile(context.Background())

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, models.StateStopped, v.State)
}

func TestReloadAddsNewModel(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 8100),
		testSpec("qwen-coder", 8101),
	}))

	views, err := f.engine.List()
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "llama-8b", views[0].ID)
	assert.Equal(t, "qwen-coder", views[1].ID)
	assert.Equal(t, models.StateStopped, views[1].State)
}

func TestReloadRemovesStoppedModel(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100), testSpec("qwen-coder", 8101))

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 8100),
	}))

	views, err := f.engine.List()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "llama-8b", views[0].ID)
	_, err = f.engine.Get("qwen-coder")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReloadUpdatesStoppedSpec(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 9999),
	}))

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, 9999, v.Port)
}

func TestReloadKeepsActiveSpecUntilStopped(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 9999),
	}))

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, 8100, v.Port, "a running model keeps its spec")
	assert.Equal(t, models.StateRunning, v.State)

	require.NoError(t, f.engine.Stop(context.Background(), "llama-8b"))
	f.waitForState(t, "llama-8b", models.StateStopped)

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 9999),
	}))
	v, _ = f.engine.Get("llama-8b")
	assert.Equal(t, 9999, v.Port)
}

func TestReloadRetainsRemovedActiveModel(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	f.startAndWaitRunning(t, "llama-8b")

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("qwen-coder", 8101),
	}))

	// The removed model stays managed so it can still be stopped
	v, err := f.engine.Get("llama-8b")
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, v.State)

	require.NoError(t, f.engine.Stop(context.Background(), "llama-8b"))
	f.waitForState(t, "llama-8b", models.StateStopped)

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("qwen-coder", 8101),
	}))
	_, err = f.engine.Get("llama-8b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReloadSkipsModelMidOperation(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))
	rt, err := f.engine.runtime("llama-8b")
	require.NoError(t, err)
	rt.actionMu.Lock()
	defer rt.actionMu.Unlock()

	f.engine.ReloadCatalog(config.NewCatalog([]*config.ModelSpec{
		testSpec("llama-8b", 9999),
	}))

	v, _ := f.engine.Get("llama-8b")
	assert.Equal(t, 8100, v.Port, "a model holding its action lock keeps its spec this reload")
}

func TestStatusFrames(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100), testSpec("qwen-coder", 8101))
	f.startAndWaitRunning(t, "llama-8b")

	frames := f.engine.StatusFrames()
	require.Len(t, frames, 2)

	var first, second events.ModelStatusPayload
	require.NoError(t, json.Unmarshal(frames[0], &first))
	require.NoError(t, json.Unmarshal(frames[1], &second))

	assert.Equal(t, events.EventTypeModelStatus, first.Type)
	assert.Equal(t, "llama-8b", first.ModelID)
	assert.Equal(t, models.StateRunning, first.Status)
	assert.NotEmpty(t, first.Timestamp)

	assert.Equal(t, "qwen-coder", second.ModelID)
	assert.Equal(t, models.StateStopped, second.Status)
}

func TestStatusFramesEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.engine.StatusFrames())
}

func TestReadyView(t *testing.T) {
	f := newFixture(t, testSpec("llama-8b", 8100))

	_, err := f.engine.ReadyView("llama-8b")
	assert.ErrorIs(t, err, ErrModelNotReady)

	_, err = f.engine.ReadyView("no-such-model")
	assert.ErrorIs(t, err, ErrNotFound)

	f.startAndWaitRunning(t, "llama-8b")
	v, err := f.engine.ReadyView("llama-8b")
	require.NoError(t, err)
	assert.Equal(t, models.StateRunning, v.State)
}

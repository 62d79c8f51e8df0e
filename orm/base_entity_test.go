package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/astra-lucid/lucidorm/contracts"
)

func TestBaseEntityIsPersistedStartsFalse(t *testing.T) {
	var b BaseEntity
	assert.False(t, b.IsPersisted())
	assert.Nil(t, b.ChangedValues())
}

func TestBaseEntityMarkPersistedSnapshotsAndClearsChanges(t *testing.T) {
	var b BaseEntity
	b.TrackChange("Name", "ada")
	b.MarkPersisted(map[string]any{"id": int64(1), "name": "ada"})

	assert.True(t, b.IsPersisted())
	assert.Nil(t, b.ChangedValues())
}

func TestBaseEntityTrackChangeAccumulatesUntilMarkPersisted(t *testing.T) {
	var b BaseEntity
	b.TrackChange("Name", "ada")
	b.TrackChange("Age", 30)

	changed := b.ChangedValues()
	assert.Equal(t, "ada", changed["Name"])
	assert.Equal(t, 30, changed["Age"])

	b.MarkPersisted(nil)
	assert.Nil(t, b.ChangedValues())
}

func TestBaseEntityChangedValuesReturnsIndependentCopy(t *testing.T) {
	var b BaseEntity
	b.TrackChange("Name", "ada")

	changed := b.ChangedValues()
	changed["Name"] = "mutated"

	assert.Equal(t, "ada", b.ChangedValues()["Name"])
}

type hookSpy struct {
	BaseEntity
	seen []contracts.HookType
}

func (h *hookSpy) ORMHook(hook contracts.HookType) {
	h.seen = append(h.seen, hook)
}

func TestRunHookInvokesImplementorAndIgnoresOthers(t *testing.T) {
	spy := &hookSpy{}
	runHook(spy, contracts.BeforeCreate)
	runHook(spy, contracts.AfterCreate)
	assert.Equal(t, []contracts.HookType{contracts.BeforeCreate, contracts.AfterCreate}, spy.seen)

	assert.NotPanics(t, func() { runHook(struct{}{}, contracts.BeforeCreate) })
	assert.NotPanics(t, func() { runHook(nil, contracts.BeforeCreate) })
}

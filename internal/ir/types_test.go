package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKeyIdentity(t *testing.T) {
	id := ObjectBranchID{Branch: TrunkBranch, Type: "E", ID: "e1"}
	k3 := id.At(3)
	live := id.At(CurrentRevision)

	assert.True(t, k3.SameObject(live))
	assert.Equal(t, id, k3.ObjectBranchID())
	assert.NotEqual(t, k3, live)
}

func TestObjectKeyResolve(t *testing.T) {
	id := ObjectBranchID{Branch: TrunkBranch, Type: "E", ID: "e1"}

	assert.Equal(t, int64(9), id.At(CurrentRevision).Resolve(9))
	assert.Equal(t, int64(4), id.At(4).Resolve(9))
}

func TestObjectBranchIDCompare(t *testing.T) {
	a := ObjectBranchID{Branch: 1, Type: "A", ID: "2"}
	b := ObjectBranchID{Branch: 1, Type: "B", ID: "1"}
	c := ObjectBranchID{Branch: 2, Type: "A", ID: "1"}

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(c))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, ObjectBranchID{}.IsZero())
}

func TestObjectKeyString(t *testing.T) {
	id := ObjectBranchID{Branch: 2, Type: "E", ID: "e1"}
	assert.Equal(t, "E:e1@2", id.String())
	assert.Equal(t, "E:e1@2", id.At(CurrentRevision).String())
	assert.Equal(t, "E:e1@2#5", id.At(5).String())
}

func TestBranchJSON(t *testing.T) {
	b := Branch{ID: 2, Base: TrunkBranch, BaseRevision: 4, Created: 5}
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"base":1,"base_revision":4,"created":5}`, string(data))
}

package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"docgate/internal/model"
)

func TestToBSONConvertsHexID(t *testing.T) {
	hex := "65a1f0c2e4b0a1b2c3d4e5f6"
	in := model.Document{"_id": hex, "name": "x"}

	out := toBSON(in)

	oid, ok := out["_id"].(primitive.ObjectID)
	require.True(t, ok)
	assert.Equal(t, hex, oid.Hex())
	assert.Equal(t, hex, in["_id"], "input is not modified")
}

func TestToBSONKeepsOtherIDs(t *testing.T) {
	assert.Equal(t, "_seed", toBSON(model.Document{"_id": "_seed"})["_id"])
	assert.Equal(t, 7, toBSON(model.Document{"_id": 7})["_id"])
	assert.Empty(t, toBSON(nil))
}

func TestNewConnector(t *testing.T) {
	c, err := NewConnector("mongo", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &MongoConnector{}, c)

	c, err = NewConnector("memory", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &MemoryServer{}, c)

	_, err = NewConnector("couch", time.Second)
	assert.Error(t, err)
}

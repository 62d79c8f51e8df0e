package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astra-lucid/lucidorm/contracts"
)

func TestRegistryRegisterDerivesTableAndColumns(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&EntityMeta{
		Class: "UserAccount",
		Properties: map[string]*PropertyMeta{
			"ID":    {PropertyName: "ID", DBType: "uuid", IsPrimary: true},
			"Email": {PropertyName: "Email", DBType: "varchar"},
		},
	})
	require.NoError(t, err)

	meta, err := reg.Get("UserAccount")
	require.NoError(t, err)
	assert.Equal(t, "user_account", meta.Table)
	assert.Equal(t, "public", meta.Schema)
	assert.Equal(t, "id", meta.Properties["ID"].ColumnName)
	assert.Equal(t, "email", meta.Properties["Email"].ColumnName)
	assert.Equal(t, "ID", meta.PrimaryKeyPropertyName())
	assert.Equal(t, "id", meta.PrimaryKeyColumnName())
}

func TestRegistryRegisterRejectsMissingPrimaryKey(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&EntityMeta{
		Class: "Widget",
		Properties: map[string]*PropertyMeta{
			"Name": {PropertyName: "Name"},
		},
	})
	assert.Error(t, err)
}

func TestRegistryRegisterRejectsDuplicatePrimaryKeys(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&EntityMeta{
		Class: "Widget",
		Properties: map[string]*PropertyMeta{
			"ID":   {PropertyName: "ID", IsPrimary: true},
			"UUID": {PropertyName: "UUID", IsPrimary: true},
		},
	})
	assert.Error(t, err)
}

func TestRegistryRegisterRejectsColumnCollision(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&EntityMeta{
		Class: "Widget",
		Properties: map[string]*PropertyMeta{
			"ID":     {PropertyName: "ID", IsPrimary: true},
			"Status": {PropertyName: "Status", ColumnName: "state"},
			"State":  {PropertyName: "State", ColumnName: "state"},
		},
	})
	assert.Error(t, err)
}

func TestRegistryGetUnregisteredReturnsEntityNotRegistered(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("Ghost")
	require.Error(t, err)
}

func TestRegistrySnapshotResolvesForeignKeyType(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&EntityMeta{
		Class: "Author",
		Properties: map[string]*PropertyMeta{
			"ID": {PropertyName: "ID", DBType: "uuid", IsPrimary: true},
		},
	}))
	require.NoError(t, reg.Register(&EntityMeta{
		Class: "Post",
		Properties: map[string]*PropertyMeta{
			"ID": {PropertyName: "ID", DBType: "bigint", IsPrimary: true},
		},
		Relations: []*RelationMeta{
			{Kind: contracts.ManyToOne, PropertyName: "Author", Entity: "Author", ForeignKey: "AuthorID"},
		},
	}))

	postMeta, err := reg.Get("Post")
	require.NoError(t, err)
	snap, err := reg.Snapshot(postMeta)
	require.NoError(t, err)

	var fkCol *SchemaColumn
	for i := range snap.Columns {
		if snap.Columns[i].ForeignKeyEntity == "Author" {
			fkCol = &snap.Columns[i]
		}
	}
	require.NotNil(t, fkCol)
	assert.Equal(t, "uuid", fkCol.DBType)
	assert.Equal(t, "author_id", fkCol.ColumnName)
}

func TestRelationNamesSorted(t *testing.T) {
	meta := &EntityMeta{
		Relations: []*RelationMeta{
			{PropertyName: "Zeta"},
			{PropertyName: "Alpha"},
		},
	}
	assert.Equal(t, []string{"Alpha", "Zeta"}, meta.RelationNames())
}

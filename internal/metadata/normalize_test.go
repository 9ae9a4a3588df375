package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFixture() RawIntrospection {
	return RawIntrospection{
		Meta: RawMeta{
			Tables: []RawTable{
				{
					Name: "projects",
					Fields: []RawField{
						{Name: "id", Type: FieldType{WireType: "uuid", DBType: "uuid"}},
						{Name: "name", Type: FieldType{WireType: "text", DBType: "text"}},
						{Name: "owner_id", Type: FieldType{WireType: "uuid", DBType: "uuid"}},
						{Name: "archived", Type: FieldType{WireType: "boolean", DBType: "bool"}},
					},
					Constraints: RawConstraints{
						Primary: []RawKeyConstraint{
							{Name: "projects_pkey", Fields: []string{"id"}},
							{Name: "projects_secondary_pkey", Fields: []string{"name"}},
						},
						Unique: []RawKeyConstraint{
							{Name: "projects_name_key", Fields: []string{"name"}},
						},
						Foreign: []RawForeignKey{
							{
								Name:             "projects_owner_id_fkey",
								Fields:           []string{"owner_id"},
								ReferencedTable:  "users",
								ReferencedFields: []string{"id"},
							},
						},
					},
					Relations: RawRelations{
						BelongsTo: []RawRelation{
							{FieldName: "owner", Table: "users", Keys: []string{"owner_id"}, ReferencedKeys: []string{"id"}},
						},
						HasMany: []RawRelation{
							{FieldName: "tasks", Table: "tasks", Keys: []string{"id"}, ReferencedKeys: []string{"project_id"}},
						},
					},
				},
				{
					Name: "users",
					Fields: []RawField{
						{Name: "id", Type: FieldType{WireType: "uuid", DBType: "uuid"}},
						{Name: "email", Type: FieldType{WireType: "text", DBType: "text"}},
					},
					Constraints: RawConstraints{
						Primary: []RawKeyConstraint{{Name: "users_pkey", Fields: []string{"id"}}},
					},
					Relations: RawRelations{
						HasMany: []RawRelation{
							// No declared accessor name: derived from table name.
							{Table: "projects", Keys: []string{"id"}, ReferencedKeys: []string{"owner_id"}},
						},
					},
				},
			},
		},
	}
}

func TestNormalizeCopiesFieldsUnchanged(t *testing.T) {
	catalog := NormalizeCatalog(rawFixture())
	projects := catalog.Table("projects")
	require.NotNil(t, projects)

	require.Len(t, projects.Fields, 4)
	assert.Equal(t, []string{"id", "name", "owner_id", "archived"}, projects.FieldNames())
	assert.Equal(t, "uuid", projects.Field("id").Type.WireType)
	assert.Equal(t, "boolean", projects.Field("archived").Type.WireType)
}

func TestNormalizeFirstConstraintPolicy(t *testing.T) {
	catalog := NormalizeCatalog(rawFixture())
	projects := catalog.Table("projects")
	require.NotNil(t, projects)

	// Only the first declared primary constraint counts.
	assert.True(t, projects.Field("id").IsPrimaryKey)
	assert.False(t, projects.Field("name").IsPrimaryKey)
	assert.True(t, projects.Field("name").IsUnique)

	pk := projects.PrimaryKey()
	require.NotNil(t, pk)
	assert.Equal(t, "id", pk.Name)
}

func TestNormalizeForeignKeyAlias(t *testing.T) {
	catalog := NormalizeCatalog(rawFixture())
	owner := catalog.Table("projects").Field("owner_id")
	require.NotNil(t, owner)

	require.NotNil(t, owner.References)
	assert.Equal(t, "users", owner.References.Table)
	assert.Equal(t, "id", owner.References.Field)
	assert.Equal(t, "owner", owner.Alias, "FK column surfaces under the belongsTo accessor")
}

func TestNormalizeRelationGrouping(t *testing.T) {
	catalog := NormalizeCatalog(rawFixture())
	projects := catalog.Table("projects")

	require.Len(t, projects.Relations.BelongsTo, 1)
	require.Len(t, projects.Relations.HasMany, 1)

	owner := projects.Relation("owner")
	require.NotNil(t, owner)
	assert.Equal(t, BelongsTo, owner.Kind)
	assert.Equal(t, "users", owner.Table)
	assert.Equal(t, "owner_id", owner.ForeignKey)
	assert.False(t, owner.IsList())

	tasks := projects.Relation("tasks")
	require.NotNil(t, tasks)
	assert.True(t, tasks.IsList())
}

func TestNormalizeDerivesMissingAccessorName(t *testing.T) {
	catalog := NormalizeCatalog(rawFixture())
	users := catalog.Table("users")
	require.NotNil(t, users)

	require.Len(t, users.Relations.HasMany, 1)
	assert.Equal(t, "projects", users.Relations.HasMany[0].FieldName)
}

func TestNormalizeSkipsConflictingAccessor(t *testing.T) {
	raw := rawFixture()
	// Relation accessor colliding with a scalar field name is dropped.
	raw.Meta.Tables[0].Relations.HasOne = []RawRelation{
		{FieldName: "name", Table: "users"},
	}
	catalog := NormalizeCatalog(raw)

	projects := catalog.Table("projects")
	assert.Empty(t, projects.Relations.HasOne)
	assert.NotNil(t, projects.Field("name"))
}

func TestNormalizeCompositeForeignKeyUsesFirstColumn(t *testing.T) {
	raw := RawIntrospection{Meta: RawMeta{Tables: []RawTable{
		{
			Name: "memberships",
			Fields: []RawField{
				{Name: "org_id", Type: FieldType{WireType: "uuid"}},
				{Name: "team_id", Type: FieldType{WireType: "uuid"}},
			},
			Constraints: RawConstraints{
				Foreign: []RawForeignKey{
					{
						Name:             "memberships_org_team_fkey",
						Fields:           []string{"org_id", "team_id"},
						ReferencedTable:  "teams",
						ReferencedFields: []string{"org_id", "id"},
					},
				},
			},
			Relations: RawRelations{
				BelongsTo: []RawRelation{
					{FieldName: "organizationTeam", Table: "teams", Keys: []string{"org_id", "team_id"}},
				},
			},
		},
	}}}

	catalog := NormalizeCatalog(raw)
	orgID := catalog.Table("memberships").Field("org_id")
	require.NotNil(t, orgID.References)
	assert.Equal(t, "org_id", orgID.References.Field)
	assert.Equal(t, "organizationTeam", orgID.Alias)
	assert.Nil(t, catalog.Table("memberships").Field("team_id").References)
}

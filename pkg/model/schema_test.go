package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminologySchema(t *testing.T) {
	s := TerminologySchema()
	assert.Equal(t, ConceptType, s.Root())
	require.Len(t, s.Types(), 4)

	rel, ok := s.Type(RelationshipType)
	require.True(t, ok)
	container, ok := rel.Container()
	require.True(t, ok)
	assert.Equal(t, "sourceId", container.Name)

	var refs []string
	for _, r := range rel.References() {
		refs = append(refs, r.Name)
	}
	assert.Equal(t, []string{"moduleId", "sourceId", "destinationId", "typeId", "characteristicTypeId", "modifierId"}, refs)

	desc, ok := s.Type(DescriptionType)
	require.True(t, ok)
	refs = refs[:0]
	for _, r := range desc.References() {
		refs = append(refs, r.Name)
	}
	assert.Equal(t, []string{"moduleId", "conceptId", "typeId", "caseSignificanceId"}, refs)

	concept, _ := s.Type(ConceptType)
	_, hasContainer := concept.Container()
	assert.False(t, hasContainer)
}

func TestNormalize(t *testing.T) {
	s := TerminologySchema()

	for _, toPin := range []struct {
		Title    string
		Type     string
		Input    map[string]string
		Expected map[string]string
		Valid    bool
	}{
		{
			Title:    "canonical booleans and integers",
			Type:     RelationshipType,
			Input:    map[string]string{"sourceId": " 100 ", "destinationId": "200", "typeId": "116680003", "active": "1", "group": "02"},
			Expected: map[string]string{"sourceId": "100", "destinationId": "200", "typeId": "116680003", "active": "true", "group": "2"},
			Valid:    true,
		},
		{
			Title:    "empty values are dropped",
			Type:     ConceptType,
			Input:    map[string]string{"active": "false", "moduleId": ""},
			Expected: map[string]string{"active": "false"},
			Valid:    true,
		},
		{
			Title: "missing required attribute",
			Type:  DescriptionType,
			Input: map[string]string{"term": "Heart"},
		},
		{
			Title: "unknown attribute",
			Type:  ConceptType,
			Input: map[string]string{"colour": "blue"},
		},
		{
			Title: "invalid boolean",
			Type:  ConceptType,
			Input: map[string]string{"active": "perhaps"},
		},
		{
			Title: "unknown type",
			Type:  "axiom",
		},
	} {
		fixture := toPin
		t.Run(fixture.Title, func(t *testing.T) {
			normalized, err := s.Normalize(fixture.Type, fixture.Input)
			if !fixture.Valid {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixture.Expected, normalized)
		})
	}
}

func TestNewSchemaValidation(t *testing.T) {
	_, err := NewSchema("concept",
		ComponentType{Name: "concept"},
		ComponentType{Name: "concept"},
		ComponentType{Name: "member", Attributes: []AttributeDef{
			{Name: "refsetId", Kind: KindString, Reference: true},
			{Name: "a", Kind: KindID, Reference: true, Container: true},
			{Name: "b", Kind: KindID, Reference: true, Container: true},
			{Name: "id", Kind: KindID},
		}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate component type")
	assert.Contains(t, err.Error(), "must be an id")
	assert.Contains(t, err.Error(), "at most one container")
	assert.Contains(t, err.Error(), "invalid attribute name")

	_, err = NewSchema("concept", ComponentType{Name: "member"})
	assert.Error(t, err)

	assert.Panics(t, func() { MustSchema("nope") })
}

func TestSameContent(t *testing.T) {
	a := &Revision{ComponentID: "1", ComponentType: ConceptType, Attributes: map[string]string{"active": "true"}}
	b := &Revision{ComponentID: "1", ComponentType: ConceptType, Attributes: map[string]string{"active": "true"}}
	c := &Revision{ComponentID: "1", ComponentType: ConceptType, Attributes: map[string]string{"active": "false"}}
	tombstone := &Revision{ComponentID: "1", ComponentType: ConceptType, Deleted: true}

	assert.True(t, SameContent(a, b))
	assert.False(t, SameContent(a, c))
	assert.False(t, SameContent(a, nil))
	assert.True(t, SameContent(nil, tombstone))
	assert.False(t, SameContent(tombstone, a))

	assert.Equal(t, []string{"active"}, ChangedAttributes(a, c))
	assert.Empty(t, ChangedAttributes(a, b))
	assert.Equal(t, []string{"active"}, ChangedAttributes(nil, a))
}

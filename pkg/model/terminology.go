package model

// Component types of the terminology schema
const (
	ConceptType      = "concept"
	DescriptionType  = "description"
	RelationshipType = "relationship"
	MemberType       = "member"
)

// TerminologySchema registers concepts, with their descriptions, relationships and reference set members
func TerminologySchema() *Schema {
	common := []AttributeDef{
		{Name: "active", Kind: KindBool},
		{Name: "moduleId", Kind: KindID, Reference: true},
		{Name: "effectiveTime", Kind: KindString},
	}
	with := func(defs ...AttributeDef) []AttributeDef {
		return append(append([]AttributeDef{}, common...), defs...)
	}

	return MustSchema(ConceptType,
		ComponentType{
			Name: ConceptType,
			Attributes: with(
				AttributeDef{Name: "definitionStatus", Kind: KindID, Reference: true},
				AttributeDef{Name: "subclassDefinitionStatus", Kind: KindString},
			),
		},
		ComponentType{
			Name: DescriptionType,
			Attributes: with(
				AttributeDef{Name: "conceptId", Kind: KindID, Required: true, Reference: true, Container: true},
				AttributeDef{Name: "typeId", Kind: KindID, Reference: true},
				AttributeDef{Name: "term", Kind: KindString},
				AttributeDef{Name: "languageCode", Kind: KindString},
				AttributeDef{Name: "caseSignificanceId", Kind: KindID, Reference: true},
			),
		},
		ComponentType{
			Name: RelationshipType,
			Attributes: with(
				AttributeDef{Name: "sourceId", Kind: KindID, Required: true, Reference: true, Container: true},
				AttributeDef{Name: "destinationId", Kind: KindID, Required: true, Reference: true},
				AttributeDef{Name: "typeId", Kind: KindID, Required: true, Reference: true},
				AttributeDef{Name: "characteristicTypeId", Kind: KindID, Reference: true},
				AttributeDef{Name: "modifierId", Kind: KindID, Reference: true},
				AttributeDef{Name: "group", Kind: KindInt},
				AttributeDef{Name: "unionGroup", Kind: KindInt},
			),
		},
		ComponentType{
			Name: MemberType,
			Attributes: with(
				AttributeDef{Name: "referencedComponentId", Kind: KindID, Required: true, Reference: true, Container: true},
				AttributeDef{Name: "refsetId", Kind: KindID, Required: true, Reference: true},
				AttributeDef{Name: "targetComponentId", Kind: KindID, Reference: true},
				AttributeDef{Name: "mapTarget", Kind: KindString},
				AttributeDef{Name: "valueId", Kind: KindID, Reference: true},
			),
		},
	)
}

package domain

// AttributeKind distinguishes where an attribute id resolves to: a core
// characteristic on Attributes, a computed field on DerivedAttributes
// (only sanity/mp/hp route through session state per spec.md §6), or a
// named skill.
type AttributeKind int

const (
	KindCore AttributeKind = iota
	KindDerived
	KindSkill
)

// AttributeDef describes one entry of the fixed 1..34 attribute-id table
// (spec.md §6: "1-9 core attributes, 10-17 derived, 18-34 skills").
type AttributeDef struct {
	ID    int
	Name  string
	Kind  AttributeKind
}

// Session-routed derived attribute ids: updates to these flow into
// SessionState rather than the sheet (spec.md §6: "Updates to sanity (10),
// MP (11), HP (13) flow into session state").
const (
	AttrIDSanity = 10
	AttrIDMP     = 11
	AttrIDHP     = 13
)

// AttributeTable is the fixed numeric encoding used throughout event effect
// payloads (§6 "Attribute id table").
var AttributeTable = []AttributeDef{
	{1, "strength", KindCore},
	{2, "constitution", KindCore},
	{3, "size", KindCore},
	{4, "dexterity", KindCore},
	{5, "appearance", KindCore},
	{6, "intelligence", KindCore},
	{7, "power", KindCore},
	{8, "education", KindCore},
	{9, "luck", KindCore},

	{10, "sanity", KindDerived},
	{11, "magic_points", KindDerived},
	{12, "build", KindDerived},
	{13, "hit_points", KindDerived},
	{14, "move_rate", KindDerived},
	{15, "damage_bonus", KindDerived},
	{16, "interest_points", KindDerived},
	{17, "professional_points", KindDerived},

	{18, "fighting", KindSkill},
	{19, "firearms", KindSkill},
	{20, "dodge", KindSkill},
	{21, "mechanics", KindSkill},
	{22, "drive", KindSkill},
	{23, "stealth", KindSkill},
	{24, "investigate", KindSkill},
	{25, "sleight_of_hand", KindSkill},
	{26, "electronics", KindSkill},
	{27, "history", KindSkill},
	{28, "science", KindSkill},
	{29, "medicine", KindSkill},
	{30, "occult", KindSkill},
	{31, "library_use", KindSkill},
	{32, "art", KindSkill},
	{33, "persuade", KindSkill},
	{34, "psychology", KindSkill},
}

var attributeByID = func() map[int]AttributeDef {
	m := make(map[int]AttributeDef, len(AttributeTable))
	for _, d := range AttributeTable {
		m[d.ID] = d
	}
	return m
}()

var attributeByName = func() map[string]AttributeDef {
	m := make(map[string]AttributeDef, len(AttributeTable))
	for _, d := range AttributeTable {
		m[d.Name] = d
	}
	return m
}()

// AttributeByID looks up an attribute definition by its fixed numeric id.
func AttributeByID(id int) (AttributeDef, bool) {
	d, ok := attributeByID[id]
	return d, ok
}

// AttributeByName looks up an attribute definition by its field name, used
// to resolve a skill check resolver request like "drive" or "intelligence"
// to its numeric id and kind.
func AttributeByName(name string) (AttributeDef, bool) {
	d, ok := attributeByName[name]
	return d, ok
}

package core

// FieldType is a server type name as returned by type_of.
type FieldType string

// FieldType constants.
const (
	TypeNumber FieldType = "NUMBER"
	TypeString FieldType = "STRING"
	TypeBool   FieldType = "BOOL"
	TypeNull   FieldType = "NULL"
	TypeObject FieldType = "OBJECT"
	TypeArray  FieldType = "ARRAY"
	TypeTime   FieldType = "PTYPE<TIME>"
	TypeBinary FieldType = "PTYPE<BINARY>"
	TypeAny    FieldType = "ANY"
)

// ValidFieldType reports whether s names a known type.
func ValidFieldType(s string) bool {
	switch FieldType(s) {
	case TypeNumber, TypeString, TypeBool, TypeNull, TypeObject, TypeArray, TypeTime, TypeBinary:
		return true
	}
	return false
}

// FieldResolver resolves declared fields of a table's documents.
type FieldResolver interface {
	// ResolveField returns the declared type of a field.
	ResolveField(name string) (FieldType, bool)
}

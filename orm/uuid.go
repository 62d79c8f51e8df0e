package orm

import "github.com/google/uuid"

// GenerateUUID is the default-value hook for a uuid-typed primary key:
// assigning it to PropertyMeta.OnInsert produces a fresh random (v4)
// UUID string for any insert that omits the column, the same shape
// Register wires in automatically for a primary key declared with
// DBType "uuid" and no OnInsert of its own (spec.md §4.1 snapshot:
// "primary keys ... whose declared db-type is uuid").
func GenerateUUID() any {
	return uuid.NewString()
}

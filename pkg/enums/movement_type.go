package enums

import "fmt"

// MovementType classifies an inventory_movements row.
type MovementType string

const (
	MovementTypeSale         MovementType = "sale"
	MovementTypeRestore      MovementType = "restore"
	MovementTypeCompensation MovementType = "compensation"
	MovementTypeAdjustment   MovementType = "adjustment"
)

var validMovementTypes = []MovementType{
	MovementTypeSale,
	MovementTypeRestore,
	MovementTypeCompensation,
	MovementTypeAdjustment,
}

func (m MovementType) String() string {
	return string(m)
}

func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}

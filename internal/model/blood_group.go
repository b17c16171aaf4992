package model

import "strings"

// Canonical ABO/Rh blood groups.
const (
	BloodGroupAPos  = "A+"
	BloodGroupANeg  = "A-"
	BloodGroupBPos  = "B+"
	BloodGroupBNeg  = "B-"
	BloodGroupABPos = "AB+"
	BloodGroupABNeg = "AB-"
	BloodGroupOPos  = "O+"
	BloodGroupONeg  = "O-"
)

// BloodGroups lists every group in display order. One inventory row exists per entry.
var BloodGroups = []string{
	BloodGroupAPos, BloodGroupANeg,
	BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg,
	BloodGroupOPos, BloodGroupONeg,
}

// IsValidBloodGroup reports whether g is one of the eight canonical groups.
func IsValidBloodGroup(g string) bool {
	for _, known := range BloodGroups {
		if g == known {
			return true
		}
	}
	return false
}

// NormalizeBloodGroup trims and upper-cases user input ("ab+" -> "AB+").
func NormalizeBloodGroup(g string) string {
	return strings.ToUpper(strings.TrimSpace(g))
}

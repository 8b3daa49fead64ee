package parse

import (
	"fmt"
	"regexp"
)

var machineIDRe = regexp.MustCompile(`^[MF][A-D][1-8]$`)

// MachineKind is the type of appliance derived from a machine number.
type MachineKind string

const (
	KindWasher MachineKind = "washer"
	KindDryer  MachineKind = "dryer"
)

// MachineLocation holds the structured data encoded in a machine identifier.
type MachineLocation struct {
	ID     string
	Floor  byte // 'M' or 'F'
	Hall   byte // 'A'..'D'
	Number int  // 1..8
	Kind   MachineKind
}

// ValidMachineID reports whether s is exactly {M|F}{A-D}{1-8}.
func ValidMachineID(s string) bool {
	return machineIDRe.MatchString(s)
}

// ParseMachineID splits a machine identifier into floor, hallway and number.
func ParseMachineID(s string) (MachineLocation, error) {
	if !ValidMachineID(s) {
		return MachineLocation{}, fmt.Errorf("invalid machine id: %q", s)
	}
	n := int(s[2] - '0')
	kind := KindWasher
	if n > 4 {
		kind = KindDryer
	}
	return MachineLocation{ID: s, Floor: s[0], Hall: s[1], Number: n, Kind: kind}, nil
}

// FloorText is the human description of the floor.
func (l MachineLocation) FloorText() string {
	if l.Floor == 'M' {
		return "third floor (Boys)"
	}
	return "second floor (Girls)"
}

// KindText is the appliance name used in messages.
func (l MachineLocation) KindText() string {
	if l.Kind == KindWasher {
		return "washing machine"
	}
	return "drying machine"
}

// String renders e.g. "washing machine 3 in hallway A, third floor (Boys)".
func (l MachineLocation) String() string {
	return fmt.Sprintf("%s %d in hallway %c, %s", l.KindText(), l.Number, l.Hall, l.FloorText())
}

// AllMachineIDs lists every identifier of the naming scheme in floor, hall, number order.
func AllMachineIDs() []string {
	ids := make([]string, 0, 2*4*8)
	for _, floor := range "MF" {
		for _, hall := range "ABCD" {
			for n := 1; n <= 8; n++ {
				ids = append(ids, fmt.Sprintf("%c%c%d", floor, hall, n))
			}
		}
	}
	return ids
}

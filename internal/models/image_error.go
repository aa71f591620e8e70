package models

import "strings"

// ImageError is a bit-flag set describing what went wrong during an
// acquisition. Zero means success; bits combine with bitwise OR
// (e.g. 14 = all three 3D cameras missing).
type ImageError int

const (
	ImageSuccess       ImageError = 0
	ErrMainCorrupt     ImageError = 1 << iota >> 1 // 1
	ErrThreeD0Corrupt                              // 2
	ErrThreeD1Corrupt                              // 4
	ErrThreeD2Corrupt                              // 8
	ErrThermalCorrupt                              // 16
	ErrResetTimeout                                // 32
	ErrRebootTimeout                               // 64
	ErrFatalUnknown                                // 128
)

var imageErrorNames = []struct {
	bit  ImageError
	name string
}{
	{ErrMainCorrupt, "MAIN_CORRUPT"},
	{ErrThreeD0Corrupt, "3D0_CORRUPT"},
	{ErrThreeD1Corrupt, "3D1_CORRUPT"},
	{ErrThreeD2Corrupt, "3D2_CORRUPT"},
	{ErrThermalCorrupt, "THERMAL_CORRUPT"},
	{ErrResetTimeout, "RESET_TIMEOUT"},
	{ErrRebootTimeout, "REBOOT_TIMEOUT"},
	{ErrFatalUnknown, "FATAL_UNKNOWN"},
}

// Has reports whether every bit of flag is set in e.
func (e ImageError) Has(flag ImageError) bool {
	if flag == ImageSuccess {
		return e == ImageSuccess
	}
	return e&flag == flag
}

// IsSuccess reports whether no error bit is set.
func (e ImageError) IsSuccess() bool { return e == ImageSuccess }

// String renders the set bits joined by "|", or "SUCCESS".
func (e ImageError) String() string {
	if e == ImageSuccess {
		return "SUCCESS"
	}
	var parts []string
	for _, n := range imageErrorNames {
		if e&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

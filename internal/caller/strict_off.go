//go:build !strict_caller

package caller

// StrictDefault is set by the strict_caller build tag.
const StrictDefault = false

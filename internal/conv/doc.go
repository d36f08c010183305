// Package conv provides checked integer conversions.
//
// Capacities and block sizes arrive as int and end up as uint32 arena
// indices or int64 byte budgets. These helpers reject values that would
// wrap instead of silently truncating them.
package conv

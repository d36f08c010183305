// Package mem provides aligned heap allocation helpers.
//
// # Aligned Allocation
//
// AllocAligned returns byte slices whose first element sits on a cache-line
// boundary, so fixed-size blocks carved from them keep that alignment.
package mem

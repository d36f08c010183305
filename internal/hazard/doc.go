// Package hazard implements hazard-pointer based safe memory reclamation.
//
// A Registry owns a fixed table of participant Records. A goroutine that
// wants to dereference shared nodes registers once, publishes the address
// of every node it is about to read in one of its SlotsPerRecord hazard
// slots, re-validates that the node is still reachable, and only then
// dereferences it.
//
// A node that has been unlinked from its data structure is handed to
// Record.Retire together with a Reclaimer. Retired nodes are kept on the
// record's private retire list until a scan proves that no hazard slot of
// any participant still holds their address. Only then is the Reclaimer
// invoked, so a node is never recycled while another goroutine may read it.
//
// # Ownership
//
// A Record is owned by one goroutine at a time. Protect, Clear, Retire and
// Scan are not safe for concurrent use on the same Record; hazard slots of
// all records are read concurrently by scans of other records.
//
// # Orphans
//
// Unregister scans one last time. Retired nodes that are still protected by
// other participants cannot be dropped, so they are handed to the registry's
// orphan list. Orphans are adopted by the next Scan of any record, or freed
// by Registry.Sweep, which Registry.Run calls periodically.
package hazard

// Package window defines the windowing constructs of an operator input port. A window buffers the tuples
// arriving on a port, applies eviction and trigger policies to them, and notifies a Listener of the window
// lifecycle through Events.
//
// A window may be partitioned. Each tuple is assigned a partition key by a Partitioner and every partition
// is an independent buffer with its own policy state. Partitions are created lazily on the first tuple for
// a key and are removed only by partition eviction, which is either explicit (a listener or the operator
// calls EvictPartition) or driven by the Descriptor's PartitionEvictionPolicy:
//   - PartitionAge - partitions that have not seen a tuple for the configured duration are evicted
//   - PartitionCount - the least recently used partition is evicted once there are too many partitions
//   - TupleCount - the least recently used partitions are evicted once the window holds too many tuples
//
// The tuple level eviction and trigger algorithms (count, time, delta and punctuation based tumbling and
// sliding windows) are pluggable, see package partition.
//
// All mutations of a window and every event dispatch happen while holding the window lock, so a listener
// sees a total order of events for a window. Snapshot accessors such as the partition key set bypass the
// lock and are eventually consistent.
package window

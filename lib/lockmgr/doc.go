// Package lockmgr provides TTL-bounded exclusive locks on keys.
//
// Locks serialize read-modify-write sequences on a single key. Every lock
// carries a TTL so a crashed or abandoned holder self-heals: once the TTL
// has passed the lock is treated as absent and may be reacquired without an
// explicit release. State machine per key:
//
//	Unlocked -> Locked(holder)   on successful Acquire
//	Locked(holder) -> Unlocked   on matching Release or on TTL expiry
//	                             (checked lazily at next Acquire/GC pass)
//
// There is no reentrant or nested acquisition by the same holder.
package lockmgr

// Package cache provides bounded key-value cache with transactions.
//
// * Cache holds at most Capacity entries. Insert of new key into full cache
// evicts least recently written entry. Overwrite of existing key never evicts,
// but makes key most recently written.
// * Only writes change recency. Get and Contains do not.
// * Every Set is done with transaction lock acquired. Set outside of explicit
// transaction acquires lock only for one write. BeginTransaction extends
// lock scope to all calls made with returned context, until EndTransaction.
// * Writers blocked by open transaction are woken up together on its end.
// Order in which they apply writes is not specified, but every write is
// applied completely before the next one starts.
//
// Build with debug tag to check store invariants after every mutation.
package cache

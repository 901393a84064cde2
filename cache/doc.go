// Package cache holds read responses keyed by request fingerprint.
//
// Each [Entry] carries its own insertion time and TTL. An entry is live while
// now - InsertedAt < TTL; [Cache.Get] treats anything older as absent even if
// it has not been swept yet, so lazy and eager expiry give the same answers.
//
// # Janitor
//
// Every [Cache.Set] arms a debounced sweep. Arming is idempotent: while a
// sweep is pending no second timer is created. A sweep drops every expired
// entry and then, if more than the configured max size remain, evicts entries
// in ascending InsertedAt order until max/2 are left.
//
// # Invalidation
//
// Keys embed the method, the request path and the serialized body, so
// [Cache.Invalidate] with a path fragment such as "/orders" drops every cached
// read touching that resource:
//
//	c.Invalidate("/orders")   // after creating an order
//	c.Invalidate("")          // drop everything
package cache

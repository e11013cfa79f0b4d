// Package cache provides the read-through cache layer used in front of the
// relational store.
//
// # Overview
//
// The package exports four building blocks:
//
//   - Key functions (DetailKey, UserListKey, AllListKey, AvailableSlotsKey, ...)
//     that derive deterministic, colon separated keys from an entity and its
//     query parameters
//   - Store: the key/value contract (get, set with TTL, delete, prefix delete)
//     implemented by the redis and memory drivers
//   - TTLPolicy: lifetimes per view class (detail, list, counter, stats, ...)
//   - ReadThrough and GetOrLoad: check the store, load from the source of
//     truth on a miss, populate with a TTL and return
//
// # Basic Usage
//
//	rt, err := cache.NewReadThroughFromConfig(cfg, logger)
//	key := cache.DetailKey(cache.EntityReservation, id)
//	res, err := cache.GetOrLoad(ctx, rt, key, cfg.TTL.For(cache.ViewDetail),
//		func(ctx context.Context) (*booking.Reservation, error) {
//			return store.Get(ctx, id)
//		})
//
// # Key Shapes
//
//	<entity>:<id>
//	public:<entity>:<id>
//	user:<userId>:<entities>:page:<page>:limit:<limit>
//	<entities>:all:page:<page>:limit:<limit>:search:<term>:status:<status>
//	stats:<entity>
//	admin:dashboard:stats
//	available_slots:<YYYY-MM-DD>
//
// User supplied segments are escaped so a search term or id can never
// introduce a separator. List queries are normalized before the key is built.
//
// # Failure Semantics
//
// A failing or slow store degrades reads to the source of truth; ReadThrough
// logs and counts the failure but never returns it. Invalidate reports
// failures to its caller, which is expected to log and move on: the write has
// already happened and the entry will expire with its TTL.
package cache

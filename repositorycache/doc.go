// Package repositorycache caches the reads of go-repository-bun backed
// entities and invalidates them after writes.
//
// # Overview
//
// A Resource wraps the Source of one entity (any repository.Repository[T]
// from go-repository-bun satisfies it) and serves its reads through a
// cache.ReadThrough:
//
//   - Get / GetOwned: "<entity>:<id>"
//   - GetPublic: "public:<entity>:<id>"
//   - ListForOwner: "user:<owner>:<entities>:page:<p>:limit:<l>"
//   - CountForOwner: "user:<owner>:<entities>:counter:<status>"
//   - ListAll: "<entities>:all:page:<p>:limit:<l>:search:<s>:status:<st>"
//   - Total: "stats:<entity>"
//   - Find: a caller supplied key, e.g. cache.MainUserKey
//
// # Basic Usage
//
//	repo := storage.NewSampleRepository(db)
//	samples := repositorycache.New[*storage.Sample](repo, rt, dispatcher, repositorycache.Options{
//		Entity:        cache.EntitySample,
//		SearchColumns: []string{"name", "description"},
//	})
//
//	page, err := samples.ListForOwner(ctx, userID, cache.ListQuery{Page: 2})
//
// # Writes
//
// Create, Update and Delete run the write first and only then hand an
// invalidation.Event to the dispatcher. A failed write invalidates nothing.
// A failed invalidation is logged and the entries expire by TTL.
//
// Owner lists and counters share the prefix "user:<owner>:<entities>:", so
// a single prefix delete clears every page and counter of the owner. Global
// lists are cleared through "<entities>:all:" because any filter may match
// the changed row.
//
// # Error Handling
//
// Errors from the source are returned unchanged. Cache failures never reach
// the caller; reads fall back to the source.
package repositorycache

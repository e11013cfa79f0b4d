package cache

import (
	"sort"
	"strings"
)

// Segment is a trusted key segment emitted verbatim (no escaping).
type Segment string

// Entity names a cached resource type. It is the first key segment for
// detail keys and the plural form prefixes global list keys.
type Entity string

const (
	EntityReservation  Entity = "reservation"
	EntitySample       Entity = "sample"
	EntityReport       Entity = "report"
	EntityNotification Entity = "notification"
	EntityProfile      Entity = "profile"
	EntityProtocol     Entity = "protocol"
	EntityReading      Entity = "reading"
)

// Plural returns the collection name used in list keys.
func (e Entity) Plural() string {
	return string(e) + "s"
}

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// ListQuery holds the parameters that select one list page.
type ListQuery struct {
	Page    int
	Limit   int
	Search  string
	Status  string
	Sort    string
	Filters map[string]string
}

// Normalize returns the canonical form of q. Keys are always built from
// the normalized query so that page=0 and page=1 (or " Foo" and "foo")
// land on the same entry.
func (q ListQuery) Normalize() ListQuery {
	out := ListQuery{
		Page:   q.Page,
		Limit:  q.Limit,
		Search: strings.ToLower(strings.TrimSpace(q.Search)),
		Status: strings.ToLower(strings.TrimSpace(q.Status)),
		Sort:   strings.TrimSpace(q.Sort),
	}
	if out.Page < 1 {
		out.Page = defaultPage
	}
	if out.Limit < 1 {
		out.Limit = defaultLimit
	}
	if out.Limit > maxLimit {
		out.Limit = maxLimit
	}
	if len(q.Filters) > 0 {
		raw := make([]string, 0, len(q.Filters))
		for k := range q.Filters {
			raw = append(raw, k)
		}
		// sorted so that " a" and "a" resolve to the same winner every time
		sort.Strings(raw)

		out.Filters = make(map[string]string, len(q.Filters))
		for _, rk := range raw {
			k := strings.TrimSpace(rk)
			v := strings.TrimSpace(q.Filters[rk])
			if k == "" || v == "" {
				continue
			}
			out.Filters[k] = v
		}
		if len(out.Filters) == 0 {
			out.Filters = nil
		}
	}
	return out
}

// Offset returns the row offset for the normalized page.
func (q ListQuery) Offset() int {
	n := q.Normalize()
	return (n.Page - 1) * n.Limit
}

var keys = NewDefaultKeySerializer()

// DetailKey builds "<entity>:<id>".
func DetailKey(entity Entity, id string) string {
	return keys.SerializeKey(string(entity), id)
}

// PublicDetailKey builds "public:<entity>:<id>" for shared resources served
// to callers other than the owner.
func PublicDetailKey(entity Entity, id string) string {
	return keys.SerializeKey("public", entity, id)
}

// UserListKey builds "user:<userID>:<entities>:page:<page>:limit:<limit>".
func UserListKey(userID string, entity Entity, page, limit int) string {
	q := ListQuery{Page: page, Limit: limit}.Normalize()
	return keys.SerializeKey("user", userID, Segment(entity.Plural()),
		Segment("page"), q.Page, Segment("limit"), q.Limit)
}

// UserListPrefix covers every page and counter cached for one owner and entity.
func UserListPrefix(userID string, entity Entity) string {
	return keys.SerializeKey("user", userID, Segment(entity.Plural())) + KeySeparator
}

// UserCounterKey builds "user:<userID>:<entities>:<counter>", e.g. the unread
// notification counter. It sits under UserListPrefix so list invalidation
// clears it too.
func UserCounterKey(userID string, entity Entity, counter string) string {
	return keys.SerializeKey("user", userID, Segment(entity.Plural()), Segment("counter"), counter)
}

// AllListKey builds the admin/global list key:
// "<entities>:all:page:<p>:limit:<l>:search:<term>:status:<status>[:sort:<s>][:filters:<...>]".
func AllListKey(entity Entity, q ListQuery) string {
	q = q.Normalize()
	args := []any{
		Segment("all"),
		Segment("page"), q.Page,
		Segment("limit"), q.Limit,
		Segment("search"), q.Search,
		Segment("status"), q.Status,
	}
	if q.Sort != "" {
		args = append(args, Segment("sort"), q.Sort)
	}
	if len(q.Filters) > 0 {
		args = append(args, Segment("filters"), q.Filters)
	}
	return keys.SerializeKey(entity.Plural(), args...)
}

// AllListPrefix covers every global list page of an entity regardless of filters.
func AllListPrefix(entity Entity) string {
	return keys.SerializeKey(entity.Plural(), Segment("all")) + KeySeparator
}

// StatsKey builds "stats:<entity>".
func StatsKey(entity Entity) string {
	return keys.SerializeKey("stats", entity)
}

// DashboardStatsKey is the aggregate admin dashboard entry.
func DashboardStatsKey() string {
	return "admin:dashboard:stats"
}

// MainUserKey builds the derived "main user" entry for a profile.
func MainUserKey(userID string) string {
	return keys.SerializeKey("main_user", userID)
}

// AvailableSlotsKey builds "available_slots:<YYYY-MM-DD>".
func AvailableSlotsKey(date string) string {
	return keys.SerializeKey("available_slots", date)
}

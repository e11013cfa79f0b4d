package cache

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
)

// keyScenario represents a test scenario loaded from fixtures
type keyScenario struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cases       []keyCase `json:"cases"`
}

// keyCase represents individual test cases within a scenario
type keyCase struct {
	Method      string `json:"method"`
	Args        []any  `json:"args"`
	ExpectedKey string `json:"expectedKey"`
}

type keyFixtures struct {
	Scenarios []keyScenario `json:"scenarios"`
}

func loadKeyFixtures(t *testing.T) keyFixtures {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", "key_scenarios.json"))
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}

	var fixtures keyFixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("failed to unmarshal fixture data: %v", err)
	}
	return fixtures
}

func buildFixtureKey(t *testing.T, c keyCase) string {
	t.Helper()

	str := func(i int) string { return c.Args[i].(string) }
	num := func(i int) int { return int(c.Args[i].(float64)) }

	switch c.Method {
	case "DetailKey":
		return DetailKey(Entity(str(0)), str(1))
	case "PublicDetailKey":
		return PublicDetailKey(Entity(str(0)), str(1))
	case "MainUserKey":
		return MainUserKey(str(0))
	case "UserListKey":
		return UserListKey(str(0), Entity(str(1)), num(2), num(3))
	case "UserListPrefix":
		return UserListPrefix(str(0), Entity(str(1)))
	case "UserCounterKey":
		return UserCounterKey(str(0), Entity(str(1)), str(2))
	case "AllListKey":
		return AllListKey(Entity(str(0)), ListQuery{Page: num(1), Limit: num(2), Search: str(3), Status: str(4)})
	case "AllListPrefix":
		return AllListPrefix(Entity(str(0)))
	case "StatsKey":
		return StatsKey(Entity(str(0)))
	case "DashboardStatsKey":
		return DashboardStatsKey()
	case "AvailableSlotsKey":
		return AvailableSlotsKey(str(0))
	}
	t.Fatalf("unknown key method %q", c.Method)
	return ""
}

func TestKeyRegistry_Fixtures(t *testing.T) {
	fixtures := loadKeyFixtures(t)
	if len(fixtures.Scenarios) == 0 {
		t.Fatal("fixture file has no scenarios")
	}

	for _, scenario := range fixtures.Scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			for _, c := range scenario.Cases {
				got := buildFixtureKey(t, c)
				if got != c.ExpectedKey {
					t.Errorf("%s(%v) = %q, want %q", c.Method, c.Args, got, c.ExpectedKey)
				}
			}
		})
	}
}

func TestKeyRegistry_ListKeysFallUnderPrefixes(t *testing.T) {
	q := ListQuery{Page: 4, Limit: 50, Search: "x", Status: "confirmed", Filters: map[string]string{"date": "2025-06-01"}}

	if key, prefix := AllListKey(EntityReservation, q), AllListPrefix(EntityReservation); !strings.HasPrefix(key, prefix) {
		t.Errorf("AllListKey %q is not under %q", key, prefix)
	}
	if key, prefix := UserListKey("u-1", EntityReservation, 3, 10), UserListPrefix("u-1", EntityReservation); !strings.HasPrefix(key, prefix) {
		t.Errorf("UserListKey %q is not under %q", key, prefix)
	}
	if key, prefix := UserCounterKey("u-1", EntityNotification, "unread"), UserListPrefix("u-1", EntityNotification); !strings.HasPrefix(key, prefix) {
		t.Errorf("UserCounterKey %q is not under %q", key, prefix)
	}

	// one owner's prefix must not cover another owner whose id extends it
	if strings.HasPrefix(UserListKey("u-10", EntityReservation, 1, 10), UserListPrefix("u-1", EntityReservation)) {
		t.Error("owner prefix u-1 matches keys of owner u-10")
	}
	if strings.HasPrefix(AllListKey(EntitySample, ListQuery{}), AllListPrefix(EntityReservation)) {
		t.Error("reservation prefix matches sample list keys")
	}
}

func TestListQuery_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListQuery
		want ListQuery
	}{
		{
			name: "defaults",
			in:   ListQuery{},
			want: ListQuery{Page: 1, Limit: 10},
		},
		{
			name: "limit is capped",
			in:   ListQuery{Page: 2, Limit: 1000},
			want: ListQuery{Page: 2, Limit: 100},
		},
		{
			name: "search and status are canonical",
			in:   ListQuery{Page: 1, Limit: 10, Search: "  Blood Work ", Status: "PENDING"},
			want: ListQuery{Page: 1, Limit: 10, Search: "blood work", Status: "pending"},
		},
		{
			name: "empty filters are dropped",
			in:   ListQuery{Filters: map[string]string{"date": " ", "": "x"}},
			want: ListQuery{Page: 1, Limit: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if off := (ListQuery{Page: 3, Limit: 20}).Offset(); off != 40 {
		t.Errorf("Offset() = %d, want 40", off)
	}
}

var keyAlphabet = []string{"", "a", "A", "b", ":", "%", ",", "=", " ", "{", "}", "a:b", "%3A"}

func randomQuery(r *rand.Rand) ListQuery {
	pick := func() string { return keyAlphabet[r.IntN(len(keyAlphabet))] }

	q := ListQuery{
		Page:   r.IntN(4) - 1,
		Limit:  []int{0, 1, 10, 100, 101}[r.IntN(5)],
		Search: pick() + pick(),
		Status: pick(),
	}
	if r.IntN(3) == 0 {
		q.Sort = pick()
	}
	if r.IntN(3) == 0 {
		q.Filters = map[string]string{pick(): pick(), pick(): pick()}
	}
	return q
}

// Equal normalized queries must share a key and different ones must not.
func TestKeyRegistry_Determinism(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	entities := []Entity{EntityReservation, EntitySample, EntityReport}

	seen := map[string]string{}

	for i := 0; i < 5000; i++ {
		entity := entities[r.IntN(len(entities))]
		q := randomQuery(r)

		key := AllListKey(entity, q)
		if again := AllListKey(entity, q); again != key {
			t.Fatalf("AllListKey not deterministic: %q != %q", key, again)
		}

		n := q.Normalize()
		logical := fmt.Sprintf("%s|%d|%d|%q|%q|%q|%v", entity, n.Page, n.Limit, n.Search, n.Status, n.Sort, sortedFilters(n.Filters))

		if prev, ok := seen[key]; ok && prev != logical {
			t.Fatalf("key collision on %q:\n  %s\n  %s", key, prev, logical)
		}
		seen[key] = logical
	}

	owners := map[string]string{}
	for i := 0; i < 2000; i++ {
		owner := keyAlphabet[r.IntN(len(keyAlphabet))] + keyAlphabet[r.IntN(len(keyAlphabet))]
		page, limit := r.IntN(4)-1, r.IntN(120)

		key := UserListKey(owner, EntityReservation, page, limit)
		n := ListQuery{Page: page, Limit: limit}.Normalize()
		logical := fmt.Sprintf("%q|%d|%d", owner, n.Page, n.Limit)

		if prev, ok := owners[key]; ok && prev != logical {
			t.Fatalf("key collision on %q:\n  %s\n  %s", key, prev, logical)
		}
		owners[key] = logical
	}
}

func sortedFilters(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, fmt.Sprintf("%q=%q", k, v))
	}
	sort.Strings(out)
	return out
}

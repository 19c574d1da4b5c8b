package form

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreInitialValuesAreNotDirty(t *testing.T) {
	t.Parallel()

	s := NewStore(Values{"customer.name": "Ana"})
	require.False(t, s.IsDirty())
	require.Equal(t, "Ana", s.Get("customer.name"))
}

func TestStoreSetMarksDirtyAndNotifies(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	var seen []Values
	unsubscribe := s.Subscribe(func(values Values) {
		seen = append(seen, values)
	})
	defer unsubscribe()

	s.Set("customer.name", "Ana")
	require.True(t, s.IsDirty())
	require.Equal(t, []string{"customer.name"}, s.DirtyFields())
	require.Len(t, seen, 1)
	require.Equal(t, "Ana", seen[0]["customer.name"])

	s.ResetDirty()
	require.False(t, s.IsDirty())
}

func TestStoreSubscriberSnapshotIsolation(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	var captured Values
	unsubscribe := s.Subscribe(func(values Values) {
		captured = values
	})
	defer unsubscribe()

	s.Set("a", 1)
	captured["a"] = 99

	// Mutating the notification snapshot must not leak into the store.
	require.Equal(t, 1, s.Get("a"))
}

func TestStoreUnsubscribeStopsNotifications(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	calls := 0
	unsubscribe := s.Subscribe(func(Values) { calls++ })

	s.Set("a", 1)
	unsubscribe()
	s.Set("a", 2)

	require.Equal(t, 1, calls)
}

func TestStoreSetAllSingleNotification(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	calls := 0
	unsubscribe := s.Subscribe(func(Values) { calls++ })
	defer unsubscribe()

	s.SetAll(Values{"a": 1, "b": 2})
	require.Equal(t, 1, calls)
	require.ElementsMatch(t, []string{"a", "b"}, s.DirtyFields())
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	s := NewStore(Values{"a": 1})
	s.Delete("a")
	require.Nil(t, s.Get("a"))
	require.True(t, s.IsDirty())
}

func TestValuesSlice(t *testing.T) {
	t.Parallel()

	v := Values{
		"customer.name":  "Ana",
		"customer.phone": "555",
		"lines":          []any{},
	}
	slice := v.Slice("customer")
	require.Equal(t, map[string]any{"name": "Ana", "phone": "555"}, slice)
}

func TestValidateFields(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.RegisterRule("customer.name", Required())
	s.RegisterRule("customer.phone", MinLen(7))

	issues := s.ValidateFields([]string{"customer.name", "customer.phone"})
	require.Len(t, issues, 1)
	require.Equal(t, "customer.name", issues[0].Path)

	s.Set("customer.name", "Ana")
	s.Set("customer.phone", "123")
	issues = s.ValidateFields([]string{"customer.name", "customer.phone"})
	require.Len(t, issues, 1)
	require.Equal(t, "customer.phone", issues[0].Path)
}

func TestValidateAllCoversRegisteredRules(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.RegisterRule("a", Required())
	s.RegisterRule("b", Required())
	s.Set("a", "x")

	issues := s.ValidateAll()
	require.Len(t, issues, 1)
	require.Equal(t, "b", issues[0].Path)
}

package distribution

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleUnit(id string) Unit {
	return Unit{
		ID:            id,
		PostalCode:    "8000",
		Place:         "Zürich",
		Canton:        "ZH",
		PriceCategory: "A",
		Households:    Households{All: 1500, MultiFamily: 1000, SingleFamily: 500},
	}
}

func TestResolveAllIgnoresOverrides(t *testing.T) {
	u := sampleUnit("u1")
	u.MultiFamilyOverride = intPtr(10)
	u.SingleFamilyOverride = intPtr(20)
	require.Equal(t, 1500, Resolve(u, AudienceAll))
	require.Equal(t, 10, Resolve(u, AudienceMultiFamily))
	require.Equal(t, 20, Resolve(u, AudienceSingleFamily))

	u.MultiFamilyOverride = nil
	require.Equal(t, 1000, Resolve(u, AudienceMultiFamily))
}

func TestResolveStaysWithinHouseholds(t *testing.T) {
	u := sampleUnit("u1")
	u.MultiFamilyOverride = intPtr(5000)
	require.Equal(t, 1000, Resolve(u, AudienceMultiFamily))
}

func TestSelectionAddDeduplicatesAndRejectsMalformed(t *testing.T) {
	s, err := Selection{}.Add(sampleUnit("u1"))
	require.NoError(t, err)
	s, err = s.Add(sampleUnit("u1"))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())

	bad := sampleUnit("")
	next, err := s.Add(bad)
	require.True(t, errors.Is(err, ErrInvalidUnit))
	require.Equal(t, s, next)

	noPlace := sampleUnit("u2")
	noPlace.Place = ""
	_, err = s.Add(noPlace)
	require.ErrorIs(t, err, ErrInvalidUnit)

	negative := sampleUnit("u3")
	negative.Households.MultiFamily = -1
	_, err = s.Add(negative)
	require.ErrorIs(t, err, ErrInvalidUnit)
}

func TestSelectionAddAllIsOneTransition(t *testing.T) {
	base, err := NewSelection(sampleUnit("u1"))
	require.NoError(t, err)

	next, added, err := base.AddAll([]Unit{sampleUnit("u2"), sampleUnit("u1"), sampleUnit(""), sampleUnit("u3")})
	require.ErrorIs(t, err, ErrInvalidUnit)
	require.Equal(t, 2, added)
	require.Equal(t, 3, next.Len())
	require.Equal(t, 1, base.Len(), "receiver must not change")

	ids := []string{}
	for _, u := range next.Units() {
		ids = append(ids, u.ID)
	}
	require.Equal(t, []string{"u1", "u2", "u3"}, ids)
}

func TestSelectionRemoveDropsOverrides(t *testing.T) {
	s, err := NewSelection(sampleUnit("u1"), sampleUnit("u2"))
	require.NoError(t, err)
	s, err = s.SetOverride("u1", AudienceMultiFamily, intPtr(100))
	require.NoError(t, err)

	s, ok := s.Remove("u1")
	require.True(t, ok)
	require.False(t, s.Contains("u1"))
	_, ok = s.Remove("u1")
	require.False(t, ok)

	s, err = s.Add(sampleUnit("u1"))
	require.NoError(t, err)
	units := s.Units()
	require.Nil(t, units[1].MultiFamilyOverride)
}

func TestSetOverrideClampsOnEntry(t *testing.T) {
	s, err := NewSelection(sampleUnit("u1"))
	require.NoError(t, err)

	s, err = s.SetOverride("u1", AudienceMultiFamily, intPtr(-5))
	require.NoError(t, err)
	require.Equal(t, 0, *s.Units()[0].MultiFamilyOverride)

	s, err = s.SetOverride("u1", AudienceSingleFamily, intPtr(9999))
	require.NoError(t, err)
	require.Equal(t, 500, *s.Units()[0].SingleFamilyOverride)

	s, err = s.SetOverride("u1", AudienceSingleFamily, nil)
	require.NoError(t, err)
	require.Nil(t, s.Units()[0].SingleFamilyOverride)

	_, err = s.SetOverride("u1", AudienceAll, intPtr(1))
	require.ErrorIs(t, err, ErrInvalidAudience)
	_, err = s.SetOverride("missing", AudienceMultiFamily, intPtr(1))
	require.ErrorIs(t, err, ErrUnknownUnit)
}

func TestSelectionJSONRoundTripKeepsOrder(t *testing.T) {
	s, err := NewSelection(sampleUnit("b"), sampleUnit("a"))
	require.NoError(t, err)
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var restored Selection
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Equal(t, s.Units(), restored.Units())

	empty, err := json.Marshal(Selection{})
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(empty))
}

func TestParseAudience(t *testing.T) {
	a, err := ParseAudience(" Multi_Family ")
	require.NoError(t, err)
	require.Equal(t, AudienceMultiFamily, a)
	a, err = ParseAudience("")
	require.NoError(t, err)
	require.Equal(t, AudienceAll, a)
	_, err = ParseAudience("tenants")
	require.ErrorIs(t, err, ErrInvalidAudience)
}

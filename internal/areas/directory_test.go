package areas_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/remote"
)

func loadDirectory(t *testing.T) *areas.Directory {
	t.Helper()
	dir, err := areas.Load(context.Background(), remote.File{Path: "testdata/areas.yaml"}, zerolog.Nop())
	require.NoError(t, err)
	return dir
}

func TestLoadSkipsMalformedRecords(t *testing.T) {
	dir := loadDirectory(t)
	require.Equal(t, 5, dir.Len())
	require.Equal(t, 1, dir.Skipped())
}

func TestLookups(t *testing.T) {
	dir := loadDirectory(t)

	u, err := dir.ByID("8400")
	require.NoError(t, err)
	require.Equal(t, "Winterthur", u.Place)
	require.Equal(t, 1300, u.Households.MultiFamily)

	_, err = dir.ByID("0000")
	require.ErrorIs(t, err, areas.ErrNotFound)

	units, err := dir.ByIDs([]string{"3000", "nope", "8001"})
	require.ErrorIs(t, err, areas.ErrNotFound)
	require.Len(t, units, 2)

	zh := dir.ByPlace("zürich", "zh")
	require.Len(t, zh, 2)
	require.Empty(t, dir.ByPlace("Zürich", "BE"))

	ranged, err := dir.ByPostalRange(8000, 8999)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	require.Equal(t, "8001", ranged[0].PostalCode)

	empty, err := dir.ByPostalRange(5000, 5999)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = dir.ByPostalRange(9000, 8000)
	require.ErrorIs(t, err, areas.ErrInvalidRange)

	require.Len(t, dir.Search("80", 10), 2)
	require.Len(t, dir.Search("win", 10), 1)
	require.Len(t, dir.Search("8", 1), 1)
	require.Nil(t, dir.Search("  ", 10))
}

func TestByPostalRangeSortsNumerically(t *testing.T) {
	dir := areas.New([]distribution.Unit{
		{ID: "8001", PostalCode: "8001", Place: "Zürich"},
		{ID: "1000", PostalCode: "1000", Place: "Lausanne"},
		{ID: "950", PostalCode: "950", Place: "Test"},
		{ID: "1700", PostalCode: " 1700", Place: "Fribourg"},
	})
	units, err := dir.ByPostalRange(1, 9999)
	require.NoError(t, err)
	var ids []string
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	require.Equal(t, []string{"950", "1000", "1700", "8001"}, ids)
}

package contact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func strPtr(v string) *string { return &v }

func TestValidityTransitions(t *testing.T) {
	var d Details
	require.False(t, d.Valid())
	require.False(t, d.Touched())

	steps := []Patch{
		{Salutation: strPtr("Ms")},
		{FirstName: strPtr("Anna")},
		{LastName: strPtr("Muster")},
	}
	for _, p := range steps {
		d = p.Apply(d)
		require.False(t, d.Valid())
	}
	require.True(t, d.Touched())

	d = Patch{Email: strPtr("anna@")}.Apply(d)
	require.False(t, d.Valid())
	require.Equal(t, []string{"email"}, d.Missing())

	d = Patch{Email: strPtr(" anna@example.ch ")}.Apply(d)
	require.True(t, d.Valid())
	require.Empty(t, d.Missing())

	d = Patch{LastName: strPtr("  ")}.Apply(d)
	require.False(t, d.Valid())
	require.Equal(t, []string{"lastName"}, d.Missing())
}

func TestOptionalFieldsDoNotAffectValidity(t *testing.T) {
	d := Details{Salutation: "Mr", FirstName: "Beat", LastName: "Keller", Email: "beat@example.ch"}
	require.True(t, d.Valid())
	d = Patch{Phone: strPtr("+41 44 000 00 00"), Company: strPtr("")}.Apply(d)
	require.True(t, d.Valid())
}

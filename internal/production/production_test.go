package production

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpecDropsFieldsOfOtherMethod(t *testing.T) {
	m, err := Spec{Method: MethodSelfSupply, Format: "A5", Delivery: DeliveryPickup, PaperWeight: "135g", RunQuantity: 100}.ToMethod()
	require.NoError(t, err)
	require.Equal(t, SelfSupply{FlyerFormat: "A5", Delivery: DeliveryPickup}, m)
	require.True(t, m.Complete())

	_, err = Spec{Method: "fax"}.ToMethod()
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPrintServiceCompleteness(t *testing.T) {
	p := PrintService{FlyerFormat: "A5", PaperWeight: "135g", Sides: SidesDouble, Finish: "matt", RunQuantity: 5000}
	require.True(t, p.Complete())
	require.Equal(t, "A5, 135g, double, matt, 5000 copies", p.Describe())

	p.RunQuantity = 0
	require.False(t, p.Complete())
	p.RunQuantity = 1
	p.Sides = "triple"
	require.False(t, p.Complete())
}

func TestConfigSkipped(t *testing.T) {
	require.True(t, Config{}.Skipped())
	require.False(t, Config{Design: DesignBasic}.Skipped())
	require.False(t, Config{Print: SelfSupply{}}.Skipped())
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := Config{Design: DesignPremium, Print: PrintService{FlyerFormat: "A4", PaperWeight: "170g", Sides: SidesSingle, Finish: "gloss", RunQuantity: 2000}}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back Config
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, cfg, back)

	data, err = json.Marshal(Config{})
	require.NoError(t, err)
	require.JSONEq(t, `{"design":"","print":{"method":"none"}}`, string(data))
}

func TestUnconfiguredDecodesToNilPrint(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"design":"basic","print":{"method":"none"}}`), &cfg))
	require.Equal(t, Config{Design: DesignBasic}, cfg)

	err := json.Unmarshal([]byte(`{"print":{"method":"fax"}}`), &cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

package order

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
	"github.com/noah-isme/flyer-quote/internal/validation"
)

// 2026-05-04 10:00 in Zurich.
var fixedNow = time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func calendar(t *testing.T) schedule.Calendar {
	t.Helper()
	cal, err := schedule.NewCalendar("Europe/Zurich", 10)
	require.NoError(t, err)
	return cal
}

func priceTable() *pricetable.Table {
	d := decimal.RequireFromString
	return &pricetable.Table{
		Currency:      "CHF",
		TaxRate:       d("0.081"),
		MultiFamily:   map[string]decimal.Decimal{"A": d("50")},
		SingleFamily:  map[string]decimal.Decimal{"A": d("40")},
		VehicleFee:    d("5"),
		PickupFee:     d("35"),
		ExpressFactor: d("0.25"),
		MinimumOrder:  d("0"),
		DesignPrices:  map[string]decimal.Decimal{"BASIC": d("190")},
	}
}

func zurich() distribution.Unit {
	return distribution.Unit{
		ID:            "8001",
		PostalCode:    "8001",
		Place:         "Zürich",
		Canton:        "ZH",
		PriceCategory: "A",
		Households:    distribution.Households{All: 1500, MultiFamily: 1000, SingleFamily: 500},
	}
}

func bern() distribution.Unit {
	return distribution.Unit{
		ID:            "3000",
		PostalCode:    "3000",
		Place:         "Bern",
		Canton:        "BE",
		PriceCategory: "A",
		Households:    distribution.Households{All: 900, MultiFamily: 600, SingleFamily: 300},
	}
}

func standardDate() schedule.Date { return schedule.Date{Year: 2026, Month: time.May, Day: 14} }

func validContact() contact.Details {
	return contact.Details{Salutation: "Ms", FirstName: "Anna", LastName: "Muster", Email: "anna@example.ch"}
}

func intPtr(v int) *int { return &v }

func TestReduceRejectsMalformedUnitAsNoop(t *testing.T) {
	in := NewInputs()
	bad := zurich()
	bad.Place = ""
	next, err := Reduce(in, AddUnit{Unit: bad})
	require.ErrorIs(t, err, distribution.ErrInvalidUnit)
	require.Equal(t, in, next)
	require.False(t, next.Touched.Distribution)
}

func TestReduceAddUnitsKeepsValidUnits(t *testing.T) {
	bad := bern()
	bad.ID = ""
	next, err := Reduce(NewInputs(), AddUnits{Units: []distribution.Unit{zurich(), bad, zurich()}})
	require.ErrorIs(t, err, distribution.ErrInvalidUnit)
	require.Equal(t, 1, next.Selection.Len())
	require.True(t, next.Touched.Distribution)
}

func TestReduceRemoveDropsOverrides(t *testing.T) {
	in, err := ReduceAll(NewInputs(),
		AddUnit{Unit: zurich()},
		SetOverride{UnitID: "8001", Audience: distribution.AudienceMultiFamily, Count: intPtr(5000)},
	)
	require.NoError(t, err)
	units := in.Selection.Units()
	require.Equal(t, 1000, *units[0].MultiFamilyOverride, "clamped to household count")

	in, err = ReduceAll(in, RemoveUnit{ID: "8001"}, AddUnit{Unit: zurich()})
	require.NoError(t, err)
	require.Nil(t, in.Selection.Units()[0].MultiFamilyOverride)

	_, err = Reduce(in, RemoveUnit{ID: "9999"})
	require.ErrorIs(t, err, distribution.ErrUnknownUnit)
}

func TestReduceAudienceAndProduction(t *testing.T) {
	in, err := ReduceAll(NewInputs(),
		SetAudience{Audience: "multi_family"},
		SetDesign{Design: " Basic "},
		SetPrint{Method: production.SelfSupply{FlyerFormat: "A5", Delivery: production.DeliveryPickup}},
	)
	require.NoError(t, err)
	require.Equal(t, distribution.AudienceMultiFamily, in.Audience)
	require.Equal(t, production.DesignBasic, in.Production.Design)
	require.True(t, in.Touched.Production)
	require.False(t, in.Touched.Contact)

	in, err = Reduce(in, SetPrint{Method: production.Unconfigured{}})
	require.NoError(t, err)
	require.Nil(t, in.Production.Print)

	_, err = Reduce(in, SetAudience{Audience: "everyone"})
	require.ErrorIs(t, err, distribution.ErrInvalidAudience)

	_, err = Reduce(in, nil)
	require.ErrorIs(t, err, ErrNoCommand)
}

func TestDeriveMultiFamilyExample(t *testing.T) {
	in, err := ReduceAll(NewInputs(),
		AddUnit{Unit: zurich()},
		SetAudience{Audience: "multi_family"},
		SetStartDate{Date: standardDate()},
		SetContact{Details: validContact()},
	)
	require.NoError(t, err)

	snap := Derive(in, priceTable(), calendar(t), fixedNow)
	require.Equal(t, 1000, snap.Distribution.TotalFlyers)
	require.Equal(t, "59.46", snap.Cost.GrandTotal.StringFixed(2))
	require.False(t, snap.Distribution.ExpressApplicable)
	require.True(t, snap.Validation.Valid)
	require.Equal(t, schedule.Date{Year: 2026, Month: time.May, Day: 5}, snap.Distribution.MinDate)
	require.Equal(t, standardDate(), snap.Distribution.StandardDate)
}

func TestDeriveAudienceSwitchKeepsSelection(t *testing.T) {
	in, err := ReduceAll(NewInputs(), AddUnits{Units: []distribution.Unit{zurich(), bern()}})
	require.NoError(t, err)
	cal := calendar(t)

	all := Derive(in, priceTable(), cal, fixedNow)
	in, err = Reduce(in, SetAudience{Audience: "single_family"})
	require.NoError(t, err)
	single := Derive(in, priceTable(), cal, fixedNow)

	require.Equal(t, all.Distribution.Units, single.Distribution.Units)
	require.Equal(t, 2400, all.Distribution.TotalFlyers)
	require.Equal(t, 800, single.Distribution.TotalFlyers)
	require.Equal(t, 3, len(all.Cost.Lines), "one line per unit plus vehicle")
	require.Equal(t, 2, len(single.Cost.Lines), "one line per category plus vehicle")
}

func TestDeriveExpressNeedsConfirmationAndApplicability(t *testing.T) {
	cal := calendar(t)
	express := schedule.Date{Year: 2026, Month: time.May, Day: 8}
	in, err := ReduceAll(NewInputs(),
		AddUnit{Unit: zurich()},
		SetAudience{Audience: "multi_family"},
		SetStartDate{Date: express},
	)
	require.NoError(t, err)

	snap := Derive(in, priceTable(), cal, fixedNow)
	require.True(t, snap.Distribution.ExpressApplicable)
	require.False(t, snap.Cost.Surcharges.Express.Applied)
	require.Equal(t, validation.StateInvalid, snap.Validation.Distribution)

	in, _ = Reduce(in, ConfirmExpress{Confirmed: true})
	snap = Derive(in, priceTable(), cal, fixedNow)
	require.True(t, snap.Cost.Surcharges.Express.Applied)
	require.Equal(t, "12.50", snap.Cost.Surcharges.Express.Amount.StringFixed(2))
	require.Equal(t, validation.StateValid, snap.Validation.Distribution)

	// moving to the standard date clears applicability despite the stale confirmation
	in, _ = Reduce(in, SetStartDate{Date: standardDate()})
	snap = Derive(in, priceTable(), cal, fixedNow)
	require.True(t, snap.Distribution.ExpressConfirmed)
	require.False(t, snap.Distribution.ExpressApplicable)
	require.False(t, snap.Cost.Surcharges.Express.Applied)
	require.Equal(t, validation.StateValid, snap.Validation.Distribution)
}

func TestDeriveWithoutTableKeepsValidation(t *testing.T) {
	in, err := ReduceAll(NewInputs(),
		AddUnit{Unit: zurich()},
		SetStartDate{Date: standardDate()},
		SetContact{Details: validContact()},
	)
	require.NoError(t, err)
	snap := Derive(in, nil, calendar(t), fixedNow)
	require.True(t, snap.Cost.Degraded)
	require.True(t, snap.Cost.GrandTotal.IsZero())
	require.True(t, snap.Validation.Valid)
}

func TestDeriveIsIdempotent(t *testing.T) {
	in, err := ReduceAll(NewInputs(),
		AddUnits{Units: []distribution.Unit{zurich(), bern()}},
		SetOverride{UnitID: "3000", Audience: distribution.AudienceSingleFamily, Count: intPtr(100)},
		SetDesign{Design: production.DesignBasic},
		SetPrint{Method: production.SelfSupply{FlyerFormat: "A3", Delivery: production.DeliveryPickup}},
	)
	require.NoError(t, err)
	cal := calendar(t)
	require.Equal(t, Derive(in, priceTable(), cal, fixedNow), Derive(in, priceTable(), cal, fixedNow))
}

func TestSnapshotStepsNeutraliseUntouched(t *testing.T) {
	in, err := Reduce(NewInputs(), AddUnit{Unit: zurich()})
	require.NoError(t, err)
	snap := Derive(in, priceTable(), calendar(t), fixedNow)
	steps := snap.Steps()
	require.Equal(t, validation.StateInvalid, steps.Distribution)
	require.Equal(t, validation.StateNeutral, steps.Production)
	require.Equal(t, validation.StateNeutral, steps.Contact)
	require.Equal(t, validation.StateValid, snap.Validation.Production)
}

func TestCoordinatorDispatchPublishesOncePerBatch(t *testing.T) {
	c := New(Options{Table: priceTable(), Calendar: calendar(t), Clock: clock})
	require.Equal(t, uint64(1), c.Snapshot().Version)

	updates, cancel := c.Subscribe()
	defer cancel()
	<-updates

	snap, err := c.Dispatch(context.Background(),
		AddUnit{Unit: zurich()},
		AddUnit{Unit: bern()},
		SetAudience{Audience: "multi_family"},
	)
	require.NoError(t, err)
	require.Equal(t, uint64(2), snap.Version)
	require.Equal(t, 1600, snap.Distribution.TotalFlyers)

	published := <-updates
	require.Equal(t, snap, published)
	select {
	case extra := <-updates:
		t.Fatalf("unexpected extra publication %d", extra.Version)
	default:
	}
}

func TestCoordinatorJoinsCommandErrors(t *testing.T) {
	c := New(Options{Table: priceTable(), Calendar: calendar(t), Clock: clock})
	bad := bern()
	bad.PostalCode = ""

	snap, err := c.Dispatch(context.Background(),
		AddUnit{Unit: zurich()},
		AddUnit{Unit: bad},
		RemoveUnit{ID: "nope"},
	)
	require.Error(t, err)
	require.ErrorIs(t, err, distribution.ErrInvalidUnit)
	require.ErrorIs(t, err, distribution.ErrUnknownUnit)
	require.Len(t, snap.Distribution.Units, 1)
	require.Equal(t, snap, c.Snapshot())
}

func TestCoordinatorPriceTableArrivesLater(t *testing.T) {
	c := New(Options{Calendar: calendar(t), Clock: clock})
	_, err := c.Dispatch(context.Background(), AddUnit{Unit: zurich()}, SetAudience{Audience: "multi_family"})
	require.NoError(t, err)
	require.True(t, c.Snapshot().Cost.Degraded)

	updates, cancel := c.Subscribe()
	defer cancel()

	snap := c.SetPriceTable(context.Background(), priceTable())
	require.False(t, snap.Cost.Degraded)
	require.Equal(t, "59.46", snap.Cost.GrandTotal.StringFixed(2))
	require.Equal(t, snap, <-updates, "latest snapshot replaces the buffered one")
}

func TestCoordinatorRecomputeIsIdempotent(t *testing.T) {
	table := priceTable()
	c := New(Options{Table: table, Calendar: calendar(t), Clock: clock})
	_, err := c.Dispatch(context.Background(), AddUnit{Unit: zurich()}, SetDesign{Design: production.DesignBasic})
	require.NoError(t, err)
	first := c.Snapshot()

	updates, cancel := c.Subscribe()
	defer cancel()
	<-updates

	second := c.SetPriceTable(context.Background(), table)
	require.Equal(t, first, second)
	require.Equal(t, uint64(2), second.Version)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(firstJSON), string(secondJSON))

	select {
	case extra := <-updates:
		t.Fatalf("unchanged snapshot republished as version %d", extra.Version)
	default:
	}
}

func TestCoordinatorRejectedBatchKeepsVersion(t *testing.T) {
	c := New(Options{Table: priceTable(), Calendar: calendar(t), Clock: clock})
	before := c.Snapshot()

	snap, err := c.Dispatch(context.Background(), RemoveUnit{ID: "8001"})
	require.ErrorIs(t, err, distribution.ErrUnknownUnit)
	require.Equal(t, before, snap)
	require.Equal(t, uint64(1), snap.Version)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	c := New(Options{})
	updates, cancel := c.Subscribe()
	<-updates
	cancel()
	cancel()
	_, ok := <-updates
	require.False(t, ok)
	_, err := c.Dispatch(context.Background(), ClearUnits{})
	require.NoError(t, err)
}

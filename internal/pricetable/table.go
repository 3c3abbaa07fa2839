// Package pricetable holds the externally supplied price reference and the
// provider that makes the first loaded table available to quotes.
package pricetable

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/money"
	"github.com/noah-isme/flyer-quote/internal/production"
)

// ErrInvalidTable is returned when a price document is malformed.
var ErrInvalidTable = errors.New("pricetable: invalid table")

// Table is an immutable, validated price reference. Distribution and format
// rates are per 1000 flyers.
type Table struct {
	Currency       string                     `json:"currency"`
	TaxRate        decimal.Decimal            `json:"taxRate"`
	MultiFamily    map[string]decimal.Decimal `json:"multiFamily"`
	SingleFamily   map[string]decimal.Decimal `json:"singleFamily"`
	StandardFormat []string                   `json:"standardFormats"`
	FormatRates    map[string]decimal.Decimal `json:"formatSurcharges"`
	VehicleFee     decimal.Decimal            `json:"vehicleFee"`
	PickupFee      decimal.Decimal            `json:"pickupFee"`
	ExpressFactor  decimal.Decimal            `json:"expressFactor"`
	MinimumOrder   decimal.Decimal            `json:"minimumOrder"`
	DesignPrices   map[string]decimal.Decimal `json:"designPackages"`
}

// Rate returns the distribution rate of the price category for a housing
// audience. ok is false when the reference has no matching rate.
func (t *Table) Rate(category string, housing distribution.Audience) (decimal.Decimal, bool) {
	if t == nil {
		return money.Zero, false
	}
	var rates map[string]decimal.Decimal
	switch housing {
	case distribution.AudienceMultiFamily:
		rates = t.MultiFamily
	case distribution.AudienceSingleFamily:
		rates = t.SingleFamily
	default:
		return money.Zero, false
	}
	rate, ok := rates[normaliseKey(category)]
	return rate, ok
}

// FormatSurcharge returns the per-1000 surcharge of a whitelisted format.
func (t *Table) FormatSurcharge(format string) (decimal.Decimal, bool) {
	if t == nil {
		return money.Zero, false
	}
	rate, ok := t.FormatRates[normaliseKey(format)]
	return rate, ok
}

// IsStandardFormat reports whether the format is priced without surcharge.
func (t *Table) IsStandardFormat(format string) bool {
	if t == nil {
		return false
	}
	key := normaliseKey(format)
	for _, f := range t.StandardFormat {
		if f == key {
			return true
		}
	}
	return false
}

// DesignPrice returns the flat price of a design package, zero for none or
// unknown packages.
func (t *Table) DesignPrice(pkg production.DesignPackage) decimal.Decimal {
	if t == nil || pkg == production.DesignNone {
		return money.Zero
	}
	if price, ok := t.DesignPrices[normaliseKey(string(pkg))]; ok {
		return price
	}
	return money.Zero
}

// Categories lists the price categories known for either housing audience.
func (t *Table) Categories() []string {
	if t == nil {
		return nil
	}
	set := map[string]struct{}{}
	for k := range t.MultiFamily {
		set[k] = struct{}{}
	}
	for k := range t.SingleFamily {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// document is the on-disk shape of a price table. JSON documents decode
// through the same path since JSON is a YAML subset.
type document struct {
	Currency     string  `yaml:"currency"`
	TaxRate      float64 `yaml:"tax_rate"`
	Distribution struct {
		MultiFamily  map[string]float64 `yaml:"multi_family"`
		SingleFamily map[string]float64 `yaml:"single_family"`
	} `yaml:"distribution"`
	Formats struct {
		Standard   []string           `yaml:"standard"`
		Surcharges map[string]float64 `yaml:"surcharges"`
	} `yaml:"formats"`
	Surcharges struct {
		VehicleFee    float64 `yaml:"vehicle_fee"`
		PickupFee     float64 `yaml:"pickup_fee"`
		ExpressFactor float64 `yaml:"express_factor"`
		MinimumOrder  float64 `yaml:"minimum_order"`
	} `yaml:"surcharges"`
	DesignPackages map[string]float64 `yaml:"design_packages"`
}

// Decode parses and validates a YAML or JSON price document.
func Decode(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return doc.table(), nil
}

func (d document) validate() error {
	var problems []string
	if len(d.Distribution.MultiFamily) == 0 && len(d.Distribution.SingleFamily) == 0 {
		problems = append(problems, "distribution rates are missing")
	}
	if d.TaxRate < 0 || d.TaxRate >= 1 {
		problems = append(problems, "tax_rate must be within [0,1)")
	}
	check := func(scope string, values map[string]float64) {
		for k, v := range values {
			if v < 0 {
				problems = append(problems, fmt.Sprintf("%s.%s is negative", scope, k))
			}
		}
	}
	if len(d.Formats.Standard) == 0 {
		problems = append(problems, "formats.standard is missing")
	}
	check("distribution.multi_family", d.Distribution.MultiFamily)
	check("distribution.single_family", d.Distribution.SingleFamily)
	check("formats.surcharges", d.Formats.Surcharges)
	check("design_packages", d.DesignPackages)
	check("surcharges", map[string]float64{
		"vehicle_fee":    d.Surcharges.VehicleFee,
		"pickup_fee":     d.Surcharges.PickupFee,
		"express_factor": d.Surcharges.ExpressFactor,
		"minimum_order":  d.Surcharges.MinimumOrder,
	})
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(problems, "; "))
}

func (d document) table() *Table {
	currency := strings.ToUpper(strings.TrimSpace(d.Currency))
	if currency == "" {
		currency = "CHF"
	}
	standard := make([]string, 0, len(d.Formats.Standard))
	for _, f := range d.Formats.Standard {
		standard = append(standard, normaliseKey(f))
	}
	return &Table{
		Currency:       currency,
		TaxRate:        money.FromFloat(d.TaxRate),
		MultiFamily:    rates(d.Distribution.MultiFamily),
		SingleFamily:   rates(d.Distribution.SingleFamily),
		StandardFormat: standard,
		FormatRates:    rates(d.Formats.Surcharges),
		VehicleFee:     money.FromFloat(d.Surcharges.VehicleFee),
		PickupFee:      money.FromFloat(d.Surcharges.PickupFee),
		ExpressFactor:  money.FromFloat(d.Surcharges.ExpressFactor),
		MinimumOrder:   money.FromFloat(d.Surcharges.MinimumOrder),
		DesignPrices:   rates(d.DesignPackages),
	}
}

func rates(in map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[normaliseKey(k)] = money.FromFloat(v)
	}
	return out
}

func normaliseKey(k string) string {
	return strings.ToUpper(strings.TrimSpace(k))
}

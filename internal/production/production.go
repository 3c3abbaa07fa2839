// Package production models the design and print configuration of a quote.
package production

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a configuration payload cannot be decoded.
var ErrInvalidConfig = errors.New("production: invalid configuration")

// DesignPackage is the chosen design service. The empty value means none.
type DesignPackage string

const (
	DesignNone     DesignPackage = ""
	DesignBasic    DesignPackage = "basic"
	DesignStandard DesignPackage = "standard"
	DesignPremium  DesignPackage = "premium"
)

// DesignPackages lists the packages that can be ordered.
func DesignPackages() []DesignPackage {
	return []DesignPackage{DesignBasic, DesignStandard, DesignPremium}
}

// Known reports whether the package is one of the orderable packages.
func (d DesignPackage) Known() bool {
	for _, p := range DesignPackages() {
		if d == p {
			return true
		}
	}
	return false
}

// Delivery is how self-supplied flyers reach the distributor.
type Delivery string

const (
	DeliveryDropOff Delivery = "drop_off"
	DeliveryPickup  Delivery = "pickup"
)

// Sides is the print side mode of the print service.
type Sides string

const (
	SidesSingle Sides = "single"
	SidesDouble Sides = "double"
)

// FormatOther marks a custom format that is priced on request.
const FormatOther = "other"

// Method kinds as they appear on the wire.
const (
	MethodNone         = "none"
	MethodSelfSupply   = "self_supply"
	MethodPrintService = "print_service"
)

// Method is the chosen print method. Implementations are Unconfigured,
// SelfSupply and PrintService; each carries exactly the fields it needs.
type Method interface {
	Kind() string
	// Complete reports whether every field required by the method is set.
	Complete() bool
	// Format returns the flyer format, empty when unknown.
	Format() string
}

// Unconfigured means no print method was chosen.
type Unconfigured struct{}

func (Unconfigured) Kind() string   { return MethodNone }
func (Unconfigured) Complete() bool { return true }
func (Unconfigured) Format() string { return "" }

// SelfSupply means the customer provides printed flyers.
type SelfSupply struct {
	FlyerFormat string   `json:"format" yaml:"format"`
	Delivery    Delivery `json:"delivery" yaml:"delivery"`
}

func (SelfSupply) Kind() string     { return MethodSelfSupply }
func (s SelfSupply) Format() string { return s.FlyerFormat }

func (s SelfSupply) Complete() bool {
	if strings.TrimSpace(s.FlyerFormat) == "" {
		return false
	}
	return s.Delivery == DeliveryDropOff || s.Delivery == DeliveryPickup
}

// PrintService means the flyers are printed by the service.
type PrintService struct {
	FlyerFormat string `json:"format" yaml:"format"`
	PaperWeight string `json:"paperWeight" yaml:"paper_weight"`
	Sides       Sides  `json:"sides" yaml:"sides"`
	Finish      string `json:"finish" yaml:"finish"`
	RunQuantity int    `json:"runQuantity" yaml:"run_quantity"`
}

func (PrintService) Kind() string     { return MethodPrintService }
func (p PrintService) Format() string { return p.FlyerFormat }

func (p PrintService) Complete() bool {
	return strings.TrimSpace(p.FlyerFormat) != "" &&
		strings.TrimSpace(p.PaperWeight) != "" &&
		(p.Sides == SidesSingle || p.Sides == SidesDouble) &&
		strings.TrimSpace(p.Finish) != "" &&
		p.RunQuantity > 0
}

// Describe renders the print service parameters for a line item label.
func (p PrintService) Describe() string {
	parts := []string{}
	for _, v := range []string{p.FlyerFormat, p.PaperWeight, string(p.Sides), p.Finish} {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	if p.RunQuantity > 0 {
		parts = append(parts, fmt.Sprintf("%d copies", p.RunQuantity))
	}
	return strings.Join(parts, ", ")
}

// Config is the production step of a quote.
type Config struct {
	Design DesignPackage
	Print  Method
}

// Method returns the print method, never nil.
func (c Config) Method() Method {
	if c.Print == nil {
		return Unconfigured{}
	}
	return c.Print
}

// Skipped reports whether neither design nor print was chosen.
func (c Config) Skipped() bool {
	_, none := c.Method().(Unconfigured)
	return c.Design == DesignNone && none
}

// Spec is the flat wire representation of a print method.
type Spec struct {
	Method      string   `json:"method" yaml:"method"`
	Format      string   `json:"format,omitempty" yaml:"format,omitempty"`
	Delivery    Delivery `json:"delivery,omitempty" yaml:"delivery,omitempty"`
	PaperWeight string   `json:"paperWeight,omitempty" yaml:"paper_weight,omitempty"`
	Sides       Sides    `json:"sides,omitempty" yaml:"sides,omitempty"`
	Finish      string   `json:"finish,omitempty" yaml:"finish,omitempty"`
	RunQuantity int      `json:"runQuantity,omitempty" yaml:"run_quantity,omitempty"`
}

// ToMethod converts the flat spec into its variant. Fields that belong to the
// other method are dropped.
func (s Spec) ToMethod() (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s.Method)) {
	case "", MethodNone:
		return Unconfigured{}, nil
	case MethodSelfSupply:
		return SelfSupply{FlyerFormat: strings.TrimSpace(s.Format), Delivery: s.Delivery}, nil
	case MethodPrintService:
		return PrintService{
			FlyerFormat: strings.TrimSpace(s.Format),
			PaperWeight: strings.TrimSpace(s.PaperWeight),
			Sides:       s.Sides,
			Finish:      strings.TrimSpace(s.Finish),
			RunQuantity: s.RunQuantity,
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown print method %q", ErrInvalidConfig, s.Method)
	}
}

// SpecOf flattens a method for the wire.
func SpecOf(m Method) Spec {
	switch v := m.(type) {
	case SelfSupply:
		return Spec{Method: MethodSelfSupply, Format: v.FlyerFormat, Delivery: v.Delivery}
	case PrintService:
		return Spec{
			Method:      MethodPrintService,
			Format:      v.FlyerFormat,
			PaperWeight: v.PaperWeight,
			Sides:       v.Sides,
			Finish:      v.Finish,
			RunQuantity: v.RunQuantity,
		}
	default:
		return Spec{Method: MethodNone}
	}
}

type configJSON struct {
	Design DesignPackage `json:"design"`
	Print  Spec          `json:"print"`
}

// MarshalJSON encodes the config with a flat print spec.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{Design: c.Design, Print: SpecOf(c.Method())})
}

// UnmarshalJSON decodes the flat print spec into its variant.
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	m, err := raw.Print.ToMethod()
	if err != nil {
		return err
	}
	*c = Config{Design: raw.Design}
	if _, none := m.(Unconfigured); !none {
		c.Print = m
	}
	return nil
}

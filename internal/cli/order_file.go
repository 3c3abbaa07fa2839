package cli

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/order"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// orderFile is the YAML description of an order.
type orderFile struct {
	Audience string   `yaml:"audience"`
	Units    []string `yaml:"units"`
	Range    *struct {
		From int `yaml:"from"`
		To   int `yaml:"to"`
	} `yaml:"range"`
	Place *struct {
		Name   string `yaml:"name"`
		Canton string `yaml:"canton"`
	} `yaml:"place"`
	Overrides []struct {
		Unit     string `yaml:"unit"`
		Audience string `yaml:"audience"`
		Count    *int   `yaml:"count"`
	} `yaml:"overrides"`
	StartDate        schedule.Date `yaml:"start_date"`
	ExpressConfirmed bool          `yaml:"express_confirmed"`
	Production       struct {
		Design string           `yaml:"design"`
		Print  *production.Spec `yaml:"print"`
	} `yaml:"production"`
	Contact *contact.Details `yaml:"contact"`
}

func readOrderFile(path string) (orderFile, error) {
	var of orderFile
	data, err := os.ReadFile(path)
	if err != nil {
		return of, fmt.Errorf("read order file: %w", err)
	}
	if err := yaml.Unmarshal(data, &of); err != nil {
		return of, fmt.Errorf("parse order file %s: %w", path, err)
	}
	return of, nil
}

// commands turns the file into one command batch. Units that cannot be found
// in the directory are returned as errors next to the batch.
func (of orderFile) commands(dir *areas.Directory) ([]order.Command, error) {
	var (
		units []distribution.Unit
		errs  []error
	)
	if len(of.Units) > 0 {
		found, err := dir.ByIDs(of.Units)
		units = append(units, found...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if of.Range != nil {
		found, err := dir.ByPostalRange(of.Range.From, of.Range.To)
		if err != nil {
			errs = append(errs, err)
		}
		units = append(units, found...)
	}
	if of.Place != nil {
		units = append(units, dir.ByPlace(of.Place.Name, of.Place.Canton)...)
	}

	cmds := []order.Command{order.AddUnits{Units: units}}
	for _, o := range of.Overrides {
		cmds = append(cmds, order.SetOverride{UnitID: o.Unit, Audience: distribution.Audience(o.Audience), Count: o.Count})
	}
	if of.Audience != "" {
		cmds = append(cmds, order.SetAudience{Audience: of.Audience})
	}
	if !of.StartDate.IsZero() {
		cmds = append(cmds, order.SetStartDate{Date: of.StartDate})
	}
	if of.ExpressConfirmed {
		cmds = append(cmds, order.ConfirmExpress{Confirmed: true})
	}
	if of.Production.Design != "" {
		cmds = append(cmds, order.SetDesign{Design: production.DesignPackage(of.Production.Design)})
	}
	if of.Production.Print != nil {
		method, err := of.Production.Print.ToMethod()
		if err != nil {
			errs = append(errs, err)
		} else {
			cmds = append(cmds, order.SetPrint{Method: method})
		}
	}
	if of.Contact != nil {
		cmds = append(cmds, order.SetContact{Details: *of.Contact})
	}
	return cmds, errors.Join(errs...)
}

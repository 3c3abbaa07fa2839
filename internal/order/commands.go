package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/flyer-quote/internal/contact"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/production"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// ErrNoCommand is returned when a nil command is dispatched.
var ErrNoCommand = errors.New("order: nil command")

// Command is one user intent. Commands are applied by Reduce; the set is
// closed to this package.
type Command interface {
	Name() string
	apply(Inputs) (Inputs, error)
}

// Reduce applies cmd to in. A failing command leaves the inputs unchanged,
// except AddUnits which keeps the units it could add.
func Reduce(in Inputs, cmd Command) (Inputs, error) {
	if cmd == nil {
		return in, ErrNoCommand
	}
	next, err := cmd.apply(in)
	if err != nil {
		return next, fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return next, nil
}

// ReduceAll applies the commands in order and joins their errors.
func ReduceAll(in Inputs, cmds ...Command) (Inputs, error) {
	var errs []error
	for _, cmd := range cmds {
		var err error
		in, err = Reduce(in, cmd)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return in, errors.Join(errs...)
}

// AddUnit selects one unit.
type AddUnit struct {
	Unit distribution.Unit
}

func (AddUnit) Name() string { return "add_unit" }

func (c AddUnit) apply(in Inputs) (Inputs, error) {
	sel, err := in.Selection.Add(c.Unit)
	if err != nil {
		return in, err
	}
	in.Selection = sel
	in.Touched.Distribution = true
	return in, nil
}

// AddUnits selects several units in one transition.
type AddUnits struct {
	Units []distribution.Unit
}

func (AddUnits) Name() string { return "add_units" }

func (c AddUnits) apply(in Inputs) (Inputs, error) {
	sel, added, err := in.Selection.AddAll(c.Units)
	in.Selection = sel
	if added > 0 {
		in.Touched.Distribution = true
	}
	return in, err
}

// RemoveUnit deselects a unit, dropping its overrides.
type RemoveUnit struct {
	ID string
}

func (RemoveUnit) Name() string { return "remove_unit" }

func (c RemoveUnit) apply(in Inputs) (Inputs, error) {
	sel, ok := in.Selection.Remove(c.ID)
	if !ok {
		return in, fmt.Errorf("%w: %s", distribution.ErrUnknownUnit, c.ID)
	}
	in.Selection = sel
	in.Touched.Distribution = true
	return in, nil
}

// ClearUnits empties the selection.
type ClearUnits struct{}

func (ClearUnits) Name() string { return "clear_units" }

func (ClearUnits) apply(in Inputs) (Inputs, error) {
	in.Selection = in.Selection.Clear()
	in.Touched.Distribution = true
	return in, nil
}

// SetOverride sets or clears a manual flyer count of a selected unit.
type SetOverride struct {
	UnitID   string
	Audience distribution.Audience
	Count    *int
}

func (SetOverride) Name() string { return "set_override" }

func (c SetOverride) apply(in Inputs) (Inputs, error) {
	sel, err := in.Selection.SetOverride(c.UnitID, c.Audience, c.Count)
	if err != nil {
		return in, err
	}
	in.Selection = sel
	in.Touched.Distribution = true
	return in, nil
}

// SetAudience switches the targeted households without touching the selection.
type SetAudience struct {
	Audience string
}

func (SetAudience) Name() string { return "set_audience" }

func (c SetAudience) apply(in Inputs) (Inputs, error) {
	a, err := distribution.ParseAudience(c.Audience)
	if err != nil {
		return in, err
	}
	in.Audience = a
	in.Touched.Distribution = true
	return in, nil
}

// SetStartDate sets the distribution start date. The zero date unsets it.
type SetStartDate struct {
	Date schedule.Date
}

func (SetStartDate) Name() string { return "set_start_date" }

func (c SetStartDate) apply(in Inputs) (Inputs, error) {
	in.StartDate = c.Date
	in.Touched.Distribution = true
	return in, nil
}

// ConfirmExpress records whether the customer accepts the express surcharge.
type ConfirmExpress struct {
	Confirmed bool
}

func (ConfirmExpress) Name() string { return "confirm_express" }

func (c ConfirmExpress) apply(in Inputs) (Inputs, error) {
	in.ExpressConfirmed = c.Confirmed
	in.Touched.Distribution = true
	return in, nil
}

// SetDesign chooses the design package. Unknown packages are stored and
// reported invalid by validation.
type SetDesign struct {
	Design production.DesignPackage
}

func (SetDesign) Name() string { return "set_design" }

func (c SetDesign) apply(in Inputs) (Inputs, error) {
	in.Production.Design = production.DesignPackage(strings.ToLower(strings.TrimSpace(string(c.Design))))
	in.Touched.Production = true
	return in, nil
}

// SetPrint replaces the print method. A nil method clears it.
type SetPrint struct {
	Method production.Method
}

func (SetPrint) Name() string { return "set_print" }

func (c SetPrint) apply(in Inputs) (Inputs, error) {
	in.Production.Print = c.Method
	if _, none := c.Method.(production.Unconfigured); none {
		in.Production.Print = nil
	}
	in.Touched.Production = true
	return in, nil
}

// SetContact replaces the contact details.
type SetContact struct {
	Details contact.Details
}

func (SetContact) Name() string { return "set_contact" }

func (c SetContact) apply(in Inputs) (Inputs, error) {
	in.Contact = c.Details
	in.Touched.Contact = true
	return in, nil
}

// PatchContact updates the given contact fields only.
type PatchContact struct {
	Patch contact.Patch
}

func (PatchContact) Name() string { return "patch_contact" }

func (c PatchContact) apply(in Inputs) (Inputs, error) {
	in.Contact = c.Patch.Apply(in.Contact)
	in.Touched.Contact = true
	return in, nil
}

// Package areas is the reference directory of distribution units and the
// lookups the wizard uses to find them.
package areas

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/remote"
)

var (
	// ErrNotFound is returned when a lookup yields no unit.
	ErrNotFound = errors.New("areas: not found")
	// ErrInvalidRange is returned for malformed postal-code ranges.
	ErrInvalidRange = errors.New("areas: invalid postal code range")
)

// Directory is an immutable, indexed set of distribution units.
type Directory struct {
	units   []distribution.Unit
	byID    map[string]int
	skipped int
}

type document struct {
	Units []distribution.Unit `yaml:"units"`
}

// Decode parses a YAML (or JSON) document of units. Malformed records are
// skipped and counted instead of failing the whole directory.
func Decode(data []byte) (*Directory, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("areas: decode: %w", err)
	}
	return New(doc.Units), nil
}

// Load fetches and decodes the directory from src.
func Load(ctx context.Context, src remote.Source, logger zerolog.Logger) (*Directory, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	dir, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if dir.Skipped() > 0 {
		logger.Warn().Str("source", src.Name()).Int("units", dir.Len()).Int("skipped", dir.Skipped()).Msg("area directory loaded with rejected records")
	} else {
		logger.Info().Str("source", src.Name()).Int("units", dir.Len()).Msg("area directory loaded")
	}
	return dir, nil
}

// New indexes units, dropping malformed records and duplicate ids.
func New(units []distribution.Unit) *Directory {
	d := &Directory{byID: make(map[string]int, len(units))}
	for _, u := range units {
		if err := u.Check(); err != nil {
			d.skipped++
			continue
		}
		if _, dup := d.byID[u.ID]; dup {
			d.skipped++
			continue
		}
		u.MultiFamilyOverride = nil
		u.SingleFamilyOverride = nil
		d.byID[u.ID] = len(d.units)
		d.units = append(d.units, u)
	}
	return d
}

// Len returns the number of indexed units.
func (d *Directory) Len() int { return len(d.units) }

// Skipped returns how many records were rejected while indexing.
func (d *Directory) Skipped() int { return d.skipped }

// ByID returns the unit with the id.
func (d *Directory) ByID(id string) (distribution.Unit, error) {
	idx, ok := d.byID[strings.TrimSpace(id)]
	if !ok {
		return distribution.Unit{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d.units[idx], nil
}

// ByIDs resolves several ids in order. Unknown ids are reported together.
func (d *Directory) ByIDs(ids []string) ([]distribution.Unit, error) {
	out := make([]distribution.Unit, 0, len(ids))
	var missing []string
	for _, id := range ids {
		u, err := d.ByID(id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		out = append(out, u)
	}
	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return out, nil
}

// ByPlace returns units whose place matches case-insensitively, optionally
// restricted to a canton.
func (d *Directory) ByPlace(place, canton string) []distribution.Unit {
	place = strings.TrimSpace(place)
	canton = strings.TrimSpace(canton)
	var out []distribution.Unit
	for _, u := range d.units {
		if !strings.EqualFold(u.Place, place) {
			continue
		}
		if canton != "" && !strings.EqualFold(u.Canton, canton) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// ByPostalRange returns units whose numeric postal code lies in [from, to],
// sorted by postal code.
func (d *Directory) ByPostalRange(from, to int) ([]distribution.Unit, error) {
	if from <= 0 || to <= 0 || from > to {
		return nil, fmt.Errorf("%w: %d-%d", ErrInvalidRange, from, to)
	}
	type ranked struct {
		code int
		unit distribution.Unit
	}
	var hits []ranked
	for _, u := range d.units {
		code, err := strconv.Atoi(strings.TrimSpace(u.PostalCode))
		if err != nil {
			continue
		}
		if code >= from && code <= to {
			hits = append(hits, ranked{code: code, unit: u})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].code < hits[j].code })
	out := make([]distribution.Unit, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.unit)
	}
	return out, nil
}

// Search matches a free-text query against postal code prefix and place
// name prefix. At most limit results are returned.
func (d *Directory) Search(query string, limit int) []distribution.Unit {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}
	var out []distribution.Unit
	for _, u := range d.units {
		if strings.HasPrefix(u.PostalCode, q) || strings.HasPrefix(strings.ToLower(u.Place), q) {
			out = append(out, u)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks failures caused by how the system was configured
	// rather than by ledger contents.
	ErrConfiguration    = errors.New("configuration error")
	ErrEmptyRoster      = fmt.Errorf("%w: roster has no partners", ErrConfiguration)
	ErrDuplicatePartner = fmt.Errorf("%w: duplicate partner id", ErrConfiguration)
)

// Partner is an identity record; it is never mutated after configuration.
type Partner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Roster is the fixed, ordered set of partners used as the aggregation domain.
type Roster struct {
	partners []Partner
	index    map[string]int
}

// NewRoster validates and freezes the given partners in order.
func NewRoster(partners ...Partner) (Roster, error) {
	r := Roster{
		partners: append([]Partner(nil), partners...),
		index:    make(map[string]int, len(partners)),
	}
	for i, p := range r.partners {
		r.index[p.ID] = i
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

// MustRoster is NewRoster for static configuration and tests.
func MustRoster(partners ...Partner) Roster {
	r, err := NewRoster(partners...)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRoster reads "id:Name:Role" entries separated by commas. Role is optional.
func ParseRoster(s string) (Roster, error) {
	var partners []Partner
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		p := Partner{ID: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			p.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			p.Role = strings.TrimSpace(parts[2])
		}
		if p.ID == "" {
			return Roster{}, fmt.Errorf("%w: empty partner id in %q", ErrConfiguration, entry)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		partners = append(partners, p)
	}
	return NewRoster(partners...)
}

func (r Roster) Validate() error {
	if len(r.partners) == 0 {
		return ErrEmptyRoster
	}
	seen := make(map[string]struct{}, len(r.partners))
	for _, p := range r.partners {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: empty partner id", ErrConfiguration)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePartner, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// Partners returns a copy in configuration order.
func (r Roster) Partners() []Partner {
	return append([]Partner(nil), r.partners...)
}

func (r Roster) Len() int { return len(r.partners) }

func (r Roster) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Partner looks up a partner by id.
func (r Roster) Partner(id string) (Partner, bool) {
	i, ok := r.index[id]
	if !ok {
		return Partner{}, false
	}
	return r.partners[i], true
}

// String renders the roster back in ParseRoster form.
func (r Roster) String() string {
	parts := make([]string, len(r.partners))
	for i, p := range r.partners {
		parts[i] = p.ID + ":" + p.Name + ":" + p.Role
	}
	return strings.Join(parts, ",")
}

package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"soci/internal/core"
)

// Encode writes the interchange document: an object with the four entity
// sequences, each always present as an array.
func Encode(w io.Writer, l core.Ledger) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l.Clone()); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return nil
}

// Decode reads an interchange document. Unknown top-level fields are
// rejected; missing sequences become empty.
func Decode(r io.Reader) (core.Ledger, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var l core.Ledger
	if err := dec.Decode(&l); err != nil {
		return core.Ledger{}, fmt.Errorf("decode ledger: %w", err)
	}
	return l.Clone(), nil
}

// Fingerprint is the SHA-256 of the canonical encoding.
func Fingerprint(l core.Ledger) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(l.Clone()); err != nil {
		return "", fmt.Errorf("fingerprint ledger: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// Validate checks every record shape, that ids are unique within each
// stream and that payments point at known projects. Roster membership is
// left to the caller.
func Validate(l core.Ledger) error {
	projects := newIDSet("project")
	for _, p := range l.Projects {
		if err := projects.add(p.ID); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("project %s: %w", p.ID, err)
		}
	}
	payments := newIDSet("payment")
	for _, p := range l.Payments {
		if err := payments.add(p.ID); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("payment %s: %w", p.ID, err)
		}
		if !l.HasProject(p.ProjectID) {
			return fmt.Errorf("payment %s: %w: %s", p.ID, ErrNotFound, p.ProjectID)
		}
	}
	expenses := newIDSet("expense")
	for _, e := range l.Expenses {
		if err := expenses.add(e.ID); err != nil {
			return err
		}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("expense %s: %w", e.ID, err)
		}
	}
	dividends := newIDSet("dividend")
	for _, d := range l.Dividends {
		if err := dividends.add(d.ID); err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("dividend %s: %w", d.ID, err)
		}
	}
	return nil
}

type idSet struct {
	kind string
	seen map[string]struct{}
}

func newIDSet(kind string) idSet {
	return idSet{kind: kind, seen: make(map[string]struct{})}
}

func (s idSet) add(id string) error {
	if _, ok := s.seen[id]; ok {
		return fmt.Errorf("%s %s: %w", s.kind, id, ErrDuplicateID)
	}
	s.seen[id] = struct{}{}
	return nil
}

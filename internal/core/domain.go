package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const dateLayout = "2006-01-02"

// MaxDescriptionLength bounds payment and expense descriptions, in characters.
const MaxDescriptionLength = 200

const (
	ProjectConstruction ProjectType = "construction"
	ProjectElectrical   ProjectType = "electrical"
	ProjectPlumbing     ProjectType = "plumbing"
	ProjectMaintenance  ProjectType = "maintenance"
	ProjectOther        ProjectType = "other"
)

const (
	StatusActive    ProjectStatus = "active"
	StatusCompleted ProjectStatus = "completed"
	StatusOnHold    ProjectStatus = "on_hold"
)

type (
	ProjectType   string
	ProjectStatus string

	// Date is a calendar day, serialised as YYYY-MM-DD.
	Date struct {
		time.Time
	}

	Project struct {
		ID          string        `json:"id"`
		Name        string        `json:"name"`
		Description string        `json:"description"`
		Type        ProjectType   `json:"type"`
		Status      ProjectStatus `json:"status"`
		CreatedAt   time.Time     `json:"createdAt"`
	}

	// Distribution attributes part of a payment or expense to one partner.
	Distribution struct {
		PartnerID string  `json:"partnerId"`
		Amount    float64 `json:"amount"`
	}

	Payment struct {
		ID            string         `json:"id"`
		ProjectID     string         `json:"projectId"`
		Date          Date           `json:"date"`
		Description   string         `json:"description"`
		TotalAmount   float64        `json:"totalAmount"`
		Distributions []Distribution `json:"distributions"`
	}

	// Expense with no distributions is split equally across the roster.
	Expense struct {
		ID            string         `json:"id"`
		Date          Date           `json:"date"`
		Description   string         `json:"description"`
		Amount        float64        `json:"amount"`
		Category      string         `json:"category"`
		Distributions []Distribution `json:"distributions"`
	}

	DividendPayout struct {
		ID          string  `json:"id"`
		PartnerID   string  `json:"partnerId"`
		Date        Date    `json:"date"`
		GrossAmount float64 `json:"grossAmount"`
		TaxAmount   float64 `json:"taxAmount"`
		NetReceived float64 `json:"netReceived"`
	}

	// Ledger is a snapshot of every entity stream. The engine only reads it.
	Ledger struct {
		Projects  []Project        `json:"projects"`
		Payments  []Payment        `json:"payments"`
		Expenses  []Expense        `json:"expenses"`
		Dividends []DividendPayout `json:"dividends"`
	}
)

var (
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrDescriptionTooLong   = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyName            = errors.New("empty name")
	ErrInvalidProjectType   = errors.New("invalid project type")
	ErrInvalidProjectStatus = errors.New("invalid project status")
	ErrMissingPartner       = errors.New("missing partner id")
	ErrDuplicateShare       = errors.New("duplicate distribution for partner")
	ErrMissingProject       = errors.New("missing project id")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	// Accept full timestamps from older exports and keep the calendar day.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (t ProjectType) Valid() bool {
	switch t {
	case ProjectConstruction, ProjectElectrical, ProjectPlumbing, ProjectMaintenance, ProjectOther:
		return true
	}
	return false
}

func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusOnHold:
		return true
	}
	return false
}

// ValidateAmount accepts finite, non-negative values.
func ValidateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProjectType, p.Type)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProjectStatus, p.Status)
	}
	return nil
}

// ValidateDistributions checks shape only; roster membership is the caller's concern.
func ValidateDistributions(ds []Distribution) error {
	seen := make(map[string]struct{}, len(ds))
	for _, d := range ds {
		if strings.TrimSpace(d.PartnerID) == "" {
			return ErrMissingPartner
		}
		if err := ValidateAmount(d.Amount); err != nil {
			return fmt.Errorf("distribution for %s: %w", d.PartnerID, err)
		}
		if _, ok := seen[d.PartnerID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateShare, d.PartnerID)
		}
		seen[d.PartnerID] = struct{}{}
	}
	return nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.ProjectID) == "" {
		return ErrMissingProject
	}
	if err := p.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(p.Description); err != nil {
		return err
	}
	if err := ValidateAmount(p.TotalAmount); err != nil {
		return err
	}
	return ValidateDistributions(p.Distributions)
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	return ValidateDistributions(e.Distributions)
}

func (d DividendPayout) Validate() error {
	if strings.TrimSpace(d.PartnerID) == "" {
		return ErrMissingPartner
	}
	if err := d.Date.Validate(); err != nil {
		return err
	}
	return ValidateAmount(d.GrossAmount)
}

// EqualSplit reports whether the expense falls back to the equal split.
func (e Expense) EqualSplit() bool {
	return len(e.Distributions) == 0
}

// DistributedTotal sums the distribution amounts in order.
func DistributedTotal(ds []Distribution) float64 {
	var total float64
	for _, d := range ds {
		total += d.Amount
	}
	return total
}

// Clone returns a deep copy so callers can hand out snapshots safely.
func (l Ledger) Clone() Ledger {
	out := Ledger{
		Projects:  append([]Project{}, l.Projects...),
		Payments:  make([]Payment, len(l.Payments)),
		Expenses:  make([]Expense, len(l.Expenses)),
		Dividends: append([]DividendPayout{}, l.Dividends...),
	}
	for i, p := range l.Payments {
		p.Distributions = append([]Distribution{}, p.Distributions...)
		out.Payments[i] = p
	}
	for i, e := range l.Expenses {
		e.Distributions = append([]Distribution{}, e.Distributions...)
		out.Expenses[i] = e
	}
	return out
}

// HasProject reports whether a project with the id exists in the snapshot.
func (l Ledger) HasProject(id string) bool {
	for _, p := range l.Projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

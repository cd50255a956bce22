// Package http provides HTTP server and handler implementations.
//
// This file implements request decoding and validation. Bodies are JSON,
// decoded strictly into request DTOs that are checked with struct tags
// before being converted to domain records.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"soci/internal/core"
)

const (
	maxBodyBytes   = 1 << 20
	maxLedgerBytes = 10 << 20
)

// ErrMalformedRequest marks a body that is not the expected JSON document.
var ErrMalformedRequest = errors.New("malformed request body")

// Amount accepts a JSON number or a decimal string with dot or comma separator.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := core.ParseAmount(s)
		if err != nil {
			return fmt.Errorf("amount %q: %w", s, err)
		}
		*a = Amount(v)
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("amount %s: %w", b, core.ErrInvalidAmount)
	}
	*a = Amount(v)
	return nil
}

type distributionRequest struct {
	PartnerID string `json:"partnerId" validate:"required,max=64"`
	Amount    Amount `json:"amount" validate:"gte=0"`
}

type projectRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Type        string `json:"type" validate:"omitempty,oneof=construction electrical plumbing maintenance other"`
	Status      string `json:"status" validate:"omitempty,oneof=active completed on_hold"`
}

type paymentRequest struct {
	ID            string                `json:"id" validate:"omitempty,max=64"`
	ProjectID     string                `json:"projectId" validate:"required,max=64"`
	Date          string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description   string                `json:"description" validate:"required,max=200"`
	TotalAmount   Amount                `json:"totalAmount" validate:"gte=0"`
	Distributions []distributionRequest `json:"distributions" validate:"dive"`
}

type expenseRequest struct {
	ID            string                `json:"id" validate:"omitempty,max=64"`
	Date          string                `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description   string                `json:"description" validate:"required,max=200"`
	Amount        Amount                `json:"amount" validate:"gte=0"`
	Category      string                `json:"category" validate:"max=100"`
	Distributions []distributionRequest `json:"distributions" validate:"dive"`
}

type dividendRequest struct {
	PartnerID   string `json:"partnerId" validate:"required,max=64"`
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	GrossAmount Amount `json:"grossAmount" validate:"gte=0"`
}

type reportRequest struct {
	Text   string `json:"text" validate:"max=2000"`
	Recent int    `json:"recent" validate:"gte=0,lte=100"`
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads exactly one JSON document into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON document", ErrMalformedRequest)
	}
	return nil
}

// validationError turns validator output into one readable message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "datetime":
		return field + " must be a YYYY-MM-DD date"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// parseRequestDate parses an optional YYYY-MM-DD date; empty means today.
func parseRequestDate(s string, now time.Time) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.NewDate(now.Year(), int(now.Month()), now.Day()), nil
	}
	return core.ParseDate(s)
}

func toDistributions(in []distributionRequest) []core.Distribution {
	out := make([]core.Distribution, 0, len(in))
	for _, d := range in {
		out = append(out, core.Distribution{PartnerID: strings.TrimSpace(d.PartnerID), Amount: float64(d.Amount)})
	}
	return out
}

func (p projectRequest) toProject() core.Project {
	return core.Project{
		ID:          strings.TrimSpace(p.ID),
		Name:        sanitizeInput(p.Name),
		Description: sanitizeInput(p.Description),
		Type:        core.ProjectType(p.Type),
		Status:      core.ProjectStatus(p.Status),
	}
}

func (p paymentRequest) toPayment(now time.Time) (core.Payment, error) {
	date, err := parseRequestDate(p.Date, now)
	if err != nil {
		return core.Payment{}, err
	}
	return core.Payment{
		ID:            strings.TrimSpace(p.ID),
		ProjectID:     strings.TrimSpace(p.ProjectID),
		Date:          date,
		Description:   sanitizeInput(p.Description),
		TotalAmount:   float64(p.TotalAmount),
		Distributions: toDistributions(p.Distributions),
	}, nil
}

func (e expenseRequest) toExpense(now time.Time) (core.Expense, error) {
	date, err := parseRequestDate(e.Date, now)
	if err != nil {
		return core.Expense{}, err
	}
	return core.Expense{
		ID:            strings.TrimSpace(e.ID),
		Date:          date,
		Description:   sanitizeInput(e.Description),
		Amount:        float64(e.Amount),
		Category:      sanitizeInput(e.Category),
		Distributions: toDistributions(e.Distributions),
	}, nil
}

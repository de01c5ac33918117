package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"civicdesk/internal/complaint/models"
	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

var validate = newValidator()

// newValidator reports nil ids as empty so `required` rejects them and
// names fields by their json tag.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		switch u := field.Interface().(type) {
		case id.UserID:
			if u.IsNil() {
				return ""
			}
			return u.String()
		case id.ComplaintID:
			if u.IsNil() {
				return ""
			}
			return u.String()
		}
		return nil
	}, id.UserID{}, id.ComplaintID{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Submission is an inbound complaint before validation.
type Submission struct {
	SubmitterID id.UserID `json:"submitter_id" validate:"required"`
	TypeID      string    `json:"type_id" validate:"required,max=64"`
	Description string    `json:"description" validate:"required"`
}

// Normalize trims whitespace and lowercases the type slug.
func (s *Submission) Normalize() {
	s.TypeID = strings.ToLower(strings.TrimSpace(s.TypeID))
	s.Description = strings.TrimSpace(s.Description)
}

// Validate is the shape check. Failures carry CodeMalformed.
func (s *Submission) Validate() error {
	return shapeError(validate.Struct(s))
}

// TransitionRequest asks for one lifecycle step.
//
// UnitID may only accompany To == assigned and reassigns the complaint.
// MergeInto is required with To == merged and names the surviving complaint.
type TransitionRequest struct {
	ComplaintID id.ComplaintID  `json:"complaint_id" validate:"required"`
	To          models.Status   `json:"to" validate:"required"`
	ActorID     id.UserID       `json:"actor_id" validate:"required"`
	Note        string          `json:"note" validate:"max=2000"`
	UnitID      string          `json:"unit_id,omitempty"`
	MergeInto   *id.ComplaintID `json:"merge_into,omitempty"`
}

func (r *TransitionRequest) Normalize() {
	r.Note = strings.TrimSpace(r.Note)
	r.UnitID = strings.ToLower(strings.TrimSpace(r.UnitID))
}

func (r *TransitionRequest) Validate() error {
	return shapeError(validate.Struct(r))
}

func shapeError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return dErrors.Wrap(err, dErrors.CodeMalformed, "malformed request")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return dErrors.New(dErrors.CodeMalformed, fmt.Sprintf("%s is required", fe.Field()))
	case "max":
		return dErrors.New(dErrors.CodeMalformed, fmt.Sprintf("%s exceeds %s characters", fe.Field(), fe.Param()))
	default:
		return dErrors.New(dErrors.CodeMalformed, fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

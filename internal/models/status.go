package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/stagecal/stagecal/internal/errors"
)

// Status is a named, colored booking stage. Local events reference it by id.
type Status struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Status) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &errors.ErrValidation{Field: "name", Err: fmt.Errorf("is required")}
	}
	if strings.TrimSpace(s.Color) == "" {
		return &errors.ErrValidation{Field: "color", Err: fmt.Errorf("is required")}
	}
	return nil
}

// Ref returns the display form attached to events.
func (s *Status) Ref() *StatusRef {
	return &StatusRef{ID: s.ID, Name: s.Name, Color: s.Color}
}

// StatusInput is a create or patch body for statuses.
type StatusInput struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (in *StatusInput) Apply(s *Status) {
	if in.Name != nil {
		s.Name = *in.Name
	}
	if in.Color != nil {
		s.Color = *in.Color
	}
}

// Package booking holds the booking selection types consumed by the
// payment flow.
package booking

import (
	"errors"
	"time"
)

// RoomType identifies the room category being booked.
type RoomType string

const (
	RoomSingle  RoomType = "SINGLE"
	RoomDouble  RoomType = "DOUBLE"
	RoomTriple  RoomType = "TRIPLE"
	RoomDorm    RoomType = "DORM"
	RoomPrivate RoomType = "PRIVATE"
)

// Contact holds customer contact details used to prefill the payment
// gateway surface.
type Contact struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=10,max=15"`
}

// Context describes what is being purchased. It is created by the
// booking-selection flow and read-only inside the payment flow; day- and
// month-based durations are mutually exclusive.
type Context struct {
	PropertyID       string    `json:"property_id" validate:"required"`
	RoomType         RoomType  `json:"room_type" validate:"required"`
	RoomIDs          []string  `json:"room_ids" validate:"required,min=1,dive,required"`
	MoveInDate       time.Time `json:"move_in_date" validate:"required"`
	DurationDays     int       `json:"duration_days,omitempty" validate:"gte=0"`
	DurationMonths   int       `json:"duration_months,omitempty" validate:"gte=0"`
	Occupants        int       `json:"occupants" validate:"required,gt=0"`
	PrimaryContact   Contact   `json:"primary_contact" validate:"required"`
	SecondaryContact *Contact  `json:"secondary_contact,omitempty"`
}

// Validation errors
var (
	ErrNoDuration   = errors.New("either duration_days or duration_months is required")
	ErrBothDuration = errors.New("duration_days and duration_months are mutually exclusive")
)

// Validate checks the cross-field constraints the struct tags cannot
// express. Struct-tag validation is applied separately at the API
// boundary.
func (c *Context) Validate() error {
	if c.DurationDays == 0 && c.DurationMonths == 0 {
		return ErrNoDuration
	}
	if c.DurationDays > 0 && c.DurationMonths > 0 {
		return ErrBothDuration
	}
	return nil
}

// DurationUnits returns the stay length and whether it is month-based.
func (c *Context) DurationUnits() (units int, monthly bool) {
	if c.DurationMonths > 0 {
		return c.DurationMonths, true
	}
	return c.DurationDays, false
}

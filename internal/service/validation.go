package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"boothbook/internal/models"
	"boothbook/internal/schedule"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9+()\-./ ]{5,30}$`)
	timePattern  = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

// BookingRequest is the raw public booking form.
type BookingRequest struct {
	Day      string `json:"day"`
	Time     string `json:"time"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Company  string `json:"company,omitempty"`
	Message  string `json:"message,omitempty"`
	ClientIP string `json:"-"`
}

// normalize trims every field and lowercases the day.
func (r BookingRequest) normalize() BookingRequest {
	r.Day = schedule.NormalizeDay(r.Day)
	r.Time = strings.TrimSpace(r.Time)
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Email = strings.TrimSpace(r.Email)
	r.Company = strings.TrimSpace(r.Company)
	r.Message = strings.TrimSpace(r.Message)
	return r
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

// validateBooking checks fields in form order and returns the first failure.
func validateBooking(r BookingRequest, sched *schedule.Schedule) (models.Slot, error) {
	_, knownDay := sched.Day(r.Day)
	switch {
	case r.Day == "":
		return models.Slot{}, &ValidationError{Field: "day", Message: "please choose a day"}
	case !knownDay:
		return models.Slot{}, &ValidationError{Field: "day", Message: "unknown event day"}
	case r.Time == "":
		return models.Slot{}, &ValidationError{Field: "time", Message: "please choose a time"}
	case !timePattern.MatchString(r.Time):
		return models.Slot{}, &ValidationError{Field: "time", Message: "time must use the HH:MM format"}
	case !sched.HasSlot(r.Day, r.Time):
		return models.Slot{}, &ValidationError{Field: "time", Message: "no appointment slot starts at this time"}
	case r.Name == "":
		return models.Slot{}, &ValidationError{Field: "name", Message: "name is required"}
	case tooLong(r.Name, models.MaxNameLength):
		return models.Slot{}, &ValidationError{Field: "name", Message: "name is too long"}
	case r.Email == "":
		return models.Slot{}, &ValidationError{Field: "email", Message: "email is required"}
	case tooLong(r.Email, models.MaxEmailLength) || !emailPattern.MatchString(r.Email):
		return models.Slot{}, &ValidationError{Field: "email", Message: "please enter a valid email address"}
	case r.Phone == "":
		return models.Slot{}, &ValidationError{Field: "phone", Message: "phone number is required"}
	case tooLong(r.Phone, models.MaxPhoneLength) || !phonePattern.MatchString(r.Phone):
		return models.Slot{}, &ValidationError{Field: "phone", Message: "please enter a valid phone number"}
	case tooLong(r.Company, models.MaxCompanyLength):
		return models.Slot{}, &ValidationError{Field: "company", Message: "company name is too long"}
	case tooLong(r.Message, models.MaxMessageLength):
		return models.Slot{}, &ValidationError{Field: "message", Message: "message is too long"}
	}
	return sched.Slot(r.Day, r.Time)
}

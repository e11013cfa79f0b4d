package booking

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxPurposeLength = 500

// CreateInput is the caller supplied part of a new reservation.
type CreateInput struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Purpose string `json:"purpose"`
}

// Normalize trims the input and brings Time to "HH:MM:SS".
func (in CreateInput) Normalize() CreateInput {
	return CreateInput{
		Date:    strings.TrimSpace(in.Date),
		Time:    NormalizeTime(in.Time),
		Purpose: strings.TrimSpace(in.Purpose),
	}
}

// Validate checks required fields and formats. It does not look at the
// clock; see notInPast.
func (in CreateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Date, validation.Required, validation.Date(DateLayout)),
		validation.Field(&in.Time, validation.Required, validation.By(templateTime)),
		validation.Field(&in.Purpose, validation.Required, validation.RuneLength(1, maxPurposeLength)),
	)
}

func templateTime(value any) error {
	s, _ := value.(string)
	if !IsTemplateTime(s) {
		return errors.New("must be one of the hourly slots from 09:00 to 16:00")
	}
	return nil
}

// notInPast rejects slots whose start lies before now in loc.
func notInPast(date, slotTime string, now time.Time, loc *time.Location) error {
	start, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+slotTime, loc)
	if err != nil {
		return validation.Errors{"date": err}
	}
	if start.Before(now) {
		return validation.Errors{"date": errors.New("must not be in the past")}
	}
	return nil
}

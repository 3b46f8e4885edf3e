package enums

import "fmt"

// ReminderKind identifies the scheduled reminder category.
type ReminderKind string

const (
	ReminderKindAppointment ReminderKind = "appointment_upcoming"
	ReminderKindRecurrence  ReminderKind = "service_recurrence"
)

var validReminderKinds = []ReminderKind{
	ReminderKindAppointment,
	ReminderKindRecurrence,
}

// String implements fmt.Stringer.
func (r ReminderKind) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReminderKind.
func (r ReminderKind) IsValid() bool {
	for _, candidate := range validReminderKinds {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReminderKind converts raw input into a ReminderKind.
func ParseReminderKind(value string) (ReminderKind, error) {
	for _, candidate := range validReminderKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reminder kind %q", value)
}

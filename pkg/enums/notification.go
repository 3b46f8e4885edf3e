package enums

import "fmt"

// NotificationType buckets in-app notifications per surface.
type NotificationType string

const (
	NotificationTypeEngagement NotificationType = "engagement"
	NotificationTypePayment    NotificationType = "payment"
	NotificationTypeDispute    NotificationType = "dispute"
	NotificationTypeReminder   NotificationType = "reminder"
	NotificationTypeLoyalty    NotificationType = "loyalty"
	NotificationTypeCommission NotificationType = "commission"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeEngagement,
	NotificationTypePayment,
	NotificationTypeDispute,
	NotificationTypeReminder,
	NotificationTypeLoyalty,
	NotificationTypeCommission,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

// IsValid reports whether the value is a known NotificationType.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw input into a NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

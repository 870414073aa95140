package domain

// NotificationKind names a notification whose delivery is claimed through a
// per-booking timestamp column.
type NotificationKind string

const (
	NotificationCustomerConfirmation NotificationKind = "customer_confirmation"
	NotificationInternalAlert        NotificationKind = "internal_alert"
)

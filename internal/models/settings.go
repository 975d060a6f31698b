package models

const (
	BookingModeManual    = "manual"
	BookingModeAutomatic = "automatic"
)

// Settings is the centrally configurable booking policy. It is treated as an
// immutable value: services read it once per request and pass it down.
type Settings struct {
	Version int64 `json:"version"`

	MaxAppointmentsPerSlot int    `json:"maxAppointmentsPerSlot"`
	BookingMode            string `json:"bookingMode"`
	PreventDuplicateEmail  bool   `json:"preventDuplicateEmail"`
	RateLimitingEnabled    bool   `json:"rateLimitingEnabled"`
	RateLimitMaxRequests   int    `json:"rateLimitMaxRequests"`
	RateLimitWindowMinutes int    `json:"rateLimitWindowMinutes"`
	MaintenanceMode        bool   `json:"maintenanceMode"`

	AdminNotifications bool   `json:"adminNotifications"`
	AdminEmail         string `json:"adminEmail"`
	EventName          string `json:"eventName"`
	Location           string `json:"location"`
	CompanyName        string `json:"companyName"`
	ContactEmail       string `json:"contactEmail"`
	ContactPhone       string `json:"contactPhone"`
}

// AutoConfirm reports whether new bookings skip manual review.
func (s Settings) AutoConfirm() bool {
	return s.BookingMode == BookingModeAutomatic
}

// SettingsPatch carries a partial settings update from the admin panel.
// Nil fields are left unchanged.
type SettingsPatch struct {
	MaxAppointmentsPerSlot *int    `json:"maxAppointmentsPerSlot,omitempty"`
	BookingMode            *string `json:"bookingMode,omitempty"`
	PreventDuplicateEmail  *bool   `json:"preventDuplicateEmail,omitempty"`
	RateLimitingEnabled    *bool   `json:"rateLimitingEnabled,omitempty"`
	RateLimitMaxRequests   *int    `json:"rateLimitMaxRequests,omitempty"`
	RateLimitWindowMinutes *int    `json:"rateLimitWindowMinutes,omitempty"`
	MaintenanceMode        *bool   `json:"maintenanceMode,omitempty"`
	AdminNotifications     *bool   `json:"adminNotifications,omitempty"`
	AdminEmail             *string `json:"adminEmail,omitempty"`
	EventName              *string `json:"eventName,omitempty"`
	Location               *string `json:"location,omitempty"`
	CompanyName            *string `json:"companyName,omitempty"`
	ContactEmail           *string `json:"contactEmail,omitempty"`
	ContactPhone           *string `json:"contactPhone,omitempty"`
}

// Apply returns a copy of s with the non-nil patch fields applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.MaxAppointmentsPerSlot != nil {
		s.MaxAppointmentsPerSlot = *p.MaxAppointmentsPerSlot
	}
	if p.BookingMode != nil {
		s.BookingMode = *p.BookingMode
	}
	if p.PreventDuplicateEmail != nil {
		s.PreventDuplicateEmail = *p.PreventDuplicateEmail
	}
	if p.RateLimitingEnabled != nil {
		s.RateLimitingEnabled = *p.RateLimitingEnabled
	}
	if p.RateLimitMaxRequests != nil {
		s.RateLimitMaxRequests = *p.RateLimitMaxRequests
	}
	if p.RateLimitWindowMinutes != nil {
		s.RateLimitWindowMinutes = *p.RateLimitWindowMinutes
	}
	if p.MaintenanceMode != nil {
		s.MaintenanceMode = *p.MaintenanceMode
	}
	if p.AdminNotifications != nil {
		s.AdminNotifications = *p.AdminNotifications
	}
	if p.AdminEmail != nil {
		s.AdminEmail = *p.AdminEmail
	}
	if p.EventName != nil {
		s.EventName = *p.EventName
	}
	if p.Location != nil {
		s.Location = *p.Location
	}
	if p.CompanyName != nil {
		s.CompanyName = *p.CompanyName
	}
	if p.ContactEmail != nil {
		s.ContactEmail = *p.ContactEmail
	}
	if p.ContactPhone != nil {
		s.ContactPhone = *p.ContactPhone
	}
	return s
}

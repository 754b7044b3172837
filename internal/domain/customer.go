package domain

import "time"

const EventTypeCustomerCreated = "customer.created"

// CustomerCreatedEvent is published after the ERP confirms a new customer.
type CustomerCreatedEvent struct {
	EventID      string    `json:"event_id"`
	CustomerNo   string    `json:"customer_no"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	City         string    `json:"city"`
	CountryCode  string    `json:"country_code"`
	TemplateCode string    `json:"template_code"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type CustomerRegistration struct {
	EventID      string    `json:"eventId"`
	CustomerNo   string    `json:"customerNo"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	City         string    `json:"city"`
	CountryCode  string    `json:"countryCode"`
	TemplateCode string    `json:"templateCode"`
	CreatedAt    time.Time `json:"createdAt"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// Registration converts the event into its stored form.
func (e CustomerCreatedEvent) Registration() CustomerRegistration {
	return CustomerRegistration{
		EventID:      e.EventID,
		CustomerNo:   e.CustomerNo,
		Name:         e.Name,
		Email:        e.Email,
		City:         e.City,
		CountryCode:  e.CountryCode,
		TemplateCode: e.TemplateCode,
		CreatedAt:    e.Timestamp,
	}
}

func (CustomerCreatedEvent) EventType() string {
	return EventTypeCustomerCreated
}

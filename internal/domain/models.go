// Package domain defines the persistence models of the marketplace: service
// requests, offers, chats, messages, reviews and user profiles, together with
// their status machines. These types are mapped with GORM and shared by the
// repository, service and transport layers.
//
// JSON field names equal column names so that a partial document can be
// applied to a row without a translation table.
package domain

import "time"

// GeoPoint is an optional location attached to a request or saved address.
type GeoPoint struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   string   `json:"address,omitempty" gorm:"type:varchar(255)"`
}

// Known reports whether both coordinates are present.
func (g GeoPoint) Known() bool { return g.Latitude != nil && g.Longitude != nil }

// ServiceRequest is a customer's posted need for a service.
//
// Fields:
//   - Category selects the Details variant and never changes after creation.
//   - Images holds public media URLs; every upload succeeded before insert.
//   - Status only moves forward (see RequestStatus).
type ServiceRequest struct {
	ID          string        `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID  string        `json:"customer_id" gorm:"type:varchar(64);not null;index:idx_requests_customer"`
	Category    Category      `json:"category"    gorm:"type:varchar(32);not null;index:idx_requests_status_cat,priority:2"`
	Title       string        `json:"title"       gorm:"type:varchar(255);not null"`
	Description string        `json:"description" gorm:"type:text"`
	Details     Details       `json:"details"     gorm:"type:text;serializer:json"`
	Images      []string      `json:"images"      gorm:"type:text;serializer:json"`
	Status      RequestStatus `json:"status"      gorm:"type:varchar(16);not null;default:'open';index:idx_requests_status_cat,priority:1"`
	Location    GeoPoint      `json:"location"    gorm:"embedded;embeddedPrefix:location_"`
	CreatedAt   time.Time     `json:"created_at"  gorm:"index"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName returns the database table name for ServiceRequest.
func (ServiceRequest) TableName() string { return "service_requests" }

// Offer is a provider's priced proposal against a request.
type Offer struct {
	ID         string      `json:"id"          gorm:"type:char(36);primaryKey"`
	RequestID  string      `json:"request_id"  gorm:"type:char(36);not null;index:idx_offers_request"`
	ProviderID string      `json:"provider_id" gorm:"type:varchar(64);not null;index:idx_offers_provider"`
	CustomerID string      `json:"customer_id" gorm:"type:varchar(64);not null"`
	Price      float64     `json:"price"       gorm:"not null;check:price >= 0"`
	Message    string      `json:"message"     gorm:"type:text"`
	Status     OfferStatus `json:"status"      gorm:"type:varchar(16);not null;default:'pending';index"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`

	Request ServiceRequest `json:"-" gorm:"foreignKey:RequestID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Offer.
func (Offer) TableName() string { return "offers" }

// Chat is the channel opened between customer and provider once an offer is
// accepted. One chat exists per accepted offer (unique OfferID).
type Chat struct {
	ID            string     `json:"id"              gorm:"type:char(36);primaryKey"`
	RequestID     string     `json:"request_id"      gorm:"type:char(36);not null;index"`
	OfferID       string     `json:"offer_id"        gorm:"type:char(36);not null;uniqueIndex:ux_chats_offer"`
	CustomerID    string     `json:"customer_id"     gorm:"type:varchar(64);not null;index:idx_chats_customer"`
	ProviderID    string     `json:"provider_id"     gorm:"type:varchar(64);not null;index:idx_chats_provider"`
	LastMessage   string     `json:"last_message"    gorm:"type:text"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Participant reports whether userID is the customer or provider of the chat.
func (c Chat) Participant(userID string) bool {
	return userID != "" && (c.CustomerID == userID || c.ProviderID == userID)
}

// Counterpart returns the other participant's id.
func (c Chat) Counterpart(userID string) string {
	if c.CustomerID == userID {
		return c.ProviderID
	}
	return c.CustomerID
}

// Message is a single chat line. Messages are append-only and ordered by
// (created_at, id) within a chat.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chat_id"    gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	SenderID  string    `json:"sender_id"  gorm:"type:varchar(64);not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_chat_msgs,priority:2"`
	UpdatedAt time.Time `json:"updated_at"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Review is a customer's rating of the provider who completed a request.
// One review exists per (request_id, customer_id), enforced by a unique index.
type Review struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	RequestID  string    `json:"request_id"  gorm:"type:char(36);not null;uniqueIndex:ux_review_request_customer"`
	CustomerID string    `json:"customer_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_review_request_customer"`
	ProviderID string    `json:"provider_id" gorm:"type:varchar(64);not null;index"`
	Rating     int       `json:"rating"      gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Text       string    `json:"text"        gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Review.
func (Review) TableName() string { return "reviews" }

// SavedAddress is a customer's bookmarked location.
type SavedAddress struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// UserProfile holds the marketplace attributes of a principal. Provider-only
// fields are zero for customers; Addresses is customer-only.
type UserProfile struct {
	ID            string         `json:"id"             gorm:"type:varchar(64);primaryKey"`
	Role          Role           `json:"role"           gorm:"type:varchar(16);index"`
	Name          string         `json:"name"           gorm:"type:varchar(120)"`
	Phone         string         `json:"phone"          gorm:"type:varchar(32);uniqueIndex:ux_profiles_phone"`
	PasswordHash  string         `json:"-"              gorm:"type:varchar(100)"`
	Category      Category       `json:"category"       gorm:"type:varchar(32)"`
	About         string         `json:"about"          gorm:"type:text"`
	Rating        float64        `json:"rating"         gorm:"not null;default:0"`
	CompletedJobs int64          `json:"completed_jobs" gorm:"not null;default:0"`
	Earnings      float64        `json:"earnings"       gorm:"not null;default:0"`
	WorkingHours  string         `json:"working_hours"  gorm:"type:varchar(64)"`
	ServiceAreas  []string       `json:"service_areas"  gorm:"type:text;serializer:json"`
	Addresses     []SavedAddress `json:"addresses"      gorm:"type:text;serializer:json"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TableName returns the database table name for UserProfile.
func (UserProfile) TableName() string { return "user_profiles" }

// ProviderReady reports whether the profile carries everything a provider
// needs (category and about text).
func (p UserProfile) ProviderReady() bool {
	return p.Category != "" && p.About != ""
}

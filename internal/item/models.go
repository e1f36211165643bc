// Package item defines the registry's core entity and its field sets.
package item

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "catcher/pkg/domain-errors"
)

// Status is the theft status of a registered item.
//
// StatusUnknown is a derived state used by lookup responses when no row
// matches a queried serial. It is never persisted on an existing row.
type Status string

const (
	StatusSafe    Status = "safe"
	StatusStolen  Status = "stolen"
	StatusUnknown Status = "unknown"
)

// IsPersistable reports whether the status may be written to a row.
func (s Status) IsPersistable() bool {
	return s == StatusSafe || s == StatusStolen
}

// Item is a registered valuable. UserID is set exactly once at creation from
// the authenticated caller and is immutable afterwards.
type Item struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serial_number"`
	Status       Status    `json:"status"`
	Category     string    `json:"category,omitempty"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Owner        string    `json:"owner,omitempty"`
	ContactInfo  string    `json:"contact_info,omitempty"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary is the cross-owner view returned by the public serial lookup. It
// deliberately exposes recovery contact fields and nothing tied to the
// owner's account beyond the display name.
type Summary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	SerialNumber string    `json:"serial_number"`
	Status       Status    `json:"status"`
	Category     string    `json:"category,omitempty"`
	Description  string    `json:"description,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	Owner        string    `json:"owner,omitempty"`
	ContactInfo  string    `json:"contact_info,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summarize converts a full item to its public lookup view.
func (i Item) Summarize() Summary {
	return Summary{
		ID:           i.ID,
		Name:         i.Name,
		SerialNumber: i.SerialNumber,
		Status:       i.Status,
		Category:     i.Category,
		Description:  i.Description,
		ImageURL:     i.ImageURL,
		Owner:        i.Owner,
		ContactInfo:  i.ContactInfo,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// Fields is the caller-supplied portion of an item, used by direct create and
// by the payment workflow's staged registration. It intentionally has no
// user_id: ownership always comes from the verified caller identity.
type Fields struct {
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number"`
	Status       Status `json:"status,omitempty"`
	Category     string `json:"category,omitempty"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Owner        string `json:"owner,omitempty"`
	ContactInfo  string `json:"contact_info,omitempty"`
}

// Validate checks required fields and normalizes the status default.
func (f *Fields) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	f.SerialNumber = strings.TrimSpace(f.SerialNumber)
	if f.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if f.SerialNumber == "" {
		return dErrors.New(dErrors.CodeBadRequest, "serial_number is required")
	}
	if f.Status == "" {
		f.Status = StatusSafe
	}
	if !f.Status.IsPersistable() {
		return dErrors.New(dErrors.CodeBadRequest, "status must be safe or stolen")
	}
	return nil
}

// Patch is a partial update. Nil pointers leave the column untouched.
// Serial numbers and ownership are not patchable.
type Patch struct {
	Name        *string `json:"name,omitempty"`
	Status      *Status `json:"status,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Owner       *string `json:"owner,omitempty"`
	ContactInfo *string `json:"contact_info,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Status == nil && p.Category == nil &&
		p.Description == nil && p.ImageURL == nil && p.Owner == nil &&
		p.ContactInfo == nil
}

// Validate rejects non-persistable statuses.
func (p Patch) Validate() error {
	if p.Status != nil && !p.Status.IsPersistable() {
		return dErrors.New(dErrors.CodeBadRequest, "status must be safe or stolen")
	}
	return nil
}

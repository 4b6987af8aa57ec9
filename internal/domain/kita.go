package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Bezirk is a district of a Bundesland as listed by the external directory.
type Bezirk struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// KitaRef points at a facility detail page found on a district listing.
type KitaRef struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Bezirk string `json:"bezirk,omitempty"`
}

// StringMap stores free-form label/value pairs as JSON text.
type StringMap map[string]string

// Value implements the driver.Valuer interface for database serialization.
func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = StringMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Kita is a facility record extracted from the external directory.
// Only Name and SourceURL are guaranteed; every other field is best effort.
type Kita struct {
	ID           uint      `gorm:"primaryKey" json:"id,omitempty"`
	SourceURL    string    `gorm:"type:text;not null;uniqueIndex:idx_kitas_source_url" json:"sourceUrl"`
	Name         string    `gorm:"type:text;not null;index:idx_kitas_name" json:"name"`
	Street       string    `gorm:"type:text" json:"street,omitempty"`
	PostalCode   string    `gorm:"type:text;index:idx_kitas_postal_code" json:"postalCode,omitempty"`
	City         string    `gorm:"type:text;index:idx_kitas_city" json:"city,omitempty"`
	Bezirk       string    `gorm:"type:text;index:idx_kitas_bezirk" json:"bezirk,omitempty"`
	Bundesland   string    `gorm:"type:text" json:"bundesland,omitempty"`
	Phone        string    `gorm:"type:text" json:"phone,omitempty"`
	Email        string    `gorm:"type:text" json:"email,omitempty"`
	Website      string    `gorm:"type:text" json:"website,omitempty"`
	Operator     string    `gorm:"type:text" json:"operator,omitempty"`
	Type         string    `gorm:"type:text" json:"type,omitempty"`
	Capacity     int       `json:"capacity,omitempty"`
	AgeRange     string    `gorm:"type:text" json:"ageRange,omitempty"`
	OpeningHours string    `gorm:"type:text" json:"openingHours,omitempty"`
	Extra        StringMap `gorm:"type:text" json:"extra,omitempty"`
	ScrapedAt    time.Time `json:"scrapedAt"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// TableName returns the database table name for Kita.
func (Kita) TableName() string {
	return "kitas"
}

// Validate checks the fields every stored record must carry.
func (k *Kita) Validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return errors.New("kita: name is required")
	}
	if strings.TrimSpace(k.SourceURL) == "" {
		return errors.New("kita: source url is required")
	}
	return nil
}

// Summary is the short location hint shown next to the name in job logs.
func (k *Kita) Summary() string {
	place := strings.TrimSpace(strings.Join(nonEmpty(k.PostalCode, k.City), " "))
	parts := nonEmpty(k.Street, place)
	if len(parts) == 0 {
		if k.Bezirk != "" {
			return k.Bezirk
		}
		return k.SourceURL
	}
	return strings.Join(parts, ", ")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnonymousName is the display name of synthesized guest donors; their
// emails start with it too.
const AnonymousName = "Anonymous"

type Donor struct {
	DonorID uuid.UUID `gorm:"column:donor_id;type:uuid;default:gen_random_uuid();primaryKey" json:"donor_id"`

	DonorName    string `gorm:"column:donor_name;type:varchar(120);not null" json:"donor_name"`
	DonorEmail   string `gorm:"column:donor_email;type:varchar(191);not null;uniqueIndex:uq_donors_email" json:"donor_email"`
	DonorIsGuest bool   `gorm:"column:donor_is_guest;not null;default:false" json:"donor_is_guest"`

	// gift aid
	DonorCountry       *string `gorm:"column:donor_country;type:varchar(80)" json:"donor_country,omitempty"`
	DonorStreetAddress *string `gorm:"column:donor_street_address;type:varchar(200)" json:"donor_street_address,omitempty"`
	DonorCity          *string `gorm:"column:donor_city;type:varchar(80)" json:"donor_city,omitempty"`
	DonorApartment     *string `gorm:"column:donor_apartment;type:varchar(80)" json:"donor_apartment,omitempty"`
	DonorPostalCode    *string `gorm:"column:donor_postal_code;type:varchar(20)" json:"donor_postal_code,omitempty"`

	DonorStripeCustomerID *string `gorm:"column:donor_stripe_customer_id;type:varchar(100)" json:"-"`

	DonorCreatedAt time.Time `gorm:"column:donor_created_at;not null;autoCreateTime" json:"donor_created_at"`
	DonorUpdatedAt time.Time `gorm:"column:donor_updated_at;not null;autoUpdateTime" json:"donor_updated_at"`
}

func (Donor) TableName() string {
	return "donors"
}

// IsAnonymous reports synthesized identities, which never receive fan-out mail.
func (d *Donor) IsAnonymous() bool {
	return IsAnonymousEmail(d.DonorEmail)
}

func IsAnonymousEmail(email string) bool {
	return len(email) >= len(AnonymousName) && strings.EqualFold(email[:len(AnonymousName)], AnonymousName)
}

type GiftAidAddress struct {
	Country       string `json:"country" validate:"omitempty,max=80"`
	StreetAddress string `json:"street_address" validate:"omitempty,max=200"`
	City          string `json:"city" validate:"omitempty,max=80"`
	Apartment     string `json:"apartment" validate:"omitempty,max=80"`
	PostalCode    string `json:"postal_code" validate:"omitempty,max=20"`
}

func (a GiftAidAddress) Empty() bool {
	return a.Country == "" && a.StreetAddress == "" && a.City == "" && a.Apartment == "" && a.PostalCode == ""
}

// DonorUpdate lists the mutable columns; nil leaves a column untouched.
type DonorUpdate struct {
	Name             *string
	GiftAid          *GiftAidAddress
	StripeCustomerID *string
}

// Apply copies the update onto d and returns the changed column values.
func (u DonorUpdate) Apply(d *Donor) map[string]any {
	cols := map[string]any{}
	if u.Name != nil {
		d.DonorName = *u.Name
		cols["donor_name"] = *u.Name
	}
	if u.GiftAid != nil {
		a := u.GiftAid
		d.DonorCountry = strPtrOrNil(a.Country)
		d.DonorStreetAddress = strPtrOrNil(a.StreetAddress)
		d.DonorCity = strPtrOrNil(a.City)
		d.DonorApartment = strPtrOrNil(a.Apartment)
		d.DonorPostalCode = strPtrOrNil(a.PostalCode)
		cols["donor_country"] = d.DonorCountry
		cols["donor_street_address"] = d.DonorStreetAddress
		cols["donor_city"] = d.DonorCity
		cols["donor_apartment"] = d.DonorApartment
		cols["donor_postal_code"] = d.DonorPostalCode
	}
	if u.StripeCustomerID != nil {
		d.DonorStripeCustomerID = u.StripeCustomerID
		cols["donor_stripe_customer_id"] = *u.StripeCustomerID
	}
	return cols
}

func strPtrOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

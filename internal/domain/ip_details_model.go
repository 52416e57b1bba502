package domain

import (
	"time"
)

type IPDetails struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	IPAddress string `gorm:"size:45;uniqueIndex;not null"`

	Country string `gorm:"size:56"`                // Human-readable country name
	ASNOrg  string `gorm:"column:asn_org;size:128"` // Autonomous system organization

	ResponseCodes []ResponseCode `gorm:"many2many:ip_response_codes;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (details *IPDetails) CodeStrings() []string {
	codes := make([]string, 0, len(details.ResponseCodes))
	for _, code := range details.ResponseCodes {
		codes = append(codes, code.Code)
	}
	return codes
}

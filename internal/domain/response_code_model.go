package domain

import "time"

type ResponseCode struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Code string `gorm:"size:45;uniqueIndex;not null"`

	IPDetails []IPDetails `gorm:"many2many:ip_response_codes;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

package domain

import "time"

type IPResponseCode struct {
	IPDetailsID    uint64    `gorm:"primaryKey"`
	ResponseCodeID uint64    `gorm:"primaryKey"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

func (IPResponseCode) TableName() string {
	return "ip_response_codes"
}

package dto

import "time"

type IPDetailsResponse struct {
	Id            uint64              `json:"id"`
	IPAddress     string              `json:"ipAddress"`
	Country       string              `json:"country,omitempty"`
	ASNOrg        string              `json:"asnOrg,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
	ResponseCodes []ResponseCodeEntry `json:"responseCodes"`
}

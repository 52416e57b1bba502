package dto

import "time"

type ResponseCodeEntry struct {
	Id           uint64 `json:"id"`
	ResponseCode string `json:"responseCode"`
}

// ResponseCodeListing is one registry row with the addresses it flags.
type ResponseCodeListing struct {
	Id           uint64              `json:"id"`
	ResponseCode string              `json:"responseCode"`
	CreatedAt    time.Time           `json:"createdAt"`
	IPDetails    []IPDetailsResponse `json:"ipDetails"`
}

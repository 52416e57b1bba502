package dto

type EnqueueRequest struct {
	IPAddresses []string `json:"ipAddresses"`
}

package dto

// EnqueueResult echoes every submitted address. Addresses that could not be
// resolved are additionally listed under errors or warnings; their presence
// never fails the request as a whole.
type EnqueueResult struct {
	IPAddresses []string         `json:"ipAddresses"`
	Errors      []AddressError   `json:"errors,omitempty"`
	Warnings    []AddressWarning `json:"warnings,omitempty"`
}

type AddressError struct {
	IPAddress string `json:"ipAddress"`
	Error     string `json:"error"`
}

type AddressWarning struct {
	IPAddress string `json:"ipAddress"`
	Warning   string `json:"warning"`
}

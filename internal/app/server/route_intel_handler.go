package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"shrike/internal/api/dto"
	"shrike/internal/database"
	"shrike/internal/domain"
)

func (a *API) enqueueAddresses(w http.ResponseWriter, r *http.Request) {
	var request dto.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	reports := a.enqueuer.Enqueue(r.Context(), request.IPAddresses)

	result := dto.EnqueueResult{IPAddresses: make([]string, 0, len(reports))}
	for _, report := range reports {
		result.IPAddresses = append(result.IPAddresses, report.Address)
		if report.Error != "" {
			result.Errors = append(result.Errors, dto.AddressError{
				IPAddress: report.Address,
				Error:     report.Error,
			})
		}
		if report.Warning != "" {
			result.Warnings = append(result.Warnings, dto.AddressWarning{
				IPAddress: report.Address,
				Warning:   report.Warning,
			})
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) getIPDetails(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")

	details, err := a.store.FindIPDetails(r.Context(), address)
	if err != nil {
		if errors.Is(err, database.ErrIPDetailsNotFound) {
			writeError(w, "Details for given IP address cannot be found", http.StatusNotFound)
			return
		}
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toIPDetailsResponse(details))
}

func (a *API) listResponseCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := a.store.ListResponseCodes(r.Context())
	if err != nil {
		writeError(w, "Failed to query database", http.StatusInternalServerError)
		return
	}

	listings := make([]dto.ResponseCodeListing, 0, len(codes))
	for _, code := range codes {
		listings = append(listings, toResponseCodeListing(code))
	}

	writeJSON(w, http.StatusOK, listings)
}

func toIPDetailsResponse(details domain.IPDetails) dto.IPDetailsResponse {
	codes := make([]dto.ResponseCodeEntry, 0, len(details.ResponseCodes))
	for _, code := range details.ResponseCodes {
		codes = append(codes, dto.ResponseCodeEntry{
			Id:           code.ID,
			ResponseCode: code.Code,
		})
	}

	return dto.IPDetailsResponse{
		Id:            details.ID,
		IPAddress:     details.IPAddress,
		Country:       details.Country,
		ASNOrg:        details.ASNOrg,
		CreatedAt:     details.CreatedAt,
		UpdatedAt:     details.UpdatedAt,
		ResponseCodes: codes,
	}
}

func toResponseCodeListing(code domain.ResponseCode) dto.ResponseCodeListing {
	linked := make([]dto.IPDetailsResponse, 0, len(code.IPDetails))
	for _, details := range code.IPDetails {
		linked = append(linked, toIPDetailsResponse(details))
	}

	return dto.ResponseCodeListing{
		Id:           code.ID,
		ResponseCode: code.Code,
		CreatedAt:    code.CreatedAt,
		IPDetails:    linked,
	}
}

package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/spredd-labs/developer-api/internal/app/domain/apikey"
)

type signupRequest struct {
	Email       string `json:"email"`
	CompanyName string `json:"company_name"`
}

type accountResponse struct {
	AccountID   string    `json:"account_id"`
	Email       string    `json:"email"`
	CompanyName string    `json:"company_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (h *handler) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	acct, err := h.app.Auth.Signup(r.Context(), req.Email, req.CompanyName)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		AccountID:   acct.ID,
		Email:       acct.Email,
		CompanyName: acct.CompanyName,
		CreatedAt:   acct.CreatedAt,
	})
}

type createKeyRequest struct {
	AccountID string `json:"account_id"`
	Label     string `json:"label"`
	Tier      string `json:"tier"`
}

type keyResponse struct {
	ID         string     `json:"id"`
	Prefix     string     `json:"key_prefix"`
	Label      string     `json:"label,omitempty"`
	Tier       string     `json:"tier"`
	RateRPM    int        `json:"rate_limit_rpm"`
	RateTPM    int        `json:"rate_limit_tpm"`
	Active     bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

type createdKeyResponse struct {
	keyResponse
	// The full secret is returned exactly once, at creation.
	APIKey string `json:"api_key"`
}

func toKeyResponse(k apikey.Key) keyResponse {
	resp := keyResponse{
		ID:        k.ID,
		Prefix:    k.Prefix,
		Label:     k.Label,
		Tier:      string(k.Tier),
		RateRPM:   k.RateRPM,
		RateTPM:   k.RateTPM,
		Active:    k.Active,
		CreatedAt: k.CreatedAt,
	}
	if !k.LastUsedAt.IsZero() {
		t := k.LastUsedAt
		resp.LastUsedAt = &t
	}
	return resp
}

func (h *handler) createAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Auth.CreateKey(r.Context(), req.AccountID, req.Label, req.Tier)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	writeJSON(w, http.StatusCreated, createdKeyResponse{
		keyResponse: toKeyResponse(created.Key),
		APIKey:      created.FullKey,
	})
}

func (h *handler) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	keys, err := h.app.Auth.ListKeys(r.Context(), accountID)
	if err != nil {
		writeError(w, errorStatus(err), err)
		return
	}

	out := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": out, "count": len(out)})
}

func (h *handler) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	keyID := mux.Vars(r)["id"]
	if err := h.app.Auth.RevokeKey(r.Context(), keyID); err != nil {
		writeError(w, errorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "revoked",
		"detail": fmt.Sprintf("API key %s has been revoked", keyID),
	})
}

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/clinchain/backend/auth"
	"github.com/clinchain/backend/repository/models"
	"github.com/clinchain/backend/service"
)

// handleLogin authenticates an account and returns a bearer token.
func (ws *WebServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := ws.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		ws.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleLots serves the lot collection: GET lists, POST creates.
func (ws *WebServer) handleLots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.listLots(w, r)
	case http.MethodPost:
		claims, ok := ws.authenticate(w, r)
		if !ok {
			return
		}
		ws.createLot(w, r, claims)
	default:
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ws *WebServer) listLots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := service.LotFilter{
		CreatedBy: query.Get("createdBy"),
		MedName:   query.Get("medName"),
	}
	if raw := query.Get("status"); raw != "" {
		status := models.LotStatus(strings.ToUpper(raw))
		if !status.IsValid() {
			JSONError(w, fmt.Sprintf("Unknown status %q", raw), http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}

	page, err := parsePage(query.Get("page"), query.Get("size"))
	if err != nil {
		JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	lots, total, err := ws.lots.ListLots(r.Context(), filter, page)
	if err != nil {
		ws.serviceError(w, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	if page != nil && page.Size > 0 {
		pages := (total + int64(page.Size) - 1) / int64(page.Size)
		w.Header().Set("X-Total-Pages", strconv.FormatInt(pages, 10))
	}
	writeJSON(w, http.StatusOK, lots)
}

func (ws *WebServer) createLot(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	var body struct {
		MedName  string `json:"medName"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if body.MedName == "" {
		JSONError(w, "medName is required", http.StatusBadRequest)
		return
	}

	lot, err := ws.lots.CreateLot(r.Context(), body.MedName, body.Quantity, claims.Subject)
	if err != nil {
		ws.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := ws.lots.Stats(r.Context())
	if err != nil {
		ws.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleLotAPI serves per-lot routes: GET /lots/{id}, GET /lots/{id}/ledger,
// and the POST transition and audit endpoints.
func (ws *WebServer) handleLotAPI(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "lots" || parts[1] == "" {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}
	lotID := parts[1]

	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		lot, err := ws.lots.GetLot(r.Context(), lotID)
		if err != nil {
			ws.serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lot)
		return
	}

	if len(parts) != 3 {
		JSONError(w, "Not found", http.StatusNotFound)
		return
	}

	action := parts[2]
	if action == "ledger" {
		if r.Method != http.MethodGet {
			JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		state, err := ws.lots.LedgerState(r.Context(), lotID)
		if err != nil {
			ws.serviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
		return
	}

	if r.Method != http.MethodPost {
		JSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, ok := ws.authenticate(w, r)
	if !ok {
		return
	}

	switch action {
	case "validate":
		ws.respondLot(w, r, func() (*models.Lot, error) {
			return ws.lots.ValidateLot(r.Context(), lotID, claims.Subject)
		})
	case "stock":
		ws.respondLot(w, r, func() (*models.Lot, error) {
			return ws.lots.StockLot(r.Context(), lotID, claims.Subject)
		})
	case "administer":
		ws.respondLot(w, r, func() (*models.Lot, error) {
			return ws.lots.AdministerLot(r.Context(), lotID, claims.Subject)
		})
	case "withdraw":
		var body struct {
			Quantity int `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			JSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		ws.respondLot(w, r, func() (*models.Lot, error) {
			return ws.lots.Withdraw(r.Context(), lotID, body.Quantity, claims.Subject)
		})
	case "history":
		var body struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			JSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if body.Action == "" {
			JSONError(w, "action is required", http.StatusBadRequest)
			return
		}
		ws.respondLot(w, r, func() (*models.Lot, error) {
			return ws.lots.AddHistory(r.Context(), lotID, body.Action, claims.Subject)
		})
	default:
		JSONError(w, "Not found", http.StatusNotFound)
	}
}

func (ws *WebServer) respondLot(w http.ResponseWriter, _ *http.Request, op func() (*models.Lot, error)) {
	lot, err := op()
	if err != nil {
		ws.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lot)
}

// authenticate verifies the bearer token and returns its claims. On failure
// it writes the 401 itself and returns false.
func (ws *WebServer) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		JSONError(w, "Missing bearer token", http.StatusUnauthorized)
		return nil, false
	}

	claims, err := ws.tokens.Verify(token)
	if err != nil {
		JSONError(w, "Invalid token", http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

func parsePage(rawPage, rawSize string) (*service.PageRequest, error) {
	if rawPage == "" && rawSize == "" {
		return nil, nil
	}

	page := 0
	size := 20
	var err error
	if rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil || page < 0 {
			return nil, fmt.Errorf("invalid page %q", rawPage)
		}
	}
	if rawSize != "" {
		size, err = strconv.Atoi(rawSize)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid size %q", rawSize)
		}
	}
	return &service.PageRequest{Page: page, Size: size}, nil
}

package apitest

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/inventar/internal/auth"
	"github.com/erazemk/inventar/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type createItemRequest struct {
	Name        string  `json:"name"`
	Serial      *string `json:"serial"`
	Brand       string  `json:"brand"`
	Responsible string  `json:"responsible"`
	Location    string  `json:"location"`
	Qty         int     `json:"qty"`
}

type updateItemRequest struct {
	Name           *string `json:"name"`
	Serial         *string `json:"serial"`
	Brand          *string `json:"brand"`
	Status         *string `json:"status"`
	Responsible    *string `json:"responsible"`
	Location       *string `json:"location"`
	Qty            *int    `json:"qty"`
	Brigade        *int64  `json:"brigade"`
	ServiceComment string  `json:"service_comment"`
	Reason         string  `json:"reason"`
}

type confirmTMCRequest struct {
	Action string `json:"action"`
}

type confirmRepairRequest struct {
	InvoiceNumber string `json:"invoice_number"`
	Location      string `json:"location"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

// handleLogin handles POST token/.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user := s.users[req.Username]
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		slog.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}

	access, err := s.issueLocked(user, auth.KindAccess, s.accessTTL)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"detail": "failed to generate token"})
		return
	}
	refresh, err := s.issueLocked(user, auth.KindRefresh, auth.RefreshExpiry)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"detail": "failed to generate token"})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"access": access, "refresh": refresh})
}

// handleRefresh handles POST token/refresh/.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"detail": "invalid request body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	invalid := map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"}
	if s.rejectRefresh {
		jsonResponse(w, http.StatusUnauthorized, invalid)
		return
	}
	claims, err := auth.ValidateToken(s.Secret, req.Refresh)
	if err != nil || claims.TokenType != auth.KindRefresh {
		jsonResponse(w, http.StatusUnauthorized, invalid)
		return
	}
	user := s.users[claims.Username]
	if user == nil {
		jsonResponse(w, http.StatusUnauthorized, invalid)
		return
	}

	access, err := s.issueLocked(user, auth.KindAccess, s.accessTTL)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"detail": "failed to generate token"})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"access": access})
}

// handleListItems handles GET items, optionally filtered by ?search=.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("search")))

	s.mu.Lock()
	items := make([]model.Item, 0, len(s.items))
	for _, it := range s.items {
		if search != "" && !matches(it, search) {
			continue
		}
		items = append(items, s.view(it))
	}
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	dataResponse(w, http.StatusOK, map[string]any{"items": items}, "")
}

func matches(it *model.Item, search string) bool {
	for _, field := range []string{it.Name, it.Brand, it.SerialNumber(), it.Location, it.Responsible} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// handleCreateItem handles POST items.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}
	if req.Qty <= 0 {
		req.Qty = 1
	}

	claims := getClaims(r.Context())
	s.mu.Lock()
	s.nextID++
	it := &model.Item{
		ID:          s.nextID,
		Name:        req.Name,
		Serial:      req.Serial,
		Brand:       req.Brand,
		Status:      model.StatusAvailable,
		Responsible: req.Responsible,
		Location:    req.Location,
		Qty:         req.Qty,
	}
	s.items[it.ID] = it
	s.recordLocked(it, claims, model.ActionCreated, "ТМЦ создано", "")
	out := s.view(it)
	s.mu.Unlock()

	slog.Info("item created", "user", claims.Username, "item", it.ID)
	dataResponse(w, http.StatusCreated, out, "ТМЦ создано")
}

// handleUpdateItem handles PUT and PATCH items/{id}/.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok {
		return
	}
	if !s.editableLocked(w, it, claims) {
		return
	}

	if req.Status != nil {
		status, err := model.ParseStatus(*req.Status)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid status")
			return
		}
		if it.Status == model.StatusRetired && status != model.StatusRetired {
			jsonError(w, http.StatusBadRequest, "ТМЦ списано")
			return
		}
		it.Status = status
	}
	if req.Name != nil {
		it.Name = *req.Name
	}
	if req.Serial != nil {
		serial := *req.Serial
		it.Serial = &serial
	}
	if req.Brand != nil {
		it.Brand = *req.Brand
	}
	if req.Responsible != nil {
		it.Responsible = *req.Responsible
	}
	if req.Location != nil {
		it.Location = *req.Location
	}
	if req.Qty != nil {
		it.Qty = *req.Qty
	}
	if req.Brigade != nil {
		brigade := *req.Brigade
		it.Brigade = &brigade
		it.BrigadeDetails = &model.Brigade{ID: brigade, Name: "Бригада " + strconv.FormatInt(brigade, 10)}
	}

	action, comment := model.ActionUpdated, req.ServiceComment
	switch {
	case req.Status != nil && it.Status == model.StatusConfirmRepair:
		action = model.ActionSentToService
	case req.Status != nil && it.Status == model.StatusRetired:
		action, comment = model.ActionWrittenOff, req.Reason
	}
	s.recordLocked(it, claims, action, "ТМЦ обновлено", comment)

	dataResponse(w, http.StatusOK, s.view(it), "ТМЦ обновлено")
}

// handleLock handles POST items/{id}/lock/.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok {
		return
	}

	if l, held := s.locks[it.ID]; held && l.user != claims.Username {
		jsonResponse(w, http.StatusLocked, map[string]any{
			"locked_by": l.user,
			"locked_at": l.at.Format(time.RFC3339),
			"error":     "ТМЦ заблокировано пользователем: " + l.user,
		})
		return
	}

	s.locks[it.ID] = lockEntry{user: claims.Username, at: time.Now().UTC().Truncate(time.Second)}
	s.recordLocked(it, claims, model.ActionLocked, "Заблокировано: "+claims.Username, "")
	dataResponse(w, http.StatusOK, map[string]string{"status": "locked", "locked_by": claims.Username}, "ТМЦ заблокировано")
}

// handleUnlock handles POST items/{id}/unlock/.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok {
		return
	}

	if l, held := s.locks[it.ID]; held {
		if l.user != claims.Username {
			jsonError(w, http.StatusConflict, "ТМЦ заблокировано другим пользователем")
			return
		}
		delete(s.locks, it.ID)
		s.recordLocked(it, claims, model.ActionUnlocked, "Разблокировано", "")
	}
	dataResponse(w, http.StatusOK, map[string]string{"status": "unlocked"}, "ТМЦ разблокировано")
}

// handleConfirmTMC handles POST items/{id}/confirm-tmc/.
func (s *Server) handleConfirmTMC(w http.ResponseWriter, r *http.Request) {
	var req confirmTMCRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok || !s.editableLocked(w, it, claims) {
		return
	}
	if it.Status != model.StatusConfirm {
		jsonError(w, http.StatusBadRequest, "ТМЦ не ожидает подтверждения")
		return
	}

	switch req.Action {
	case "accept":
		it.Status = model.StatusIssued
		s.recordLocked(it, claims, model.ActionAccepted, "Принято", "")
	case "reject":
		it.Status = model.StatusAvailable
		it.Responsible = ""
		it.Location = ""
		s.recordLocked(it, claims, model.ActionRejected, "Отклонено", "")
	default:
		jsonError(w, http.StatusBadRequest, "action must be accept or reject")
		return
	}

	dataResponse(w, http.StatusOK, s.view(it), "")
}

// handleConfirmRepair handles POST items/{id}/confirm-repair/.
func (s *Server) handleConfirmRepair(w http.ResponseWriter, r *http.Request) {
	var req confirmRepairRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.InvoiceNumber) == "" || strings.TrimSpace(req.Location) == "" {
		jsonError(w, http.StatusBadRequest, "invoice_number and location required")
		return
	}

	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok || !s.editableLocked(w, it, claims) {
		return
	}
	if it.Status != model.StatusConfirmRepair {
		jsonError(w, http.StatusBadRequest, "ТМЦ не ожидает подтверждения ремонта")
		return
	}

	it.Status = model.StatusInRepair
	it.Location = req.Location
	s.recordLocked(it, claims, model.ActionRepairConfirmed, "Ремонт согласован", "Счёт "+req.InvoiceNumber)
	dataResponse(w, http.StatusOK, s.view(it), "Ремонт согласован")
}

// handleReturnFromService handles POST items/{id}/return-from-service/.
func (s *Server) handleReturnFromService(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok || !s.editableLocked(w, it, claims) {
		return
	}
	if it.Status != model.StatusInRepair {
		jsonError(w, http.StatusBadRequest, "ТМЦ не находится в ремонте")
		return
	}

	it.Status = model.StatusConfirm
	s.recordLocked(it, claims, model.ActionReturned, "Возвращено из сервиса", req.Comment)
	dataResponse(w, http.StatusOK, s.view(it), "ТМЦ принято из ремонта")
}

// handleCancelWriteOff handles POST items/{id}/cancel-write-off/.
func (s *Server) handleCancelWriteOff(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.itemLocked(w, r)
	if !ok || !s.editableLocked(w, it, claims) {
		return
	}
	if it.Status != model.StatusRetired {
		jsonError(w, http.StatusBadRequest, "ТМЦ не списано")
		return
	}

	it.Status = model.StatusAvailable
	s.recordLocked(it, claims, model.ActionWriteOffCancel, "Списание отменено", "")
	dataResponse(w, http.StatusOK, s.view(it), "Списание отменено")
}

// handleStatusCounters handles GET status-counters/.
func (s *Server) handleStatusCounters(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]model.Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, *it)
	}
	s.mu.Unlock()

	dataResponse(w, http.StatusOK, model.CountStatuses(items), "")
}

// itemLocked looks up the item named by the {id} path value and writes a 4xx
// if there is none. Callers hold s.mu.
func (s *Server) itemLocked(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}
	it, ok := s.items[id]
	if !ok {
		jsonError(w, http.StatusNotFound, "ТМЦ не найдено")
		return nil, false
	}
	return it, true
}

// editableLocked writes a 423 if another user holds the item lock. Callers
// hold s.mu.
func (s *Server) editableLocked(w http.ResponseWriter, it *model.Item, claims *auth.Claims) bool {
	l, held := s.locks[it.ID]
	if !held || l.user == claims.Username {
		return true
	}
	jsonResponse(w, http.StatusLocked, map[string]any{
		"locked_by": l.user,
		"locked_at": l.at.Format(time.RFC3339),
		"error":     "ТМЦ заблокировано пользователем: " + l.user,
	})
	return false
}

// recordLocked appends a history entry. Callers hold s.mu.
func (s *Server) recordLocked(it *model.Item, claims *auth.Claims, actionType, action, comment string) {
	s.nextHistory++
	userID := claims.UserID
	entry := model.HistoryEntry{
		ID:           s.nextHistory,
		Date:         time.Now().Format(model.HistoryDateLayout),
		Action:       action,
		ActionType:   actionType,
		Comment:      comment,
		User:         &userID,
		UserUsername: claims.Username,
	}
	it.History = append([]model.HistoryEntry{entry}, it.History...)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/eugenenazirov/token-pricer/internal/allocator"
	"github.com/eugenenazirov/token-pricer/internal/catalog"
	"github.com/eugenenazirov/token-pricer/internal/history"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const defaultRunsLimit = 20

// RunLog records and serves allocation run history.
type RunLog interface {
	Record(run history.Run) error
	Recent(limit int) ([]history.Run, error)
	Get(id string) (*history.Run, error)
}

// Handler wires allocator, catalog, and run history dependencies into HTTP
// handlers.
type Handler struct {
	allocator allocator.Allocator
	catalog   catalog.Catalog
	runs      RunLog
	targetSum float64
	currency  string

	clock func() time.Time

	mu                sync.RWMutex
	productsUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
// targetSum and currency are the defaults applied when an allocation
// request does not override them.
func NewHandler(alloc allocator.Allocator, cat catalog.Catalog, runs RunLog, targetSum float64, currency string, opts ...HandlerOption) *Handler {
	h := &Handler{
		allocator: alloc,
		catalog:   cat,
		runs:      runs,
		targetSum: targetSum,
		currency:  currency,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.productsUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProducts(w http.ResponseWriter, r *http.Request) {
	_ = r
	products, err := h.catalog.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := productsResponse{
		Products:  toProductPayloads(products),
		UpdatedAt: h.currentProductsUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutProducts(w http.ResponseWriter, r *http.Request) {
	var req productsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	if len(req.Products) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid products", "products must contain at least one entry")
		return
	}

	products, err := fromProductPayloads(req.Products)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid products", err.Error())
		return
	}

	if err := h.catalog.Replace(products); err != nil {
		if errors.Is(err, catalog.ErrInvalidProducts) {
			writeError(w, http.StatusBadRequest, "Invalid products", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markProductsUpdated()

	stored, err := h.catalog.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := productsResponse{
		Products:  toProductPayloads(stored),
		UpdatedAt: h.currentProductsUpdatedAt(),
		Message:   "Products updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	target := h.targetSum
	if req.TargetSum != nil {
		if *req.TargetSum <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "targetSum must be a positive number")
			return
		}
		target = *req.TargetSum
	}

	products, err := h.catalog.List()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	eligible := catalog.Eligible(products)
	if len(eligible) == 0 {
		suggestion := "Add products with a positive retail price and a positive initial stock"
		writeError(w, http.StatusUnprocessableEntity, "No eligible products", "the catalog has no products that can be priced", suggestion)
		return
	}

	items := make([]allocator.Item, len(eligible))
	for i, p := range eligible {
		items[i] = allocator.Item{
			Weight:       p.RetailPrice.InexactFloat64(),
			Multiplicity: float64(p.InitialStock),
		}
	}

	start := time.Now()
	result, allocErr := h.allocator.Allocate(items, target)
	elapsed := time.Since(start)

	if allocErr != nil {
		switch {
		case errors.Is(allocErr, allocator.ErrNoItems),
			errors.Is(allocErr, allocator.ErrInvalidItem),
			errors.Is(allocErr, allocator.ErrInvalidTarget):
			writeError(w, http.StatusBadRequest, "Invalid request", allocErr.Error())
		case errors.Is(allocErr, allocator.ErrZeroWeightedSum):
			writeError(w, http.StatusUnprocessableEntity, "Cannot allocate", allocErr.Error())
		default:
			writeInternalError(w, allocErr)
		}
		return
	}

	run := history.Run{
		ID:          uuid.NewString(),
		CreatedAt:   h.clock(),
		TargetSum:   result.TargetSum,
		AchievedSum: result.AchievedSum,
		Residual:    result.Residual,
		Exact:       result.Exact,
	}
	lines := make([]allocationLine, len(result.Items))
	prices := make(map[string]int64, len(result.Items))
	for i, it := range result.Items {
		p := eligible[i]
		prices[p.ID] = it.Assigned
		run.Items = append(run.Items, history.RunItem{
			ProductID:    p.ID,
			Weight:       it.Weight,
			Multiplicity: it.Multiplicity,
			Assigned:     it.Assigned,
			Ideal:        it.Ideal,
		})
		lines[i] = allocationLine{
			ProductID:     p.ID,
			Name:          p.Name,
			RetailPrice:   p.RetailPrice.String(),
			InitialStock:  p.InitialStock,
			TokenPrice:    it.Assigned,
			Ideal:         it.Ideal,
			WeightedValue: float64(it.Assigned) * it.Multiplicity,
		}
	}

	// Record before applying so a failed audit write cannot leave updated
	// prices without a matching run.
	if err := h.runs.Record(run); err != nil {
		writeInternalError(w, err)
		return
	}

	updated, err := h.catalog.ApplyPrices(prices, h.currency)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	h.markProductsUpdated()

	resp := allocateResponse{
		RunID:             run.ID,
		TargetSum:         result.TargetSum,
		AchievedSum:       result.AchievedSum,
		Residual:          result.Residual,
		Exact:             result.Exact,
		Currency:          h.currency,
		UpdatedProducts:   updated,
		Items:             lines,
		CalculationTimeMs: elapsed.Milliseconds(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		limit = value
	}

	runs, err := h.runs.Recent(limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	summaries := make([]runSummary, len(runs))
	for i, run := range runs {
		summaries[i] = toRunSummary(run)
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: summaries})
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	run, err := h.runs.Get(id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", "no allocation run with id "+id)
			return
		}
		writeInternalError(w, err)
		return
	}

	resp := runResponse{
		runSummary: toRunSummary(*run),
		Items:      make([]runItemPayload, len(run.Items)),
	}
	for i, it := range run.Items {
		resp.Items[i] = runItemPayload{
			ProductID:    it.ProductID,
			Weight:       it.Weight,
			Multiplicity: it.Multiplicity,
			TokenPrice:   it.Assigned,
			Ideal:        it.Ideal,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) currentProductsUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.productsUpdatedAt
}

func (h *Handler) markProductsUpdated() {
	h.mu.Lock()
	h.productsUpdatedAt = h.clock()
	h.mu.Unlock()
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type productPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RetailPrice  string `json:"retailPrice"`
	InitialStock int    `json:"initialStock"`
	TokenPrice   int64  `json:"tokenPrice,omitempty"`
	Currency     string `json:"currency,omitempty"`
}

type productsRequest struct {
	Products []productPayload `json:"products"`
}

type productsResponse struct {
	Products  []productPayload `json:"products"`
	UpdatedAt time.Time        `json:"updatedAt"`
	Message   string           `json:"message,omitempty"`
}

type allocateRequest struct {
	TargetSum *float64 `json:"targetSum"`
}

type allocationLine struct {
	ProductID     string  `json:"productId"`
	Name          string  `json:"name,omitempty"`
	RetailPrice   string  `json:"retailPrice"`
	InitialStock  int     `json:"initialStock"`
	TokenPrice    int64   `json:"tokenPrice"`
	Ideal         float64 `json:"ideal"`
	WeightedValue float64 `json:"weightedValue"`
}

type allocateResponse struct {
	RunID             string           `json:"runId"`
	TargetSum         float64          `json:"targetSum"`
	AchievedSum       float64          `json:"achievedSum"`
	Residual          float64          `json:"residual"`
	Exact             bool             `json:"exact"`
	Currency          string           `json:"currency"`
	UpdatedProducts   int              `json:"updatedProducts"`
	Items             []allocationLine `json:"items"`
	CalculationTimeMs int64            `json:"calculationTimeMs"`
}

type runSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	TargetSum   float64   `json:"targetSum"`
	AchievedSum float64   `json:"achievedSum"`
	Residual    float64   `json:"residual"`
	Exact       bool      `json:"exact"`
}

type runsResponse struct {
	Runs []runSummary `json:"runs"`
}

type runItemPayload struct {
	ProductID    string  `json:"productId"`
	Weight       float64 `json:"weight"`
	Multiplicity float64 `json:"multiplicity"`
	TokenPrice   int64   `json:"tokenPrice"`
	Ideal        float64 `json:"ideal"`
}

type runResponse struct {
	runSummary
	Items []runItemPayload `json:"items"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func toRunSummary(run history.Run) runSummary {
	return runSummary{
		ID:          run.ID,
		CreatedAt:   run.CreatedAt,
		TargetSum:   run.TargetSum,
		AchievedSum: run.AchievedSum,
		Residual:    run.Residual,
		Exact:       run.Exact,
	}
}

func toProductPayloads(products []catalog.Product) []productPayload {
	out := make([]productPayload, len(products))
	for i, p := range products {
		out[i] = productPayload{
			ID:           p.ID,
			Name:         p.Name,
			RetailPrice:  p.RetailPrice.String(),
			InitialStock: p.InitialStock,
			TokenPrice:   p.TokenPrice,
			Currency:     p.Currency,
		}
	}
	return out
}

func fromProductPayloads(payloads []productPayload) ([]catalog.Product, error) {
	out := make([]catalog.Product, len(payloads))
	for i, p := range payloads {
		price, err := decimal.NewFromString(p.RetailPrice)
		if err != nil {
			return nil, errors.New("retailPrice must be a decimal number, got " + strconv.Quote(p.RetailPrice))
		}
		out[i] = catalog.Product{
			ID:           p.ID,
			Name:         p.Name,
			RetailPrice:  price,
			InitialStock: p.InitialStock,
		}
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

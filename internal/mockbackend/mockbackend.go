// Package mockbackend emulates the price tracker backend API in memory.
//
// It serves the seven endpoints the pricewatch client calls, with products,
// price histories and jobs held in memory. Jobs advance one status per
// status query through a configurable script, by default
// PROVISIONING, PENDING, RUNNING and a clean STOPPED.
//
// The package is used by tests and by the example programs; it is not part
// of the pricewatch API.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Route patterns, usable with [Backend.Fail] and [Backend.Calls].
const (
	RouteModels             = "/api/get_model/{name}"
	RoutePriceTrend         = "/api/get_price_trend/{name}/{model}"
	RouteCheckPrice         = "/api/check_price"
	RouteNotificationTest   = "/api/notification_test"
	RouteJobStatus          = "/api/get_scraping_status/*"
	RouteGetNotification    = "/api/get_notification_setting"
	RouteUpdateNotification = "/api/update_notification_setting"
)

// CleanStopReason is the stop reason of a job that ran to completion.
const CleanStopReason = "Essential container in task exited"

const taskArnPrefix = "arn:aws:ecs:ap-northeast-1:000000000000:task/mock-cluster/"

// PricePoint is one recorded price.
type PricePoint struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}

// Product is one tracked item.
type Product struct {
	OrderCode string
	Name      string
	Model     string
	URL       string

	// Price is the current price. A notification test sets it to zero.
	Price int64

	// ListPrice is the price a completed scrape observes.
	ListPrice int64

	Notify  bool
	History []PricePoint
}

// Script is the status sequence a started job walks through, one status
// per status query. The last status repeats once reached.
type Script struct {
	Statuses   []string
	StopReason string
	ExitCode   any
}

// DefaultScript ends in a clean stop after three running states.
var DefaultScript = Script{
	Statuses:   []string{"PROVISIONING", "PENDING", "RUNNING", "STOPPED"},
	StopReason: CleanStopReason,
	ExitCode:   0,
}

type job struct {
	handle    string
	kind      string
	script    Script
	step      int
	stoppedAt string
}

// Option configures a [Backend].
type Option func(*Backend)

// WithProducts replaces the default catalogue.
func WithProducts(products ...Product) Option {
	return func(b *Backend) {
		b.products = make(map[string]*Product, len(products))
		for i := range products {
			p := products[i]
			p.History = append([]PricePoint(nil), p.History...)
			b.products[p.OrderCode] = &p
		}
	}
}

// WithScript sets the status script of every job started afterwards.
func WithScript(s Script) Option {
	return func(b *Backend) {
		b.script = s
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend is an in-memory price tracker backend. It is safe for concurrent use.
type Backend struct {
	logger *slog.Logger

	mu       sync.Mutex
	products map[string]*Product
	jobs     map[string]*job
	script   Script
	failures map[string]int
	calls    map[string]int
}

// New creates a Backend with a small default catalogue.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:   slog.Default(),
		jobs:     make(map[string]*job),
		script:   DefaultScript,
		failures: make(map[string]int),
		calls:    make(map[string]int),
	}
	WithProducts(defaultProducts()...)(b)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultProducts() []Product {
	return []Product{
		{
			OrderCode: "cn14001", Name: "Inspiron 14", Model: "Core i5 16GB",
			URL: "https://www.dell.com/ja-jp/shop/cn14001", Price: 98800, ListPrice: 98800,
			History: []PricePoint{
				{Date: "2025-01-06T09:00:00", Price: 104800},
				{Date: "2025-01-13T09:00:00", Price: 101800},
				{Date: "2025-01-20T09:00:00", Price: 98800},
			},
		},
		{
			OrderCode: "cn14002", Name: "Inspiron 14", Model: "Core i7 32GB",
			URL: "https://www.dell.com/ja-jp/shop/cn14002", Price: 139800, ListPrice: 139800,
			History: []PricePoint{
				{Date: "2025-01-06T09:00:00", Price: 149800},
				{Date: "2025-01-20T09:00:00", Price: 139800},
			},
		},
		{
			OrderCode: "cx13001", Name: "XPS 13", Model: "Core Ultra 7",
			URL: "https://www.dell.com/ja-jp/shop/cx13001", Price: 219800, ListPrice: 219800,
			Notify: true,
			History: []PricePoint{
				{Date: "2025-01-06T09:00:00", Price: 219800},
			},
		},
	}
}

// Handler returns the router serving the backend API under /api.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/get_model/{name}", b.handle(RouteModels, b.models))
		r.Get("/get_price_trend/{name}/{model}", b.handle(RoutePriceTrend, b.priceTrend))
		r.Get("/check_price", b.handle(RouteCheckPrice, b.checkPrice))
		r.Get("/notification_test", b.handle(RouteNotificationTest, b.notificationTest))
		r.Get("/get_scraping_status/*", b.handle(RouteJobStatus, b.jobStatus))
		r.Get("/get_notification_setting", b.handle(RouteGetNotification, b.notificationSetting))
		r.Post("/update_notification_setting", b.handle(RouteUpdateNotification, b.updateNotificationSetting))
	})
	return r
}

// Fail makes route answer with the given HTTP status until cleared with
// status 0.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, route)
		return
	}
	b.failures[route] = status
}

// Calls returns the number of requests route has received.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// Product returns a copy of the product with the given order code.
func (b *Backend) Product(orderCode string) (Product, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.products[orderCode]
	if !ok {
		return Product{}, false
	}
	cp := *p
	cp.History = append([]PricePoint(nil), p.History...)
	return cp, true
}

// handle counts the call and applies injected failures before h runs.
func (b *Backend) handle(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[route]++
		status := b.failures[route]
		b.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
		h(w, r)
	}
}

func (b *Backend) models(w http.ResponseWriter, r *http.Request) {
	name := param(r, "name")

	b.mu.Lock()
	models := []map[string]string{}
	for _, p := range b.sortedProductsLocked() {
		if p.Name == name {
			models = append(models, map[string]string{"model": p.Model})
		}
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, models)
}

func (b *Backend) priceTrend(w http.ResponseWriter, r *http.Request) {
	name, model := param(r, "name"), param(r, "model")

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.sortedProductsLocked() {
		if p.Name == name && p.Model == model {
			writeJSON(w, http.StatusOK, map[string]any{
				"prices": append([]PricePoint{}, p.History...),
				"url":    p.URL,
			})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "order code not found"})
}

func (b *Backend) checkPrice(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"taskArn": b.startJob("check_price")})
}

// notificationTest zeroes every current price, then starts a scrape so that
// every product with notifications enabled reports a price change.
func (b *Backend) notificationTest(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	for _, p := range b.products {
		p.Price = 0
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"taskArn": b.startJob("notification_test")})
}

func (b *Backend) startJob(kind string) string {
	handle := taskArnPrefix + uuid.NewString()

	b.mu.Lock()
	b.jobs[handle] = &job{handle: handle, kind: kind, script: b.script}
	b.mu.Unlock()

	b.logger.Info("mock job started", "kind", kind, "task_arn", handle)
	return handle
}

// jobStatus advances the job by one step and reports the new status.
func (b *Backend) jobStatus(w http.ResponseWriter, r *http.Request) {
	handle := param(r, "*")

	b.mu.Lock()
	j, ok := b.jobs[handle]
	if !ok {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
		return
	}

	status := "UNKNOWN"
	if n := len(j.script.Statuses); n > 0 {
		status = j.script.Statuses[min(j.step, n-1)]
	}
	j.step++

	resp := map[string]any{
		"status":     status,
		"stoppedAt":  nil,
		"stopReason": nil,
		"exitCode":   nil,
		"taskArn":    handle,
	}
	if status == "STOPPED" {
		if j.stoppedAt == "" {
			j.stoppedAt = time.Now().UTC().Format(time.RFC3339)
			if j.script.StopReason == CleanStopReason {
				b.recordScrapeLocked(j.stoppedAt)
			}
		}
		resp["stoppedAt"] = j.stoppedAt
		resp["stopReason"] = j.script.StopReason
		resp["exitCode"] = j.script.ExitCode
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// recordScrapeLocked restores list prices and appends them to every history.
func (b *Backend) recordScrapeLocked(at string) {
	for _, p := range b.products {
		if p.Price != p.ListPrice && p.Notify {
			b.logger.Info("mock price change notification", "order_code", p.OrderCode, "from", p.Price, "to", p.ListPrice)
		}
		p.Price = p.ListPrice
		p.History = append(p.History, PricePoint{Date: at, Price: p.ListPrice})
	}
}

func (b *Backend) notificationSetting(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.products) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "toggleValues": nil})
		return
	}

	// stored as 0/1 like the original database column
	values := make(map[string]int, len(b.products))
	for code, p := range b.products {
		values[code] = 0
		if p.Notify {
			values[code] = 1
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "toggleValues": values})
}

func (b *Backend) updateNotificationSetting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderCode string `json:"order_code"`
		IsChecked bool   `json:"is_checked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	b.mu.Lock()
	p, ok := b.products[req.OrderCode]
	if ok {
		p.Notify = req.IsChecked
	}
	b.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("product not found order_code: %s", req.OrderCode),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("notification setting updated order_code: %s", req.OrderCode),
	})
}

func (b *Backend) sortedProductsLocked() []*Product {
	out := make([]*Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderCode < out[j].OrderCode })
	return out
}

// param returns a decoded URL parameter.
func param(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Scheduler runs detached work that must outlive the request.
type Scheduler interface {
	Go(name string, fn func(context.Context) error)
}

// Request is the caller's description of the product to research.
type Request struct {
	URL             string `json:"url"`
	Marketplace     string `json:"marketplace"`
	MarketplaceID   string `json:"marketplace_id"`
	SKU             string `json:"sku"`
	CollectorOption int    `json:"collector_option"`
	StoreResult     bool   `json:"store_result"`
}

// HandlerDeps are the collaborators shared by every RequestHandler.
type HandlerDeps struct {
	Research research.Dependencies
	Tasks    Scheduler
	Logger   *zap.Logger
}

// RequestHandler validates one request and drives its research service.
type RequestHandler struct {
	service *research.Service
	tasks   Scheduler
	logger  *zap.Logger
}

// NewHandler validates req and binds it to a research service.
func NewHandler(req Request, deps HandlerDeps) (*RequestHandler, error) {
	strategy, err := research.ParseStrategy(req.CollectorOption)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.URL) == "" &&
		(strings.TrimSpace(req.Marketplace) == "" || strings.TrimSpace(req.MarketplaceID) == "") {
		return nil, fmt.Errorf(
			"%w: either product url or marketplace and marketplace_id is required",
			research.ErrMissingRequiredInput,
		)
	}

	registry := deps.Research.Registry
	if registry == nil {
		registry = research.DefaultRegistry()
		deps.Research.Registry = registry
	}
	record, err := research.NewRecord(registry, research.Identity{
		URL:           req.URL,
		Marketplace:   req.Marketplace,
		MarketplaceID: req.MarketplaceID,
		SKU:           req.SKU,
	})
	if err != nil {
		if errors.Is(err, research.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", research.ErrInvalidInput, err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Research.Logger == nil {
		deps.Research.Logger = logger
	}
	return &RequestHandler{
		service: research.NewService(record, strategy, req.StoreResult, deps.Research),
		tasks:   deps.Tasks,
		logger: logger.With(
			zap.String("marketplace", record.Marketplace),
			zap.String("marketplace_id", record.MarketplaceID),
		),
	}, nil
}

// Service exposes the bound research service.
func (h *RequestHandler) Service() *research.Service {
	return h.service
}

// Post collects sellers now. When storing is requested the snapshot is
// persisted in the background and the sellers are returned without waiting.
func (h *RequestHandler) Post(ctx context.Context) ([]research.SellerOffer, error) {
	if _, err := h.service.Conduct(ctx); err != nil {
		return nil, err
	}
	if h.service.StoreResult() {
		if err := h.service.BindStorage(ctx); err != nil {
			return nil, err
		}
		task := h.service.PersistTask()
		if h.tasks != nil {
			h.tasks.Go("persist_research", task)
		} else {
			go h.persistDetached(context.WithoutCancel(ctx), task)
		}
	}
	return sellersOf(h.service.Record()), nil
}

// persistDetached runs task outside any scheduler. ctx must not carry the
// request's cancellation.
func (h *RequestHandler) persistDetached(ctx context.Context, task func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("persist research panicked", zap.Any("panic", rec))
		}
	}()
	if err := task(ctx); err != nil {
		h.logger.Error("persist research failed", zap.Error(err))
	}
}

// Get serves the stored research when it is fresh and falls back to a new
// stored collection when nothing is stored or the stored row is expired.
func (h *RequestHandler) Get(ctx context.Context) ([]research.SellerOffer, error) {
	found, err := h.service.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	sellers := sellersOf(h.service.Record())
	if found && len(sellers) > 0 && !h.service.Expired() {
		h.logger.Debug("serving stored research")
		return sellers, nil
	}
	h.service.SetStoreResult(true)
	return h.Post(ctx)
}

func sellersOf(record *research.Record) []research.SellerOffer {
	out := make([]research.SellerOffer, len(record.Sellers))
	copy(out, record.Sellers)
	return out
}

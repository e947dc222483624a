package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/upkeep/internal/client/domain"
	"github.com/smallbiznis/upkeep/internal/clock"
	"github.com/smallbiznis/upkeep/internal/maintenance/domain"
	"github.com/smallbiznis/upkeep/internal/observability/metrics"
	"github.com/smallbiznis/upkeep/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	actionCreate            = "create"
	actionEditFields        = "edit_fields"
	actionUpdateMaintenance = "update_maintenance"
	actionRecordPayment     = "record_payment"
	actionSuspend           = "suspend"
	actionActivate          = "activate"
	actionMarkDue           = "mark_due"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    clientdomain.Repository
	Cache   domain.StatusCache `optional:"true"`
	Metrics *metrics.Metrics   `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     clientdomain.Repository
	resolver Resolver
	cache    domain.StatusCache
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("maintenance.service"),
		genID:    p.GenID,
		clock:    clk,
		repo:     p.Repo,
		resolver: NewResolver(p.Repo),
		cache:    p.Cache,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (*clientdomain.ClientRecord, error) {
	code := clientdomain.NormalizeCode(req.ClientCode)
	if code == "" {
		return nil, fmt.Errorf("%w: client_id", domain.ErrMissingField)
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateKey
	}

	message := clientdomain.DefaultMessage
	if req.Message != nil && *req.Message != "" {
		message = *req.Message
	}

	now := s.clock.Now()
	record := &clientdomain.ClientRecord{
		ID:              s.genID.Generate(),
		ClientCode:      code,
		Status:          clientdomain.StatusActive,
		PaymentStatus:   clientdomain.PaymentStatusUnpaid,
		Message:         message,
		NextBillingDate: utcPtr(req.NextBillingDate),
		BillingHistory:  []clientdomain.PaymentEntry{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, record); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, actionCreate, record)
	return record, nil
}

func (s *Service) List(ctx context.Context, req domain.ListClientsRequest) (domain.ListClientsResponse, error) {
	page := req.Page.Normalize()

	filter := clientdomain.ListFilter{
		Search: req.Search,
		Offset: page.Offset(),
		Limit:  page.Limit,
	}
	if status := clientdomain.Status(strings.TrimSpace(req.Status)); status.Valid() {
		filter.Status = &status
	}

	records, total, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListClientsResponse{}, err
	}
	if err := s.loadHistory(ctx, s.db, records...); err != nil {
		return domain.ListClientsResponse{}, err
	}

	clients := make([]clientdomain.ClientRecord, 0, len(records))
	for _, record := range records {
		clients = append(clients, *record)
	}
	return domain.ListClientsResponse{
		Clients:    clients,
		Pagination: pagination.BuildPageMeta(page, total),
	}, nil
}

func (s *Service) Lookup(ctx context.Context, identifier string) (*clientdomain.ClientRecord, error) {
	record, err := s.resolve(ctx, s.db, identifier)
	if err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, s.db, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) EditFields(ctx context.Context, identifier string, req domain.EditFieldsRequest) (*clientdomain.ClientRecord, error) {
	return s.mutate(ctx, identifier, actionEditFields, func(record *clientdomain.ClientRecord) error {
		if req.Message != nil {
			record.Message = *req.Message
		}
		if req.Status != nil {
			if status := clientdomain.Status(*req.Status); status.Valid() {
				record.Status = status
			}
		}
		if req.PaymentStatus != nil {
			if paymentStatus := clientdomain.PaymentStatus(*req.PaymentStatus); paymentStatus.Valid() {
				record.PaymentStatus = paymentStatus
			}
		}
		if req.NextBillingDate != nil {
			record.NextBillingDate = utcPtr(req.NextBillingDate)
		}
		if req.LastPaidDate != nil {
			record.LastPaidDate = utcPtr(req.LastPaidDate)
		}
		return nil
	})
}

func (s *Service) UpdateMaintenance(ctx context.Context, identifier string, req domain.UpdateMaintenanceRequest) (*clientdomain.ClientRecord, error) {
	return s.mutate(ctx, identifier, actionUpdateMaintenance, func(record *clientdomain.ClientRecord) error {
		if req.Status != nil {
			status := clientdomain.Status(*req.Status)
			if !status.Valid() {
				return fmt.Errorf("%w: %q", domain.ErrInvalidStatus, *req.Status)
			}
			record.Status = status
		}
		if req.Message != nil {
			record.Message = *req.Message
		}
		return nil
	})
}

func (s *Service) RecordPayment(ctx context.Context, identifier string, req domain.RecordPaymentRequest) (*clientdomain.ClientRecord, error) {
	var (
		record *clientdomain.ClientRecord
		entry  clientdomain.PaymentEntry
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = s.resolve(ctx, tx, identifier)
		if err != nil {
			return err
		}

		if req.Amount == nil {
			return fmt.Errorf("%w: amount", domain.ErrMissingField)
		}
		if !req.Amount.IsPositive() {
			return fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidationFailure)
		}

		method := clientdomain.PaymentMethod(strings.TrimSpace(req.Method))
		if method == "" {
			method = clientdomain.PaymentMethodCreditCard
		}
		if !method.Valid() {
			return fmt.Errorf("%w: method %q is not supported", domain.ErrValidationFailure, req.Method)
		}

		now := s.clock.Now()
		entry = clientdomain.PaymentEntry{
			ID:            s.genID.Generate(),
			ClientID:      record.ID,
			PaymentDate:   now,
			Amount:        *req.Amount,
			Method:        method,
			TransactionID: trimmedPtr(req.TransactionID),
			Notes:         req.Notes,
		}
		if err := s.repo.AppendPayment(ctx, tx, &entry); err != nil {
			return err
		}

		record.LastPaidDate = &now
		record.Status = clientdomain.StatusActive
		record.PaymentStatus = clientdomain.PaymentStatusPaid
		if req.NextBillingDate != nil {
			record.NextBillingDate = utcPtr(req.NextBillingDate)
		}
		record.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, record); err != nil {
			return err
		}
		return s.loadHistory(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(ctx, string(entry.Method))
	s.afterMutation(ctx, actionRecordPayment, record)
	return record, nil
}

func (s *Service) Suspend(ctx context.Context, identifier string, req domain.SuspendRequest) (*clientdomain.ClientRecord, error) {
	return s.mutate(ctx, identifier, actionSuspend, func(record *clientdomain.ClientRecord) error {
		record.Status = clientdomain.StatusSuspended
		record.PaymentStatus = clientdomain.PaymentStatusUnpaid
		if req.Message != nil && *req.Message != "" {
			record.Message = *req.Message
		}
		return nil
	})
}

func (s *Service) Activate(ctx context.Context, identifier string) (*clientdomain.ClientRecord, error) {
	return s.mutate(ctx, identifier, actionActivate, func(record *clientdomain.ClientRecord) error {
		record.Status = clientdomain.StatusActive
		record.PaymentStatus = clientdomain.PaymentStatusPaid
		return nil
	})
}

func (s *Service) PublicStatus(ctx context.Context, clientCode string) (domain.PublicStatus, error) {
	code := clientdomain.NormalizeCode(clientCode)
	if code == "" {
		s.metrics.RecordStatusLookup(ctx, "default")
		return domain.DefaultPublicStatus(), nil
	}

	var generation int64
	cacheable := s.cache != nil
	if cacheable {
		cached, gen, err := s.cache.Get(ctx, code)
		generation = gen
		if err != nil {
			cacheable = false
			s.log.Warn("status cache read failed", zap.String("client_code", code), zap.Error(err))
		} else if cached != nil {
			s.metrics.RecordStatusLookup(ctx, "cache_hit")
			return *cached, nil
		}
	}

	record, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.PublicStatus{}, err
	}
	if record == nil {
		s.metrics.RecordStatusLookup(ctx, "default")
		return domain.DefaultPublicStatus(), nil
	}

	status := domain.PublicStatusOf(record)
	if cacheable {
		if err := s.cache.Set(ctx, code, status, generation); err != nil {
			s.log.Warn("status cache write failed", zap.String("client_code", code), zap.Error(err))
		}
	}
	s.metrics.RecordStatusLookup(ctx, "found")
	return status, nil
}

func (s *Service) GetPayment(ctx context.Context, identifier string, paymentID snowflake.ID) (*clientdomain.ClientRecord, *clientdomain.PaymentEntry, error) {
	record, err := s.resolve(ctx, s.db, identifier)
	if err != nil {
		return nil, nil, err
	}
	entry, err := s.repo.FindPayment(ctx, s.db, record.ID, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, domain.ErrNotFound
	}
	return record, entry, nil
}

func (s *Service) MarkOverdue(ctx context.Context, limit int) ([]*clientdomain.ClientRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	records, err := s.repo.MarkOverdue(ctx, s.db, s.clock.Now(), limit)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		s.afterMutation(ctx, actionMarkDue, record)
	}
	return records, nil
}

func (s *Service) mutate(ctx context.Context, identifier, action string, apply func(*clientdomain.ClientRecord) error) (*clientdomain.ClientRecord, error) {
	record, err := s.resolve(ctx, s.db, identifier)
	if err != nil {
		return nil, err
	}
	if err := apply(record); err != nil {
		return nil, err
	}

	record.UpdatedAt = s.clock.Now()
	if err := s.repo.Save(ctx, s.db, record); err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, s.db, record); err != nil {
		return nil, err
	}

	s.afterMutation(ctx, action, record)
	return record, nil
}

func (s *Service) resolve(ctx context.Context, db *gorm.DB, identifier string) (*clientdomain.ClientRecord, error) {
	result, err := s.resolver.Resolve(ctx, db, identifier)
	if err != nil {
		return nil, err
	}
	if result.Kind == domain.ResolvedNotFound {
		return nil, domain.ErrNotFound
	}
	return result.Record, nil
}

func (s *Service) loadHistory(ctx context.Context, db *gorm.DB, records ...*clientdomain.ClientRecord) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]snowflake.ID, 0, len(records))
	byID := make(map[snowflake.ID]*clientdomain.ClientRecord, len(records))
	for _, record := range records {
		record.BillingHistory = []clientdomain.PaymentEntry{}
		ids = append(ids, record.ID)
		byID[record.ID] = record
	}

	entries, err := s.repo.ListPayments(ctx, db, ids...)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if record, ok := byID[entry.ClientID]; ok {
			record.BillingHistory = append(record.BillingHistory, entry)
		}
	}
	return nil
}

func (s *Service) afterMutation(ctx context.Context, action string, record *clientdomain.ClientRecord) {
	s.metrics.RecordTransition(ctx, action, string(record.Status))
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, record.ClientCode); err != nil {
		s.log.Warn("status cache invalidation failed",
			zap.String("client_code", record.ClientCode),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}


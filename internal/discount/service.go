package discount

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paintstock/paintstock/internal/observability"
	"github.com/paintstock/paintstock/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, req Request) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	Resolve(ctx context.Context, id uuid.UUID, status Status, resolverID int64, at time.Time) (Request, error)
	ListPending(ctx context.Context, branchID int64) ([]Request, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates discount requests and their subscribers.
type Service struct {
	repo     RepositoryPort
	notifier Notifier
	audit    AuditPort
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewService builds Service.
func NewService(repo RepositoryPort, notifier Notifier, audit AuditPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, notifier: notifier, audit: audit, logger: logger, metrics: metrics}
}

// Request files a new pending discount request.
func (s *Service) Request(ctx context.Context, input RequestInput) (Request, error) {
	if input.RequesterID <= 0 {
		return Request{}, shared.Invalid("discount: requester required")
	}
	if input.BranchID <= 0 {
		return Request{}, shared.Invalid("discount: branch required")
	}
	if err := ValidateAmount(input.Type, input.Amount); err != nil {
		return Request{}, err
	}
	if input.Amount == 0 {
		return Request{}, shared.Invalid("discount: amount must be positive")
	}
	req := Request{
		ID:            uuid.New(),
		RequesterID:   input.RequesterID,
		RequesterName: input.RequesterName,
		BranchID:      input.BranchID,
		Amount:        math.Round(input.Amount*100) / 100,
		Type:          input.Type,
		Reason:        input.Reason,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return Request{}, shared.Persistence(err)
	}
	s.metrics.ObserveDiscount("requested")
	s.publish(ctx, Event{Kind: EventCreated, Request: req})
	s.record(ctx, req.RequesterID, "discount:request", req)
	return req, nil
}

// Resolve approves or rejects a pending request. Exactly one resolution wins.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, approve bool, resolverID int64) (Request, error) {
	if id == uuid.Nil {
		return Request{}, shared.Invalid("discount: request id required")
	}
	if resolverID <= 0 {
		return Request{}, shared.Invalid("discount: resolver required")
	}
	status := StatusRejected
	if approve {
		status = StatusApproved
	}
	req, err := s.repo.Resolve(ctx, id, status, resolverID, time.Now().UTC())
	if err != nil {
		return Request{}, shared.Persistence(err)
	}
	s.metrics.ObserveDiscount(string(status))
	s.publish(ctx, Event{Kind: EventResolved, Request: req})
	s.record(ctx, resolverID, "discount:"+string(status), req)
	return req, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return Request{}, shared.Persistence(err)
	}
	return req, nil
}

// ListPending lists unresolved requests, optionally for one branch.
func (s *Service) ListPending(ctx context.Context, branchID int64) ([]Request, error) {
	if branchID < 0 {
		return nil, shared.Invalid("discount: invalid branch")
	}
	reqs, err := s.repo.ListPending(ctx, branchID)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	return reqs, nil
}

// Watch delivers the resolution of one request exactly once and then closes.
// An already resolved request is delivered immediately.
func (s *Service) Watch(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	events, release, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	// The snapshot is read after subscribing so a resolution cannot slip
	// between the two.
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		release()
		return nil, shared.Persistence(err)
	}
	sub := newSubscription(ctx, release)
	go func() {
		defer sub.finish()
		if current.Resolved() {
			sub.deliver(Event{Kind: EventResolved, Request: current})
			return
		}
		for {
			select {
			case <-sub.ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if evt.Kind == EventResolved && evt.Request.ID == id {
					sub.deliver(evt)
					return
				}
			}
		}
	}()
	return sub, nil
}

// WatchAll streams every created and resolved event until closed.
func (s *Service) WatchAll(ctx context.Context) (*Subscription, error) {
	events, release, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return nil, shared.Persistence(err)
	}
	sub := newSubscription(ctx, release)
	go func() {
		defer sub.finish()
		for {
			select {
			case <-sub.ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if !sub.deliver(evt) {
					return
				}
			}
		}
	}()
	return sub, nil
}

func (s *Service) publish(ctx context.Context, evt Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, evt); err != nil {
		s.logger.Warn("publish discount event", slog.String("request_id", evt.Request.ID.String()), slog.String("kind", string(evt.Kind)), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, req Request) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   shared.AuditEntityDiscount,
		EntityID: req.ID.String(),
		Meta: map[string]any{
			"branch_id": req.BranchID,
			"amount":    req.Amount,
			"type":      string(req.Type),
			"status":    string(req.Status),
		},
	})
}

// Subscription is a cancellable event stream. Close must be called once the
// caller stops reading; cancelling the context passed to Watch also ends it.
type Subscription struct {
	ctx     context.Context
	cancel  context.CancelFunc
	ch      chan Event
	done    chan struct{}
	release func()
	once    sync.Once
}

func newSubscription(parent context.Context, release func()) *Subscription {
	ctx, cancel := context.WithCancel(parent)
	return &Subscription{
		ctx:     ctx,
		cancel:  cancel,
		ch:      make(chan Event, 1),
		done:    make(chan struct{}),
		release: release,
	}
}

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close releases the listener and waits for the delivery goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Subscription) deliver(evt Event) bool {
	select {
	case s.ch <- evt:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Subscription) finish() {
	s.release()
	close(s.ch)
	close(s.done)
	s.cancel()
}

// ErrSubscriptionClosed is returned by Next after the stream ended.
var ErrSubscriptionClosed = errors.New("discount: subscription closed")

// Next blocks for the next event.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	select {
	case evt, ok := <-s.ch:
		if !ok {
			return Event{}, ErrSubscriptionClosed
		}
		return evt, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

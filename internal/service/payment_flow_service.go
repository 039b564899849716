package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/gateway"
	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/events"
)

const (
	defaultRedirectDelay = 3 * time.Second
	defaultRedirectPath  = "/my-registrations"
	storeWriteTimeout    = 10 * time.Second
	casAttempts          = 3
)

type lifecycleRepository interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	ApplyLifecycle(ctx context.Context, id string, from []models.RegistrationStatus, lc models.Lifecycle) (bool, error)
}

type paymentGateway interface {
	Initialize(ctx context.Context, mode models.PaymentMode) error
	CreateAndCapture(ctx context.Context, order models.OrderRequest, onCreated gateway.CreatedFunc) gateway.Result
	Simulate(ctx context.Context, order models.OrderRequest) gateway.Result
	OnApprove(ctx context.Context, orderID string) error
	OnCancel(orderID string) error
	OnError(orderID, detail string) error
}

type identitySource interface {
	Subscribe(listener IdentityListener) func()
}

// PaymentFlowConfig tunes the payment flow.
type PaymentFlowConfig struct {
	DefaultMode   models.PaymentMode
	Currency      string
	RedirectDelay time.Duration
	RedirectPath  string
	// OnRedirect runs when a completed flow's deferred redirect fires.
	OnRedirect func(models.PaymentFlow)
}

type paymentFlow struct {
	view      models.PaymentFlow
	sessionID string
	started   time.Time
	timer     *time.Timer
}

// PaymentFlowService drives registrations from pending to paid or cancelled.
// Flows live in process memory; at most one is open per registration.
type PaymentFlowService struct {
	repo    lifecycleRepository
	gateway paymentGateway
	audit   auditRecorder
	events  eventEmitter
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PaymentFlowConfig
	now       func() time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	mu             sync.Mutex
	flows          map[string]*paymentFlow
	byRegistration map[string]string
}

// NewPaymentFlowService constructs the service and subscribes it to identity
// changes so flows end when their owner signs out.
func NewPaymentFlowService(repo lifecycleRepository, gw paymentGateway, identity identitySource, audit auditRecorder, emitter eventEmitter, metrics *MetricsService, validate *validator.Validate, cfg PaymentFlowConfig, logger *zap.Logger) *PaymentFlowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = models.PaymentModeSimulated
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = defaultRedirectDelay
	}
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = defaultRedirectPath
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &PaymentFlowService{
		repo:           repo,
		gateway:        gw,
		audit:          audit,
		events:         emitter,
		metrics:        metrics,
		validator:      validate,
		logger:         logger,
		cfg:            cfg,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		flows:          make(map[string]*paymentFlow),
		byRegistration: make(map[string]string),
	}
	if identity != nil {
		s.unsubscribe = identity.Subscribe(s.onIdentityChange)
	}
	return s
}

// RedirectPath is where clients go when a flow cannot start or has completed.
func (s *PaymentFlowService) RedirectPath() string {
	return s.cfg.RedirectPath
}

// Initiate opens a payment flow for the actor's registration and initializes
// the gateway. An already open flow for the registration is returned as is.
func (s *PaymentFlowService) Initiate(ctx context.Context, actor models.Identity, registrationID string, req models.InitiatePaymentRequest) (*models.PaymentFlow, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	reg, err := loadRegistration(ctx, s.repo, registrationID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(actor, reg); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = s.cfg.DefaultMode
	}

	s.mu.Lock()
	if id, ok := s.byRegistration[reg.ID]; ok {
		if existing := s.flows[id]; existing != nil && existing.view.ParentID == actor.ID {
			view := snapshot(existing)
			s.mu.Unlock()
			return &view, nil
		}
	}
	now := s.now().UTC()
	flow := &paymentFlow{
		view: models.PaymentFlow{
			ID:             uuid.NewString(),
			RegistrationID: reg.ID,
			ParentID:       reg.ParentID,
			Mode:           mode,
			State:          models.FlowReady,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		sessionID: actor.SessionID,
	}
	s.flows[flow.view.ID] = flow
	s.byRegistration[reg.ID] = flow.view.ID
	s.metrics.SetOpenFlows(len(s.flows))
	s.mu.Unlock()

	return s.initializeGateway(ctx, flow.view.ID, mode)
}

// Retry replays a flow parked on a retryable error from READY.
func (s *PaymentFlowService) Retry(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	view, err := s.Get(ctx, actor, flowID)
	if err != nil {
		return nil, err
	}
	if view.State != models.FlowError || view.Error == nil || !view.Error.Retryable {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment cannot be retried from its current state")
	}

	var lastErr *models.FlowError
	if err := s.transition(flowID, []models.FlowState{models.FlowError}, func(f *paymentFlow) {
		lastErr = f.view.Error
		f.view.State = models.FlowLoading
		f.view.Error = nil
		f.view.Order = nil
		f.view.OrderID = ""
		f.view.ApprovalURL = ""
	}); err != nil {
		return nil, err
	}

	reg, err := loadRegistration(ctx, s.repo, view.RegistrationID)
	if err != nil {
		s.update(flowID, func(f *paymentFlow) {
			if f.view.State == models.FlowLoading {
				f.view.State = models.FlowError
				f.view.Error = lastErr
			}
		})
		return nil, err
	}
	if err := checkPayable(actor, reg); err != nil {
		s.teardown(flowID)
		return nil, err
	}

	if err := s.transition(flowID, []models.FlowState{models.FlowLoading}, func(f *paymentFlow) {
		f.view.State = models.FlowReady
	}); err != nil {
		return nil, err
	}
	return s.initializeGateway(ctx, flowID, view.Mode)
}

// SubmitPayment starts the gateway transaction. It returns once the flow is
// PROCESSING; the outcome lands asynchronously and is visible through Get.
func (s *PaymentFlowService) SubmitPayment(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	view, err := s.Get(ctx, actor, flowID)
	if err != nil {
		return nil, err
	}
	if view.State == models.FlowProcessing {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment is already in progress")
	}
	if view.State != models.FlowAwaitingGateway {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "payment system is not ready")
	}

	reg, err := loadRegistration(ctx, s.repo, view.RegistrationID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(actor, reg); err != nil {
		s.teardown(flowID)
		return nil, err
	}

	order := models.OrderRequest{
		Amount:          reg.CompetitionFee,
		Currency:        s.cfg.Currency,
		RegistrationID:  reg.ID,
		StudentName:     reg.StudentName,
		CompetitionName: reg.CompetitionName,
	}
	started := s.now()
	if err := s.transition(flowID, []models.FlowState{models.FlowAwaitingGateway}, func(f *paymentFlow) {
		f.view.State = models.FlowProcessing
		f.view.Order = &order
		f.started = started
	}); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.runPayment(flowID, actor, view.Mode, order, started)

	return s.Get(ctx, actor, flowID)
}

// Get returns a snapshot of the actor's flow.
func (s *PaymentFlowService) Get(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment flow not found")
	}
	if flow.view.ParentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this payment")
	}
	view := snapshot(flow)
	return &view, nil
}

// Close tears the actor's flow down, stopping a pending redirect. A payment
// already being captured still lands in the store.
func (s *PaymentFlowService) Close(ctx context.Context, actor models.Identity, flowID string) error {
	if _, err := s.Get(ctx, actor, flowID); err != nil {
		return err
	}
	s.teardown(flowID)
	return nil
}

// Approve forwards the widget's approval of orderID to the gateway.
func (s *PaymentFlowService) Approve(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error) {
	if err := s.checkCallback(ctx, actor, flowID, orderID); err != nil {
		return nil, err
	}
	if err := s.gateway.OnApprove(ctx, orderID); err != nil {
		return nil, callbackError(err)
	}
	return s.Get(ctx, actor, flowID)
}

// CancelOrder forwards the widget's cancellation of orderID to the gateway.
func (s *PaymentFlowService) CancelOrder(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error) {
	if err := s.checkCallback(ctx, actor, flowID, orderID); err != nil {
		return nil, err
	}
	if err := s.gateway.OnCancel(orderID); err != nil {
		return nil, callbackError(err)
	}
	return s.waitSettled(ctx, actor, flowID)
}

// FailOrder forwards a widget error for orderID to the gateway.
func (s *PaymentFlowService) FailOrder(ctx context.Context, actor models.Identity, flowID string, req models.GatewayCallbackRequest) (*models.PaymentFlow, error) {
	if err := s.checkCallback(ctx, actor, flowID, req.OrderID); err != nil {
		return nil, err
	}
	if err := s.gateway.OnError(req.OrderID, req.Detail); err != nil {
		return nil, callbackError(err)
	}
	return s.waitSettled(ctx, actor, flowID)
}

// CancelRegistration cancels the actor's registration. Cancelling twice is not
// an error and the paid flag is never touched.
func (s *PaymentFlowService) CancelRegistration(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		reg, err := loadRegistration(ctx, s.repo, registrationID)
		if err != nil {
			return nil, err
		}
		if reg.ParentID != actor.ID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this registration")
		}
		if reg.Status == models.RegistrationCancelled {
			return reg, nil
		}

		changed, err := s.repo.ApplyLifecycle(ctx, reg.ID, []models.RegistrationStatus{reg.Status}, models.Cancelled(reg.Paid))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to cancel registration")
		}
		if !changed {
			continue
		}

		s.closeIdleFlow(reg.ID)
		s.emit(ctx, events.New(events.RegistrationCancelled, reg.ID, actor.ID, map[string]any{
			"previous_status": reg.Status,
			"paid":            reg.Paid,
		}))
		return loadRegistration(ctx, s.repo, reg.ID)
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed while cancelling, please try again")
}

// TogglePaid is the administrative payment override. It bypasses the gateway
// and always lands on a valid combined state: pending/unpaid becomes
// confirmed/paid and back; a cancelled registration only flips its paid flag.
func (s *PaymentFlowService) TogglePaid(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can override payments")
	}
	reg, err := loadRegistration(ctx, s.repo, registrationID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var lc models.Lifecycle
	switch {
	case reg.Status == models.RegistrationCancelled:
		lc = models.CancelledWithPaid(!reg.Paid, now)
	case reg.Paid:
		lc = models.MarkedUnpaid()
	default:
		lc = models.MarkedPaid(now)
	}

	changed, err := s.repo.ApplyLifecycle(ctx, reg.ID, []models.RegistrationStatus{reg.Status}, lc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to update payment status")
	}
	if !changed {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration changed, reload and try again")
	}
	if lc.Paid() {
		s.closeIdleFlow(reg.ID)
	}

	before := reg.Lifecycle()
	after := lc.State()
	s.recordAudit(ctx, actor, models.AuditActionTogglePaid, reg.ID, before, after)
	s.emit(ctx, events.New(events.RegistrationPaymentOverridden, reg.ID, actor.ID, map[string]any{
		"from": before,
		"to":   after,
	}))
	return loadRegistration(ctx, s.repo, reg.ID)
}

// Shutdown stops accepting outcomes from new gateway calls, stops every timer
// and waits for in-flight payments to settle or ctx to end.
func (s *PaymentFlowService) Shutdown(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()

	s.mu.Lock()
	ids := make([]string, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.teardown(id)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *PaymentFlowService) initializeGateway(ctx context.Context, flowID string, mode models.PaymentMode) (*models.PaymentFlow, error) {
	initErr := s.gateway.Initialize(ctx, mode)

	var view models.PaymentFlow
	err := s.transition(flowID, []models.FlowState{models.FlowReady}, func(f *paymentFlow) {
		if initErr != nil {
			f.view.State = models.FlowError
			f.view.Error = flowError(models.FlowErrGatewayInitFailed, gateway.MsgInitFailed)
		} else {
			f.view.State = models.FlowAwaitingGateway
		}
		view = snapshot(f)
	})
	if err != nil {
		return nil, err
	}
	if initErr != nil {
		s.logger.Warn("payment gateway initialization failed",
			zap.String("flow_id", flowID),
			zap.String("mode", string(mode)),
			zap.Error(initErr),
		)
	}
	return &view, nil
}

func (s *PaymentFlowService) runPayment(flowID string, actor models.Identity, mode models.PaymentMode, order models.OrderRequest, started time.Time) {
	defer s.wg.Done()

	var res gateway.Result
	if mode == models.PaymentModeLive {
		res = s.gateway.CreateAndCapture(s.ctx, order, func(orderID, approvalURL string) {
			s.mu.Lock()
			flow, open := s.flows[flowID]
			if open {
				flow.view.OrderID = orderID
				flow.view.ApprovalURL = approvalURL
				flow.view.UpdatedAt = s.now().UTC()
			}
			s.mu.Unlock()
			if !open {
				// The flow closed while the order was being created.
				s.abandonOrder(orderID)
			}
		})
	} else {
		res = s.gateway.Simulate(s.ctx, order)
	}
	s.settle(flowID, actor, mode, order, res, started)
}

func (s *PaymentFlowService) settle(flowID string, actor models.Identity, mode models.PaymentMode, order models.OrderRequest, res gateway.Result, started time.Time) {
	elapsed := s.now().Sub(started)

	if !res.Success {
		message := res.Error
		if message == "" {
			message = gateway.MsgPaymentError
		}
		s.metrics.RecordPaymentAttempt(string(mode), PaymentOutcomeFailed, elapsed)
		s.update(flowID, func(f *paymentFlow) {
			f.view.State = models.FlowError
			f.view.Error = flowError(models.FlowErrGateway, message)
		})
		s.logger.Info("payment attempt failed",
			zap.String("flow_id", flowID),
			zap.String("registration_id", order.RegistrationID),
			zap.String("reason", message),
		)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	lc := models.PaidThroughGateway(res.OrderID, res.Details, s.now())
	writeStart := time.Now()
	changed, err := s.repo.ApplyLifecycle(writeCtx, order.RegistrationID, []models.RegistrationStatus{models.RegistrationPending}, lc)
	s.metrics.ObserveDBQuery("registration_confirm_payment", time.Since(writeStart))
	if err != nil || !changed {
		if err == nil {
			err = errors.New("registration is no longer pending")
		}
		s.metrics.RecordPaymentAttempt(string(mode), PaymentOutcomeSyncFailed, elapsed)
		s.logger.Error("payment captured but registration update failed",
			zap.String("flow_id", flowID),
			zap.String("registration_id", order.RegistrationID),
			zap.String("order_id", res.OrderID),
			zap.Error(err),
		)
		s.update(flowID, func(f *paymentFlow) {
			f.view.State = models.FlowError
			f.view.OrderID = res.OrderID
			f.view.Error = flowError(models.FlowErrPostPaymentSyncFailed, appErrors.ErrPostPaymentSyncFailed.Message)
		})
		s.emit(writeCtx, events.New(events.RegistrationPaymentSyncFailed, order.RegistrationID, actor.ID, map[string]any{
			"order_id": res.OrderID,
			"amount":   order.Amount,
			"currency": order.Currency,
			"error":    err.Error(),
		}))
		return
	}

	s.metrics.RecordPaymentAttempt(string(mode), PaymentOutcomeSuccess, elapsed)
	s.emit(writeCtx, events.New(events.RegistrationConfirmed, order.RegistrationID, actor.ID, map[string]any{
		"order_id": res.OrderID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"mode":     mode,
	}))

	redirectAt := s.now().UTC().Add(s.cfg.RedirectDelay)
	s.update(flowID, func(f *paymentFlow) {
		f.view.State = models.FlowCompleted
		f.view.OrderID = res.OrderID
		f.view.Redirect = &models.FlowRedirect{Path: s.cfg.RedirectPath, At: redirectAt}
		f.timer = time.AfterFunc(s.cfg.RedirectDelay, func() { s.redirect(flowID) })
	})
}

func (s *PaymentFlowService) redirect(flowID string) {
	s.mu.Lock()
	flow, ok := s.flows[flowID]
	var view models.PaymentFlow
	if ok {
		view = snapshot(flow)
		s.removeLocked(flow)
	}
	s.mu.Unlock()
	if ok && s.cfg.OnRedirect != nil {
		s.cfg.OnRedirect(view)
	}
}

func (s *PaymentFlowService) onIdentityChange(event models.IdentityEvent) {
	if event.Type != models.IdentitySignedOut {
		return
	}
	s.mu.Lock()
	var ids []string
	for id, flow := range s.flows {
		if flow.view.ParentID != event.Identity.ID {
			continue
		}
		if event.Identity.SessionID != "" && flow.sessionID != "" && flow.sessionID != event.Identity.SessionID {
			continue
		}
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.teardown(id)
	}
}

// teardown removes a flow and stops its timer. A live order still waiting on
// the payer is abandoned so its goroutine ends without touching the store.
func (s *PaymentFlowService) teardown(flowID string) {
	s.mu.Lock()
	flow, ok := s.flows[flowID]
	if !ok {
		s.mu.Unlock()
		return
	}
	pendingOrder := ""
	if flow.view.State == models.FlowProcessing && flow.view.Mode == models.PaymentModeLive {
		pendingOrder = flow.view.OrderID
	}
	s.removeLocked(flow)
	s.mu.Unlock()

	if pendingOrder != "" {
		s.abandonOrder(pendingOrder)
	}
}

func (s *PaymentFlowService) abandonOrder(orderID string) {
	if err := s.gateway.OnCancel(orderID); err != nil && !errors.Is(err, gateway.ErrUnknownOrder) {
		s.logger.Warn("failed to abandon pending order", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *PaymentFlowService) removeLocked(flow *paymentFlow) {
	if flow.timer != nil {
		flow.timer.Stop()
		flow.timer = nil
	}
	delete(s.flows, flow.view.ID)
	if s.byRegistration[flow.view.RegistrationID] == flow.view.ID {
		delete(s.byRegistration, flow.view.RegistrationID)
	}
	s.metrics.SetOpenFlows(len(s.flows))
}

// closeIdleFlow ends a registration's flow unless a payment is in flight.
func (s *PaymentFlowService) closeIdleFlow(registrationID string) {
	s.mu.Lock()
	id, ok := s.byRegistration[registrationID]
	idle := ok && s.flows[id] != nil && s.flows[id].view.State != models.FlowProcessing
	s.mu.Unlock()
	if idle {
		s.teardown(id)
	}
}

// transition applies fn when the flow is in one of the from states.
func (s *PaymentFlowService) transition(flowID string, from []models.FlowState, fn func(*paymentFlow)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flow, ok := s.flows[flowID]
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "payment flow not found")
	}
	for _, state := range from {
		if flow.view.State == state {
			fn(flow)
			flow.view.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrConflict, "payment flow changed state, reload and try again")
}

// update applies fn if the flow is still open.
func (s *PaymentFlowService) update(flowID string, fn func(*paymentFlow)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flow, ok := s.flows[flowID]; ok {
		fn(flow)
		flow.view.UpdatedAt = s.now().UTC()
	}
}

func (s *PaymentFlowService) checkCallback(ctx context.Context, actor models.Identity, flowID, orderID string) error {
	if err := s.validator.Struct(models.GatewayCallbackRequest{OrderID: orderID}); err != nil {
		return validationError(err, "invalid callback payload")
	}
	view, err := s.Get(ctx, actor, flowID)
	if err != nil {
		return err
	}
	if view.State != models.FlowProcessing || view.Mode != models.PaymentModeLive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "payment is not awaiting approval")
	}
	if view.OrderID == "" || view.OrderID != orderID {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "order does not belong to this payment")
	}
	return nil
}

// waitSettled gives the payment goroutine a moment to record a failure the
// gateway settles immediately, so the caller sees the outcome.
func (s *PaymentFlowService) waitSettled(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	deadline := time.NewTimer(time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		view, err := s.Get(ctx, actor, flowID)
		if err != nil || view.State != models.FlowProcessing {
			return view, err
		}
		select {
		case <-ctx.Done():
			return view, nil
		case <-deadline.C:
			return view, nil
		case <-tick.C:
		}
	}
}

func (s *PaymentFlowService) emit(ctx context.Context, evt events.Event) {
	if s.events != nil {
		s.events.Emit(ctx, evt)
	}
}

func (s *PaymentFlowService) recordAudit(ctx context.Context, actor models.Identity, action, id string, before, after models.LifecycleState) {
	if s.audit == nil {
		return
	}
	old, _ := json.Marshal(before)
	updated, _ := json.Marshal(after)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "registration",
		ResourceID: &id,
		OldValues:  old,
		NewValues:  updated,
	}); err != nil {
		s.logger.Warn("failed to record payment override audit log", zap.Error(err))
	}
}

// checkPayable rejects registrations the actor may not pay for.
func checkPayable(actor models.Identity, reg *models.Registration) error {
	if reg.ParentID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this registration")
	}
	if reg.Paid {
		return appErrors.Clone(appErrors.ErrAlreadyPaid, "")
	}
	if reg.Status == models.RegistrationCancelled {
		return appErrors.Clone(appErrors.ErrRegistrationCancelled, "cancelled registrations cannot be paid")
	}
	return nil
}

func callbackError(err error) error {
	if errors.Is(err, gateway.ErrUnknownOrder) {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "order is not awaiting approval")
	}
	return appErrors.Wrap(err, appErrors.ErrGatewayError.Code, appErrors.ErrGatewayError.Status, gateway.MsgPaymentError)
}

func flowError(kind models.FlowErrorKind, message string) *models.FlowError {
	return &models.FlowError{Kind: kind, Message: message, Retryable: kind.Retryable()}
}

func snapshot(flow *paymentFlow) models.PaymentFlow {
	view := flow.view
	if flow.view.Order != nil {
		order := *flow.view.Order
		view.Order = &order
	}
	if flow.view.Error != nil {
		e := *flow.view.Error
		view.Error = &e
	}
	if flow.view.Redirect != nil {
		r := *flow.view.Redirect
		view.Redirect = &r
	}
	return view
}

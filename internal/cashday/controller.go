package cashday

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("cashday")

// Deps are the ambient collaborators of a Controller.
type Deps struct {
	Now      func() time.Time
	Location *time.Location
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Controller owns the view state of one cash day for one actor. It is safe
// for concurrent use; at most one mutation runs at a time.
type Controller struct {
	api   port.CashAPI
	actor domain.Actor
	opts  Options

	now     func() time.Time
	loc     *time.Location
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	state State
}

// New creates a controller positioned on today's date key. Nothing is
// fetched until Load.
func New(api port.CashAPI, actor domain.Actor, opts Options, deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	c := &Controller{
		api:     api,
		actor:   actor,
		opts:    opts,
		now:     deps.Now,
		loc:     deps.Location,
		metrics: deps.Metrics,
		logger:  deps.Logger.With(zap.String("user_id", actor.UserID), zap.String("branch_scope", opts.BranchScope)),
	}
	c.state = State{
		DateKey:      c.Today(),
		Draft:        EmptyDraft(),
		WriteAllowed: actor.CanWrite(),
	}
	return c
}

// Today is the current date key in the console's time zone.
func (c *Controller) Today() string {
	return domain.DateKey(c.now(), c.loc)
}

// Options returns the role configuration the controller was built with.
func (c *Controller) Options() Options {
	return c.opts
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// View is the state plus everything derived from it.
type View struct {
	State
	FilteredMovements []domain.CashMovement `json:"filteredMovements"`
	FilteredTotals    domain.Totals         `json:"filteredTotals"`
	CanWrite          bool                  `json:"canWrite"`
	Options           Options               `json:"options"`
}

// View computes the filtered projection of the current state.
func (c *Controller) View() View {
	st := c.Snapshot()
	filtered := FilterMovements(st.Movements, st.Filters)
	return View{
		State:             st,
		FilteredMovements: filtered,
		FilteredTotals:    SumTotals(filtered),
		CanWrite:          st.CanWrite(),
		Options:           c.opts,
	}
}

// FilteredMovements projects the loaded movements through the filters.
func (c *Controller) FilteredMovements() []domain.CashMovement {
	st := c.Snapshot()
	return FilterMovements(st.Movements, st.Filters)
}

// FilteredTotals sums the filtered, non-voided movements.
func (c *Controller) FilteredTotals() domain.Totals {
	return SumTotals(c.FilteredMovements())
}

func (c *Controller) dispatch(ev Event) {
	c.mu.Lock()
	c.state = Reduce(c.state, ev)
	c.mu.Unlock()
}

// ============================================================
// Load
// ============================================================

// Load fetches the day, its summary, its movements and the categories
// concurrently. On failure nothing already loaded is replaced.
func (c *Controller) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "CashDay.Load")
	defer span.End()

	c.followToday()
	dateKey := c.Snapshot().DateKey
	span.SetAttributes(attribute.String("cash.date_key", dateKey))

	if err := domain.ValidateDateKey(dateKey); err != nil {
		c.dispatch(Event{Kind: LoadFailed, DateKey: dateKey, Err: err})
		return err
	}

	c.dispatch(Event{Kind: LoadStarted})

	var (
		day        *domain.CashDay
		summary    *domain.CashSummary
		movements  []domain.CashMovement
		categories []domain.FinanceCategory
	)
	branch := c.opts.BranchScope

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		day, err = c.api.GetCashDay(gctx, dateKey, branch)
		return err
	})
	g.Go(func() (err error) {
		summary, err = c.api.GetSummary(gctx, dateKey, branch)
		return err
	})
	g.Go(func() (err error) {
		movements, err = c.api.ListMovements(gctx, dateKey, branch)
		return err
	})
	g.Go(func() (err error) {
		categories, err = c.api.ListCategories(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		c.metrics.IncrCashOperation("load", "failure")
		c.logger.Warn("cash day load failed", zap.String("date_key", dateKey), zap.Error(err))
		c.dispatch(Event{Kind: LoadFailed, DateKey: dateKey, Err: err})
		return err
	}

	c.metrics.IncrCashOperation("load", "success")
	c.dispatch(Event{
		Kind:       LoadSucceeded,
		DateKey:    dateKey,
		Day:        day,
		Summary:    summary,
		Movements:  movements,
		Categories: categories,
	})
	return nil
}

// followToday moves a date-pinned controller onto the new date key once
// midnight has passed in the console's time zone.
func (c *Controller) followToday() bool {
	if !c.opts.HideDatePicker {
		return false
	}
	today := c.Today()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.DateKey == today {
		return false
	}
	c.logger.Info("date key rolled over", zap.String("from", c.state.DateKey), zap.String("to", today))
	c.state = Reduce(c.state, Event{Kind: DayRolledOver, DateKey: today})
	return true
}

// syncToday runs before a mutation so the local checks see the new day
// after a rollover.
func (c *Controller) syncToday(ctx context.Context) {
	if !c.followToday() {
		return
	}
	if err := c.Load(ctx); err != nil {
		c.logger.Warn("load after rollover failed", zap.Error(err))
	}
}

// SelectDate moves the controller to another date key and loads it.
func (c *Controller) SelectDate(ctx context.Context, dateKey string) error {
	c.followToday()
	if c.opts.HideDatePicker && dateKey != c.Today() {
		err := &domain.ErrValidation{Field: "dateKey", Message: "date selection is not available for this role"}
		c.dispatch(Event{Kind: OperationFailed, Err: err})
		return err
	}
	if err := domain.ValidateDateKey(dateKey); err != nil {
		c.dispatch(Event{Kind: OperationFailed, Err: err})
		return err
	}
	c.dispatch(Event{Kind: DateSelected, DateKey: dateKey})
	return c.Load(ctx)
}

// ============================================================
// Drafts and filters
// ============================================================

func (c *Controller) SetFilters(f Filters) {
	c.dispatch(Event{Kind: FiltersChanged, Filters: f})
}

func (c *Controller) SetDraft(d MovementDraft) {
	c.dispatch(Event{Kind: DraftChanged, Draft: d})
}

func (c *Controller) ShowOpenDay() {
	c.dispatch(Event{Kind: OpenShown})
}

func (c *Controller) SetOpeningCash(draft string) {
	c.dispatch(Event{Kind: OpeningCashChanged, Text: draft})
}

func (c *Controller) HideOpenDay() {
	c.dispatch(Event{Kind: OpenHidden})
}

func (c *Controller) ShowCloseDay() {
	c.dispatch(Event{Kind: CloseShown})
}

func (c *Controller) SetCloseDraft(d CloseModal) {
	c.dispatch(Event{Kind: CloseDraftChanged, Close: d})
}

func (c *Controller) HideCloseDay() {
	c.dispatch(Event{Kind: CloseHidden})
}

// RequestVoid opens the confirmation for a loaded movement.
func (c *Controller) RequestVoid(movementID string) error {
	if !c.hasMovement(movementID) {
		err := &domain.ErrNotFound{Resource: "movement", ID: movementID}
		c.dispatch(Event{Kind: OperationFailed, Err: err})
		return err
	}
	c.dispatch(Event{Kind: VoidRequested, Text: movementID})
	return nil
}

func (c *Controller) SetVoidReason(reason string) {
	c.dispatch(Event{Kind: VoidReasonChanged, Text: reason})
}

func (c *Controller) CancelVoid() {
	c.dispatch(Event{Kind: VoidCancelled})
}

func (c *Controller) DismissMessages() {
	c.dispatch(Event{Kind: MessagesCleared})
}

func (c *Controller) hasMovement(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.state.Movements {
		if m.ID == id {
			return true
		}
	}
	return false
}

// ============================================================
// Mutations
// ============================================================

// acquire marks op in flight. The returned release must be deferred.
func (c *Controller) acquire(op string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Busy {
		return nil, &domain.ErrBusy{Operation: c.state.BusyOp}
	}
	c.state = Reduce(c.state, Event{Kind: MutationStarted, Text: op})
	return func() { c.dispatch(Event{Kind: MutationFinished}) }, nil
}

func (c *Controller) requireWrite(action string) error {
	if !c.actor.CanWrite() {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

// fail records err for display and counts it. Local rejections are told
// apart from backend failures in the metrics.
func (c *Controller) fail(op string, err error, local bool) error {
	result := "failure"
	if local {
		result = "rejected"
	}
	c.metrics.IncrCashOperation(op, result)
	c.logger.Warn("cash day operation failed",
		zap.String("operation", op),
		zap.Bool("local", local),
		zap.Error(err),
	)
	c.dispatch(Event{Kind: OperationFailed, Err: err})
	return err
}

// OpenDay submits the opening cash draft for the selected date key.
func (c *Controller) OpenDay(ctx context.Context) error {
	const op = "open_day"
	ctx, span := tracer.Start(ctx, "CashDay.OpenDay")
	defer span.End()

	if err := c.requireWrite("open cash day"); err != nil {
		return c.fail(op, err, true)
	}
	c.syncToday(ctx)
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	st := c.Snapshot()
	if st.Day.IsOpen() {
		return c.fail(op, &domain.ErrConflict{Message: fmt.Sprintf("cash day %s is already open", st.DateKey)}, true)
	}
	opening, err := domain.ParseAmountDraft("openingCash", st.Open.OpeningCash)
	if err != nil {
		return c.fail(op, err, true)
	}

	day, err := c.api.OpenCashDay(ctx, &domain.OpenCashDayRequest{
		DateKey:     st.DateKey,
		OpeningCash: opening,
		BranchID:    c.opts.BranchScope,
	})
	if err != nil {
		return c.fail(op, err, false)
	}

	c.metrics.IncrCashOperation(op, "success")
	c.logger.Info("cash day opened", zap.String("date_key", st.DateKey), zap.String("opening_cash", opening.String()))
	c.dispatch(Event{Kind: DayOpened, Day: day, Text: "Cash day opened"})

	if err := c.Load(ctx); err != nil {
		c.logger.Warn("refresh after open failed", zap.Error(err))
	}
	return nil
}

// CreateMovement validates the draft locally and submits it. On failure
// the draft is kept so the operator can retry.
func (c *Controller) CreateMovement(ctx context.Context) error {
	const op = "create_movement"
	ctx, span := tracer.Start(ctx, "CashDay.CreateMovement")
	defer span.End()

	if err := c.requireWrite("record movement"); err != nil {
		return c.fail(op, err, true)
	}
	c.syncToday(ctx)
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	st := c.Snapshot()
	if !st.Day.IsOpen() {
		return c.fail(op, &domain.ErrConflict{Message: fmt.Sprintf("cash day %s is not open", st.DateKey)}, true)
	}
	req, err := movementRequest(st.Draft, c.opts.BranchScope)
	if err != nil {
		return c.fail(op, err, true)
	}

	mv, err := c.api.CreateMovement(ctx, st.DateKey, req)
	if err != nil {
		return c.fail(op, err, false)
	}

	c.metrics.IncrCashOperation(op, "success")
	c.logger.Info("movement recorded",
		zap.String("movement_id", mv.ID),
		zap.String("type", string(mv.Type)),
		zap.String("amount", mv.Amount.String()),
	)
	c.dispatch(Event{Kind: MovementCreated, Movement: mv, Text: "Movement recorded"})
	c.refreshDayAndSummary(ctx, st.DateKey)
	return nil
}

func movementRequest(d MovementDraft, branch string) (*domain.CreateMovementRequest, error) {
	if !d.Type.IsValid() {
		return nil, &domain.ErrValidation{Field: "type", Message: "type must be INCOME or EXPENSE"}
	}
	if !d.Method.IsValid() {
		return nil, &domain.ErrValidation{Field: "method", Message: "method must be CASH, TRANSFER, CARD or OTHER"}
	}
	amount, err := domain.ParsePositiveAmountDraft("amount", d.Amount)
	if err != nil {
		return nil, err
	}
	concept := strings.TrimSpace(d.Concept)
	if concept == "" {
		return nil, &domain.ErrValidation{Field: "concept", Message: "concept is required"}
	}

	req := &domain.CreateMovementRequest{
		Type:     d.Type,
		Method:   d.Method,
		Amount:   amount,
		Concept:  concept,
		Note:     strings.TrimSpace(d.Note),
		BranchID: branch,
	}
	if id := strings.TrimSpace(d.CategoryID); id != "" {
		req.CategoryID = &id
	}
	return req, nil
}

// ConfirmVoid submits the void the confirmation dialog targets. The
// backend decides whether the movement can still be voided.
func (c *Controller) ConfirmVoid(ctx context.Context) error {
	const op = "void_movement"
	ctx, span := tracer.Start(ctx, "CashDay.ConfirmVoid")
	defer span.End()

	if err := c.requireWrite("void movement"); err != nil {
		return c.fail(op, err, true)
	}
	c.syncToday(ctx)
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	st := c.Snapshot()
	if st.Void.MovementID == "" {
		return c.fail(op, &domain.ErrValidation{Field: "movementId", Message: "no movement selected"}, true)
	}
	span.SetAttributes(attribute.String("cash.movement_id", st.Void.MovementID))

	mv, err := c.api.VoidMovement(ctx, st.Void.MovementID, &domain.VoidMovementRequest{
		Reason:  strings.TrimSpace(st.Void.Reason),
		DateKey: st.DateKey,
	})
	if err != nil {
		return c.fail(op, err, false)
	}

	c.metrics.IncrCashOperation(op, "success")
	c.logger.Info("movement voided", zap.String("movement_id", mv.ID))
	c.dispatch(Event{Kind: MovementVoided, Movement: mv, Text: "Movement voided"})
	c.refreshDayAndSummary(ctx, st.DateKey)
	return nil
}

// CloseDay submits the counted cash. The override flag is only sent for
// privileged actors whose options allow it; otherwise the attempt fails
// with ErrForbidden rather than being sent without it.
func (c *Controller) CloseDay(ctx context.Context) error {
	const op = "close_day"
	ctx, span := tracer.Start(ctx, "CashDay.CloseDay")
	defer span.End()

	if err := c.requireWrite("close cash day"); err != nil {
		return c.fail(op, err, true)
	}
	c.syncToday(ctx)
	release, err := c.acquire(op)
	if err != nil {
		return err
	}
	defer release()

	st := c.Snapshot()
	switch {
	case st.Day == nil:
		return c.fail(op, &domain.ErrConflict{Message: fmt.Sprintf("cash day %s has not been opened", st.DateKey)}, true)
	case !st.Day.IsOpen():
		return c.fail(op, &domain.ErrConflict{Message: fmt.Sprintf("cash day %s is already closed", st.DateKey)}, true)
	}

	counted, err := domain.ParseAmountDraft("countedCash", st.Close.CountedCash)
	if err != nil {
		return c.fail(op, err, true)
	}
	if st.Close.AdminOverride && !(c.opts.AllowOverride && c.actor.IsPrivileged()) {
		return c.fail(op, &domain.ErrForbidden{Action: "close with admin override"}, true)
	}

	day, err := c.api.CloseCashDay(ctx, st.DateKey, &domain.CloseCashDayRequest{
		CountedCash:   counted,
		AdminOverride: st.Close.AdminOverride,
		CloseNote:     strings.TrimSpace(st.Close.CloseNote),
		BranchID:      c.opts.BranchScope,
	})
	if err != nil {
		return c.fail(op, err, false)
	}

	c.metrics.IncrCashOperation(op, "success")
	diff := ""
	if day.DiffCash != nil {
		diff = day.DiffCash.String()
	}
	c.logger.Info("cash day closed",
		zap.String("date_key", st.DateKey),
		zap.String("counted_cash", counted.String()),
		zap.String("diff_cash", diff),
		zap.Bool("override", st.Close.AdminOverride),
	)
	c.dispatch(Event{Kind: DayClosed, Day: day, Text: "Cash day closed"})

	if summary, err := c.api.GetSummary(ctx, st.DateKey, c.opts.BranchScope); err == nil {
		c.dispatch(Event{Kind: SummaryRefreshed, Summary: summary})
	}
	return nil
}

// refreshDayAndSummary re-reads the server-computed figures after a
// mutation. Failures are logged only: the mutation itself succeeded.
func (c *Controller) refreshDayAndSummary(ctx context.Context, dateKey string) {
	branch := c.opts.BranchScope

	day, err := c.api.GetCashDay(ctx, dateKey, branch)
	if err != nil {
		c.logger.Warn("refresh day failed", zap.Error(err))
	} else {
		c.dispatch(Event{Kind: DayRefreshed, Day: day})
	}

	summary, err := c.api.GetSummary(ctx, dateKey, branch)
	if err != nil {
		c.logger.Warn("refresh summary failed", zap.Error(err))
		return
	}
	c.dispatch(Event{Kind: SummaryRefreshed, Summary: summary})
}

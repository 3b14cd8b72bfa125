package cashday

import (
	"github.com/boddenberg/cash-console-bfa/internal/domain"
)

// EventKind enumerates every state transition of the controller.
type EventKind int

const (
	DateSelected EventKind = iota
	DayRolledOver
	LoadStarted
	LoadSucceeded
	LoadFailed

	FiltersChanged
	DraftChanged

	OpenShown
	OpeningCashChanged
	OpenHidden

	CloseShown
	CloseDraftChanged
	CloseHidden

	VoidRequested
	VoidReasonChanged
	VoidCancelled

	MutationStarted
	MutationFinished
	OperationFailed
	MessagesCleared

	DayOpened
	MovementCreated
	MovementVoided
	DayClosed
	DayRefreshed
	SummaryRefreshed
)

var eventNames = [...]string{
	DateSelected:       "DateSelected",
	DayRolledOver:      "DayRolledOver",
	LoadStarted:        "LoadStarted",
	LoadSucceeded:      "LoadSucceeded",
	LoadFailed:         "LoadFailed",
	FiltersChanged:     "FiltersChanged",
	DraftChanged:       "DraftChanged",
	OpenShown:          "OpenShown",
	OpeningCashChanged: "OpeningCashChanged",
	OpenHidden:         "OpenHidden",
	CloseShown:         "CloseShown",
	CloseDraftChanged:  "CloseDraftChanged",
	CloseHidden:        "CloseHidden",
	VoidRequested:      "VoidRequested",
	VoidReasonChanged:  "VoidReasonChanged",
	VoidCancelled:      "VoidCancelled",
	MutationStarted:    "MutationStarted",
	MutationFinished:   "MutationFinished",
	OperationFailed:    "OperationFailed",
	MessagesCleared:    "MessagesCleared",
	DayOpened:          "DayOpened",
	MovementCreated:    "MovementCreated",
	MovementVoided:     "MovementVoided",
	DayClosed:          "DayClosed",
	DayRefreshed:       "DayRefreshed",
	SummaryRefreshed:   "SummaryRefreshed",
}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "Unknown"
}

// Event is one transition request. Only the fields relevant to Kind are read.
type Event struct {
	Kind EventKind

	DateKey    string
	Day        *domain.CashDay
	Summary    *domain.CashSummary
	Movements  []domain.CashMovement
	Categories []domain.FinanceCategory
	Movement   *domain.CashMovement

	Draft   MovementDraft
	Filters Filters
	Close   CloseModal
	// Text carries the opening cash draft, the void target or reason, the
	// busy operation name, or a success message, depending on Kind.
	Text string
	Err  error
}

// Reduce applies ev to s and returns the next state. It never mutates s
// and performs no I/O.
func Reduce(s State, ev Event) State {
	next := s.clone()

	switch ev.Kind {
	case DateSelected:
		next.DateKey = ev.DateKey
		next.Day = nil
		next.Summary = nil
		next.Movements = nil
		next.Open = OpenModal{}
		next.Close = CloseModal{}
		next.Void = VoidModal{}
		next.Error = nil
		next.Success = ""

	case DayRolledOver:
		// drafts carry over to the new day; the void target does not
		next.DateKey = ev.DateKey
		next.Day = nil
		next.Summary = nil
		next.Movements = nil
		next.Void = VoidModal{}
		next.Error = nil
		next.Success = ""

	case LoadStarted:
		next.Loading = true

	case LoadSucceeded:
		if ev.DateKey != s.DateKey {
			return s
		}
		next.Loading = false
		next.Day = ev.Day
		next.Summary = ev.Summary
		next.Movements = append([]domain.CashMovement(nil), ev.Movements...)
		next.Categories = append([]domain.FinanceCategory(nil), ev.Categories...)
		next.Error = nil

	case LoadFailed:
		if ev.DateKey != s.DateKey {
			return s
		}
		next.Loading = false
		next.Error = errorState(ev.Err)

	case FiltersChanged:
		next.Filters = ev.Filters

	case DraftChanged:
		next.Draft = ev.Draft

	case OpenShown:
		next.Open = OpenModal{Visible: true, OpeningCash: s.Open.OpeningCash}
	case OpeningCashChanged:
		next.Open.OpeningCash = ev.Text
	case OpenHidden:
		next.Open.Visible = false

	case CloseShown:
		next.Close = s.Close
		next.Close.Visible = true
	case CloseDraftChanged:
		next.Close = ev.Close
		next.Close.Visible = s.Close.Visible
	case CloseHidden:
		next.Close.Visible = false

	case VoidRequested:
		next.Void = VoidModal{Visible: true, MovementID: ev.Text}
	case VoidReasonChanged:
		next.Void.Reason = ev.Text
	case VoidCancelled:
		next.Void = VoidModal{}

	case MutationStarted:
		next.Busy = true
		next.BusyOp = ev.Text
		next.Error = nil
		next.Success = ""
	case MutationFinished:
		next.Busy = false
		next.BusyOp = ""

	case OperationFailed:
		next.Error = errorState(ev.Err)
		next.Success = ""
	case MessagesCleared:
		next.Error = nil
		next.Success = ""

	case DayOpened:
		next.Day = ev.Day
		next.Open = OpenModal{}
		next.Success = ev.Text

	case MovementCreated:
		if ev.Movement != nil {
			next.Movements = append(next.Movements, *ev.Movement)
		}
		next.Draft = EmptyDraft()
		next.Success = ev.Text

	case MovementVoided:
		if ev.Movement != nil {
			voided := *ev.Movement
			voided.Voided = true
			replaced := false
			for i := range next.Movements {
				if next.Movements[i].ID == voided.ID {
					next.Movements[i] = voided
					replaced = true
				}
			}
			if !replaced {
				next.Movements = append(next.Movements, voided)
			}
		}
		next.Void = VoidModal{}
		next.Success = ev.Text

	case DayClosed:
		next.Day = ev.Day
		next.Close = CloseModal{}
		next.Success = ev.Text

	case DayRefreshed:
		if ev.Day != nil {
			next.Day = ev.Day
		}
	case SummaryRefreshed:
		if ev.Summary != nil {
			next.Summary = ev.Summary
		}
	}

	return next
}

func errorState(err error) *ErrorState {
	if err == nil {
		return nil
	}
	return &ErrorState{Message: ErrorMessage(err), Permission: IsPermissionError(err)}
}

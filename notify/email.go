package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/solomon-wilson/hrmis-sub002/generic"
	"gopkg.in/gomail.v2"
)

// Mailer sends composed messages. *gomail.Dialer satisfies it.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// AddressBook resolves an employee to an e-mail address.
type AddressBook interface {
	EmailOf(ctx context.Context, id generic.EmployeeID) (string, error)
}

// EmailDispatcher renders events as plain-text mail.
type EmailDispatcher struct {
	Mailer  Mailer
	From    string
	Address AddressBook
}

// NewSMTPDispatcher builds an EmailDispatcher over an SMTP dialer.
func NewSMTPDispatcher(host string, port int, username, password, from string, book AddressBook) *EmailDispatcher {
	return &EmailDispatcher{
		Mailer:  gomail.NewDialer(host, port, username, password),
		From:    from,
		Address: book,
	}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, e Event) error {
	if e.Recipient() == "" {
		return nil
	}
	to, err := d.Address.EmailOf(ctx, e.Recipient())
	if err != nil {
		return fmt.Errorf("resolve recipient %s: %w", e.Recipient(), err)
	}
	if to == "" {
		return nil
	}

	subject, body := Render(e)
	m := gomail.NewMessage()
	m.SetHeader("From", d.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := d.Mailer.DialAndSend(m); err != nil {
		return fmt.Errorf("send %s to %s: %w", e.Kind(), to, err)
	}
	return nil
}

// Render produces a subject line and plain-text body for an event.
func Render(e Event) (subject, body string) {
	switch ev := e.(type) {
	case LeaveRequestSubmitted:
		return "Leave request submitted",
			fmt.Sprintf("Your %s request for %s to %s (%s days) is pending approval. Available after approval: %s days.",
				ev.LeaveTypeID, ev.StartDate, ev.EndDate.AddDays(-1), ev.TotalDays, ev.AvailableAfter)
	case LeaveRequestApproved:
		verb := "approved"
		if ev.Partial {
			verb = "partially approved"
		}
		return "Leave request " + verb,
			fmt.Sprintf("Request %s was %s for %s of %s days. Remaining balance: %s days.",
				ev.RequestID, verb, ev.ApprovedDays, ev.RequestedDays, ev.AvailableAfter)
	case LeaveRequestRejected:
		body := fmt.Sprintf("Request %s was rejected: %s.", ev.RequestID, ev.Reason)
		if ev.AlternativeStart != nil && ev.AlternativeEnd != nil {
			body += fmt.Sprintf(" Suggested dates: %s to %s.", ev.AlternativeStart, ev.AlternativeEnd)
		}
		return "Leave request rejected", body
	case LeaveRequestCancelled:
		return "Leave request cancelled",
			fmt.Sprintf("Request %s was cancelled. %s days were returned to your balance.", ev.RequestID, ev.RestoredDays)
	case PendingLeaveApproval:
		return "Leave request awaiting your approval",
			fmt.Sprintf("Employee %s requested %s days from %s to %s. Approvers: %s.",
				ev.EmployeeID, ev.TotalDays, ev.StartDate, ev.EndDate.AddDays(-1), strings.Join(ev.Tiers, ", "))
	case TeamLeaveConflict:
		ids := make([]string, len(ev.ConflictingEmployees))
		for i, id := range ev.ConflictingEmployees {
			ids[i] = string(id)
		}
		return "Team leave overlap",
			fmt.Sprintf("Employee %s requested leave from %s overlapping approved leave of: %s.",
				ev.EmployeeID, ev.StartDate, strings.Join(ids, ", "))
	case PolicyViolation:
		msgs := make([]string, len(ev.Violations))
		for i, v := range ev.Violations {
			msgs[i] = "- " + v.Message
		}
		return "Leave request could not be submitted",
			strings.Join(msgs, "\n") + "\n\n" + strings.Join(ev.Recommendations, "\n")
	case LeaveBalanceLow:
		return "Leave balance low",
			fmt.Sprintf("Your %s balance for %d is %s days.", ev.LeaveTypeID, ev.Year, ev.Available)
	case IncompleteTimeEntry:
		return "Time entry closed automatically",
			fmt.Sprintf("Your shift starting %s was closed at %s. Please submit a correction if this is wrong.",
				ev.ClockIn.Format("2006-01-02 15:04"), ev.ClosedAt.Format("2006-01-02 15:04"))
	case OvertimeThresholdReached:
		return "Overtime recorded",
			fmt.Sprintf("On %s you worked %s hours: %s overtime, %s double-time.",
				ev.Date, ev.DayHours, ev.OvertimeHours, ev.DoubleTimeHours)
	}
	return string(e.Kind()), fmt.Sprintf("%+v", e)
}

package recon

import "billsync/pkg/models"

// ReminderKind selects the message variant for a reminder.
type ReminderKind int

const (
	ReminderNone ReminderKind = iota

	// ReminderUpcoming: the invoice is due in a couple of days.
	ReminderUpcoming

	// ReminderDueToday: the invoice is due today.
	ReminderDueToday

	// ReminderOverdue: past due; the decision carries the day count.
	ReminderOverdue
)

func (k ReminderKind) String() string {
	switch k {
	case ReminderUpcoming:
		return "upcoming"
	case ReminderDueToday:
		return "due_today"
	case ReminderOverdue:
		return "overdue"
	}
	return "none"
}

// reminderDecision applies the reminder sub-rule: eligible only at two
// days before due, on the due date, or any time past due; at most one
// reminder per record per day.
func reminderDecision(in Input) Decision {
	eligible := in.DueOffsetDays == 2 || in.DueOffsetDays == 0 || in.DueOffsetDays < 0
	if !eligible {
		return Decision{Action: ActionNone}
	}
	if in.LastReminder != nil && models.SameDate(*in.LastReminder, in.Today) {
		return Decision{Action: ActionNone}
	}

	switch {
	case in.DueOffsetDays > 0:
		return Decision{Action: ActionNotify, Reminder: ReminderUpcoming}
	case in.DueOffsetDays == 0:
		return Decision{Action: ActionNotify, Reminder: ReminderDueToday}
	default:
		return Decision{
			Action:      ActionNotify,
			Reminder:    ReminderOverdue,
			OverdueDays: -in.DueOffsetDays,
		}
	}
}

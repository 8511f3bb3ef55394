package notifytest

import (
	"context"
	"testing"

	"donasiku_backend/internals/features/donations/notifications"
)

func TestRecorder_ByTemplate(t *testing.T) {
	r := NewRecorder()
	r.Dispatch(context.Background(),
		notifications.Notification{Template: notifications.TemplateGoalMet, To: "a@x.org"},
		notifications.Notification{Template: notifications.TemplatePaymentCompleted, To: "a@x.org"},
		notifications.Notification{Template: notifications.TemplateGoalMet, To: "b@x.org"},
	)
	if got := r.ByTemplate(notifications.TemplateGoalMet); len(got) != 2 {
		t.Errorf("goal_met recipients = %v", got)
	}
	r.Clear()
	if len(r.Sent()) != 0 {
		t.Error("Clear did not reset")
	}
}

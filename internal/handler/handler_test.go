package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"contentplanner/internal/advisory"
	"contentplanner/internal/model"
)

func TestHandlersRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/tasks", NewTaskHandler(zap.NewNop()).ListTasks)
	r.GET("/dashboard", NewViewHandler().Dashboard)
	r.GET("/advisories", NewEventsHandler(zap.NewNop()).Advisories)

	for _, path := range []string{"/tasks", "/dashboard", "/advisories"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s = %d, want 401", path, w.Code)
		}
	}
}

func TestValidationBody(t *testing.T) {
	fields := model.ValidationErrors{{Field: "title", Message: "Title is required"}}
	body := validationBody(fields)
	if got, ok := body["details"].(model.ValidationErrors); !ok || len(got) != 1 {
		t.Errorf("details = %#v", body["details"])
	}

	body = validationBody(errors.New("boom"))
	if body["details"] != "boom" {
		t.Errorf("details = %#v", body["details"])
	}
}

func TestCaptureAdvisoryIgnoresOtherRequests(t *testing.T) {
	inbox := advisory.NewInbox(zap.NewNop())

	adv := captureAdvisory(context.Background(), func(ctx context.Context) {
		// raised by a subscription or a concurrent request on the same session
		advisory.Emit(context.Background(), inbox, advisory.Failure("Sync Error", "denied", "permission-denied"))
		advisory.Emit(ctx, inbox, advisory.Success("Task Added", `Task "A" has been successfully added.`))
	})
	if adv == nil || adv.Title != "Task Added" {
		t.Fatalf("captured = %+v, want Task Added", adv)
	}
	if len(inbox.Pending()) != 2 {
		t.Errorf("inbox = %+v, want both advisories kept", inbox.Pending())
	}

	if adv := captureAdvisory(context.Background(), func(context.Context) {}); adv != nil {
		t.Errorf("captured %+v from a request that raised nothing", adv)
	}
}

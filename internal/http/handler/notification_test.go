package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agora.dev/courier/internal/http/handler"
	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/service"
)

var _ = Describe("NotificationHandler", func() {
	var (
		router *gin.Engine
		svc    *mockNotificationService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockNotificationService{}
		h := handler.NewNotificationHandler(svc)

		notifications := router.Group("/notifications")
		{
			notifications.GET("/:agentId", h.List)
			notifications.POST("/:agentId/read", h.MarkRead)
			notifications.POST("/:agentId/read-all", h.MarkAllRead)
		}
	})

	Describe("List", func() {
		It("returns the backlog with its length", func() {
			svc.drainFn = func(_ context.Context, agentID string, ack bool) ([]model.Notification, error) {
				Expect(agentID).To(Equal("bob"))
				Expect(ack).To(BeFalse())
				return []model.Notification{
					{ID: "n1", AgentID: "bob", EventType: "mention"},
					{ID: "n2", AgentID: "bob", EventType: "mention"},
				}, nil
			}
			svc.backlogLenFn = func(_ context.Context, _ string) (int64, error) {
				return 2, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/notifications/bob", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["notifications"].([]any)).To(HaveLen(2))
			Expect(resp["backlog"]).To(Equal(float64(2)))
		})

		It("passes ack=true through", func() {
			acked := false
			svc.drainFn = func(_ context.Context, _ string, ack bool) ([]model.Notification, error) {
				acked = ack
				return nil, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/notifications/bob?ack=true", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(acked).To(BeTrue())
		})

		It("returns 404 for an unknown agent", func() {
			svc.drainFn = func(_ context.Context, _ string, _ bool) ([]model.Notification, error) {
				return nil, fmt.Errorf("%w: stranger", service.ErrAgentNotFound)
			}

			req := httptest.NewRequest(http.MethodGet, "/notifications/stranger", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("MarkRead", func() {
		It("marks a single record read", func() {
			svc.markReadFn = func(_ context.Context, agentID, recordID string) error {
				Expect(agentID).To(Equal("bob"))
				Expect(recordID).To(Equal("n1"))
				return nil
			}

			body, _ := json.Marshal(map[string]string{"id": "n1"})
			req := httptest.NewRequest(http.MethodPost, "/notifications/bob/read", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 400 when the id is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/notifications/bob/read", bytes.NewBufferString(`{}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 when the record is gone", func() {
			svc.markReadFn = func(_ context.Context, _, _ string) error {
				return fmt.Errorf("%w: n9", service.ErrRecordNotFound)
			}

			body, _ := json.Marshal(map[string]string{"id": "n9"})
			req := httptest.NewRequest(http.MethodPost, "/notifications/bob/read", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("MarkAllRead", func() {
		It("marks the whole backlog read", func() {
			called := false
			svc.markAllReadFn = func(_ context.Context, agentID string) error {
				Expect(agentID).To(Equal("bob"))
				called = true
				return nil
			}

			req := httptest.NewRequest(http.MethodPost, "/notifications/bob/read-all", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(called).To(BeTrue())
		})
	})
})

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

var _ = Describe("WebhookHandler", func() {
	var (
		router *gin.Engine
		svc    *mockWebhookService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockWebhookService{}
		h := handler.NewWebhookHandler(svc)

		agents := router.Group("/agents")
		{
			agents.PUT("/:id/webhook", h.Register)
			agents.GET("/:id/webhook", h.Status)
			agents.DELETE("/:id/webhook", h.Delete)
		}
	})

	Describe("Register", func() {
		It("returns 201 with the registration and the one-time secret", func() {
			svc.registerFn = func(_ context.Context, params service.RegisterWebhookParams) (*service.RegisterWebhookResult, error) {
				Expect(params.AgentID).To(Equal("bob"))
				Expect(params.URL).To(Equal("https://bob.example/hook"))
				Expect(params.Events).To(ConsistOf("message", "mention"))
				return &service.RegisterWebhookResult{
					Registration: &model.WebhookRegistration{
						AgentID: "bob",
						URL:     params.URL,
						Events:  params.Events,
						Enabled: true,
					},
					Secret: "generated-secret",
				}, nil
			}

			body, _ := json.Marshal(map[string]any{
				"url":    "https://bob.example/hook",
				"events": []string{"message", "mention"},
			})
			req := httptest.NewRequest(http.MethodPut, "/agents/bob/webhook", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusCreated))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["secret"]).To(Equal("generated-secret"))
			hook := resp["webhook"].(map[string]any)
			Expect(hook["enabled"]).To(BeTrue())
			// The secret never rides inside the registration object.
			Expect(hook).NotTo(HaveKey("secret"))
		})

		It("returns 400 when url or events are missing", func() {
			body, _ := json.Marshal(map[string]any{
				"url": "https://bob.example/hook",
			})
			req := httptest.NewRequest(http.MethodPut, "/agents/bob/webhook", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown agent", func() {
			svc.registerFn = func(_ context.Context, _ service.RegisterWebhookParams) (*service.RegisterWebhookResult, error) {
				return nil, fmt.Errorf("%w: stranger", service.ErrAgentNotFound)
			}

			body, _ := json.Marshal(map[string]any{
				"url":    "https://x.example",
				"events": []string{"message"},
			})
			req := httptest.NewRequest(http.MethodPut, "/agents/stranger/webhook", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Status", func() {
		It("returns the registration with failure counters", func() {
			svc.getFn = func(_ context.Context, agentID string) (*model.WebhookRegistration, error) {
				return &model.WebhookRegistration{
					AgentID:             agentID,
					URL:                 "https://bob.example/hook",
					Events:              []string{"message"},
					Enabled:             false,
					ConsecutiveFailures: 5,
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/agents/bob/webhook", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			hook := resp["webhook"].(map[string]any)
			Expect(hook["enabled"]).To(BeFalse())
			Expect(hook["consecutiveFailures"]).To(Equal(float64(5)))
		})

		It("returns 404 when no webhook is registered", func() {
			svc.getFn = func(_ context.Context, _ string) (*model.WebhookRegistration, error) {
				return nil, fmt.Errorf("%w: bob", service.ErrWebhookNotFound)
			}

			req := httptest.NewRequest(http.MethodGet, "/agents/bob/webhook", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Delete", func() {
		It("returns 200 when the registration is removed", func() {
			svc.deleteFn = func(_ context.Context, agentID string) error {
				Expect(agentID).To(Equal("bob"))
				return nil
			}

			req := httptest.NewRequest(http.MethodDelete, "/agents/bob/webhook", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["deleted"]).To(BeTrue())
		})

		It("returns 404 when nothing was registered", func() {
			svc.deleteFn = func(_ context.Context, _ string) error {
				return fmt.Errorf("%w: bob", service.ErrWebhookNotFound)
			}

			req := httptest.NewRequest(http.MethodDelete, "/agents/bob/webhook", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})
})

package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"agora.dev/courier/internal/chanlog"
	"agora.dev/courier/internal/group"
	"agora.dev/courier/internal/http/handler"
	"agora.dev/courier/internal/model"
	"agora.dev/courier/internal/service"
)

var _ = Describe("ChannelHandler", func() {
	var (
		router *gin.Engine
		msgSvc *mockMessageService
		subSvc *mockSubscriptionService
		chSvc  *mockChannelService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		msgSvc = &mockMessageService{}
		subSvc = &mockSubscriptionService{}
		chSvc = &mockChannelService{}
		h := handler.NewChannelHandler(msgSvc, subSvc, chSvc)

		channels := router.Group("/channels")
		{
			channels.POST("", h.Create)
			channels.POST("/:id/message", h.Publish)
			channels.GET("/:id/messages", h.History)
			channels.POST("/:id/subscribe", h.Subscribe)
			channels.POST("/:id/unsubscribe", h.Unsubscribe)
			channels.GET("/:id/read/:agentId", h.Read)
			channels.GET("/:id/pending/:agentId", h.Pending)
			channels.POST("/:id/ack", h.Ack)
			channels.GET("/:id/status/:agentId", h.Status)
		}
	})

	postJSON := func(path string, payload any) *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Publish", func() {
		It("returns 201 with the appended message and recipients", func() {
			msgSvc.publishFn = func(_ context.Context, params service.PublishParams) (*service.PublishResult, error) {
				Expect(params.ChannelID).To(Equal("general"))
				Expect(params.AgentID).To(Equal("alice"))
				return &service.PublishResult{
					Message: &model.Message{
						EntryID:   "1726000000000-0",
						ChannelID: "general",
						AgentID:   "alice",
						Content:   params.Content,
						Type:      model.MessageTypeText,
					},
					Recipients: []string{"bob"},
				}, nil
			}

			w := postJSON("/channels/general/message", map[string]string{
				"agentId": "alice",
				"content": "deploy finished",
			})

			Expect(w.Code).To(Equal(http.StatusCreated))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			msg := resp["message"].(map[string]any)
			Expect(msg["id"]).To(Equal("1726000000000-0"))
			Expect(resp["recipients"]).To(ConsistOf("bob"))
		})

		It("returns 400 when required fields are missing", func() {
			w := postJSON("/channels/general/message", map[string]string{
				"agentId": "alice",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for an unknown channel", func() {
			msgSvc.publishFn = func(_ context.Context, _ service.PublishParams) (*service.PublishResult, error) {
				return nil, fmt.Errorf("%w: nope", service.ErrChannelNotFound)
			}

			w := postJSON("/channels/nope/message", map[string]string{
				"agentId": "alice",
				"content": "hi",
			})

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 403 when the author is not a member", func() {
			msgSvc.publishFn = func(_ context.Context, _ service.PublishParams) (*service.PublishResult, error) {
				return nil, fmt.Errorf("%w: mallory not in general", service.ErrNotMember)
			}

			w := postJSON("/channels/general/message", map[string]string{
				"agentId": "mallory",
				"content": "hi",
			})

			Expect(w.Code).To(Equal(http.StatusForbidden))
		})

		It("returns 503 when the channel log is unreachable", func() {
			msgSvc.publishFn = func(_ context.Context, _ service.PublishParams) (*service.PublishResult, error) {
				return nil, fmt.Errorf("%w: dial tcp: connection refused", chanlog.ErrUnavailable)
			}

			w := postJSON("/channels/general/message", map[string]string{
				"agentId": "alice",
				"content": "hi",
			})

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["error"]).To(Equal("channel log unavailable"))
		})
	})

	Describe("History", func() {
		It("passes limit and since through and returns messages", func() {
			msgSvc.historyFn = func(_ context.Context, params service.HistoryParams) ([]model.Message, error) {
				Expect(params.Limit).To(Equal(int64(5)))
				Expect(params.Since).To(Equal("100-0"))
				return []model.Message{{EntryID: "101-0", Content: "hi"}}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/general/messages?limit=5&since=100-0", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["messages"].([]any)).To(HaveLen(1))
		})

		It("returns an empty array rather than null", func() {
			msgSvc.historyFn = func(_ context.Context, _ service.HistoryParams) ([]model.Message, error) {
				return nil, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/general/messages", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"messages":[]`))
		})
	})

	Describe("Subscribe", func() {
		It("returns 200 and forwards the start position", func() {
			var gotStart model.StartPosition
			subSvc.subscribeFn = func(_ context.Context, channelID, agentID string, start model.StartPosition) error {
				Expect(channelID).To(Equal("general"))
				Expect(agentID).To(Equal("bob"))
				gotStart = start
				return nil
			}

			w := postJSON("/channels/general/subscribe", map[string]string{
				"agentId":   "bob",
				"startFrom": "all",
			})

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(gotStart).To(Equal(model.StartAll))
		})

		It("returns 400 when startFrom is missing", func() {
			w := postJSON("/channels/general/subscribe", map[string]string{
				"agentId": "bob",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Read", func() {
		It("converts the block query into a duration", func() {
			subSvc.readNextFn = func(_ context.Context, channelID, agentID string, count int64, block time.Duration) ([]model.Message, error) {
				Expect(agentID).To(Equal("bob"))
				Expect(count).To(Equal(int64(5)))
				Expect(block).To(Equal(1500 * time.Millisecond))
				return []model.Message{{EntryID: "1-0"}}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/general/read/bob?count=5&block=1500", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 404 when the agent is not subscribed", func() {
			subSvc.readNextFn = func(_ context.Context, _, _ string, _ int64, _ time.Duration) ([]model.Message, error) {
				return nil, group.ErrNotSubscribed
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/general/read/bob", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Ack", func() {
		It("accepts a single messageId", func() {
			subSvc.acknowledgeFn = func(_ context.Context, _, agentID string, entryIDs []string) error {
				Expect(agentID).To(Equal("bob"))
				Expect(entryIDs).To(ConsistOf("1-0"))
				return nil
			}

			w := postJSON("/channels/general/ack", map[string]any{
				"agentId":   "bob",
				"messageId": "1-0",
			})

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["acknowledged"]).To(Equal(float64(1)))
		})

		It("accepts a messageIds batch", func() {
			subSvc.acknowledgeFn = func(_ context.Context, _, _ string, entryIDs []string) error {
				Expect(entryIDs).To(Equal([]string{"1-0", "1-1", "2-0"}))
				return nil
			}

			w := postJSON("/channels/general/ack", map[string]any{
				"agentId":    "bob",
				"messageIds": []string{"1-0", "1-1", "2-0"},
			})

			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("returns 400 when no IDs are supplied", func() {
			subSvc.acknowledgeFn = func(_ context.Context, _, _ string, entryIDs []string) error {
				Expect(entryIDs).To(BeEmpty())
				return fmt.Errorf("%w: messageId or messageIds is required", service.ErrValidation)
			}

			w := postJSON("/channels/general/ack", map[string]any{
				"agentId": "bob",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Status", func() {
		It("returns the group status", func() {
			subSvc.statusFn = func(_ context.Context, channelID, agentID string) (model.GroupStatus, error) {
				return model.GroupStatus{
					ChannelID:    channelID,
					AgentID:      agentID,
					Subscribed:   true,
					PendingCount: 4,
					Cursor:       "9-0",
				}, nil
			}

			req := httptest.NewRequest(http.MethodGet, "/channels/general/status/bob", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["subscribed"]).To(BeTrue())
			Expect(resp["pendingCount"]).To(Equal(float64(4)))
		})
	})

	Describe("Create", func() {
		It("returns 201 with the created channel", func() {
			chSvc.createFn = func(_ context.Context, ch *model.Channel) error {
				Expect(ch.ID).To(Equal("general"))
				Expect(ch.Members).To(ConsistOf("alice", "bob"))
				return nil
			}

			w := postJSON("/channels", map[string]any{
				"id":      "general",
				"members": []string{"alice", "bob"},
			})

			Expect(w.Code).To(Equal(http.StatusCreated))
		})

		It("returns 400 when members are missing", func() {
			w := postJSON("/channels", map[string]any{
				"id": "general",
			})

			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

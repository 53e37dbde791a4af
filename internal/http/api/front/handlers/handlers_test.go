package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soldierhq/helpergate/internal/access"
	"github.com/soldierhq/helpergate/internal/entitlement"
	"github.com/soldierhq/helpergate/internal/models"
	"github.com/soldierhq/helpergate/internal/ratelimit"
	"github.com/soldierhq/helpergate/internal/store"
)

type fakeAccess struct {
	decision entitlement.AccessDecision
	status   access.Status
	summary  access.Summary
	err      error
	calls    int
}

func (f *fakeAccess) CheckHelperAccess(_ context.Context, _, _ string) (entitlement.AccessDecision, error) {
	f.calls++
	return f.decision, f.err
}

func (f *fakeAccess) SubscriptionStatus(_ context.Context, _ string) (access.Status, error) {
	return f.status, f.err
}

func (f *fakeAccess) SubscriptionSummary(_ context.Context, _ string) (access.Summary, error) {
	return f.summary, f.err
}

type fakeConversations struct {
	conversations map[string]*models.Conversation
	messages      []models.Message
	created       int
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{conversations: map[string]*models.Conversation{}}
}

func (f *fakeConversations) ReplaceEmptyAndCreate(_ context.Context, userID, helperID string) (*models.Conversation, int64, error) {
	f.created++
	conv := &models.Conversation{ID: "conv-new", UserID: userID, HelperID: helperID, Title: models.DefaultConversationTitle}
	f.conversations[conv.ID] = conv
	return conv, 0, nil
}

func (f *fakeConversations) Get(_ context.Context, conversationID string) (*models.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (f *fakeConversations) ListByUser(_ context.Context, userID string) ([]models.Conversation, error) {
	var out []models.Conversation
	for _, conv := range f.conversations {
		if conv.UserID == userID && !conv.Archived {
			out = append(out, *conv)
		}
	}
	return out, nil
}

func (f *fakeConversations) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range f.messages {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeConversations) AppendMessage(_ context.Context, conversationID, role, content string) (*models.Message, error) {
	msg := models.Message{ID: uint64(len(f.messages) + 1), ConversationID: conversationID, Role: role, Content: content}
	f.messages = append(f.messages, msg)
	return &msg, nil
}

func (f *fakeConversations) Archive(_ context.Context, conversationID string) error {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return store.ErrConversationNotFound
	}
	conv.Archived = true
	return nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (f fakeLimiter) Check(_ context.Context, _, _ string) (ratelimit.Result, ratelimit.Decision, error) {
	return ratelimit.Result{Allowed: f.allowed, Reset: time.Now().Add(2 * time.Second)}, ratelimit.Decision{Limit: 1, Scope: ratelimit.ScopeUser}, f.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, method, route, target string, body any, handler gin.HandlerFunc, sessionUser string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	wrapped := func(c *gin.Context) {
		if sessionUser != "" {
			c.Set(SessionUserIDKey, sessionUser)
		}
		handler(c)
	}
	r.Handle(method, route, wrapped)

	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		if errDecode := json.Unmarshal(w.Body.Bytes(), &out); errDecode != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), errDecode)
		}
	}
	return w, out
}

const validateRoute = "/conversations/:conversationId/:userId/:helperId"

func TestValidateGranted(t *testing.T) {
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	checker := &fakeAccess{decision: entitlement.AccessDecision{
		ValidatedUser: true,
		Stage:         entitlement.StagePassed,
		Reason:        entitlement.GrantedReason("buddy"),
		Details: entitlement.AccessDetails{
			HasSubscription:      true,
			IsSubscriptionActive: true,
			SubscriptionEndDate:  &end,
			HasHelperUnlocked:    true,
			HelperExpiryDate:     &end,
			AvailableHelpers:     []string{"buddy", "sage", "buddy"},
		},
	}}
	w, body := serve(t, http.MethodGet, validateRoute, "/conversations/c1/user_1/buddy", nil, NewAccessHandler(checker).Validate, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["validatedUser"] != true {
		t.Fatalf("expected validatedUser true, got %v", body["validatedUser"])
	}
	if body["message"] != entitlement.GrantedReason("buddy") {
		t.Fatalf("unexpected message %v", body["message"])
	}
	details, _ := body["details"].(map[string]any)
	helpers, _ := details["availableHelpers"].([]any)
	if len(helpers) != 2 {
		t.Fatalf("expected deduped helpers, got %v", details["availableHelpers"])
	}
}

func TestValidateDeniedIsStill200(t *testing.T) {
	checker := &fakeAccess{decision: entitlement.AccessDecision{
		Stage:  entitlement.StageSubscription,
		Reason: entitlement.ReasonNoSubscription,
	}}
	w, body := serve(t, http.MethodGet, validateRoute, "/conversations/c1/user_1/buddy", nil, NewAccessHandler(checker).Validate, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["validatedUser"] != false || body["error"] != entitlement.ReasonNoSubscription {
		t.Fatalf("unexpected body %v", body)
	}
	details, _ := body["details"].(map[string]any)
	if _, ok := details["subscriptionEndDate"]; ok {
		t.Fatalf("expected subscriptionEndDate omitted, got %v", details)
	}
}

func TestValidateInternalError(t *testing.T) {
	checker := &fakeAccess{err: errors.New("db down")}
	w, body := serve(t, http.MethodGet, validateRoute, "/conversations/c1/user_1/buddy", nil, NewAccessHandler(checker).Validate, "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if body["error"] != "Internal server error while validating user access" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestValidateMissingParams(t *testing.T) {
	checker := &fakeAccess{}
	w, _ := serve(t, http.MethodGet, validateRoute, "/conversations/c1/%20/buddy", nil, NewAccessHandler(checker).Validate, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if checker.calls != 0 {
		t.Fatalf("expected no access check, got %d", checker.calls)
	}
}

func TestCreateConversation(t *testing.T) {
	checker := &fakeAccess{decision: entitlement.AccessDecision{ValidatedUser: true, Stage: entitlement.StagePassed}}
	convs := newFakeConversations()
	handler := NewConversationHandler(checker, convs, fakeLimiter{allowed: true})

	w, body := serve(t, http.MethodPost, "/conversations", "/conversations", gin.H{"helperId": "buddy", "clerkId": "user_1"}, handler.Create, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", w.Code, body)
	}
	if body["conversationId"] != "conv-new" {
		t.Fatalf("unexpected conversation id %v", body["conversationId"])
	}
}

func TestCreateConversationDeniedMessages(t *testing.T) {
	cases := []struct {
		stage entitlement.Stage
		want  string
	}{
		{entitlement.StageSubscription, "No active subscription found for this user"},
		{entitlement.StageSubscriptionActive, "Subscription is not active or has expired"},
		{entitlement.StageSubscriptionExpiry, "Subscription is not active or has expired"},
		{entitlement.StageHelperUnlocked, "Selected helper is not part of unlocked soldiers"},
		{entitlement.StageHelperExpiry, entitlement.HelperExpiredReason("buddy")},
	}
	for _, tc := range cases {
		checker := &fakeAccess{decision: entitlement.AccessDecision{Stage: tc.stage, Reason: entitlement.HelperExpiredReason("buddy")}}
		convs := newFakeConversations()
		handler := NewConversationHandler(checker, convs, nil)
		w, body := serve(t, http.MethodPost, "/conversations", "/conversations", gin.H{"helperId": "buddy", "clerkId": "user_1"}, handler.Create, "")
		if w.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", tc.stage, w.Code)
		}
		if body["error"] != tc.want {
			t.Fatalf("%s: expected %q, got %v", tc.stage, tc.want, body["error"])
		}
		if convs.created != 0 {
			t.Fatalf("%s: conversation created despite denial", tc.stage)
		}
	}
}

func TestCreateConversationMissingFields(t *testing.T) {
	handler := NewConversationHandler(&fakeAccess{}, newFakeConversations(), nil)
	w, body := serve(t, http.MethodPost, "/conversations", "/conversations", gin.H{"helperId": "buddy"}, handler.Create, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if body["error"] != "Missing required fields: helperId or clerkId" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestCreateConversationRateLimited(t *testing.T) {
	checker := &fakeAccess{decision: entitlement.AccessDecision{ValidatedUser: true}}
	handler := NewConversationHandler(checker, newFakeConversations(), fakeLimiter{allowed: false})
	w, _ := serve(t, http.MethodPost, "/conversations", "/conversations", gin.H{"helperId": "buddy", "clerkId": "user_1"}, handler.Create, "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if checker.calls != 0 {
		t.Fatalf("expected no access check when limited")
	}
}

func TestCreateConversationLimiterErrorFailsOpen(t *testing.T) {
	checker := &fakeAccess{decision: entitlement.AccessDecision{ValidatedUser: true}}
	handler := NewConversationHandler(checker, newFakeConversations(), fakeLimiter{err: errors.New("redis down")})
	w, _ := serve(t, http.MethodPost, "/conversations", "/conversations", gin.H{"helperId": "buddy", "clerkId": "user_1"}, handler.Create, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestAppendMessage(t *testing.T) {
	checker := &fakeAccess{decision: entitlement.AccessDecision{ValidatedUser: true}}
	convs := newFakeConversations()
	convs.conversations["c1"] = &models.Conversation{ID: "c1", UserID: "user_1", HelperID: "buddy"}
	handler := NewConversationHandler(checker, convs, nil)
	route := "/conversations/:conversationId/messages"

	w, body := serve(t, http.MethodPost, route, "/conversations/c1/messages", gin.H{"content": "hi"}, handler.AppendMessage, "user_1")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %v", w.Code, body)
	}
	if body["role"] != models.MessageRoleUser {
		t.Fatalf("expected default role user, got %v", body["role"])
	}

	w, _ = serve(t, http.MethodPost, route, "/conversations/c1/messages", gin.H{"content": "hi"}, handler.AppendMessage, "user_2")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for other user, got %d", w.Code)
	}

	w, _ = serve(t, http.MethodPost, route, "/conversations/c1/messages", gin.H{"clerkId": "user_1", "content": "hi"}, handler.AppendMessage, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session even with clerkId in body, got %d", w.Code)
	}

	w, _ = serve(t, http.MethodPost, route, "/conversations/missing/messages", gin.H{"content": "hi"}, handler.AppendMessage, "user_1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	checker.decision = entitlement.AccessDecision{Stage: entitlement.StageHelperExpiry, Reason: entitlement.HelperExpiredReason("buddy")}
	w, _ = serve(t, http.MethodPost, route, "/conversations/c1/messages", gin.H{"content": "hi"}, handler.AppendMessage, "user_1")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after expiry, got %d", w.Code)
	}
	if len(convs.messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(convs.messages))
	}
}

func TestGetAndArchiveConversation(t *testing.T) {
	convs := newFakeConversations()
	convs.conversations["c1"] = &models.Conversation{ID: "c1", UserID: "user_1", HelperID: "buddy"}
	convs.messages = []models.Message{{ID: 1, ConversationID: "c1", Role: models.MessageRoleUser, Content: "hi"}}
	handler := NewConversationHandler(&fakeAccess{}, convs, nil)

	w, _ := serve(t, http.MethodGet, "/conversations/:conversationId", "/conversations/c1?userId=user_1", nil, handler.Get, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", w.Code)
	}
	w, _ = serve(t, http.MethodGet, "/conversations/:conversationId", "/conversations/c1", nil, handler.Get, "user_2")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for other user, got %d", w.Code)
	}

	w, body := serve(t, http.MethodGet, "/conversations/:conversationId", "/conversations/c1", nil, handler.Get, "user_1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %v", body["messages"])
	}

	w, _ = serve(t, http.MethodPost, "/conversations/:conversationId/archive", "/conversations/c1/archive", nil, handler.Archive, "user_2")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 archiving another user's conversation, got %d", w.Code)
	}
	w, _ = serve(t, http.MethodPost, "/conversations/:conversationId/archive", "/conversations/c1/archive", nil, handler.Archive, "user_1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w, _ = serve(t, http.MethodGet, "/conversations", "/conversations?userId=user_1", nil, handler.List, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 listing without session, got %d", w.Code)
	}
	w, body = serve(t, http.MethodGet, "/conversations", "/conversations", nil, handler.List, "user_1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	listed, _ := body["conversations"].([]any)
	if len(listed) != 0 {
		t.Fatalf("expected archived conversation hidden, got %v", listed)
	}
}

func TestSubscriptionStatus(t *testing.T) {
	checker := &fakeAccess{status: access.Status{
		UnlockedHelpers: []string{"buddy", "buddy", "sage"},
		State:           entitlement.StateExpired,
	}}
	handler := NewSubscriptionHandler(checker)
	route := "/user/:userId/subscription"

	w, body := serve(t, http.MethodGet, route, "/user/user_1/subscription", nil, handler.Status, "user_1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["hasValidSubscription"] != "EXPIRED" {
		t.Fatalf("unexpected state %v", body["hasValidSubscription"])
	}
	helpers, _ := body["unlockedSoldiers"].([]any)
	if len(helpers) != 2 {
		t.Fatalf("expected deduped helpers, got %v", body["unlockedSoldiers"])
	}

	w, _ = serve(t, http.MethodGet, route, "/user/user_2/subscription", nil, handler.Status, "user_1")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSubscriptionCurrent(t *testing.T) {
	handler := NewSubscriptionHandler(&fakeAccess{})
	_, body := serve(t, http.MethodGet, "/user/subscription", "/user/subscription", nil, handler.Current, "user_1")
	if body["subscription"] != nil || body["message"] != "User not found" {
		t.Fatalf("unexpected body for missing user: %v", body)
	}

	handler = NewSubscriptionHandler(&fakeAccess{summary: access.Summary{UserFound: true}})
	_, body = serve(t, http.MethodGet, "/user/subscription", "/user/subscription", nil, handler.Current, "user_1")
	if _, ok := body["message"]; ok || body["subscription"] != nil {
		t.Fatalf("unexpected body without subscription: %v", body)
	}

	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	handler = NewSubscriptionHandler(&fakeAccess{summary: access.Summary{
		UserFound:    true,
		Subscription: &models.BillingSubscription{ID: 7, PlanType: "BASIC", Status: models.SubscriptionStatusActive, Interval: models.BillingIntervalMonth, CurrentPeriodEnd: &end},
		BaseHelpers:  []string{"buddy"},
		AddOns:       []entitlement.AddOn{{Helpers: []string{"sage"}, ExpiryDate: &end, Interval: "MONTH", Amount: 5}},
	}})
	w, body := serve(t, http.MethodGet, "/user/subscription", "/user/subscription", nil, handler.Current, "user_1")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	sub, _ := body["subscription"].(map[string]any)
	if sub["planType"] != "BASIC" || sub["status"] != "ACTIVE" {
		t.Fatalf("unexpected subscription %v", sub)
	}
	addOns, _ := sub["addOnUnlockedSoldiers"].([]any)
	if len(addOns) != 1 {
		t.Fatalf("expected one add-on, got %v", sub["addOnUnlockedSoldiers"])
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/shopgate/internal/model"
)

const (
	ownShop   = "foo.myshopify.com"
	otherShop = "bar.myshopify.com"
)

// --- モック定義 ---

// mockSessionService はSessionServiceInterfaceのモック実装。
type mockSessionService struct {
	storeFn        func(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error)
	loadFn         func(ctx context.Context, id string) (*model.ShopifySession, error)
	loadByShopFn   func(ctx context.Context, shop string) (model.ShopSessions, error)
	updateFn       func(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error)
	deleteFn       func(ctx context.Context, id string) (bool, error)
	deleteByShopFn func(ctx context.Context, shop string) (int64, error)
	existsFn       func(ctx context.Context, id string) (bool, error)
}

func (m *mockSessionService) Store(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error) {
	return m.storeFn(ctx, sess)
}

func (m *mockSessionService) Load(ctx context.Context, id string) (*model.ShopifySession, error) {
	return m.loadFn(ctx, id)
}

func (m *mockSessionService) LoadByShop(ctx context.Context, shop string) (model.ShopSessions, error) {
	return m.loadByShopFn(ctx, shop)
}

func (m *mockSessionService) Update(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error) {
	return m.updateFn(ctx, id, patch)
}

func (m *mockSessionService) Delete(ctx context.Context, id string) (bool, error) {
	return m.deleteFn(ctx, id)
}

func (m *mockSessionService) DeleteByShop(ctx context.Context, shop string) (int64, error) {
	return m.deleteByShopFn(ctx, shop)
}

func (m *mockSessionService) Exists(ctx context.Context, id string) (bool, error) {
	return m.existsFn(ctx, id)
}

// storedSessions は2ショップ分のオフラインセッションを返すloadFn。
func storedSessions(ctx context.Context, id string) (*model.ShopifySession, error) {
	token := "shpat_secret"
	switch id {
	case "offline_" + ownShop:
		return &model.ShopifySession{ID: id, Shop: ownShop, AccessToken: &token}, nil
	case "offline_" + otherShop:
		return &model.ShopifySession{ID: id, Shop: otherShop, AccessToken: &token}, nil
	}
	return nil, model.NewSessionNotFoundError(id)
}

func assertNoAccessToken(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	if strings.Contains(w.Body.String(), "accesstoken") || strings.Contains(w.Body.String(), "shpat_secret") {
		t.Errorf("レスポンスにアクセストークンが含まれている: %s", w.Body.String())
	}
}

// --- テスト ---

func TestSessionHandler_Get(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{loadFn: storedSessions})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "offline_"+ownShop)
	w := httptest.NewRecorder()
	h.Get(w, withShopUser(req, 1, ownShop))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	assertNoAccessToken(t, w)

	req = withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "missing")
	w = httptest.NewRecorder()
	h.Get(w, withShopUser(req, 1, ownShop))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeSessionNotFound)
}

// TestSessionHandler_CrossOrganization は他組織のセッションを参照・変更できないことを検証する。
func TestSessionHandler_CrossOrganization(t *testing.T) {
	foreignID := "offline_" + otherShop
	svc := &mockSessionService{
		loadFn: storedSessions,
		loadByShopFn: func(ctx context.Context, shop string) (model.ShopSessions, error) {
			t.Errorf("LoadByShop(%q) が呼ばれた", shop)
			return model.ShopSessions{}, nil
		},
		storeFn: func(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error) {
			t.Errorf("Store(%+v) が呼ばれた", sess)
			return sess, nil
		},
		updateFn: func(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error) {
			t.Errorf("Update(%q) が呼ばれた", id)
			return nil, nil
		},
		deleteFn: func(ctx context.Context, id string) (bool, error) {
			t.Errorf("Delete(%q) が呼ばれた", id)
			return true, nil
		},
		deleteByShopFn: func(ctx context.Context, shop string) (int64, error) {
			t.Errorf("DeleteByShop(%q) が呼ばれた", shop)
			return 1, nil
		},
		existsFn: func(ctx context.Context, id string) (bool, error) {
			return true, nil
		},
	}
	h := NewSessionHandler(svc)

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		method     string
		body       string
		param      string
		value      string
		wantStatus int
		wantCode   string
	}{
		{"get by id", h.Get, http.MethodGet, "", "id", foreignID, http.StatusNotFound, model.ErrCodeSessionNotFound},
		{"update by id", h.Update, http.MethodPut, `{"scope":"write_orders"}`, "id", foreignID, http.StatusNotFound, model.ErrCodeSessionNotFound},
		{"delete by id", h.Delete, http.MethodDelete, "", "id", foreignID, http.StatusNotFound, model.ErrCodeSessionNotFound},
		{"list by shop", h.ListByShop, http.MethodGet, "", "shop", otherShop, http.StatusForbidden, model.ErrCodeForbidden},
		{"list by bare handle", h.ListByShop, http.MethodGet, "", "shop", "BAR", http.StatusForbidden, model.ErrCodeForbidden},
		{"delete by shop", h.DeleteByShop, http.MethodDelete, "", "shop", otherShop, http.StatusForbidden, model.ErrCodeForbidden},
		{"invalid shop", h.ListByShop, http.MethodGet, "", "shop", "evil.com", http.StatusBadRequest, model.ErrCodeInvalidShop},
		{
			"create for other shop", h.Create, http.MethodPost,
			`{"id":"offline_bar.myshopify.com","shop":"bar.myshopify.com","state":"s","isonline":false,"accesstoken":"x"}`,
			"", "", http.StatusForbidden, model.ErrCodeForbidden,
		},
		{
			"overwrite other shop id", h.Create, http.MethodPost,
			`{"id":"offline_bar.myshopify.com","shop":"foo.myshopify.com","state":"s","isonline":false,"accesstoken":"x"}`,
			"", "", http.StatusForbidden, model.ErrCodeForbidden,
		},
		{
			"move session to other shop", h.Update, http.MethodPut,
			`{"shop":"bar.myshopify.com"}`,
			"id", "offline_" + ownShop, http.StatusForbidden, model.ErrCodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader(tt.body))
			if tt.param != "" {
				req = withChiURLParam(req, tt.param, tt.value)
			}
			w := httptest.NewRecorder()
			tt.handler(w, withShopUser(req, 1, ownShop))
			assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
		})
	}

	t.Run("exists hides foreign session", func(t *testing.T) {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", foreignID)
		w := httptest.NewRecorder()
		h.Exists(w, withShopUser(req, 1, ownShop))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		env := decodeEnvelope(t, w)
		if string(env.Data) != `{"exists":false}` {
			t.Errorf("data = %s", env.Data)
		}
	})
}

// TestSessionHandler_RequiresOrganization は組織に属さないユーザーを拒否することを検証する。
func TestSessionHandler_RequiresOrganization(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{loadFn: storedSessions})

	req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "offline_"+ownShop)
	w := httptest.NewRecorder()
	h.Get(w, withUserID(req, 1))
	assertErrorCode(t, w, http.StatusForbidden, model.ErrCodeForbidden)

	req = withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "offline_"+ownShop)
	w = httptest.NewRecorder()
	h.Get(w, req)
	assertErrorCode(t, w, http.StatusUnauthorized, model.ErrCodeInvalidToken)
}

func TestSessionHandler_ListByShop(t *testing.T) {
	token := "shpat_secret"
	tests := []struct {
		name       string
		result     model.ShopSessions
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name: "found",
			result: model.ShopSessions{Shop: ownShop, Sessions: []model.ShopifySession{
				{ID: "a", Shop: ownShop, AccessToken: &token},
				{ID: "b", Shop: ownShop},
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty is not found",
			result:     model.ShopSessions{Shop: ownShop, Sessions: []model.ShopifySession{}},
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeSessionsNotFound,
		},
		{
			name:       "storage failure is internal",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   model.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockSessionService{
				loadByShopFn: func(ctx context.Context, shop string) (model.ShopSessions, error) {
					if shop != ownShop {
						t.Errorf("shop = %q, want %q", shop, ownShop)
					}
					return tt.result, tt.err
				},
			}
			h := NewSessionHandler(svc)

			req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "shop", "Foo")
			w := httptest.NewRecorder()
			h.ListByShop(w, withShopUser(req, 1, ownShop))

			if tt.wantCode != "" {
				assertErrorCode(t, w, tt.wantStatus, tt.wantCode)
				return
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			assertNoAccessToken(t, w)
			env := decodeEnvelope(t, w)
			var sessions []model.ShopifySession
			if err := json.Unmarshal(env.Data, &sessions); err != nil {
				t.Fatalf("data decode: %v", err)
			}
			if len(sessions) != 2 {
				t.Errorf("len(sessions) = %d, want 2", len(sessions))
			}
		})
	}
}

func TestSessionHandler_Create(t *testing.T) {
	svc := &mockSessionService{
		loadFn: storedSessions,
		storeFn: func(ctx context.Context, sess *model.ShopifySession) (*model.ShopifySession, error) {
			if sess.ID != "offline_"+ownShop || sess.AccessToken == nil || *sess.AccessToken != "shpat" {
				t.Errorf("sess = %+v", sess)
			}
			return sess, nil
		},
	}
	h := NewSessionHandler(svc)

	body := `{"id":"offline_foo.myshopify.com","shop":"foo.myshopify.com","state":"s","isonline":false,"scope":"read_products","accesstoken":"shpat"}`
	req := httptest.NewRequest(http.MethodPost, "/api/shopify/sessions", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Create(w, withShopUser(req, 1, ownShop))

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	assertNoAccessToken(t, w)
}

func TestSessionHandler_Update(t *testing.T) {
	svc := &mockSessionService{
		loadFn: storedSessions,
		updateFn: func(ctx context.Context, id string, patch model.ShopifySessionPatch) (*model.ShopifySession, error) {
			if patch.Scope == nil || *patch.Scope != "read_orders" {
				t.Errorf("patch = %+v", patch)
			}
			token := "shpat_secret"
			return &model.ShopifySession{ID: id, Shop: ownShop, Scope: patch.Scope, AccessToken: &token}, nil
		},
	}
	h := NewSessionHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"scope":"read_orders"}`))
	req = withChiURLParam(req, "id", "offline_"+ownShop)
	w := httptest.NewRecorder()
	h.Update(w, withShopUser(req, 1, ownShop))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	assertNoAccessToken(t, w)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"scope":"read_orders"}`))
	req = withChiURLParam(req, "id", "missing")
	w = httptest.NewRecorder()
	h.Update(w, withShopUser(req, 1, ownShop))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeSessionNotFound)
}

func TestSessionHandler_Delete(t *testing.T) {
	svc := &mockSessionService{
		loadFn: storedSessions,
		deleteFn: func(ctx context.Context, id string) (bool, error) {
			return id == "offline_"+ownShop, nil
		},
	}
	h := NewSessionHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "id", "offline_"+ownShop)
	w := httptest.NewRecorder()
	h.Delete(w, withShopUser(req, 1, ownShop))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	req = withChiURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "id", "gone")
	w = httptest.NewRecorder()
	h.Delete(w, withShopUser(req, 1, ownShop))
	assertErrorCode(t, w, http.StatusNotFound, model.ErrCodeSessionNotFound)
}

func TestSessionHandler_DeleteByShop_ZeroIsSuccess(t *testing.T) {
	svc := &mockSessionService{
		deleteByShopFn: func(ctx context.Context, shop string) (int64, error) {
			return 0, nil
		},
	}
	h := NewSessionHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/", nil), "shop", ownShop)
	w := httptest.NewRecorder()
	h.DeleteByShop(w, withShopUser(req, 1, ownShop))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	if string(env.Data) != `{"deleted":0}` {
		t.Errorf("data = %s", env.Data)
	}
}

func TestSessionHandler_Exists(t *testing.T) {
	svc := &mockSessionService{
		loadFn: storedSessions,
		existsFn: func(ctx context.Context, id string) (bool, error) {
			return id == "offline_"+ownShop, nil
		},
	}
	h := NewSessionHandler(svc)

	for id, want := range map[string]string{
		"offline_" + ownShop: `{"exists":true}`,
		"x":                  `{"exists":false}`,
	} {
		req := withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", id)
		w := httptest.NewRecorder()
		h.Exists(w, withShopUser(req, 1, ownShop))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		env := decodeEnvelope(t, w)
		if string(env.Data) != want {
			t.Errorf("Exists(%q) data = %s, want %s", id, env.Data, want)
		}
	}
}

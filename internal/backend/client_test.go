package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/unlabel/internal/analysis"
	"github.com/vbonduro/unlabel/internal/domain"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Token(context.Context) (string, error) { return "", errors.New("locked") }

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/api/", 5*time.Second, tokens, slog.Default())
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ada@example.com", body["email"])
		assert.Equal(t, "secret", body["password"])
		_, hasName := body["name"]
		assert.False(t, hasName)

		writeJSON(t, w, map[string]string{"access_token": "a.b.c", "token_type": "bearer"})
	}, nil)

	token, err := client.Login(context.Background(), "ada@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", token)
}

func TestLoginInvalidCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Invalid credentials"}`))
	}, nil)

	_, err := client.Login(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "Invalid credentials", se.Detail)
	assert.True(t, IsUnauthorized(err))
}

func TestRegisterSendsName(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/register", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["name"])
		writeJSON(t, w, map[string]string{"access_token": "x.y.z"})
	}, nil)

	token, err := client.Register(context.Background(), "ada@example.com", "secret", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "x.y.z", token)
}

func TestLoginMissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]string{})
	}, nil)

	_, err := client.Login(context.Background(), "a@b.c", "pw")
	assert.Error(t, err)
}

func TestDecideAttachesTokenAndNormalizes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze/decision", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Is soda okay daily?", body["text"])
		_, hasIntent := body["user_intent"]
		assert.False(t, hasIntent)

		writeJSON(t, w, map[string]any{"verdict": "Limit Frequent Use"})
	}, staticToken("tok"))

	d, err := client.Decide(context.Background(), DecisionRequest{Text: "Is soda okay daily?"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictLimit, d.Verdict)
	assert.Equal(t, analysis.DefaultSummary, d.QuickInsight.Summary)
}

func TestDecideLegacyShapeIsSchemaMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"insight": "ok", "trade_offs": map[string]any{"pros": []string{}, "cons": []string{}}})
	}, nil)

	_, err := client.Decide(context.Background(), DecisionRequest{Text: "chips"})
	assert.ErrorIs(t, err, analysis.ErrSchemaMismatch)
}

func TestDecideOversizedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"verdict": "Daily", "key_signals": ["`))
		_, _ = w.Write([]byte(strings.Repeat("a", maxResponseSize)))
		_, _ = w.Write([]byte(`"]}`))
	}, nil)

	_, err := client.Decide(context.Background(), DecisionRequest{Text: "chips"})
	assert.ErrorIs(t, err, ErrResponseTooLarge)
	assert.NotErrorIs(t, err, analysis.ErrSchemaMismatch)
}

func TestDecideServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, nil)

	_, err := client.Decide(context.Background(), DecisionRequest{Text: "chips"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Detail)
}

func TestTokenSourceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}, failingToken{})

	_, err := client.Decide(context.Background(), DecisionRequest{Text: "chips"})
	assert.Error(t, err)
}

func TestAnalyzeImageMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		assert.Equal(t, "label.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("png-bytes"), data)

		writeJSON(t, w, map[string]any{
			"insight":            "Mostly oats",
			"detailed_reasoning": "Oats lead the list.",
			"trade_offs":         map[string]any{"pros": []string{"fiber"}, "cons": []string{}},
		})
	}, nil)

	a, err := client.AnalyzeImage(context.Background(), strings.NewReader("png-bytes"), "label.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Mostly oats", a.Insight)
	assert.Equal(t, []string{"fiber"}, a.TradeOffs.Pros)
}

func TestHistory(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze/history", r.URL.Path)
		writeJSON(t, w, []map[string]any{
			{"id": "1", "date": "2026-10-01", "time": "09:15", "title": nil, "preview": "Granola", "variant": "green"},
		})
	}, staticToken("tok"))

	entries, err := client.History(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Granola", entries[0].Preview)
	assert.Empty(t, entries[0].Title)
}

func TestSearchFood(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/food/search", r.URL.Path)
		assert.Equal(t, "peanut butter", r.URL.Query().Get("query"))
		writeJSON(t, w, map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"id": "123", "product_name": "Crunchy", "brands": "Acme", "image_url": nil, "nutrition_grade": "C", "ingredients_text": "peanuts"},
			},
		})
	}, nil)

	products, err := client.SearchFood(context.Background(), "  peanut butter ")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Crunchy", products[0].ProductName)
	assert.Nil(t, products[0].ImageURL)
}

func TestSearchFoodNoResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "error", "message": "No products found for 'zzz'.", "data": []any{}})
	}, nil)

	_, err := client.SearchFood(context.Background(), "zzz")
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "No products found")
}

func TestSearchFoodEmptyQuery(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil, slog.Default())
	_, err := client.SearchFood(context.Background(), "   ")
	assert.Error(t, err)
}

func TestProduct(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/food/product/3017620422003", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"status": "success",
			"data": map[string]any{
				"id": "3017620422003", "product_name": "Spread", "nova_group": 4,
				"additives_tags": []string{"en:e322"}, "nutriments": map[string]any{"sugars_100g": 56.3},
			},
		})
	}, nil)

	p, err := client.Product(context.Background(), "3017620422003")
	require.NoError(t, err)
	assert.Equal(t, "Spread", p.ProductName)
	require.NotNil(t, p.NovaGroup)
	assert.Equal(t, 4, *p.NovaGroup)
	assert.Equal(t, []string{"en:e322"}, p.AdditivesTags)
}

func TestProductNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"status": "error", "message": "Product not found.", "data": nil})
	}, nil)

	_, err := client.Product(context.Background(), "000")
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Product not found.", se.Message)
}

func TestProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profile", r.URL.Path)
		writeJSON(t, w, map[string]any{"id": "u1", "name": "Ada", "email": "ada@example.com"})
	}, staticToken("tok"))

	u, err := client.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
}

func TestNetworkError(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second, nil, slog.Default())
	_, err := client.History(context.Background())
	assert.Error(t, err)
}

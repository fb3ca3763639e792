package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/models"
	"github.com/oneboxhq/onebox/internal/repository"
)

func setupRouter(index interfaces.EmailIndex) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/emails", SearchEmails(index))
	r.GET("/emails/:id", GetEmail(index))
	r.PATCH("/emails/:id", UpdateEmail(index))
	r.POST("/emails/:id/interested", MarkInterested(index))
	r.DELETE("/emails/:id", DeleteEmail(index))
	return r
}

func seededIndex(t *testing.T) interfaces.EmailIndex {
	t.Helper()
	index := repository.NewInMemoryEmailIndex(50)
	err := index.Upsert(context.Background(), &models.Email{
		UID:       1,
		Account:   "user@example.com",
		Folder:    "INBOX",
		Subject:   "Invoice overdue",
		Sender:    "billing@vendor.com",
		Content:   "please pay",
		Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return index
}

func TestSearchEmailsReturnsPage(t *testing.T) {
	router := setupRouter(seededIndex(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emails?q=invoice", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var page interfaces.EmailPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Emails, 1)
	assert.Equal(t, "Invoice overdue", page.Emails[0].Subject)
}

func TestSearchEmailsRejectsBadFilter(t *testing.T) {
	router := setupRouter(seededIndex(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emails?interested=maybe", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetEmailNotFound(t *testing.T) {
	router := setupRouter(seededIndex(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/emails/user@example.com:999", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateEmailMergesFields(t *testing.T) {
	index := seededIndex(t)
	router := setupRouter(index)

	body := `{"is_read": true, "categories": ["billing"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/emails/user@example.com:1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	email, err := index.GetByID(context.Background(), "user@example.com:1")
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.True(t, email.IsRead)
	assert.Equal(t, "Invoice overdue", email.Subject)
}

func TestUpdateEmailRejectsEmptyBody(t *testing.T) {
	router := setupRouter(seededIndex(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/emails/user@example.com:1", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkInterestedDefaultsToTrue(t *testing.T) {
	index := seededIndex(t)
	router := setupRouter(index)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/emails/user@example.com:1/interested", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	email, err := index.GetByID(context.Background(), "user@example.com:1")
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.True(t, email.IsInterested)
}

func TestDeleteEmail(t *testing.T) {
	index := seededIndex(t)
	router := setupRouter(index)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/emails/user@example.com:1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/emails/user@example.com:1", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

package library

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hosa-study-board/internal/domain"
	apiError "hosa-study-board/internal/errors"
	"hosa-study-board/internal/middleware"
	"hosa-study-board/internal/projector"
	"hosa-study-board/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, q projector.Query, page, pageSize int) (*PaginatedRecords, error) {
	args := m.Called(ctx, q, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaginatedRecords), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, id string) (*RecordResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordResponse), args.Error(1)
}

func (m *MockService) Create(ctx context.Context, form RecordRequest) (*RecordResponse, error) {
	args := m.Called(ctx, form)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordResponse), args.Error(1)
}

func (m *MockService) Update(ctx context.Context, id string, form RecordRequest) (*RecordResponse, error) {
	args := m.Called(ctx, id, form)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RecordResponse), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockService) Export(ctx context.Context) (*Export, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Export), args.Error(1)
}

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	g := r.Group("/notes")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/export.csv", h.Export)
	g.POST("/clear", h.Clear)
	g.GET("/:id", h.Show)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	return r
}

func do(r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestList_PassesFilters(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	result := &PaginatedRecords{
		Data: []RecordResponse{{ID: "n1", Record: domain.Record{Title: "Lab", Tags: []string{}}}},
		Meta: utils.PageMeta{CurrentPage: 2, TotalPage: 2, Total: 6, PerPage: 5},
	}
	q := projector.Query{Text: "lab", Tags: []string{"bio", "exam"}}
	mockService.On("List", mock.Anything, q, 2, 5).Return(result, nil)

	w := do(router, http.MethodGet, "/notes?q=lab&tags=bio,%20exam&page=2&per_page=5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp PaginatedRecords
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "n1", resp.Data[0].ID)
	assert.Equal(t, 6, resp.Meta.Total)
	mockService.AssertExpectations(t)
}

func TestCreate_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	form := RecordRequest{Title: "Lab", URL: "https://lab"}
	mockService.On("Create", mock.Anything, form).
		Return(&RecordResponse{ID: "n1", Record: domain.Record{Title: "Lab", URL: "https://lab", Tags: []string{}, OpenNewTab: true, AddedAt: 5}}, nil)

	w := do(router, http.MethodPost, "/notes", form)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"n1","title":"Lab","url":"https://lab","description":"","tags":[],"openNewTab":true,"addedAt":5}`, w.Body.String())
}

func TestCreate_ValidationError(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	w := do(router, http.MethodPost, "/notes", gin.H{"title": "no url"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"url":"is required"`)
	mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestShow_NotFound(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Get", mock.Anything, "gone").Return(nil, apiError.NotFound("Record not found", nil))

	w := do(router, http.MethodGet, "/notes/gone", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdate_Success(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	form := RecordRequest{Title: "New", URL: "https://new"}
	mockService.On("Update", mock.Anything, "n1", form).Return(&RecordResponse{ID: "n1", Record: domain.Record{Title: "New"}}, nil)

	w := do(router, http.MethodPut, "/notes/n1", form)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestDelete_RequiresConfirm(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Delete", mock.Anything, "n1").Return(nil).Once()

	assert.Equal(t, http.StatusUnprocessableEntity, do(router, http.MethodDelete, "/notes/n1", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodDelete, "/notes/n1?confirm=true", nil).Code)
	mockService.AssertExpectations(t)
}

func TestClear_RequiresConfirm(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Clear", mock.Anything).Return(nil).Once()

	assert.Equal(t, http.StatusUnprocessableEntity, do(router, http.MethodPost, "/notes/clear", gin.H{"confirm": "yes"}).Code)
	assert.Equal(t, http.StatusNoContent, do(router, http.MethodPost, "/notes/clear", ConfirmRequest{Confirm: true}).Code)
	mockService.AssertExpectations(t)
}

func TestExport(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Export", mock.Anything).Return(&Export{Filename: "hosa_notes.csv", Body: []byte("Title\n")}, nil)

	w := do(router, http.MethodGet, "/notes/export.csv", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="hosa_notes.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Title\n", w.Body.String())
}

func TestExport_Empty(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter(NewHandler(mockService))

	mockService.On("Export", mock.Anything).Return(nil, apiError.UnprocessableEntity("No notes to export.", nil))

	w := do(router, http.MethodGet, "/notes/export.csv", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"message":"No notes to export."}`, w.Body.String())
}

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/interfaces/http/dto"
)

type listingQuery struct {
	Category string `form:"category" binding:"max=5"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
}

func validationRouter() *gin.Engine {
	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.GET("/products", func(c *gin.Context) {
		var q listingQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": q.Category})
	})
	return router
}

func TestHandleValidationError_ReportsFormFieldNames(t *testing.T) {
	router := validationRouter()

	req := httptest.NewRequest(http.MethodGet, "/products?category=Computadoras&page=-1", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-1", resp.Error.RequestID)

	fields := map[string]string{}
	for _, d := range resp.Error.Details {
		fields[d.Field] = d.Message
	}
	assert.Equal(t, "Must be at most 5 characters", fields["category"])
	assert.Equal(t, "Must be at least 1", fields["page"])
}

func TestHandleValidationError_MalformedNumber(t *testing.T) {
	router := validationRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products?page=abc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeValidation)
}

func TestHandleValidationError_ValidInput(t *testing.T) {
	router := validationRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/products?category=TV&page=2", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidationMessage(t *testing.T) {
	type input struct {
		Name  string `validate:"required"`
		ID    string `validate:"uuid"`
		Sort  string `validate:"oneof=asc desc"`
		Limit int    `validate:"lte=100"`
	}

	err := validator.New().Struct(input{ID: "nope", Sort: "up", Limit: 500})
	require.Error(t, err)

	got := map[string]string{}
	for _, e := range err.(validator.ValidationErrors) {
		got[e.Field()] = validationMessage(e)
	}
	assert.Equal(t, "This field is required", got["Name"])
	assert.Equal(t, "Invalid UUID format", got["ID"])
	assert.Equal(t, "Must be one of: asc desc", got["Sort"])
	assert.Equal(t, "Must be less than or equal to 100", got["Limit"])
}

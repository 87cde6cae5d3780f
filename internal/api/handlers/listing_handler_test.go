package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"relove/market/internal/api/handlers"
	"relove/market/internal/api/middleware"
	"relove/market/internal/config"
	"relove/market/internal/models"
	"relove/market/internal/services"
	"relove/market/internal/utils"
)

func testCfg() *config.Config {
	return &config.Config{
		DefaultPageSize:      20,
		MaxPageSize:          100,
		PublicSearchMaxLimit: 50,
		MaxTreeDepth:         6,
	}
}

// asPrincipal injects an authenticated principal the way AuthMiddleware would.
func asPrincipal(p models.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyPrincipal, p)
		c.Set(middleware.ContextKeyUserID, p.UserID.String())
		c.Set(middleware.ContextKeyIsAdmin, p.IsAdmin)
		c.Next()
	}
}

func TestListingHandler_Search(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	r := gin.New()
	r.GET("/v1/listing/search", handler.Search)

	next := utils.NewSixID().String()
	mockSvc.On("ListPublic", mock.Anything, mock.MatchedBy(func(f services.ListingFilter) bool {
		return f.Query == "bike" && f.PriceMax != nil && *f.PriceMax == 100
	}), "price_asc", "", 10).Return(&services.PublicResult{
		Items:      []services.PublicListing{{Title: "City Bike"}},
		NextCursor: &next,
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/search?q=bike&price_max=100&sort=price_asc&limit=10", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data       []services.PublicListing `json:"data"`
		NextCursor *string                  `json:"next_cursor"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, "City Bike", resp.Data[0].Title)
	assert.Equal(t, next, *resp.NextCursor)
	mockSvc.AssertExpectations(t)
}

func TestListingHandler_SearchBadPrice(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewListingHandler(new(MockListingService), nil, testCfg())

	r := gin.New()
	r.GET("/v1/listing/search", handler.Search)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/search?price_min=abc", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListingHandler_GetByIDAndSlug(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	r := gin.New()
	r.GET("/v1/listing/:id", handler.Get)

	listingID := utils.NewSixID()
	listing := &models.Listing{
		Base:   models.Base{ID: listingID},
		Title:  "Vintage Radio",
		Slug:   "vintage-radio",
		Status: models.ListingStatusActive,
	}
	mockSvc.On("FindByID", mock.Anything, listingID).Return(listing, nil)
	mockSvc.On("FindBySlug", mock.Anything, "vintage-radio").Return(listing, nil)

	// Lookup by id
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/"+listingID.String(), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Vintage Radio")

	// Lookup by slug through the same route
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/listing/vintage-radio", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestListingHandler_GetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	r := gin.New()
	r.GET("/v1/listing/:id", handler.Get)

	listingID := utils.NewSixID()
	mockSvc.On("FindByID", mock.Anything, listingID).Return(nil, models.ErrNotFound)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/listing/"+listingID.String(), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListingHandler_Create(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	actor := models.Principal{UserID: utils.NewSixID()}
	r := gin.New()
	r.POST("/v1/listing", asPrincipal(actor), handler.Create)

	categoryID := utils.NewSixID()
	created := &models.Listing{Base: models.NewBase(), Title: "Armchair"}
	mockSvc.On("Create", mock.Anything, actor, mock.MatchedBy(func(in services.CreateListingInput) bool {
		return in.Title == "Armchair" && in.CategoryID == categoryID
	})).Return(created, nil)

	body, _ := json.Marshal(services.CreateListingInput{
		CategoryID: categoryID,
		Title:      "Armchair",
		Price:      40,
		Currency:   models.CurrencyEUR,
		Condition:  models.ConditionFair,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestListingHandler_CreateQuotaExhausted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	actor := models.Principal{UserID: utils.NewSixID()}
	r := gin.New()
	r.POST("/v1/listing", asPrincipal(actor), handler.Create)

	mockSvc.On("Create", mock.Anything, actor, mock.Anything).
		Return(nil, &models.QuotaError{Quota: "listings", Remaining: 0})

	body, _ := json.Marshal(services.CreateListingInput{
		CategoryID: utils.NewSixID(),
		Title:      "One Too Many",
		Currency:   models.CurrencyUSD,
		Condition:  models.ConditionGood,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "listings", resp["quota"])
}

func TestListingHandler_DeleteForceRequiresAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	actor := models.Principal{UserID: utils.NewSixID()}
	r := gin.New()
	r.DELETE("/v1/listing/:id", asPrincipal(actor), handler.Delete)

	listingID := utils.NewSixID()

	// force=true from a non-admin never reaches the service
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/v1/listing/"+listingID.String()+"?force=true", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// plain soft delete goes through
	mockSvc.On("Remove", mock.Anything, actor, listingID, false).Return(nil)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/v1/listing/"+listingID.String(), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestListingHandler_BumpAndFeature(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	actor := models.Principal{UserID: utils.NewSixID()}
	r := gin.New()
	r.POST("/v1/listing/:id/bump", asPrincipal(actor), handler.Bump)
	r.POST("/v1/listing/:id/feature", asPrincipal(actor), handler.Feature)

	listingID := utils.NewSixID()
	listing := &models.Listing{Base: models.Base{ID: listingID}, Title: "Sofa"}
	mockSvc.On("Bump", mock.Anything, actor, listingID).Return(listing, nil)
	mockSvc.On("Feature", mock.Anything, actor, listingID, 3).Return(listing, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/bump", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/v1/listing/"+listingID.String()+"/feature", bytes.NewReader([]byte(`{"days":3}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestListingHandler_ListMineScopesToCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := new(MockListingService)
	handler := handlers.NewListingHandler(mockSvc, nil, testCfg())

	actor := models.Principal{UserID: utils.NewSixID()}
	r := gin.New()
	r.GET("/v1/my/listings", asPrincipal(actor), handler.ListMine)

	mockSvc.On("List", mock.Anything, mock.MatchedBy(func(f services.ListingFilter) bool {
		return f.UserID != nil && *f.UserID == actor.UserID
	}), "", 1, 0).Return(&services.ListResult{
		Items:      []models.Listing{},
		Pagination: services.Pagination{Page: 1, PageSize: 20},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/my/listings", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

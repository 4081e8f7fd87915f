package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"kasir/internal/handlers"
	"kasir/internal/middleware"
	"kasir/internal/models"
	"kasir/internal/repositories"
	"kasir/internal/services"
	"kasir/pkg/storage"
)

type testApp struct {
	app         *fiber.App
	productRepo repositories.ProductRepository
	userRepo    repositories.UserRepository
	tokens      map[models.Role]string
}

// setupApp builds the full application over a fresh in-memory SQLite
// database, seeds one user per role and logs each of them in.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.User{}))

	productRepo := repositories.NewGORMProductRepository(db)
	userRepo := repositories.NewGORMUserRepository(db)

	blobs, err := storage.NewLocal(t.TempDir(), services.MaxImageBytes)
	require.NoError(t, err)

	authService := services.NewAuthService(userRepo, "test_jwt_secret")
	productService := services.NewProductService(productRepo, blobs, nil)
	userService := services.NewUserService(userRepo)

	app := fiber.New()
	handlers.NewAuthHandler(authService).RegisterRoutes(app)
	secured := app.Group("", middleware.AuthRequired(authService))
	handlers.NewProductHandler(productService).RegisterRoutes(secured)
	handlers.NewUserHandler(userService).RegisterRoutes(secured)

	ta := &testApp{
		app:         app,
		productRepo: productRepo,
		userRepo:    userRepo,
		tokens:      make(map[models.Role]string),
	}
	for _, role := range []models.Role{models.RoleAdmin, models.RoleManager, models.RoleCashier} {
		email := fmt.Sprintf("%s@example.com", role)
		hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
		require.NoError(t, err)
		require.NoError(t, userRepo.Create(&models.User{
			Name:     string(role),
			Email:    email,
			Password: string(hashed),
			Role:     role,
		}))

		resp := ta.request(t, http.MethodPost, "/auth/login", "", fiber.Map{
			"email":    email,
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		token, _ := body["token"].(string)
		require.NotEmpty(t, token)
		ta.tokens[role] = token
	}
	return ta
}

func (ta *testApp) request(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestRoutesRequireAuthentication(t *testing.T) {
	ta := setupApp(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/products"},
		{http.MethodGet, "/products/low-stock"},
		{http.MethodGet, "/users"},
	} {
		resp := ta.request(t, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", route.method, route.path)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/auth/login", "", fiber.Map{
		"email":    "admin@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProductCreate_ByManager(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleManager], fiber.Map{
		"name":           "Widget",
		"price":          9.99,
		"stock_quantity": 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	product, ok := body["product"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, product["id"])
	assert.Equal(t, "Widget", product["name"])
	assert.Nil(t, product["image_path"])
}

func TestProductCreate_ForbiddenForCashier(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleCashier], fiber.Map{
		"name":           "Widget",
		"price":          9.99,
		"stock_quantity": 5,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// No record may have been written.
	products, _, err := ta.productRepo.List("", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestProductCreate_ValidationErrors(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleAdmin], fiber.Map{
		"price": -1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body, "name")
	assert.Contains(t, body, "price")
	assert.Contains(t, body, "stock_quantity")
}

func TestProductCreate_DuplicateBarcode(t *testing.T) {
	ta := setupApp(t)

	payload := fiber.Map{
		"name":           "Widget",
		"price":          9.99,
		"stock_quantity": 5,
		"barcode":        "4006381333931",
	}
	resp := ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleAdmin], payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	payload["name"] = "Other Widget"
	resp = ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleAdmin], payload)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body, "barcode")
}

func TestProductCreate_EmptyBarcodeTwice(t *testing.T) {
	ta := setupApp(t)

	for _, name := range []string{"First Widget", "Second Widget"} {
		resp := ta.request(t, http.MethodPost, "/products", ta.tokens[models.RoleAdmin], fiber.Map{
			"name":           name,
			"price":          9.99,
			"stock_quantity": 5,
			"barcode":        "",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "product %q", name)

		body := decodeBody(t, resp)
		product, ok := body["product"].(map[string]interface{})
		require.True(t, ok)
		assert.Nil(t, product["barcode"])
	}
}

func TestProductList_SearchAndPagination(t *testing.T) {
	ta := setupApp(t)

	for i := 0; i < 15; i++ {
		require.NoError(t, ta.productRepo.Create(&models.Product{
			Name:          fmt.Sprintf("Widget %02d", i),
			Price:         1,
			StockQuantity: 10,
		}))
	}
	require.NoError(t, ta.productRepo.Create(&models.Product{
		Name:          "Gadget",
		Price:         1,
		StockQuantity: 10,
	}))

	resp := ta.request(t, http.MethodGet, "/products", ta.tokens[models.RoleCashier], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(16), body["total"])
	assert.Len(t, body["data"], 10) // default page size

	resp = ta.request(t, http.MethodGet, "/products?search=Widget&per_page=5&page=2", ta.tokens[models.RoleCashier], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(15), body["total"])
	assert.Len(t, body["data"], 5)
}

func TestProductGet_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodGet, "/products/"+uuid.New().String(), ta.tokens[models.RoleCashier], nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductUpdate_Partial(t *testing.T) {
	ta := setupApp(t)

	product := &models.Product{Name: "Widget", Price: 9.99, StockQuantity: 50}
	require.NoError(t, ta.productRepo.Create(product))

	resp := ta.request(t, http.MethodPatch, "/products/"+product.ID, ta.tokens[models.RoleManager], fiber.Map{
		"stock_quantity": 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated, err := ta.productRepo.GetByID(product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget", updated.Name)
	assert.Equal(t, 9.99, updated.Price)
	assert.Equal(t, 3, updated.StockQuantity)
}

func TestProductDelete(t *testing.T) {
	ta := setupApp(t)

	product := &models.Product{Name: "Widget", Price: 9.99, StockQuantity: 50}
	require.NoError(t, ta.productRepo.Create(product))

	resp := ta.request(t, http.MethodDelete, "/products/"+product.ID, ta.tokens[models.RoleAdmin], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ta.request(t, http.MethodGet, "/products/"+product.ID, ta.tokens[models.RoleAdmin], nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProductLowStock(t *testing.T) {
	ta := setupApp(t)

	five := 5
	twenty := 20
	seed := []*models.Product{
		{Name: "Default threshold low", Price: 1, StockQuantity: 4},
		{Name: "Default threshold ok", Price: 1, StockQuantity: 5},
		{Name: "Custom threshold low", Price: 1, StockQuantity: 19, MinStockLevel: &twenty},
		{Name: "Custom threshold ok", Price: 1, StockQuantity: 5, MinStockLevel: &five},
	}
	for _, p := range seed {
		require.NoError(t, ta.productRepo.Create(p))
	}

	resp := ta.request(t, http.MethodGet, "/products/low-stock", ta.tokens[models.RoleCashier], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	defer resp.Body.Close()
	var products []models.Product
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&products))

	names := make([]string, 0, len(products))
	for _, p := range products {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"Default threshold low", "Custom threshold low"}, names)
}

func TestProductSearch(t *testing.T) {
	ta := setupApp(t)

	require.NoError(t, ta.productRepo.Create(&models.Product{
		Name: "Espresso Beans", Price: 1, StockQuantity: 10,
	}))
	barcode := "9002490100070"
	require.NoError(t, ta.productRepo.Create(&models.Product{
		Name: "Energy Drink", Price: 1, StockQuantity: 10, Barcode: &barcode,
	}))

	// Empty query is a 400 before any storage access.
	resp := ta.request(t, http.MethodGet, "/products/search?query=", ta.tokens[models.RoleCashier], nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ta.request(t, http.MethodGet, "/products/search?query=Espresso", ta.tokens[models.RoleCashier], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Espresso Beans")

	// Barcode substrings match too.
	resp = ta.request(t, http.MethodGet, "/products/search?query=900249", ta.tokens[models.RoleCashier], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Energy Drink")
}

func TestUserRoutes_AdminOnly(t *testing.T) {
	ta := setupApp(t)

	for _, role := range []models.Role{models.RoleManager, models.RoleCashier} {
		resp := ta.request(t, http.MethodGet, "/users", ta.tokens[role], nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = ta.request(t, http.MethodPost, "/users", ta.tokens[role], fiber.Map{
			"name":                  "Eve",
			"email":                 "eve@example.com",
			"password":              "password123",
			"password_confirmation": "password123",
			"role":                  "cashier",
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}

	// The rejected create must not have written anything.
	_, err := ta.userRepo.GetByEmail("eve@example.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserList_NeverExposesPasswords(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodGet, "/users", ta.tokens[models.RoleAdmin], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "admin@example.com")
	assert.NotContains(t, body, "password")
	assert.NotContains(t, body, "$2a$") // bcrypt hash prefix
}

func TestUserCreate(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/users", ta.tokens[models.RoleAdmin], fiber.Map{
		"name":                  "Eve",
		"email":                 "eve@example.com",
		"password":              "password123",
		"password_confirmation": "password123",
		"role":                  "cashier",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "eve@example.com", user["email"])
	assert.NotContains(t, user, "password")
}

func TestUserCreate_ShortPassword(t *testing.T) {
	ta := setupApp(t)

	resp := ta.request(t, http.MethodPost, "/users", ta.tokens[models.RoleAdmin], fiber.Map{
		"name":                  "Eve",
		"email":                 "eve@example.com",
		"password":              "short",
		"password_confirmation": "short",
		"role":                  "cashier",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "at least 8")
	assert.NotContains(t, body, "short") // submitted password never echoed back
}

func TestUserUpdate_RoleChange(t *testing.T) {
	ta := setupApp(t)

	user, err := ta.userRepo.GetByEmail("cashier@example.com")
	require.NoError(t, err)

	resp := ta.request(t, http.MethodPut, "/users/"+user.ID, ta.tokens[models.RoleAdmin], fiber.Map{
		"role": "manager",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated, err := ta.userRepo.GetByID(user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, updated.Role)
	assert.Equal(t, user.Password, updated.Password) // hash untouched
}

func TestUserDelete(t *testing.T) {
	ta := setupApp(t)

	user, err := ta.userRepo.GetByEmail("cashier@example.com")
	require.NoError(t, err)

	resp := ta.request(t, http.MethodDelete, "/users/"+user.ID, ta.tokens[models.RoleAdmin], nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = ta.userRepo.GetByID(user.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	resp = ta.request(t, http.MethodDelete, "/users/"+user.ID, ta.tokens[models.RoleAdmin], nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// newMultipart writes a multipart form with the given fields and one file,
// returning the Content-Type header value to use.
func newMultipart(t *testing.T, buf *bytes.Buffer, fields map[string]string, fileField, filename, contents string) string {
	t.Helper()
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile(fileField, filename)
	require.NoError(t, err)
	_, err = io.Copy(fw, strings.NewReader(contents))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType()
}

func TestProductCreate_MultipartWithImage(t *testing.T) {
	ta := setupApp(t)

	var buf bytes.Buffer
	form := newMultipart(t, &buf, map[string]string{
		"name":           "Imaged Widget",
		"price":          "19.99",
		"stock_quantity": "7",
	}, "image", "photo.png", strings.Repeat("p", 128))

	req := httptest.NewRequest(http.MethodPost, "/products", &buf)
	req.Header.Set("Content-Type", form)
	req.Header.Set("Authorization", "Bearer "+ta.tokens[models.RoleManager])

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	product, ok := body["product"].(map[string]interface{})
	require.True(t, ok)
	imagePath, _ := product["image_path"].(string)
	assert.True(t, strings.HasPrefix(imagePath, "products/"), "image_path %q", imagePath)
}

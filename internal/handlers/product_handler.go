package handlers

import (
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"kasir/internal/middleware"
	"kasir/internal/services"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service *services.ProductService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.ProductService) *ProductHandler {
	return &ProductHandler{
		service: service,
	}
}

// RegisterRoutes registers the product routes with the Fiber app. The
// low-stock and search routes are registered before ":id" so they are not
// captured as IDs.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	products := router.Group("/products")
	products.Get("/", h.HandleList)
	products.Post("/", h.HandleCreate)
	products.Get("/low-stock", h.HandleLowStock)
	products.Get("/search", h.HandleSearch)
	products.Get("/:id", h.HandleGet)
	products.Put("/:id", h.HandleUpdate)
	products.Patch("/:id", h.HandleUpdate)
	products.Delete("/:id", h.HandleDelete)
}

// HandleList returns a page of products, optionally filtered by the search
// query parameter.
func (h *ProductHandler) HandleList(c *fiber.Ctx) error {
	page, err := h.service.List(
		c.Query("search"),
		c.QueryInt("page", 1),
		c.QueryInt("per_page", services.DefaultPerPage),
	)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}

// HandleGet returns a single product.
func (h *ProductHandler) HandleGet(c *fiber.Ctx) error {
	product, err := h.service.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(product)
}

// HandleCreate creates a product from a JSON or multipart body. An image
// file may accompany a multipart request under the "image" field.
func (h *ProductHandler) HandleCreate(c *fiber.Ctx) error {
	var req services.CreateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	image, closeImage, err := imageFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Unable to read uploaded image",
			"error":   err.Error(),
		})
	}
	if closeImage != nil {
		defer closeImage()
	}

	product, err := h.service.Create(middleware.CallerRole(c), &req, image)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created successfully",
		"product": product,
	})
}

// HandleUpdate applies a partial update; fields absent from the body keep
// their stored values.
func (h *ProductHandler) HandleUpdate(c *fiber.Ctx) error {
	var req services.UpdateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
			"error":   err.Error(),
		})
	}

	image, closeImage, err := imageFromRequest(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Unable to read uploaded image",
			"error":   err.Error(),
		})
	}
	if closeImage != nil {
		defer closeImage()
	}

	product, err := h.service.Update(middleware.CallerRole(c), c.Params("id"), &req, image)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product updated successfully",
		"product": product,
	})
}

// HandleDelete removes a product and its stored image.
func (h *ProductHandler) HandleDelete(c *fiber.Ctx) error {
	if err := h.service.Delete(middleware.CallerRole(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}

// HandleLowStock returns all products below their minimum stock level.
func (h *ProductHandler) HandleLowStock(c *fiber.Ctx) error {
	products, err := h.service.LowStock()
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

// HandleSearch returns products matching the query parameter by name or
// barcode.
func (h *ProductHandler) HandleSearch(c *fiber.Ctx) error {
	products, err := h.service.Search(c.Query("query"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(products)
}

// imageFromRequest pulls the optional "image" file out of a multipart body.
// A JSON body, or a multipart body without the field, yields a nil upload.
func imageFromRequest(c *fiber.Ctx) (*services.ImageUpload, func(), error) {
	fh, err := c.FormFile("image")
	if err != nil {
		return nil, nil, nil
	}
	return openUpload(fh)
}

func openUpload(fh *multipart.FileHeader) (*services.ImageUpload, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, err
	}
	upload := &services.ImageUpload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Content:  f,
	}
	return upload, func() { f.Close() }, nil
}

package handler

import (
	"strconv"
	"strings"

	"go-inventory-ledger/internal/middleware"
	"go-inventory-ledger/internal/model"
	"go-inventory-ledger/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxImportFileSize = 10 << 20

type ImportHandler struct {
	service service.ImportService
	log     *zap.Logger
}

func NewImportHandler(s service.ImportService, log *zap.Logger) *ImportHandler {
	return &ImportHandler{service: s, log: log}
}

type importJSONRequest struct {
	Rows       []map[string]string `json:"rows"`
	HeaderRows *int                `json:"header_rows"`
}

// Import runs a bulk import of items, locations or stock movements. The body
// is either a multipart upload (field "file", .xlsx or .csv) or JSON rows.
// POST /api/v1/imports/:kind
func (h *ImportHandler) Import(c *fiber.Ctx) error {
	in := service.ImportInput{
		Kind:  service.ImportKind(c.Params("kind")),
		Actor: middleware.CurrentActor(c),
	}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		rows, err := h.readUpload(c)
		if err != nil {
			return respondError(c, h.log, err)
		}
		in.Rows = rows
		if v := c.FormValue("header_rows"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return c.Status(400).JSON(fiber.Map{"error": "header_rows must be a non-negative integer"})
			}
			in.HeaderRows = &n
		}
	} else {
		var req importJSONRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid JSON"})
		}
		in.Rows = make([]service.Row, len(req.Rows))
		for i, r := range req.Rows {
			in.Rows[i] = service.Row(r)
		}
		in.HeaderRows = req.HeaderRows
	}

	res, err := h.service.Import(c.UserContext(), in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(res)
}

func (h *ImportHandler) readUpload(c *fiber.Ctx) ([]service.Row, error) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, &model.ValidationError{Field: "file", Message: "file is required"}
	}
	if header.Size > maxImportFileSize {
		return nil, &model.ValidationError{Field: "file", Message: "file is larger than 10MB"}
	}
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h.log.Debug("import upload", zap.String("filename", header.Filename), zap.Int64("size", header.Size))
	return service.ReadRows(header.Filename, f)
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

// The Mini App identifies the user by the Telegram id it reads from the WebApp init data.

type logViewRequest struct {
	UserID     int64 `json:"user_id"`
	QuestionID int64 `json:"question_id"`
}

type invoiceRequest struct {
	UserID    int64 `json:"user_id"`
	BlockID   int64 `json:"block_id"`
	AllBlocks bool  `json:"all_blocks"`
}

type invoiceResponse struct {
	OK        bool   `json:"ok"`
	Granted   bool   `json:"granted"`
	BlockID   *int64 `json:"block_id,omitempty"`
	AllBlocks bool   `json:"all_blocks"`
}

func (h *handlers) design(c echo.Context) error {
	design, err := h.deps.Catalog.GetDesign(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, design)
}

func (h *handlers) blocks(c echo.Context) error {
	userID, err := queryID(c, "user_id", false)
	if err != nil {
		return err
	}

	blocks, err := h.deps.Access.ListBlocks(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if blocks == nil {
		blocks = []domain.BlockAccess{}
	}
	return c.JSON(http.StatusOK, blocks)
}

func (h *handlers) questions(c echo.Context) error {
	blockID, err := queryID(c, "block_id", true)
	if err != nil {
		return err
	}
	userID, err := queryID(c, "user_id", false)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	allowed, err := h.deps.Access.HasAccess(ctx, userID, blockID)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.NewForbiddenError("block is not purchased")
	}

	questions, err := h.deps.Catalog.ListQuestions(ctx, blockID)
	if err != nil {
		return err
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	return c.JSON(http.StatusOK, questions)
}

func (h *handlers) logView(c echo.Context) error {
	var req logViewRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.UserID <= 0 || req.QuestionID <= 0 {
		return apperrors.NewValidationError("user_id and question_id are required")
	}

	if err := h.deps.Catalog.LogView(c.Request().Context(), req.UserID, req.QuestionID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *handlers) allBlocksPrice(c echo.Context) error {
	price, err := h.deps.Ledger.BundlePrice(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"price": price})
}

func (h *handlers) createInvoice(c echo.Context) error {
	var req invoiceRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	if req.AllBlocks {
		grant, err := h.deps.Ledger.GrantAllBlocks(ctx, req.UserID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, invoiceResponse{OK: true, Granted: grant.Granted, AllBlocks: true})
	}

	grant, err := h.deps.Ledger.GrantBlock(ctx, req.UserID, req.BlockID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, invoiceResponse{OK: true, Granted: grant.Granted, BlockID: grant.BlockID})
}

// queryID parses a positive integer query parameter. An absent optional parameter is 0.
func queryID(c echo.Context, name string, required bool) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		if required {
			return 0, apperrors.NewValidationError(name + " is required")
		}
		return 0, nil
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(name + " must be a positive integer")
	}
	return id, nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("id must be a positive integer")
	}
	return id, nil
}

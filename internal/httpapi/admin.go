package httpapi

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/zanti495-bot/web-bot-outloud/internal/admin"
	"github.com/zanti495-bot/web-bot-outloud/internal/catalog"
	"github.com/zanti495-bot/web-bot-outloud/internal/domain"
	apperrors "github.com/zanti495-bot/web-bot-outloud/internal/errors"
)

type loginRequest struct {
	Password string `json:"password"`
}

func (h *handlers) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Password == "" {
		return apperrors.NewValidationError("password is required")
	}

	session, err := h.deps.Auth.Login(c.Request().Context(), req.Password)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     admin.CookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, session)
}

func (h *handlers) logout(c echo.Context) error {
	if token := sessionToken(c); token != "" {
		if err := h.deps.Auth.Logout(c.Request().Context(), token); err != nil {
			return err
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     admin.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.deps.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) stats(c echo.Context) error {
	stats, err := h.deps.Catalog.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (h *handlers) listBlocks(c echo.Context) error {
	blocks, err := h.deps.Catalog.ListBlocks(c.Request().Context())
	if err != nil {
		return err
	}
	if blocks == nil {
		blocks = []domain.Block{}
	}
	return c.JSON(http.StatusOK, blocks)
}

func (h *handlers) getBlock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	block, err := h.deps.Catalog.GetBlock(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, block)
}

func (h *handlers) createBlock(c echo.Context) error {
	var in catalog.BlockInput
	if err := c.Bind(&in); err != nil {
		return err
	}

	block, err := h.deps.Catalog.CreateBlock(c.Request().Context(), actorID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, block)
}

func (h *handlers) updateBlock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in catalog.BlockInput
	if err := c.Bind(&in); err != nil {
		return err
	}

	block, err := h.deps.Catalog.UpdateBlock(c.Request().Context(), actorID(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, block)
}

func (h *handlers) deleteBlock(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.deps.Catalog.DeleteBlock(c.Request().Context(), actorID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) listQuestions(c echo.Context) error {
	blockID, err := pathID(c)
	if err != nil {
		return err
	}

	questions, err := h.deps.Catalog.ListQuestions(c.Request().Context(), blockID)
	if err != nil {
		return err
	}
	if questions == nil {
		questions = []domain.Question{}
	}
	return c.JSON(http.StatusOK, questions)
}

func (h *handlers) getQuestion(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	question, err := h.deps.Catalog.GetQuestion(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, question)
}

func (h *handlers) createQuestion(c echo.Context) error {
	blockID, err := pathID(c)
	if err != nil {
		return err
	}
	var in catalog.QuestionInput
	if err := c.Bind(&in); err != nil {
		return err
	}

	question, err := h.deps.Catalog.CreateQuestion(c.Request().Context(), actorID(c), blockID, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, question)
}

func (h *handlers) updateQuestion(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in catalog.QuestionInput
	if err := c.Bind(&in); err != nil {
		return err
	}

	question, err := h.deps.Catalog.UpdateQuestion(c.Request().Context(), actorID(c), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, question)
}

func (h *handlers) deleteQuestion(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.deps.Catalog.DeleteQuestion(c.Request().Context(), actorID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) getDesign(c echo.Context) error {
	return h.design(c)
}

func (h *handlers) updateDesign(c echo.Context) error {
	var changes domain.Design
	if err := c.Bind(&changes); err != nil {
		return err
	}

	design, err := h.deps.Catalog.UpdateDesign(c.Request().Context(), actorID(c), changes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, design)
}

func (h *handlers) audit(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("limit must be an integer")
		}
		limit = n
	}

	entries, err := h.deps.Catalog.RecentAudit(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []domain.AuditLog{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *handlers) clearAudit(c echo.Context) error {
	removed, err := h.deps.Catalog.ClearAudit(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": removed})
}

func (h *handlers) purgeViews(c echo.Context) error {
	removed, err := h.deps.Catalog.PurgeViews(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": removed})
}

// exportUsers buffers the CSV so a storage failure still produces an error response.
func (h *handlers) exportUsers(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.deps.Users.ExportCSV(c.Request().Context(), &buf); err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="users.csv"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

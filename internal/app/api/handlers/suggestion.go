package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/internal/app/service/suggestion"
	"github.com/fatflowers/tipy/internal/models"
	"github.com/fatflowers/tipy/pkg/response"
)

type SuggestionService interface {
	ResolveQRCode(ctx context.Context, code string) (*suggestion.QRCodeView, error)
	CreateSuggestion(ctx context.Context, req *suggestion.CreateSuggestionRequest) (*models.Recommendation, error)
	ListSuggestions(ctx context.Context, djID string, filter suggestion.Filter) ([]*suggestion.SuggestionItem, error)
	AcceptSuggestion(ctx context.Context, djID, id string) error
	RejectSuggestion(ctx context.Context, djID, id string) (*suggestion.RejectResult, error)
	GetSuggestionConfig(ctx context.Context, djID string) (*models.SuggestionConfig, error)
	UpdateSuggestionConfig(ctx context.Context, djID string, req *suggestion.UpdateConfigRequest) (*models.SuggestionConfig, error)
}

// @Summary      Resolve QR Code
// @Description  Returns the DJ behind a QR code and whether it currently accepts suggestions.
// @Tags         Suggestion
// @Produce      json
// @Param        code path string true "QR code"
// @Success      200  {object}  handlers.RespQRCode
// @Router       /api/v1/qr/{code} [get]
func ApiResolveQRCode(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.ResolveQRCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			writeError(c, log, "qr_resolve_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Create Suggestion
// @Description  Submits a song suggestion through a QR code. Priority suggestions are accepted immediately.
// @Tags         Suggestion
// @Accept       json
// @Produce      json
// @Param        request body suggestion.CreateSuggestionRequest true "Suggestion"
// @Success      200  {object}  handlers.RespRecommendation
// @Router       /api/v1/suggestions [post]
func ApiCreateSuggestion(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req suggestion.CreateSuggestionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.CreateSuggestion(c.Request.Context(), &req)
		if err != nil {
			writeError(c, log, "suggestion_create_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Suggestions (DJ)
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Param        filter query string false "pending (default), accepted or all"
// @Success      200  {object}  handlers.RespSuggestions
// @Router       /api/v1/dj/suggestions [get]
func ApiListSuggestions(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := suggestion.ParseFilter(c.Query("filter"))
		if err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.ListSuggestions(c.Request.Context(), djID(c), filter)
		if err != nil {
			writeError(c, log, "suggestion_list_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Accept Suggestion (DJ)
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Suggestion id"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/dj/suggestions/{id}/accept [post]
func ApiAcceptSuggestion(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.AcceptSuggestion(c.Request.Context(), djID(c), c.Param("id")); err != nil {
			writeError(c, log, "suggestion_accept_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Reject Suggestion (DJ)
// @Description  Deletes the suggestion. Paid suggestions are refunded first; a failed refund is reported but the suggestion is still removed.
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Suggestion id"
// @Success      200  {object}  handlers.RespReject
// @Failure      502  {object}  handlers.RespReject
// @Router       /api/v1/dj/suggestions/{id}/reject [post]
func ApiRejectSuggestion(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.RejectSuggestion(c.Request.Context(), djID(c), c.Param("id"))
		if err != nil {
			if res != nil {
				writeErrorData(c, log, "suggestion_reject_failed", err, res)
				return
			}
			writeError(c, log, "suggestion_reject_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Suggestion Config (DJ)
// @Tags         DJ
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  handlers.RespSuggestionConfig
// @Router       /api/v1/dj/suggestion_config [get]
func ApiGetSuggestionConfig(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := svc.GetSuggestionConfig(c.Request.Context(), djID(c))
		if err != nil {
			writeError(c, log, "suggestion_config_get_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Update Suggestion Config (DJ)
// @Tags         DJ
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body suggestion.UpdateConfigRequest true "Fields to change"
// @Success      200  {object}  handlers.RespSuggestionConfig
// @Router       /api/v1/dj/suggestion_config [put]
func ApiUpdateSuggestionConfig(svc SuggestionService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req suggestion.UpdateConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		res, err := svc.UpdateSuggestionConfig(c.Request.Context(), djID(c), &req)
		if err != nil {
			writeError(c, log, "suggestion_config_update_failed", err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterSuggestionRoutes(r gin.IRouter, svc SuggestionService, log *zap.SugaredLogger) {
	r.GET("/qr/:code", ApiResolveQRCode(svc, log))
	r.POST("/suggestions", ApiCreateSuggestion(svc, log))
}

func RegisterDJSuggestionRoutes(r gin.IRouter, svc SuggestionService, log *zap.SugaredLogger) {
	r.GET("/suggestions", ApiListSuggestions(svc, log))
	r.POST("/suggestions/:id/accept", ApiAcceptSuggestion(svc, log))
	r.POST("/suggestions/:id/reject", ApiRejectSuggestion(svc, log))
	r.GET("/suggestion_config", ApiGetSuggestionConfig(svc, log))
	r.PUT("/suggestion_config", ApiUpdateSuggestionConfig(svc, log))
}

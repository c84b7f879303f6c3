package handler

import (
	"context"
	"errors"
	"net/http"

	"forge/internal/common"
	"forge/internal/pipeline"
	"forge/internal/server/middleware"
	"forge/pkg/api"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PipelineService is the slice of the orchestrator the HTTP layer needs.
type PipelineService interface {
	Start(ctx context.Context, req pipeline.GenerationRequest) (*pipeline.Pipeline, error)
	Status(ctx context.Context, id string) (*pipeline.Pipeline, error)
	List(ctx context.Context, filter pipeline.ListFilter) ([]*pipeline.Pipeline, error)
}

type PipelineHandler struct {
	svc    PipelineService
	logger *zap.Logger
}

func NewPipelineHandler(svc PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{svc: svc, logger: logger}
}

func (h *PipelineHandler) CreatePipeline(c *gin.Context) {
	var req pipeline.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, common.NewErrNo(common.REQUEST_INVALID))
		return
	}
	req.UserID = middleware.UserID(c)

	p, err := h.svc.Start(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrValidation) {
			common.Error(c, common.WithMsg(common.GENERATION_REQUEST_INVALID, err.Error()))
			return
		}
		h.logger.Error("fail to start pipeline", zap.String("asset_name", req.Name), zap.Error(err))
		common.Error(c, common.NewErrNo(common.PIPELINE_START_FAIL))
		return
	}

	common.Success(c, api.StartPipelineResponse{
		PipelineID: p.ID,
		Status:     p.Status,
		Message:    "pipeline started",
	})
}

func (h *PipelineHandler) GetPipeline(c *gin.Context) {
	id := c.Param("id")
	p, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			common.Error(c, common.NewErrNo(common.PIPELINE_NOT_EXISTS))
			return
		}
		h.logger.Error("fail to read pipeline", zap.String("pipeline_id", id), zap.Error(err))
		common.Error(c, common.NewErrNo(common.PIPELINE_STATUS_FAIL))
		return
	}
	common.Success(c, p)
}

// ListPipelines returns the caller's pipelines, or every pipeline for an
// anonymous caller. ?status= narrows the result.
func (h *PipelineHandler) ListPipelines(c *gin.Context) {
	var query struct {
		Status string `form:"status"`
		Limit  int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil || query.Limit < 0 {
		common.Error(c, common.NewErrNo(common.REQUEST_INVALID))
		return
	}
	status := pipeline.Status(query.Status)
	if status != "" && !status.Valid() {
		common.Error(c, common.WithMsg(common.REQUEST_INVALID, "unknown status "+query.Status))
		return
	}
	limit := query.Limit
	if limit == 0 || limit > 200 {
		limit = 50
	}

	pipelines, err := h.svc.List(c.Request.Context(), pipeline.ListFilter{
		UserID: middleware.UserID(c),
		Status: status,
		Limit:  limit,
	})
	if err != nil {
		h.logger.Error("fail to list pipelines", zap.Error(err))
		common.Error(c, common.NewErrNo(common.PIPELINE_LIST_FAIL))
		return
	}

	out := api.PipelineList{Pipelines: make([]api.PipelineBrief, 0, len(pipelines))}
	for _, p := range pipelines {
		out.Pipelines = append(out.Pipelines, api.Brief(p))
	}
	common.Success(c, out)
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

/*
 * @module api/controllers/correction_controller
 * @description 修正流水线控制器，提供批量检测与批量修正接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow HTTP请求 -> 参数校验 -> 流水线执行 -> 统一响应
 * @rules 单条记录失败只体现在该条结果中，接口整体不报错；dry_run模式不落库
 * @dependencies github.com/go-chi/render, service/correction
 * @refs service/correction/pipeline.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"dataquality-service/service"
	"dataquality-service/service/models"

	"github.com/go-chi/render"
)

// CorrectionController 修正流水线控制器
type CorrectionController struct{}

// NewCorrectionController 创建修正流水线控制器实例
func NewCorrectionController() *CorrectionController {
	return &CorrectionController{}
}

// DetectRequest 批量检测请求
type DetectRequest struct {
	Records []map[string]interface{} `json:"records" binding:"required"`
}

// CorrectRequest 批量修正请求
type CorrectRequest struct {
	DatasetID string                   `json:"dataset_id" binding:"required" example:"ds_customers"`
	Records   []map[string]interface{} `json:"records" binding:"required"`
	DryRun    bool                     `json:"dry_run" example:"false"`
}

// Detect 批量检测
// @Summary 批量检测数据不一致
// @Description 对一批记录执行六类规则检测，只返回发现项不做任何修正或落库
// @Tags 修正流水线
// @Accept json
// @Produce json
// @Param request body DetectRequest true "检测请求"
// @Success 200 {object} APIResponse "检测成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Router /correction/detect [post]
func (c *CorrectionController) Detect(w http.ResponseWriter, r *http.Request) {
	var req DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if len(req.Records) == 0 {
		render.JSON(w, r, BadRequestResponse("记录列表不能为空", nil))
		return
	}

	outcomes := service.GlobalPipeline.Detect(req.Records)
	render.JSON(w, r, SuccessResponse("检测完成", outcomes))
}

// Correct 批量修正
// @Summary 批量修正数据不一致
// @Description 对一批记录执行检测、候选生成与决策，高置信修正自动应用，其余生成人工校验任务
// @Tags 修正流水线
// @Accept json
// @Produce json
// @Param request body CorrectRequest true "修正请求"
// @Success 200 {object} APIResponse "修正成功"
// @Failure 400 {object} APIResponse "请求参数错误"
// @Failure 500 {object} APIResponse "服务器内部错误"
// @Router /correction/correct [post]
func (c *CorrectionController) Correct(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.DatasetID == "" {
		render.JSON(w, r, BadRequestResponse("数据集ID不能为空", nil))
		return
	}
	if len(req.Records) == 0 {
		render.JSON(w, r, BadRequestResponse("记录列表不能为空", nil))
		return
	}

	result, err := service.GlobalPipeline.Correct(r.Context(), req.DatasetID, req.Records, req.DryRun)
	if err != nil {
		if models.ErrorCode(err) == models.ErrCodeRuleLoad {
			render.JSON(w, r, ErrorResponse(http.StatusServiceUnavailable, "规则集不可用", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("批量修正失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("修正完成", result))
}

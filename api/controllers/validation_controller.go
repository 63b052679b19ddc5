/*
 * @module api/controllers/validation_controller
 * @description 人工校验任务控制器，提供任务列表、认领、开始与结论提交接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow HTTP请求 -> 参数校验 -> 工作流状态机 -> 统一响应
 * @rules 并发认领冲突返回VALIDATION_CONFLICT，非法状态迁移返回INVALID_TRANSITION
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, service/validation
 * @refs service/validation/workflow.go
 */

package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dataquality-service/service"
	"dataquality-service/service/models"
	"dataquality-service/service/validation"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ValidationController 校验任务控制器
type ValidationController struct{}

// NewValidationController 创建校验任务控制器实例
func NewValidationController() *ValidationController {
	return &ValidationController{}
}

// ClaimRequest 任务认领请求
type ClaimRequest struct {
	Validator string `json:"validator" binding:"required" example:"alice"`
}

// SubmitTaskRequest 校验结论提交请求
type SubmitTaskRequest struct {
	Validator  string      `json:"validator" binding:"required" example:"alice"`
	Action     string      `json:"action" binding:"required" example:"accept"` // accept/reject/modify
	FinalValue interface{} `json:"final_value,omitempty"`
}

// workflowErrorResponse 工作流错误码到响应的映射
func workflowErrorResponse(msg string, err error) *APIResponse {
	switch models.ErrorCode(err) {
	case models.ErrCodeValidationConflict:
		return ConflictResponse(msg, err)
	case models.ErrCodeInvalidTransition:
		return BadRequestResponse(msg, err)
	default:
		return InternalErrorResponse(msg, err)
	}
}

// ListTasks 获取校验任务列表
// @Summary 获取校验任务列表
// @Description 按数据集、状态、认领人过滤，优先级高且创建早的任务排前
// @Tags 人工校验
// @Produce json
// @Param dataset_id query string false "数据集ID"
// @Param status query string false "任务状态" Enums(pending, assigned, in_progress, completed, rejected)
// @Param validator query string false "认领人"
// @Param page query int false "页码" default(1)
// @Param size query int false "每页大小" default(20)
// @Success 200 {object} PaginatedResponse{data=[]models.ValidationTask} "获取成功"
// @Router /validation/tasks [get]
func (c *ValidationController) ListTasks(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	filter := &validation.ListFilter{
		DatasetID: r.URL.Query().Get("dataset_id"),
		Status:    r.URL.Query().Get("status"),
		Validator: r.URL.Query().Get("validator"),
		Page:      page,
		Size:      size,
	}

	tasks, total, err := service.GlobalWorkflow.List(filter)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询任务列表失败", err))
		return
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Size <= 0 {
		filter.Size = 20
	}
	render.JSON(w, r, NewPaginatedResponse("获取任务列表成功", tasks, total, filter.Page, filter.Size))
}

// GetTask 获取任务详情
// @Summary 获取校验任务详情
// @Tags 人工校验
// @Produce json
// @Param id path string true "任务ID"
// @Success 200 {object} APIResponse{data=models.ValidationTask} "获取成功"
// @Failure 400 {object} APIResponse "任务不存在"
// @Router /validation/tasks/{id} [get]
func (c *ValidationController) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		render.JSON(w, r, BadRequestResponse("任务ID不能为空", nil))
		return
	}

	task, err := service.GlobalWorkflow.Get(taskID)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("任务不存在", err))
		return
	}
	render.JSON(w, r, SuccessResponse("获取任务成功", task))
}

// ClaimTask 认领任务
// @Summary 认领校验任务
// @Description 将pending状态的任务认领给指定校验人，并发竞争失败返回冲突
// @Tags 人工校验
// @Accept json
// @Produce json
// @Param id path string true "任务ID"
// @Param request body ClaimRequest true "认领请求"
// @Success 200 {object} APIResponse{data=models.ValidationTask} "认领成功"
// @Failure 409 {object} APIResponse "任务已被认领"
// @Router /validation/tasks/{id}/claim [post]
func (c *ValidationController) ClaimTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		render.JSON(w, r, BadRequestResponse("任务ID不能为空", nil))
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.Validator == "" {
		render.JSON(w, r, BadRequestResponse("认领人不能为空", nil))
		return
	}

	task, err := service.GlobalWorkflow.Claim(r.Context(), taskID, req.Validator)
	if err != nil {
		render.JSON(w, r, workflowErrorResponse("认领任务失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("认领任务成功", task))
}

// StartTask 开始处理任务
// @Summary 开始处理校验任务
// @Description 认领人将assigned状态的任务推进到in_progress
// @Tags 人工校验
// @Accept json
// @Produce json
// @Param id path string true "任务ID"
// @Param request body ClaimRequest true "开始请求"
// @Success 200 {object} APIResponse{data=models.ValidationTask} "开始成功"
// @Failure 409 {object} APIResponse "任务已被他人认领"
// @Router /validation/tasks/{id}/start [post]
func (c *ValidationController) StartTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		render.JSON(w, r, BadRequestResponse("任务ID不能为空", nil))
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}

	task, err := service.GlobalWorkflow.Start(r.Context(), taskID, req.Validator)
	if err != nil {
		render.JSON(w, r, workflowErrorResponse("开始处理任务失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("开始处理任务成功", task))
}

// SubmitTask 提交校验结论
// @Summary 提交校验结论
// @Description accept采纳建议值，modify写入人工修改值，reject保留原值；完成的校验自动沉淀训练样本
// @Tags 人工校验
// @Accept json
// @Produce json
// @Param id path string true "任务ID"
// @Param request body SubmitTaskRequest true "提交请求"
// @Success 200 {object} APIResponse{data=models.ValidationTask} "提交成功"
// @Failure 400 {object} APIResponse "非法状态迁移"
// @Failure 409 {object} APIResponse "任务状态已被并发修改"
// @Router /validation/tasks/{id}/submit [post]
func (c *ValidationController) SubmitTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	if taskID == "" {
		render.JSON(w, r, BadRequestResponse("任务ID不能为空", nil))
		return
	}

	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.Action == "" {
		render.JSON(w, r, BadRequestResponse("提交动作不能为空", nil))
		return
	}

	task, err := service.GlobalWorkflow.Submit(r.Context(), &validation.SubmitRequest{
		TaskID:     taskID,
		Validator:  req.Validator,
		Action:     req.Action,
		FinalValue: req.FinalValue,
	})
	if err != nil {
		render.JSON(w, r, workflowErrorResponse("提交校验结论失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("提交校验结论成功", task))
}

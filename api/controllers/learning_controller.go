/*
 * @module api/controllers/learning_controller
 * @description 学习反馈环控制器，提供重训练触发、取消与精度趋势查询接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow HTTP请求 -> 单飞校验 -> 重训练/查询 -> 统一响应
 * @rules 训练进行中再次触发返回RETRAIN_IN_PROGRESS，触发被忽略而非排队
 * @dependencies github.com/go-chi/render, service/learning
 * @refs service/learning/feedback.go
 */

package controllers

import (
	"context"
	"net/http"
	"strconv"

	"dataquality-service/service"
	"dataquality-service/service/models"

	"github.com/go-chi/render"
)

// LearningController 学习反馈环控制器
type LearningController struct{}

// NewLearningController 创建学习反馈环控制器实例
func NewLearningController() *LearningController {
	return &LearningController{}
}

// Retrain 手动触发重训练
// @Summary 手动触发模型重训练
// @Description 同步执行重训练，完成后返回；训练进行中再次触发返回冲突
// @Tags 学习反馈
// @Produce json
// @Success 200 {object} APIResponse "重训练完成"
// @Failure 409 {object} APIResponse "重训练进行中"
// @Failure 500 {object} APIResponse "重训练失败"
// @Router /learning/retrain [post]
func (c *LearningController) Retrain(w http.ResponseWriter, r *http.Request) {
	// 用独立上下文执行，客户端断开不中止训练，取消走专门接口
	if err := service.GlobalLearningLoop.Retrain(context.Background()); err != nil {
		if models.ErrorCode(err) == models.ErrCodeRetrainInProgress {
			render.JSON(w, r, ConflictResponse("重训练进行中", err))
			return
		}
		render.JSON(w, r, InternalErrorResponse("重训练失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("重训练完成", nil))
}

// CancelRetrain 取消进行中的重训练
// @Summary 取消进行中的重训练
// @Tags 学习反馈
// @Produce json
// @Success 200 {object} APIResponse "取消结果"
// @Router /learning/retrain/cancel [post]
func (c *LearningController) CancelRetrain(w http.ResponseWriter, r *http.Request) {
	if service.GlobalLearningLoop.CancelRetrain() {
		render.JSON(w, r, SuccessResponse("重训练已取消", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("当前无进行中的重训练", nil))
}

// PendingExamples 查询待训练样本数
// @Summary 查询待训练样本数
// @Description 返回上次训练启动后沉淀的训练样本数量
// @Tags 学习反馈
// @Produce json
// @Success 200 {object} APIResponse "查询成功"
// @Router /learning/pending-examples [get]
func (c *LearningController) PendingExamples(w http.ResponseWriter, r *http.Request) {
	pending, err := service.GlobalLearningLoop.PendingExamples()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询待训练样本数失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", map[string]interface{}{
		"pending_examples": pending,
	}))
}

// AccuracyTrend 查询模型精度趋势
// @Summary 查询模型精度趋势
// @Description 返回历史模型版本的留出集精度与相邻版本差值，失败与取消的版本不计入
// @Tags 学习反馈
// @Produce json
// @Param window query int false "返回的版本数" default(20)
// @Success 200 {object} APIResponse{data=[]learning.TrendPoint} "查询成功"
// @Router /learning/accuracy-trend [get]
func (c *LearningController) AccuracyTrend(w http.ResponseWriter, r *http.Request) {
	window, _ := strconv.Atoi(r.URL.Query().Get("window"))
	points, err := service.GlobalLearningLoop.AccuracyTrend(window)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询精度趋势失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", points))
}

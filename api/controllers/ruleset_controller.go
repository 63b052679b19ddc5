/*
 * @module api/controllers/ruleset_controller
 * @description 规则集控制器，提供当前规则查询、版本管理与热重载接口
 * @architecture MVC架构 - 控制器层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow HTTP请求 -> 规则仓库操作 -> 统一响应
 * @rules 重载失败时旧版本继续生效，接口返回RULE_LOAD_ERROR但服务不中断
 * @dependencies github.com/go-chi/render, service/ruleset
 * @refs service/ruleset/repository.go
 */

package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dataquality-service/service"
	"dataquality-service/service/ruleset"

	"github.com/go-chi/render"
)

// RuleSetController 规则集控制器
type RuleSetController struct{}

// NewRuleSetController 创建规则集控制器实例
func NewRuleSetController() *RuleSetController {
	return &RuleSetController{}
}

// CreateRuleSetRequest 规则集版本创建请求
type CreateRuleSetRequest struct {
	Name       string              `json:"name" binding:"required" example:"tightened-thresholds"`
	Definition *ruleset.Definition `json:"definition" binding:"required"`
	CreatedBy  string              `json:"created_by" example:"admin"`
}

// CurrentRuleSet 查询当前生效规则集
// @Summary 查询当前生效规则集
// @Tags 规则集
// @Produce json
// @Success 200 {object} APIResponse "查询成功"
// @Failure 503 {object} APIResponse "规则集尚未加载"
// @Router /rulesets/current [get]
func (c *RuleSetController) CurrentRuleSet(w http.ResponseWriter, r *http.Request) {
	rs := service.GlobalRuleRepository.Current()
	if rs == nil {
		render.JSON(w, r, ErrorResponse(http.StatusServiceUnavailable, "规则集尚未加载", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", map[string]interface{}{
		"version":    rs.Version,
		"definition": rs.Definition,
	}))
}

// ListVersions 查询规则集版本历史
// @Summary 查询规则集版本历史
// @Tags 规则集
// @Produce json
// @Param limit query int false "返回条数" default(20)
// @Success 200 {object} APIResponse{data=[]models.RuleSetVersion} "查询成功"
// @Router /rulesets [get]
func (c *RuleSetController) ListVersions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	versions, err := service.GlobalRuleRepository.ListVersions(limit)
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("查询版本历史失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("查询成功", versions))
}

// CreateVersion 创建并激活新规则集版本
// @Summary 创建并激活新规则集版本
// @Description 定义先编译校验后入库，非法定义整体拒绝，旧版本保持生效
// @Tags 规则集
// @Accept json
// @Produce json
// @Param request body CreateRuleSetRequest true "创建请求"
// @Success 200 {object} APIResponse{data=models.RuleSetVersion} "创建成功"
// @Failure 400 {object} APIResponse "规则定义非法"
// @Router /rulesets [post]
func (c *RuleSetController) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.JSON(w, r, BadRequestResponse("请求参数解析失败", err))
		return
	}
	if req.Name == "" || req.Definition == nil {
		render.JSON(w, r, BadRequestResponse("名称和规则定义不能为空", nil))
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "api"
	}

	record, err := service.GlobalRuleRepository.CreateVersion(req.Name, req.Definition, req.CreatedBy)
	if err != nil {
		render.JSON(w, r, BadRequestResponse("规则集版本创建失败", err))
		return
	}
	render.JSON(w, r, SuccessResponse("规则集版本创建成功", record))
}

// Reload 热重载规则集
// @Summary 热重载规则集
// @Description 重新加载库内激活版本，加载失败时旧版本继续生效
// @Tags 规则集
// @Produce json
// @Success 200 {object} APIResponse "重载成功"
// @Failure 500 {object} APIResponse "重载失败，旧版本继续生效"
// @Router /rulesets/reload [post]
func (c *RuleSetController) Reload(w http.ResponseWriter, r *http.Request) {
	rs, err := service.GlobalRuleRepository.Reload()
	if err != nil {
		render.JSON(w, r, InternalErrorResponse("规则集重载失败，旧版本继续生效", err))
		return
	}
	render.JSON(w, r, SuccessResponse("规则集重载成功", map[string]interface{}{
		"version": rs.Version,
	}))
}

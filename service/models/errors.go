/*
 * @module service/models/errors
 * @description 修正流水线统一错误分类定义，包含错误码和可包装的流水线错误类型
 * @architecture 分层架构 - 数据模型层
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 错误产生 -> 错误码归类 -> 调用方按码处理
 * @rules 跨组件边界只返回显式错误，不使用 panic 传播
 * @dependencies errors, fmt
 * @refs service/correction, service/validation, service/learning
 */

package models

import (
	"errors"
	"fmt"
)

// 错误码定义
const (
	ErrCodeInvalidRow         = "INVALID_ROW"         // 记录格式非法，整条拒绝
	ErrCodeRuleLoad           = "RULE_LOAD_ERROR"     // 规则集加载失败，旧版本继续生效
	ErrCodeSuggesterTimeout   = "SUGGESTER_TIMEOUT"   // 建议模型超时，降级为规则路径
	ErrCodeSuggesterError     = "SUGGESTER_ERROR"     // 建议模型调用失败，非致命
	ErrCodeValidationConflict = "VALIDATION_CONFLICT" // 并发认领失败
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"  // 工作流状态机非法迁移
	ErrCodeRetrainInProgress  = "RETRAIN_IN_PROGRESS" // 重训练进行中，触发被忽略
	ErrCodePersistence        = "PERSISTENCE_ERROR"   // 持久化失败（重试耗尽后上抛）
)

// PipelineError 带错误码的流水线错误
type PipelineError struct {
	Code    string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is 可用于哨兵错误
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// NewPipelineError 创建带错误码的流水线错误
func NewPipelineError(code, message string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Err: err}
}

// 哨兵错误，供 errors.Is 判断
var (
	ErrInvalidRow         = &PipelineError{Code: ErrCodeInvalidRow, Message: "记录格式非法"}
	ErrRuleLoad           = &PipelineError{Code: ErrCodeRuleLoad, Message: "规则集加载失败"}
	ErrSuggesterTimeout   = &PipelineError{Code: ErrCodeSuggesterTimeout, Message: "建议模型请求超时"}
	ErrSuggesterError     = &PipelineError{Code: ErrCodeSuggesterError, Message: "建议模型调用失败"}
	ErrValidationConflict = &PipelineError{Code: ErrCodeValidationConflict, Message: "任务已被其他校验人认领"}
	ErrInvalidTransition  = &PipelineError{Code: ErrCodeInvalidTransition, Message: "非法的任务状态迁移"}
	ErrRetrainInProgress  = &PipelineError{Code: ErrCodeRetrainInProgress, Message: "重训练任务正在进行中"}
	ErrPersistence        = &PipelineError{Code: ErrCodePersistence, Message: "持久化操作失败"}
)

// ErrorCode 提取错误码，非流水线错误返回空字符串
func ErrorCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

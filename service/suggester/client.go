/*
 * @module service/suggester/client
 * @description 模型建议服务HTTP客户端，为不一致项请求模型侧修正候选，支持批量与超时降级
 * @architecture 客户端层 - 外部服务适配
 * @documentReference ai_docs/correction_pipeline_req.md
 * @stateFlow 不一致批量 -> HTTP请求 -> 候选列表；超时/出错返回带类型的错误供上游降级
 * @rules 超时与服务错误分别映射 SUGGESTER_TIMEOUT / SUGGESTER_ERROR；调用方收到错误后降级为纯规则路径
 * @dependencies net/http, encoding/json, service/models
 * @refs service/correction/generator.go, service/learning/feedback.go
 */

package suggester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"dataquality-service/service/models"
)

var SuggesterUrl = "http://localhost:8090"
var client = &http.Client{
	Timeout: 30 * time.Second,
}

// DefaultTimeout 单次建议请求的默认超时
const DefaultTimeout = 2 * time.Second

func init() {
	if envUrl := os.Getenv("SUGGESTER_URL"); envUrl != "" {
		SuggesterUrl = envUrl
	}
}

// SetSuggesterUrl 设置建议服务的 URL（用于测试）
func SetSuggesterUrl(url string) {
	SuggesterUrl = url
}

// SuggestRequest 单个不一致项的建议请求
type SuggestRequest struct {
	Field   string                 `json:"field"`
	Value   interface{}            `json:"value"`
	Kind    string                 `json:"kind"`
	Context map[string]interface{} `json:"context,omitempty"` // 同记录其他字段，供模型参考
}

// SuggestResponse 模型返回的单项建议
type SuggestResponse struct {
	Field         string      `json:"field"`
	ProposedValue interface{} `json:"proposed_value"`
	Confidence    float64     `json:"confidence"`
	Rationale     string      `json:"rationale,omitempty"`
}

type suggestResp struct {
	Status      string            `json:"status"`
	Msg         string            `json:"msg,omitempty"`
	Suggestions []SuggestResponse `json:"suggestions"`
}

// Suggest 批量请求模型修正候选
// 超时返回 SUGGESTER_TIMEOUT，其他失败返回 SUGGESTER_ERROR，均不携带部分结果
func Suggest(ctx context.Context, requests []SuggestRequest, timeout time.Duration) ([]SuggestResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]interface{}{"items": requests})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "建议请求编码失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, SuggesterUrl+"/api/v1/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "创建HTTP请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.NewPipelineError(models.ErrCodeSuggesterTimeout, "建议服务请求超时", err)
		}
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "发送HTTP请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError,
			fmt.Sprintf("建议服务返回状态码 %d", resp.StatusCode), nil)
	}

	var parsed suggestResp
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "解析响应失败", err)
	}
	if parsed.Status != "success" {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError,
			fmt.Sprintf("建议服务处理失败: %s", parsed.Msg), nil)
	}

	return parsed.Suggestions, nil
}

// RetrainRequest 重训练请求
type RetrainRequest struct {
	Examples []TrainingPayload `json:"examples"`
}

// TrainingPayload 提交给训练端的单条样本
type TrainingPayload struct {
	Field        string                 `json:"field"`
	InputContext map[string]interface{} `json:"input_context"`
	TargetValue  interface{}            `json:"target_value"`
}

// RetrainResult 训练端返回的结果
type RetrainResult struct {
	ModelVersion    int     `json:"model_version"`
	HoldoutAccuracy float64 `json:"holdout_accuracy"`
}

type retrainResp struct {
	Status string        `json:"status"`
	Msg    string        `json:"msg,omitempty"`
	Data   RetrainResult `json:"data"`
}

// Retrain 提交训练样本并等待训练完成
// 训练耗时远大于建议请求，超时由调用方通过 ctx 控制
func Retrain(ctx context.Context, examples []TrainingPayload) (*RetrainResult, error) {
	body, err := json.Marshal(RetrainRequest{Examples: examples})
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "训练请求编码失败", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, SuggesterUrl+"/api/v1/retrain", bytes.NewReader(body))
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "创建HTTP请求失败", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := noTimeoutClient.Do(req)
	if err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "发送训练请求失败", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError,
			fmt.Sprintf("训练服务返回状态码 %d", resp.StatusCode), nil)
	}

	var parsed retrainResp
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError, "解析训练响应失败", err)
	}
	if parsed.Status != "success" {
		return nil, models.NewPipelineError(models.ErrCodeSuggesterError,
			fmt.Sprintf("训练失败: %s", parsed.Msg), nil)
	}

	return &parsed.Data, nil
}

// 训练请求不设客户端级超时，由调用方 ctx 控制生命周期
var noTimeoutClient = &http.Client{}

// Health 探测建议服务可用性
func Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, SuggesterUrl+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("建议服务不可用: %d", resp.StatusCode)
	}
	return nil
}

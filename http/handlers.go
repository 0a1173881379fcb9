package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rvhrisk/clinical"
	"rvhrisk/ml"
	"rvhrisk/monitoring"
	"rvhrisk/risk"
)

// Handler 汇聚所有HTTP处理器的依赖。模型句柄启动时注入，只读共享
type Handler struct {
	loader    *ml.Loader
	metrics   *monitoring.ServiceMetrics
	hub       *monitoring.PreviewHub
	logger    *zap.Logger
	templates *template.Template
}

// NewHandler 创建处理器
func NewHandler(loader *ml.Loader, metrics *monitoring.ServiceMetrics, hub *monitoring.PreviewHub, logger *zap.Logger) (*Handler, error) {
	tpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	return &Handler{
		loader:    loader,
		metrics:   metrics,
		hub:       hub,
		logger:    logger,
		templates: tpl,
	}, nil
}

// Register 注册所有路由
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/assess", h.handleAssess)
	mux.HandleFunc("POST /api/record", h.handleRecordPreview)
	mux.HandleFunc("GET /api/model/status", h.handleModelStatus)
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/ws/preview", h.handlePreviewWS)
}

// handleHealth 健康检查
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAssess 处理一次风险评估请求
func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cat := catalogFor(r.Header.Get("Accept-Language"))

	if err := r.ParseForm(); err != nil {
		h.metrics.RecordInputRejection()
		respondError(w, http.StatusBadRequest, cat.InvalidForm)
		return
	}

	rec, issues, err := clinical.ParseRecord(r.PostForm)
	if err != nil {
		// 列名不匹配属于内部缺陷，不是用户输入错误
		h.logger.Error("feature naming mismatch", zap.Error(err))
		respondError(w, http.StatusInternalServerError, cat.InternalError)
		return
	}
	if len(issues) > 0 {
		h.metrics.RecordInputRejection()
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   cat.InvalidInput,
			"issues":  issues,
		})
		return
	}

	assessment, err := risk.Evaluate(h.classifier(), rec)
	if err != nil {
		h.respondAssessError(w, cat, err)
		return
	}

	h.metrics.RecordAssessment(assessment.Category == risk.CategoryHigh, time.Since(start))
	h.broadcastAssessment(assessment)

	payload := map[string]interface{}{
		"success": true,
		"data":    localizeAssessment(assessment, cat),
	}
	if assessment.Reassuring {
		payload["reassurance"] = cat.Reassurance
	}
	respondJSON(w, http.StatusOK, payload)
}

// respondAssessError 将评估失败映射到错误分类对应的响应
func (h *Handler) respondAssessError(w http.ResponseWriter, cat *catalog, err error) {
	switch {
	case errors.Is(err, risk.ErrModelUnavailable):
		h.metrics.RecordModelRefusal()
		respondError(w, http.StatusServiceUnavailable, cat.ModelNotLoaded)

	case errors.Is(err, clinical.ErrUnknownField):
		h.logger.Error("feature naming mismatch", zap.Error(err))
		respondError(w, http.StatusInternalServerError, cat.InternalError)

	default:
		// 形状不匹配等估计失败：可恢复，进程保持可用
		h.metrics.RecordEstimationFailure()
		h.logger.Error("probability estimation failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   cat.PredictionFailed + err.Error(),
			"hint":    cat.CheckColumns,
		})
	}
}

// handleRecordPreview 回显当前表单状态对应的特征记录
func (h *Handler) handleRecordPreview(w http.ResponseWriter, r *http.Request) {
	cat := catalogFor(r.Header.Get("Accept-Language"))

	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, cat.InvalidForm)
		return
	}

	rec, issues, err := clinical.ParseRecord(r.PostForm)
	if err != nil {
		h.logger.Error("feature naming mismatch", zap.Error(err))
		respondError(w, http.StatusInternalServerError, cat.InternalError)
		return
	}

	h.metrics.RecordPreview()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"record": rec,
			"named":  rec.Named(),
			"issues": issues,
			"valid":  len(issues) == 0,
		},
	})
}

// handleModelStatus 模型可用性与加载详情
func (h *Handler) handleModelStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"available":     h.loader.Available(),
		"artifact_path": h.loader.Path(),
		"uptime":        h.metrics.GetUptime().String(),
	}

	if m := h.loader.Model(); m != nil {
		status["model_name"] = m.Name()
		status["model_version"] = m.ModelVersion()
		status["num_features"] = m.NumFeatures()
		status["num_trees"] = m.NumTrees()
		status["feature_names"] = m.FeatureNames()
	} else if err := h.loader.Err(); err != nil {
		status["load_error"] = err.Error()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    status,
	})
}

// handleMetrics 服务指标，支持JSON与Prometheus文本两种格式
func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(h.metrics.ExportPrometheus()))
		return
	}

	data := map[string]interface{}{
		"service": h.metrics.GetSnapshot(),
	}
	if h.hub != nil {
		data["preview_hub"] = h.hub.GetStats()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// handlePreviewWS 升级到WebSocket预览通道
func (h *Handler) handlePreviewWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil || !h.hub.IsRunning() {
		respondError(w, http.StatusServiceUnavailable, "preview channel unavailable")
		return
	}
	h.hub.HandleWebSocket(w, r)
}

// classifier 返回模型句柄，未加载时返回nil哨兵
func (h *Handler) classifier() ml.Classifier {
	if m := h.loader.Model(); m != nil {
		return m
	}
	return nil
}

// broadcastAssessment 向预览通道广播评估事件，仅用于展示
func (h *Handler) broadcastAssessment(a *risk.Assessment) {
	if h.hub == nil || !h.hub.IsRunning() {
		return
	}
	event := monitoring.AssessmentMessage{
		RiskPercent: a.RiskPercent,
		Category:    a.Category,
		Reassuring:  a.Reassuring,
		FactorCount: len(a.Factors),
		ModelName:   a.ModelName,
		Timestamp:   a.EvaluatedAt,
	}
	if err := h.hub.BroadcastAssessment(event); err != nil {
		h.logger.Warn("broadcasting assessment", zap.Error(err))
	}
}

// localizeAssessment 返回带本地化因素文案的副本
func localizeAssessment(a *risk.Assessment, cat *catalog) *risk.Assessment {
	out := *a
	if len(a.Factors) > 0 {
		out.Factors = make([]risk.Factor, len(a.Factors))
		for i, f := range a.Factors {
			out.Factors[i] = risk.Factor{
				Code:    f.Code,
				Message: cat.factorMessage(f.Code, f.Message),
			}
		}
	}
	return &out
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// 连接已断开时写入失败，无法补救
		return
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

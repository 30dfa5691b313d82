package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"DelegateGuard/internal/monitor"
	"DelegateGuard/internal/observability/metrics"
	"DelegateGuard/internal/policy"
	"DelegateGuard/internal/state"
	"DelegateGuard/internal/storage/mysql"
)

// ExecutionLog 抽象执行审计存储，便于在未配置 MySQL 时退化为空实现。
type ExecutionLog interface {
	Insert(ctx context.Context, record *mysql.ExecutionRecord) error
	ListByPrincipal(ctx context.Context, principal string, limit int) ([]*mysql.ExecutionRecord, error)
}

// Server 负责暴露 REST 接口，供代理与前端驱动策略评估。
type Server struct {
	addr    string
	engine  *policy.Engine
	store   policy.Store
	tracker state.Tracker
	monitor *monitor.Monitor
	execLog ExecutionLog
}

// NewServer 构造 API 服务实例。execLog 可以为 nil。
func NewServer(addr string, engine *policy.Engine, store policy.Store, tracker state.Tracker, mon *monitor.Monitor, execLog ExecutionLog) *Server {
	return &Server{
		addr:    addr,
		engine:  engine,
		store:   store,
		tracker: tracker,
		monitor: mon,
		execLog: execLog,
	}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整的路由表。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/evaluate", s.instrument("evaluate", s.handleEvaluate))
	mux.HandleFunc("/api/v1/policies/", s.instrument("policies", s.handlePolicies))
	mux.HandleFunc("/api/v1/executions", s.instrument("executions", s.handleExecutions))
	mux.HandleFunc("/api/v1/alerts", s.instrument("alerts", s.handleAlerts))
	mux.HandleFunc("/api/v1/alerts/", s.instrument("alerts", s.handleResolveAlert))
	mux.HandleFunc("/api/v1/templates", s.instrument("templates", s.handleTemplates))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器附加请求指标采集。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.Principal) == "" {
		writeError(w, http.StatusBadRequest, "principal 不能为空")
		return
	}
	action, err := req.Action.toProposedAction()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.Evaluate(r.Context(), req.Principal, req.AgentID, action)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	principal := strings.TrimPrefix(r.URL.Path, "/api/v1/policies/")
	if principal == "" || strings.Contains(principal, "/") {
		writeError(w, http.StatusNotFound, "路径缺少委托人地址")
		return
	}

	switch r.Method {
	case http.MethodPut, http.MethodPost:
		var doc policy.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			writeError(w, http.StatusBadRequest, "请求体解析失败")
			return
		}
		if err := s.store.Put(r.Context(), principal, &doc); err != nil {
			var verr *policy.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":  "validation failed",
					"fields": verr.Fields,
				})
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stored"})
	case http.MethodGet:
		doc, err := s.store.Document(r.Context(), principal)
		if err != nil {
			if errors.Is(err, policy.ErrPolicyNotFound) {
				writeError(w, http.StatusNotFound, "策略不存在")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, doc)
	default:
		http.Error(w, "仅支持 GET/PUT", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRecordExecution(w, r)
	case http.MethodGet:
		s.handleListExecutions(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleRecordExecution 记录一次已确认的执行：更新冷却状态、
// 喂给异常监控，并在配置了审计库时落盘。
func (s *Server) handleRecordExecution(w http.ResponseWriter, r *http.Request) {
	var req RecordExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体解析失败")
		return
	}
	if strings.TrimSpace(req.Principal) == "" {
		writeError(w, http.StatusBadRequest, "principal 不能为空")
		return
	}

	executedAt := time.Now().UTC()
	if req.ExecutedAt > 0 {
		executedAt = time.Unix(req.ExecutedAt, 0).UTC()
	}

	if err := s.tracker.RecordExecution(r.Context(), req.Principal, executedAt); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.monitor != nil {
		s.monitor.Record(r.Context(), req.Principal, executedAt)
	}

	record := &mysql.ExecutionRecord{
		EvaluationID: req.EvaluationID,
		Principal:    req.Principal,
		AgentID:      req.AgentID,
		Recipient:    req.Recipient,
		Amount:       req.Amount,
		TxHash:       req.TxHash,
		BlockNumber:  req.BlockNumber,
		Status:       req.Status,
		ExecutedAt:   executedAt,
	}
	if s.execLog != nil {
		if err := s.execLog.Insert(r.Context(), record); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if s.execLog == nil {
		writeError(w, http.StatusNotImplemented, "未配置执行审计库")
		return
	}
	principal := r.URL.Query().Get("principal")
	if principal == "" {
		writeError(w, http.StatusBadRequest, "缺少 principal 参数")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.execLog.ListByPrincipal(r.Context(), principal, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.monitor == nil {
		writeJSON(w, http.StatusOK, []monitor.SecurityAlert{})
		return
	}
	alerts := s.monitor.ActiveAlerts()
	if alerts == nil {
		alerts = []monitor.SecurityAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/")
	id, ok := strings.CutSuffix(rest, "/resolve")
	if !ok || id == "" || r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST /api/v1/alerts/{id}/resolve", http.StatusMethodNotAllowed)
		return
	}
	if s.monitor == nil || !s.monitor.Resolve(id) {
		writeError(w, http.StatusNotFound, "告警不存在或已处理")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, policy.Templates())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

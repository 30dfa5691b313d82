package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// telemetryQuery 一次性取回最近赎回、活跃告警与全局统计。
const telemetryQuery = `query GuardTelemetry {
  Redemption(limit: 50, order_by: {timestamp: desc}) { id timestamp }
  SecurityAlert(where: {isActive: {_eq: true}}, order_by: {createdAt: desc}) {
    id alertType severity message userAddress triggerCount createdAt
  }
  Stats(where: {id: {_eq: "global"}}) {
    totalRedemptions totalEnabled totalDisabled lastUpdated
  }
}`

// IndexerTelemetryProvider 从事件索引服务的 GraphQL 接口抓取遥测。
type IndexerTelemetryProvider struct {
	endpoint string
	client   *http.Client
}

// NewIndexerTelemetryProvider 构造遥测信号源。
func NewIndexerTelemetryProvider(endpoint string) (*IndexerTelemetryProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("未配置遥测服务地址")
	}
	return &IndexerTelemetryProvider{
		endpoint: endpoint,
		client:   &http.Client{},
	}, nil
}

type telemetryResponse struct {
	Data struct {
		Redemption []struct {
			ID        string `json:"id"`
			Timestamp int64  `json:"timestamp,string"`
		} `json:"Redemption"`
		SecurityAlert []struct {
			ID           string `json:"id"`
			AlertType    string `json:"alertType"`
			Severity     string `json:"severity"`
			Message      string `json:"message"`
			UserAddress  string `json:"userAddress"`
			TriggerCount int    `json:"triggerCount"`
			CreatedAt    int64  `json:"createdAt,string"`
		} `json:"SecurityAlert"`
		Stats []struct {
			TotalRedemptions int64 `json:"totalRedemptions,string"`
			TotalEnabled     int64 `json:"totalEnabled,string"`
			TotalDisabled    int64 `json:"totalDisabled,string"`
			LastUpdated      int64 `json:"lastUpdated,string"`
		} `json:"Stats"`
	} `json:"data"`
}

// Fetch 执行 GraphQL 查询并转换为统一的遥测快照。
func (p *IndexerTelemetryProvider) Fetch(ctx context.Context) (*TelemetrySnapshot, error) {
	if p == nil || p.client == nil {
		return nil, errors.New("未初始化的遥测信号源")
	}

	payload, err := json.Marshal(map[string]string{"query": telemetryQuery})
	if err != nil {
		return nil, fmt.Errorf("编码遥测查询失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构造遥测请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求遥测服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("遥测服务返回异常状态: %d", resp.StatusCode)
	}

	var decoded telemetryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析遥测响应失败: %w", err)
	}

	snapshot := &TelemetrySnapshot{
		Timestamp:        time.Now().UTC(),
		RecentExecutions: len(decoded.Data.Redemption),
	}
	for _, alert := range decoded.Data.SecurityAlert {
		snapshot.Alerts = append(snapshot.Alerts, TelemetryAlert{
			ID:           alert.ID,
			Kind:         alert.AlertType,
			Severity:     alert.Severity,
			Message:      alert.Message,
			Principal:    alert.UserAddress,
			TriggerCount: alert.TriggerCount,
			CreatedAt:    time.Unix(alert.CreatedAt, 0).UTC(),
			IsActive:     true,
		})
	}
	if len(decoded.Data.Stats) > 0 {
		stats := decoded.Data.Stats[0]
		snapshot.Stats = &GlobalStats{
			TotalExecutions: stats.TotalRedemptions,
			TotalEnabled:    stats.TotalEnabled,
			TotalDisabled:   stats.TotalDisabled,
			LastUpdated:     stats.LastUpdated,
		}
	}
	return snapshot, nil
}

var _ TelemetryProvider = (*IndexerTelemetryProvider)(nil)

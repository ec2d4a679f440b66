// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// サービス層とミドルウェアから利用する。
type Recorder interface {
	RecordLogin(result string)
	RecordTokenValidationFailure(reason string)
	RecordOAuthExchange(variant, result string)
	RecordSessionUpsert(created bool)
	RecordWebhookRegistration(result string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	tokenFailures  *prometheus.CounterVec
	oauthExchanges *prometheus.CounterVec
	sessionUpserts *prometheus.CounterVec
	webhookRegs    *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_login_attempts_total",
			Help: "結果別のローカルログイン試行数",
		}, []string{"result"}),
		tokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_token_validation_failures_total",
			Help: "理由別のトークン検証失敗数",
		}, []string{"reason"}),
		oauthExchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_oauth_exchanges_total",
			Help: "種別と結果別のOAuthトークン交換数",
		}, []string{"variant", "result"}),
		sessionUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_sessions_upserted_total",
			Help: "作成・更新別のShopifyセッション保存数",
		}, []string{"outcome"}),
		webhookRegs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_webhook_registrations_total",
			Help: "結果別のWebhook登録数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopgate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopgate_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.tokenFailures,
		c.oauthExchanges,
		c.sessionUpserts,
		c.webhookRegs,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordTokenValidationFailure はトークン検証失敗を記録する。
func (c *Collector) RecordTokenValidationFailure(reason string) {
	c.tokenFailures.WithLabelValues(reason).Inc()
}

// RecordOAuthExchange はOAuthトークン交換を記録する。
func (c *Collector) RecordOAuthExchange(variant, result string) {
	c.oauthExchanges.WithLabelValues(variant, result).Inc()
}

// RecordSessionUpsert はセッション保存を記録する。
func (c *Collector) RecordSessionUpsert(created bool) {
	outcome := "updated"
	if created {
		outcome = "created"
	}
	c.sessionUpserts.WithLabelValues(outcome).Inc()
}

// RecordWebhookRegistration はWebhook登録を記録する。
func (c *Collector) RecordWebhookRegistration(result string) {
	c.webhookRegs.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordLogin(string)                  {}
func (Nop) RecordTokenValidationFailure(string) {}
func (Nop) RecordOAuthExchange(string, string)  {}
func (Nop) RecordSessionUpsert(bool)            {}
func (Nop) RecordWebhookRegistration(string)    {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordRequestLatency(time.Duration)  {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)

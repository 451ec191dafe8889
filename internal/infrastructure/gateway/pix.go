package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"coinbank/internal/config"
)

// PixCharge 网关返回的收款码
type PixCharge struct {
	TransactionID string // 网关侧交易号，回调时用于定位流水
	QRCode        string // PIX 收款二维码内容
}

// PixClient PIX 支付网关的窄接口
// 核心只依赖"生成收款码"这一个能力，网关协议细节都收在实现里
type PixClient interface {
	GeneratePixCharge(ctx context.Context, amount int64, payerEmail string, externalID string) (*PixCharge, error)
}

// bspayClient BSPay 网关客户端
// 凭证从环境变量注入（见 config 包），token 带过期时间缓存
type bspayClient struct {
	cfg        *config.GatewayConfig
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewBspayClient(cfg *config.GatewayConfig) PixClient {
	return &bspayClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *bspayClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/token", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("网关认证请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("网关认证失败: status=%d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", err
	}

	c.token = tr.AccessToken
	// 提前 60 秒过期，避免边界上拿到失效 token
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn-60) * time.Second)
	return c.token, nil
}

type pixChargeRequest struct {
	Amount     float64 `json:"amount"`
	PayerEmail string  `json:"payer_email"`
	ExternalID string  `json:"external_id"`
}

type pixChargeResponse struct {
	TransactionID string `json:"transactionId"`
	QRCode        string `json:"qrcode"`
}

func (c *bspayClient) GeneratePixCharge(ctx context.Context, amount int64, payerEmail string, externalID string) (*PixCharge, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(pixChargeRequest{
		Amount:     float64(amount) / 100, // 网关按元计价
		PayerEmail: payerEmail,
		ExternalID: externalID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/pix/qrcode", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("生成收款码请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("生成收款码失败: status=%d", resp.StatusCode)
	}

	var cr pixChargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, err
	}

	return &PixCharge{
		TransactionID: cr.TransactionID,
		QRCode:        cr.QRCode,
	}, nil
}

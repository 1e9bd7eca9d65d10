package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/guiyumin/biliget/internal/core/config"
)

// Auth handles Bilibili login via QR code or cookie
type Auth struct {
	client *Client
}

// QRSession holds the QR code login session data
type QRSession struct {
	URL       string // QR code content URL (to be encoded as QR)
	QRCodeKey string // Key for polling status
}

// QRStatus represents the status of QR code login
type QRStatus int

const (
	QRWaiting   QRStatus = 86101 // Not scanned yet
	QRScanned   QRStatus = 86090 // Scanned, waiting for confirmation
	QRExpired   QRStatus = 86038 // QR code expired
	QRConfirmed QRStatus = 0     // Login successful
)

// Credentials stores the login credentials
type Credentials struct {
	SESSDATA   string
	BiliJCT    string
	DedeUserID string
}

// NewAuth creates an Auth that talks through the given client
func NewAuth(c *Client) *Auth {
	return &Auth{client: c}
}

// GenerateQRCode requests a new QR code for login
func (a *Auth) GenerateQRCode(ctx context.Context) (*QRSession, error) {
	api := a.client.passportBase + "/x/passport-login/web/qrcode/generate?source=main-fe-header"

	env, err := a.client.getJSON(ctx, api, "")
	if err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}

	var data struct {
		URL       string `json:"url"`
		QRCodeKey string `json:"qrcode_key"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &QRSession{
		URL:       data.URL,
		QRCodeKey: data.QRCodeKey,
	}, nil
}

// PollQRStatus checks the status of QR code login.
// Credentials are only returned once the login is confirmed.
func (a *Auth) PollQRStatus(ctx context.Context, qrcodeKey string) (QRStatus, *Credentials, error) {
	api := fmt.Sprintf("%s/x/passport-login/web/qrcode/poll?qrcode_key=%s&source=main-fe-header",
		a.client.passportBase, url.QueryEscape(qrcodeKey))

	env, err := a.client.getJSON(ctx, api, "")
	if err != nil {
		return 0, nil, err
	}
	if err := env.err(); err != nil {
		return 0, nil, err
	}

	var data struct {
		URL          string `json:"url"`
		RefreshToken string `json:"refresh_token"`
		Timestamp    int64  `json:"timestamp"`
		Code         int    `json:"code"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, nil, fmt.Errorf("failed to parse response: %w", err)
	}

	status := QRStatus(data.Code)

	// If login confirmed, extract credentials from the URL
	if status == QRConfirmed && data.URL != "" {
		creds, err := parseCredentialsFromURL(data.URL)
		if err != nil {
			return status, nil, fmt.Errorf("failed to parse credentials: %w", err)
		}
		return status, creds, nil
	}

	return status, nil, nil
}

// parseCredentialsFromURL extracts SESSDATA, bili_jct, DedeUserID from the callback URL
func parseCredentialsFromURL(urlStr string) (*Credentials, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	query := parsed.Query()
	creds := &Credentials{
		SESSDATA:   query.Get("SESSDATA"),
		BiliJCT:    query.Get("bili_jct"),
		DedeUserID: query.Get("DedeUserID"),
	}

	if creds.SESSDATA == "" {
		return nil, fmt.Errorf("SESSDATA not found in response")
	}

	return creds, nil
}

// SaveCredentials saves credentials to config file
func SaveCredentials(creds *Credentials) error {
	cfg, err := config.LoadForUpdate()
	if err != nil {
		return err
	}
	cfg.Bilibili.Cookie = creds.ToCookieString()
	return config.Save(cfg)
}

// ToCookieString converts credentials to cookie format
func (c *Credentials) ToCookieString() string {
	parts := []string{"SESSDATA=" + c.SESSDATA}
	if c.BiliJCT != "" {
		parts = append(parts, "bili_jct="+c.BiliJCT)
	}
	if c.DedeUserID != "" {
		parts = append(parts, "DedeUserID="+c.DedeUserID)
	}
	return strings.Join(parts, "; ")
}

// ParseCookieString parses a cookie string into credentials
func ParseCookieString(cookie string) *Credentials {
	creds := &Credentials{}

	for part := range strings.SplitSeq(NormalizeCookie(cookie), ";") {
		part = strings.TrimSpace(part)
		if val, ok := strings.CutPrefix(part, "SESSDATA="); ok {
			creds.SESSDATA = val
		} else if val, ok := strings.CutPrefix(part, "bili_jct="); ok {
			creds.BiliJCT = val
		} else if val, ok := strings.CutPrefix(part, "DedeUserID="); ok {
			creds.DedeUserID = val
		}
	}

	return creds
}

// NavInfo is the part of the nav response that describes the session
type NavInfo struct {
	IsLogin  bool
	UName    string
	Mid      int64
	VIPLevel int
}

// ValidateCredentials checks the client's cookie against the nav endpoint
func (a *Auth) ValidateCredentials(ctx context.Context) (*NavInfo, error) {
	env, err := a.client.getJSON(ctx, a.client.apiBase+"/x/web-interface/nav", "")
	if err != nil {
		return nil, err
	}

	var data struct {
		IsLogin bool   `json:"isLogin"`
		UName   string `json:"uname"`
		Mid     int64  `json:"mid"`
		VIP     struct {
			Status int `json:"status"`
		} `json:"vip"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	if env.Code != 0 || !data.IsLogin {
		return nil, fmt.Errorf("credentials are invalid or expired")
	}

	return &NavInfo{
		IsLogin:  true,
		UName:    data.UName,
		Mid:      data.Mid,
		VIPLevel: data.VIP.Status,
	}, nil
}

// String returns a human-readable status string
func (s QRStatus) String() string {
	switch s {
	case QRWaiting:
		return "waiting for scan"
	case QRScanned:
		return "scanned, confirm on your phone"
	case QRExpired:
		return "QR code expired"
	case QRConfirmed:
		return "login successful"
	default:
		return fmt.Sprintf("unknown status: %d", int(s))
	}
}

package asr

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/carlmjohnson/requests"
	"go.uber.org/zap"
)

// tencentTranscriber calls Tencent Cloud's one-shot recognition REST
// endpoint, the simplest of the supported vendors since it needs no
// persistent streaming connection.
type tencentTranscriber struct {
	secretID  string
	secretKey string
	appID     string
	logger    *zap.Logger
}

// NewTencent builds a transcriber against Tencent Cloud credentials.
func NewTencent(cfg Config, logger *zap.Logger) (Transcriber, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	appID, _ := cfg["app_id"].(string)
	secretID, _ := cfg["secret_id"].(string)
	secretKey, _ := cfg["secret_key"].(string)
	if appID == "" || secretID == "" || secretKey == "" {
		return nil, fmt.Errorf("tencent asr requires app_id, secret_id, secret_key")
	}
	return &tencentTranscriber{appID: appID, secretID: secretID, secretKey: secretKey, logger: logger}, nil
}

type tencentRecognizeResponse struct {
	Response struct {
		Result    string `json:"Result"`
		RequestID string `json:"RequestId"`
	} `json:"Response"`
}

func (t *tencentTranscriber) Recognize(ctx context.Context, audio []byte, sampleRate int) (Result, error) {
	var resp tencentRecognizeResponse
	err := requests.URL("https://asr.tencentcloudapi.com/").
		Method("POST").
		BodyJSON(map[string]interface{}{
			"ProjectId":      0,
			"SubServiceType": 2,
			"EngSerViceType": "16k_zh",
			"SourceType":     1,
			"VoiceFormat":    "opus",
			"Data":           base64.StdEncoding.EncodeToString(audio),
			"DataLen":        len(audio),
		}).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("tencent asr request: %w", err)
	}
	if resp.Response.Result == "" {
		return Result{}, nil
	}
	return Result{Text: resp.Response.Result, IsFinal: true}, nil
}

func (t *tencentTranscriber) Close() error { return nil }

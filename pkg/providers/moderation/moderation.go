// Package moderation provides an optional pre-LLM text-safety guard,
// wired to Tencent Cloud's Text Moderation Service so a flagged
// transcript can be rejected before it reaches the model.
package moderation

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tms "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tms/v20201229"
	"go.uber.org/zap"
)

// Verdict is the outcome of checking one piece of text.
type Verdict struct {
	Allowed bool
	Label   string
}

// Guard checks text against Tencent's moderation service.
type Guard struct {
	client *tms.Client
	logger *zap.Logger
}

// New builds a guard from Tencent Cloud credentials. A nil Guard (when
// secretID is empty) is treated by Check as always-allow, so moderation
// is opt-in per deployment.
func New(secretID, secretKey, region string, logger *zap.Logger) (*Guard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if secretID == "" || secretKey == "" {
		return nil, nil
	}
	credential := common.NewCredential(secretID, secretKey)
	client, err := tms.NewClient(credential, region, nil)
	if err != nil {
		return nil, fmt.Errorf("create tms client: %w", err)
	}
	return &Guard{client: client, logger: logger}, nil
}

// Check submits text for moderation; a nil receiver always allows, so
// callers can skip a nil check when moderation is disabled.
func (g *Guard) Check(ctx context.Context, text string) (Verdict, error) {
	if g == nil {
		return Verdict{Allowed: true}, nil
	}
	req := tms.NewTextModerationRequest()
	req.Content = common.StringPtr(base64.StdEncoding.EncodeToString([]byte(text)))

	resp, err := g.client.TextModerationWithContext(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("tms moderation: %w", err)
	}
	if resp.Response == nil || resp.Response.Suggestion == nil {
		return Verdict{Allowed: true}, nil
	}
	allowed := *resp.Response.Suggestion == "Pass"
	label := ""
	if resp.Response.Label != nil {
		label = *resp.Response.Label
	}
	return Verdict{Allowed: allowed, Label: label}, nil
}

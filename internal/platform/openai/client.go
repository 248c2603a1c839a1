package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/yungbote/attune-backend/internal/platform/envutil"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

// Client is the narrow structured-output surface the engine depends on.
type Client interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
	Model() string
}

type client struct {
	log       *logger.Logger
	api       *oai.Client
	model     string
	maxOutput int64
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	apiKey := envutil.String("OPENAI_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(envutil.Int("OPENAI_MAX_RETRIES", 2)),
		option.WithRequestTimeout(envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 120*time.Second)),
	}
	if base := envutil.String("OPENAI_BASE_URL", ""); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/v1/"))
	}
	api := oai.NewClient(opts...)
	return &client{
		log:       log.With("service", "OpenAIClient"),
		api:       &api,
		model:     envutil.String("OPENAI_MODEL", "gpt-4.1-mini"),
		maxOutput: int64(envutil.Int("OPENAI_MAX_OUTPUT_TOKENS", 3000)),
	}, nil
}

func (c *client) Model() string { return c.model }

func (c *client) GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error) {
	if schemaName == "" {
		return nil, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, errors.New("schema required")
	}
	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: oai.Int(c.maxOutput),
		Instructions:    oai.String(system),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(user, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   schemaName,
					Schema: schema,
					Strict: oai.Bool(true),
					Type:   "json_schema",
				},
			},
		},
	}

	start := time.Now()
	resp, err := c.api.Responses.New(ctx, params)
	if err != nil {
		c.log.Warn("responses call failed", "schema", schemaName, "error", err)
		return nil, fmt.Errorf("responses.new: %w", err)
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return nil, fmt.Errorf("no output_text found in response")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	c.log.Debug("structured output received", "schema", schemaName, "model", c.model, "latency_ms", time.Since(start).Milliseconds())
	return obj, nil
}

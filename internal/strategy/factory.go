package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// 各策略 kind 对应的参数 schema。构造前先过 schema，
// 再做跨字段校验（如 fast < slow）。
const (
	KindMACrossover   = "ma_crossover"
	KindMeanReversion = "mean_reversion"
	KindMomentum      = "momentum"
)

// 默认参数与原始流水线配置保持一致。
const (
	defaultMAFast          = 20
	defaultMASlow          = 50
	defaultZScoreWindow    = 20
	defaultZScoreThreshold = 2.0
	defaultMomentumLook    = 20
)

var paramSchemas = map[string]*jsonschema.Schema{}

func init() {
	raw := map[string]string{
		KindMACrossover: `{
			"type": "object",
			"properties": {
				"fast": {"type": "integer", "minimum": 1},
				"slow": {"type": "integer", "minimum": 2}
			},
			"additionalProperties": false
		}`,
		KindMeanReversion: `{
			"type": "object",
			"properties": {
				"window": {"type": "integer", "minimum": 2},
				"threshold": {"type": "number", "exclusiveMinimum": 0}
			},
			"additionalProperties": false
		}`,
		KindMomentum: `{
			"type": "object",
			"properties": {
				"lookback": {"type": "integer", "minimum": 1}
			},
			"additionalProperties": false
		}`,
	}
	for kind, schema := range raw {
		compiled, err := jsonschema.CompileString(kind+".json", schema)
		if err != nil {
			panic(fmt.Sprintf("strategy schema %s 编译失败: %v", kind, err))
		}
		paramSchemas[kind] = compiled
	}
}

// Spec 描述一次策略构造请求：变体 kind 加原始 JSON 参数。
type Spec struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Kinds 返回支持的策略 kind 列表。
func Kinds() []string {
	return []string{KindMACrossover, KindMeanReversion, KindMomentum}
}

// New 按 Spec 构造策略实例。未知 kind 或参数不合法返回 ErrInvalidParameter。
func New(spec Spec) (Strategy, error) {
	kind := strings.ToLower(strings.TrimSpace(spec.Kind))
	schema, ok := paramSchemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: 未知策略 kind %q", ErrInvalidParameter, spec.Kind)
	}
	params := spec.Params
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	if !gjson.ValidBytes(params) {
		return nil, fmt.Errorf("%w: 策略参数不是合法 JSON", ErrInvalidParameter)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	parsed := gjson.ParseBytes(params)
	switch kind {
	case KindMACrossover:
		fast := intParam(parsed, "fast", defaultMAFast)
		slow := intParam(parsed, "slow", defaultMASlow)
		return NewMovingAverageCrossover(fast, slow)
	case KindMeanReversion:
		window := intParam(parsed, "window", defaultZScoreWindow)
		threshold := floatParam(parsed, "threshold", defaultZScoreThreshold)
		return NewMeanReversionZScore(window, threshold)
	case KindMomentum:
		lookback := intParam(parsed, "lookback", defaultMomentumLook)
		return NewMomentum(lookback)
	}
	return nil, fmt.Errorf("%w: 未知策略 kind %q", ErrInvalidParameter, spec.Kind)
}

func intParam(parsed gjson.Result, key string, def int) int {
	if v := parsed.Get(key); v.Exists() {
		return int(v.Int())
	}
	return def
}

func floatParam(parsed gjson.Result, key string, def float64) float64 {
	if v := parsed.Get(key); v.Exists() {
		return v.Float()
	}
	return def
}

// Package config loads citeloop settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/citeloop/internal/eval"
	"github.com/danielpatrickdp/citeloop/internal/gate"
	"github.com/danielpatrickdp/citeloop/internal/perturbation"
	"github.com/danielpatrickdp/citeloop/internal/retrieval"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "citeloop.yaml"

// #region types

// Config is the full CLI configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Gate      GateConfig      `yaml:"gate"`
	Perturb   PerturbConfig   `yaml:"perturbation"`
	Paths     PathsConfig     `yaml:"paths"`
	Keys      KeysConfig      `yaml:"-"`
}

// ModelConfig selects the inference backend.
type ModelConfig struct {
	Name          string  `yaml:"name"`
	CodecAddr     string  `yaml:"codec_addr"`
	Decoding      string  `yaml:"decoding"`
	MinConfidence float64 `yaml:"min_confidence"`
	TextOnlyLogit float64 `yaml:"text_only_logit"`
}

// PipelineConfig controls the classification loop.
type PipelineConfig struct {
	Strategy  string  `yaml:"strategy"`
	Threshold float64 `yaml:"threshold"`
	Reask     bool    `yaml:"reask"`
	Perturb   bool    `yaml:"perturb"`
	TopK      int     `yaml:"question_top_k"`
}

// RetrievalConfig locates and sizes vector memory.
type RetrievalConfig struct {
	Backend     string `yaml:"backend"` // file, sqlite or s3
	IndexPath   string `yaml:"index_path"`
	MetaPath    string `yaml:"metadata_path"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Region      string `yaml:"region"`
	Encoder     string `yaml:"encoder"` // codec or genai
	EmbedModel  string `yaml:"embed_model"`
	Dimensions  int    `yaml:"dimensions"`
	Metric      string `yaml:"metric"`
	TopK        int    `yaml:"top_k"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

// GateConfig mirrors gate.GateConfig.
type GateConfig struct {
	MinDelta      float64 `yaml:"min_delta"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// PerturbConfig mirrors the perturbation generator and consistency thresholds.
type PerturbConfig struct {
	NumVariants       int     `yaml:"num_variants"`
	Seed              uint64  `yaml:"seed"`
	MinInvariance     float64 `yaml:"min_invariance"`
	MaxConfidenceDrop float64 `yaml:"max_confidence_drop"`
}

// PathsConfig holds output locations.
type PathsConfig struct {
	OutputDir   string `yaml:"output_dir"`
	ErrorsDir   string `yaml:"errors_dir"`
	Corrections string `yaml:"corrections"`
	Submission  string `yaml:"submission"`
	Report      string `yaml:"report"`
	OutcomeDB   string `yaml:"outcome_db"`
	ReplayLog   string `yaml:"replay_log"`
}

// KeysConfig holds provider credentials. Keys are read from the environment
// only and never serialized.
type KeysConfig struct {
	Anthropic string
	OpenAI    string
	Google    string
}

// #endregion types

// #region defaults

// Default returns the configuration used when no file is present.
func Default() *Config {
	rc := retrieval.DefaultConfig()
	gc := gate.DefaultGateConfig()
	pc := perturbation.DefaultGeneratorConfig()
	ec := eval.DefaultEvalConfig()
	return &Config{
		Model: ModelConfig{
			Name:          "llama3",
			CodecAddr:     "localhost:50051",
			Decoding:      "direct_label",
			TextOnlyLogit: 4,
		},
		Pipeline: PipelineConfig{
			Strategy:  "default",
			Threshold: 0.7,
			TopK:      2,
		},
		Retrieval: RetrievalConfig{
			Backend:     "file",
			IndexPath:   "data/memory/index.bin",
			MetaPath:    "data/memory/metadata.json",
			Encoder:     "codec",
			EmbedModel:  "all-mpnet-base-v2",
			Dimensions:  768,
			Metric:      "cosine",
			TopK:        rc.TopK,
			BatchSize:   rc.BatchSize,
			Concurrency: rc.Concurrency,
		},
		Gate: GateConfig{MinDelta: gc.MinDelta, MinConfidence: gc.MinConfidence},
		Perturb: PerturbConfig{
			NumVariants:       pc.NumVariants,
			Seed:              pc.Seed,
			MinInvariance:     ec.MinInvariance,
			MaxConfidenceDrop: ec.MaxConfidenceDrop,
		},
		Paths: PathsConfig{
			OutputDir:   "data/predictions",
			ErrorsDir:   "data/errors",
			Corrections: "data/predictions/corrections.jsonl",
			Submission:  "submission.csv",
			Report:      "data/predictions/submission_report.json",
			OutcomeDB:   "data/outcomes.db",
		},
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults. A missing file yields the defaults with
// environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CITELOOP_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("CITELOOP_CODEC_ADDR"); v != "" {
		c.Model.CodecAddr = v
	}
	if v := os.Getenv("CITELOOP_INDEX_PATH"); v != "" {
		c.Retrieval.IndexPath = v
	}
	if v := os.Getenv("CITELOOP_ERRORS_DIR"); v != "" {
		c.Paths.ErrorsDir = v
	}
	if v := os.Getenv("CITELOOP_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse CITELOOP_THRESHOLD: %w", err)
		}
		c.Pipeline.Threshold = f
	}
	if v := os.Getenv("CITELOOP_REASK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse CITELOOP_REASK: %w", err)
		}
		c.Pipeline.Reask = b
	}

	c.Keys.Anthropic = os.Getenv("ANTHROPIC_API_KEY")
	c.Keys.OpenAI = os.Getenv("OPENAI_API_KEY")
	c.Keys.Google = os.Getenv("GOOGLE_API_KEY")
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Keys.Google = key
	}
	return nil
}

// #endregion load

// #region component-configs

// RetrievalLimits converts to retrieval.RetrievalConfig, keeping defaults for
// unset fields.
func (c *Config) RetrievalLimits() retrieval.RetrievalConfig {
	rc := retrieval.DefaultConfig()
	if c.Retrieval.TopK > 0 {
		rc.TopK = c.Retrieval.TopK
	}
	if c.Retrieval.BatchSize > 0 {
		rc.BatchSize = c.Retrieval.BatchSize
	}
	if c.Retrieval.Concurrency > 0 {
		rc.Concurrency = c.Retrieval.Concurrency
	}
	return rc
}

// GateThresholds converts to gate.GateConfig.
func (c *Config) GateThresholds() gate.GateConfig {
	return gate.GateConfig{MinDelta: c.Gate.MinDelta, MinConfidence: c.Gate.MinConfidence}
}

// PerturbGenerator converts to perturbation.GeneratorConfig.
func (c *Config) PerturbGenerator() perturbation.GeneratorConfig {
	return perturbation.GeneratorConfig{NumVariants: c.Perturb.NumVariants, Seed: c.Perturb.Seed}
}

// Consistency converts to eval.EvalConfig.
func (c *Config) Consistency() eval.EvalConfig {
	return eval.EvalConfig{MinInvariance: c.Perturb.MinInvariance, MaxConfidenceDrop: c.Perturb.MaxConfidenceDrop}
}

// ProviderKey returns the API key for a hosted provider prefix, or "".
func (c *Config) ProviderKey(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return c.Keys.Anthropic
	case "openai":
		return c.Keys.OpenAI
	case "google":
		return c.Keys.Google
	}
	return ""
}

// IsLocalModel reports whether the model is served over the codec rather
// than a hosted provider.
func (c *Config) IsLocalModel() bool {
	return !strings.Contains(c.Model.Name, ":")
}

// #endregion component-configs

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/citeloop/internal/codec"
	"github.com/danielpatrickdp/citeloop/internal/config"
	"github.com/danielpatrickdp/citeloop/internal/decoder"
	"github.com/danielpatrickdp/citeloop/internal/inference"
	"github.com/danielpatrickdp/citeloop/internal/replay"
	"github.com/danielpatrickdp/citeloop/internal/retrieval"
)

// closers runs cleanup functions in reverse order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i]()
	}
}

// #region engine

func newDecoder(c *config.Config) *decoder.Decoder {
	return decoder.New(decoder.Config{MinConfidence: c.Model.MinConfidence})
}

// newCodecClient dials the model-serving process. Dialing is lazy, so this
// only fails on a malformed address.
func newCodecClient(c *config.Config, cl *closers) (*codec.Client, error) {
	client, err := codec.NewClient(c.Model.CodecAddr)
	if err != nil {
		return nil, err
	}
	cl.add(client.Close)
	return client, nil
}

// newEngine resolves the configured model. A replay fixture, when given,
// replaces the live backend. Every live call is appended to the replay log
// when one is configured.
func newEngine(c *config.Config, fixturePath string, cl *closers) (inference.Engine, error) {
	dec := newDecoder(c)
	if fixturePath != "" {
		f, err := replay.LoadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		return replay.NewEngine("replay", f.Records, dec), nil
	}

	opts := inference.Options{Decoder: dec, TextOnlyLogit: c.Model.TextOnlyLogit}
	if c.IsLocalModel() {
		client, err := newCodecClient(c, cl)
		if err != nil {
			return nil, err
		}
		opts.Codec = client
	} else if provider, _, _ := strings.Cut(c.Model.Name, ":"); c.ProviderKey(provider) == "" {
		return nil, fmt.Errorf("model %s: no API key for %s in environment", c.Model.Name, provider)
	}

	eng, err := inference.NewEngine(c.Model.Name, opts)
	if err != nil {
		return nil, err
	}
	if c.Paths.ReplayLog == "" {
		return eng, nil
	}
	log, err := inference.NewReplayLog(c.Paths.ReplayLog)
	if err != nil {
		return nil, err
	}
	return inference.Recording(eng, log), nil
}

// #endregion engine

// #region retrieval

func newEncoder(ctx context.Context, c *config.Config, cl *closers) (retrieval.Encoder, error) {
	var inner retrieval.Encoder
	switch c.Retrieval.Encoder {
	case "genai":
		enc, err := retrieval.NewGenAIEncoder(ctx, c.ProviderKey("google"), c.Retrieval.EmbedModel, "", c.Retrieval.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = enc
	case "codec", "":
		client, err := newCodecClient(c, cl)
		if err != nil {
			return nil, err
		}
		inner = retrieval.NewCodecEncoder(client, c.Retrieval.EmbedModel, c.Retrieval.Dimensions)
	default:
		return nil, fmt.Errorf("unknown encoder %q", c.Retrieval.Encoder)
	}
	return retrieval.NewBatchEncoder(inner, c.RetrievalLimits()), nil
}

func newIndexStorage(ctx context.Context, c *config.Config, cl *closers) (retrieval.Storage, error) {
	switch c.Retrieval.Backend {
	case "file", "":
		return retrieval.NewFileStorage(c.Retrieval.IndexPath, c.Retrieval.MetaPath), nil
	case "sqlite":
		if err := ensureDir(c.Retrieval.IndexPath); err != nil {
			return nil, err
		}
		s, err := retrieval.NewSQLiteStorage(c.Retrieval.IndexPath)
		if err != nil {
			return nil, err
		}
		cl.add(s.Close)
		return s, nil
	case "s3":
		s, err := retrieval.NewS3Storage(ctx, c.Retrieval.Bucket, c.Retrieval.Prefix, c.Retrieval.Region)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", c.Retrieval.Backend)
}

// newRetriever loads vector memory for few-shot exemplars. Failures degrade
// to running without exemplars.
func newRetriever(ctx context.Context, c *config.Config, cl *closers, log *zap.Logger) *retrieval.Retriever {
	enc, err := newEncoder(ctx, c, cl)
	if err != nil {
		log.Warn("retrieval disabled", zap.Error(err))
		return nil
	}
	store, err := newIndexStorage(ctx, c, cl)
	if err != nil {
		log.Warn("retrieval disabled", zap.Error(err))
		return nil
	}
	r, err := retrieval.FromStorage(ctx, enc, store, c.RetrievalLimits(), log)
	if err != nil {
		log.Warn("retrieval disabled", zap.Error(err))
		return nil
	}
	return r
}

// #endregion retrieval

// #region db

// openDB opens the shared SQLite database for outcomes and the error mirror.
func openDB(path string, cl *closers) (*sql.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	cl.add(db.Close)
	return db, nil
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	return nil
}

// #endregion db

package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/atlasbake/internal/server"
	"github.com/matzehuels/atlasbake/pkg/cache"
	"github.com/matzehuels/atlasbake/pkg/pipeline"
	"github.com/matzehuels/atlasbake/pkg/store"
)

// serveFlags holds the flags of the serve command.
type serveFlags struct {
	addr        string
	root        string
	config      string
	redisURL    string
	mongoURI    string
	mongoDB     string
	cachePrefix string
	timeout     time.Duration
	maxBody     int64
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes bakes over HTTP. Clients post a JSON manifest, optionally with
base64 encoded images, and fetch results and atlases by bake id.

Results are cached in Redis when --redis is set, otherwise in the local cache
directory. Bake history goes to MongoDB when --mongo is set.`,
		Example: `  atlasbake serve --addr :8080 --root ./textures
  atlasbake serve --redis redis://localhost:6379/0 --mongo mongodb://localhost:27017`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", envOr("ATLASBAKE_ADDR", server.DefaultAddr), "listen address")
	fl.StringVar(&f.root, "root", "", "directory manifests without inline images resolve against")
	fl.StringVar(&f.config, "config", "", "defaults file (default: ~/.config/atlasbake/config.toml)")
	fl.StringVar(&f.redisURL, "redis", os.Getenv("ATLASBAKE_REDIS_URL"), "Redis URL for the shared result cache")
	fl.StringVar(&f.mongoURI, "mongo", os.Getenv("ATLASBAKE_MONGO_URI"), "MongoDB URI for bake history")
	fl.StringVar(&f.mongoDB, "mongo-db", "atlasbake", "MongoDB database")
	fl.StringVar(&f.cachePrefix, "cache-prefix", "", "namespace for cache keys")
	fl.DurationVar(&f.timeout, "timeout", server.DefaultRequestTimeout, "longest a single bake may run")
	fl.Int64Var(&f.maxBody, "max-body", server.DefaultMaxBodyBytes, "largest accepted request body in bytes")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, f serveFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}

	defaults, err := loadDefaults(f.config)
	if err != nil {
		return err
	}
	runner, err := c.newServerRunner(ctx, f)
	if err != nil {
		return err
	}
	defer runner.Close(context.Background())

	srv := server.New(runner, server.Config{
		Addr:           f.addr,
		Root:           f.root,
		MaxBodyBytes:   f.maxBody,
		RequestTimeout: f.timeout,
		Defaults:       defaults,
		Logger:         c.Logger,
	})
	printInfo("Serving on %s", f.addr)
	return srv.ListenAndServe(ctx)
}

// newServerRunner connects the configured backends, falling back to the
// local cache and history.
func (c *CLI) newServerRunner(ctx context.Context, f serveFlags) (*pipeline.Runner, error) {
	var (
		ch  cache.Cache
		st  store.Store
		err error
	)
	if f.redisURL != "" {
		if ch, err = cache.NewRedisCache(ctx, cache.RedisConfig{URL: f.redisURL}); err != nil {
			return nil, err
		}
		c.Logger.Info("using redis cache")
	} else if ch, err = newCache(false); err != nil {
		return nil, err
	}

	if f.mongoURI != "" {
		ms, err := store.NewMongoStore(ctx, store.MongoConfig{URI: f.mongoURI, Database: f.mongoDB})
		if err != nil {
			ch.Close()
			return nil, err
		}
		st = ms
		c.Logger.Info("using mongo history", "database", f.mongoDB)
	} else if fs, err := newHistory(); err != nil {
		c.Logger.Warn("bake history disabled", "error", err)
	} else {
		st = fs
	}

	var keyer cache.Keyer
	if f.cachePrefix != "" {
		keyer = cache.NewScopedKeyer(cache.NewDefaultKeyer(), f.cachePrefix)
	}
	return pipeline.NewRunner(ch, keyer, st, c.Logger), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	actx "go.hackfix.me/migrate/app/context"
	"go.hackfix.me/migrate/state"
	"go.hackfix.me/migrate/state/file"
	"go.hackfix.me/migrate/state/memory"
	"go.hackfix.me/migrate/state/objectstore"
	"go.hackfix.me/migrate/state/postgres"
	"go.hackfix.me/migrate/state/sqlite"
)

// Environment variables read when opening the state store.
const (
	envS3AccessKey = "MIGRATE_S3_ACCESS_KEY"
	envS3SecretKey = "MIGRATE_S3_SECRET_KEY"
)

const (
	defaultS3Endpoint = "s3.amazonaws.com"
	defaultS3Key      = "migration-state.json"
)

// openStore opens the state store referenced by stateURL. A URL without a
// scheme is treated as a path to a state file.
func openStore(ctx context.Context, appCtx *actx.Context, stateURL string) (state.Store, error) {
	if stateURL == "" {
		return nil, errors.New("migration state location is empty")
	}

	if rest, ok := strings.CutPrefix(stateURL, "sqlite:"); ok {
		dsn := strings.TrimPrefix(rest, "//")
		if dsn == "" {
			return nil, errors.New("SQLite state URL has no database path")
		}
		store, err := sqlite.Open(ctx, dsn, sqlite.WithTimeNow(appCtx.TimeNow))
		if err != nil {
			return nil, err //nolint:wrapcheck // Errors are descriptive enough.
		}
		return store, nil
	}

	if !strings.Contains(stateURL, "://") {
		return file.New(appCtx.FS, stateURL, state.WithTimeNow(appCtx.TimeNow)), nil
	}

	u, err := url.Parse(stateURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing migration state URL: %w", err)
	}

	switch u.Scheme {
	case "file":
		path := u.Host + u.Path
		if path == "" {
			return nil, errors.New("file state URL has no path")
		}
		return file.New(appCtx.FS, path, state.WithTimeNow(appCtx.TimeNow)), nil
	case "memory":
		return memory.New(appCtx.TimeNow), nil
	case "postgres", "postgresql":
		store, err := openPostgres(ctx, appCtx, u)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := openObjectStore(appCtx, u)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	return nil, fmt.Errorf("unsupported migration state URL scheme '%s'", u.Scheme)
}

func openPostgres(ctx context.Context, appCtx *actx.Context, u *url.URL) (*postgres.Store, error) {
	opts := []postgres.Option{postgres.WithTimeNow(appCtx.TimeNow)}

	q := u.Query()
	if table := q.Get("state_table"); table != "" {
		opts = append(opts, postgres.WithTable(table))
	}
	q.Del("state_table")

	connURL := *u
	connURL.RawQuery = q.Encode()

	//nolint:wrapcheck // Errors are descriptive enough.
	return postgres.Open(ctx, connURL.String(), opts...)
}

func openObjectStore(appCtx *actx.Context, u *url.URL) (*state.BlobStore, error) {
	q := u.Query()

	cfg := objectstore.Config{
		Endpoint:  q.Get("endpoint"),
		Region:    q.Get("region"),
		Bucket:    u.Host,
		AccessKey: actx.Getenv(appCtx.Env, envS3AccessKey),
		SecretKey: actx.Getenv(appCtx.Env, envS3SecretKey),
		UseSSL:    true,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultS3Endpoint
	}
	if secure := q.Get("secure"); secure != "" {
		useSSL, err := strconv.ParseBool(secure)
		if err != nil {
			return nil, fmt.Errorf("invalid value of 'secure' in state URL: %w", err)
		}
		cfg.UseSSL = useSSL
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		key = defaultS3Key
	}

	client, err := objectstore.NewMinioClient(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // Errors are descriptive enough.
	}

	return objectstore.New(client, key, state.WithTimeNow(appCtx.TimeNow)), nil
}

// redactURL hides any password in stateURL, so that it can be logged.
func redactURL(stateURL string) string {
	if !strings.Contains(stateURL, "://") {
		return stateURL
	}
	u, err := url.Parse(stateURL)
	if err != nil {
		return "<invalid URL>"
	}
	if u.User == nil {
		return stateURL
	}
	return u.Redacted()
}

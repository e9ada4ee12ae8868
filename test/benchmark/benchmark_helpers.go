package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"github.com/litekeep/litekeep/internal/conn"
	"github.com/litekeep/litekeep/internal/storage"
)

var eventKinds = []string{
	"page_view", "click", "purchase", "signup", "logout",
	"search", "checkout_start", "checkout_complete", "api_call", "error",
}

// setupBenchDir creates a temp directory for benchmark data.
func setupBenchDir(b *testing.B, prefix string) string {
	dir, err := os.MkdirTemp("", "litekeep-bench-"+prefix+"-*")
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// makeBenchDB builds a closed database at path with rows of realistic,
// partly compressible event data. The schema stays fixed so backup row
// counts and fetch scans are comparable across runs.
func makeBenchDB(b *testing.B, path string, rows int) {
	b.Helper()
	ctx := context.Background()

	h, err := conn.Open(ctx, path, conn.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	defer h.Close()

	if _, err := h.DB().ExecContext(ctx,
		"CREATE TABLE events (id INTEGER PRIMARY KEY AUTOINCREMENT, "+
			"tenant TEXT NOT NULL, kind TEXT NOT NULL, at INTEGER NOT NULL, "+
			"payload TEXT NOT NULL)"); err != nil {
		b.Fatal(err)
	}
	if rows == 0 {
		return
	}

	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Unix()

	tx, err := h.DB().BeginTx(ctx, nil)
	if err != nil {
		b.Fatal(err)
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO events (tenant, kind, at, payload) VALUES (?, ?, ?, ?)")
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < rows; i++ {
		payload := fmt.Sprintf(`{"session":"sess_%d","path":"/page/%d","status":%d}`,
			rng.Int63(), rng.Intn(1000), 200+rng.Intn(5)*100)
		if _, err := stmt.ExecContext(ctx,
			fmt.Sprintf("tenant_%04d", rng.Intn(500)),
			eventKinds[rng.Intn(len(eventKinds))],
			baseTime+int64(rng.Intn(86400)),
			payload); err != nil {
			b.Fatal(err)
		}
	}
	if err := stmt.Close(); err != nil {
		b.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		b.Fatal(err)
	}
}

// getBenchmarkStorage returns an object store and a key prefix for the run.
// It respects LITEKEEP_STORAGE_TYPE=s3 from .env or the environment; the
// default is local storage rooted in a temp directory.
func getBenchmarkStorage(b *testing.B, benchName string) (storage.ObjectStorage, string) {
	_ = godotenv.Load("../../.env")

	if os.Getenv("LITEKEEP_STORAGE_TYPE") == "s3" {
		if v := os.Getenv("LITEKEEP_AWS_ACCESS_KEY_ID"); v != "" {
			os.Setenv("AWS_ACCESS_KEY_ID", v)
		}
		if v := os.Getenv("LITEKEEP_AWS_SECRET_ACCESS_KEY"); v != "" {
			os.Setenv("AWS_SECRET_ACCESS_KEY", v)
		}

		bucket := os.Getenv("LITEKEEP_S3_BUCKET")
		if bucket == "" {
			b.Fatal("LITEKEEP_S3_BUCKET is required for the s3 benchmark")
		}

		cfg := storage.DefaultS3Config()
		cfg.Region = os.Getenv("LITEKEEP_S3_REGION")
		cfg.Endpoint = os.Getenv("LITEKEEP_S3_ENDPOINT")
		cfg.UsePathStyle = cfg.Endpoint != ""

		st, err := storage.NewS3Storage(context.Background(), bucket, cfg)
		if err != nil {
			b.Fatalf("Failed to initialize S3 storage: %v", err)
		}

		// Unique prefix per run so repeated benchmarks never collide.
		prefix := fmt.Sprintf("bench/%s/%d", benchName, time.Now().UnixNano())
		b.Logf("Running benchmark against S3 bucket %s prefix %s", bucket, prefix)
		return st, prefix
	}

	st, err := storage.NewLocalStorage(setupBenchDir(b, benchName+"-store"))
	if err != nil {
		b.Fatal(err)
	}
	return st, "bench"
}

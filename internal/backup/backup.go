// Package backup snapshots every reachable remote table to local delimited
// files, with retention rotation, optional encryption, and an optional
// offsite copy to S3-compatible storage.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fwittke/kitahours/internal/config"
	"github.com/fwittke/kitahours/internal/export"
	"github.com/fwittke/kitahours/internal/nctables"
)

// s3Client is the slice of the S3 API the manager uses; an interface for
// testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// tableSource is implemented by the nctables client.
type tableSource interface {
	ListTables(ctx context.Context) ([]nctables.TableInfo, error)
	FetchTable(ctx context.Context, tableID int64, explode bool) (*nctables.Table, error)
}

// Config holds backup manager settings.
type Config struct {
	Dir        string
	Keep       int
	Passphrase string
	S3         config.S3Config
}

// Manager runs backup sweeps. It is synchronous; one sweep handles all
// tables sequentially and the first failure aborts the sweep.
type Manager struct {
	cfg    Config
	source tableSource
	s3     s3Client
	logger *slog.Logger
	now    func() time.Time
}

// Result summarizes one backup sweep.
type Result struct {
	Tables int
	Files  []string
	Pruned int
}

// NewManager creates a backup manager. The S3 client is only constructed
// when bucket and both keys are configured; otherwise snapshots stay local.
func NewManager(cfg Config, source tableSource, logger *slog.Logger) *Manager {
	if cfg.Keep <= 0 {
		cfg.Keep = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cfg:    cfg,
		source: source,
		logger: logger,
		now:    time.Now,
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" {
		m.s3 = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Run backs up every table visible to the account. Each table gets a
// timestamped snapshot in its own directory, after which snapshots beyond
// the retention count are pruned, oldest first.
func (m *Manager) Run(ctx context.Context) (*Result, error) {
	tables, err := m.source.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	m.logger.Info("starting backup sweep", "tables", len(tables))

	timestamp := m.now().UTC().Format("20060102_150405")
	res := &Result{}
	for _, t := range tables {
		if t.ID == 0 {
			return res, fmt.Errorf("table %q has no id", t.Title)
		}
		path, err := m.backupTable(ctx, t, timestamp)
		if err != nil {
			return res, err
		}
		res.Tables++
		res.Files = append(res.Files, path)

		pruned, err := m.prune(filepath.Dir(path))
		if err != nil {
			return res, err
		}
		res.Pruned += pruned
	}
	return res, nil
}

func (m *Manager) backupTable(ctx context.Context, t nctables.TableInfo, timestamp string) (string, error) {
	table, err := m.source.FetchTable(ctx, t.ID, false)
	if err != nil {
		return "", fmt.Errorf("fetch table %d: %w", t.ID, err)
	}

	name := sanitizeTitle(t.Title)
	if name == "" {
		name = fmt.Sprintf("table_%d", t.ID)
	}
	dir := filepath.Join(m.cfg.Dir, fmt.Sprintf("table_%d_%s", t.ID, name))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%d_%s.csv", timestamp, t.ID, name))
	if err := export.WriteCSVFile(path, table); err != nil {
		return "", err
	}

	if m.cfg.Passphrase != "" {
		encPath := path + ".enc"
		if err := EncryptFile(path, encPath, m.cfg.Passphrase); err != nil {
			return "", err
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove plaintext snapshot: %w", err)
		}
		path = encPath
	}

	if m.s3 != nil {
		if err := m.uploadOffsite(ctx, t.ID, path); err != nil {
			return "", err
		}
	}

	m.logger.Info("table backed up", "table_id", t.ID, "title", t.Title, "rows", len(table.Rows), "path", path)
	return path, nil
}

func (m *Manager) uploadOffsite(ctx context.Context, tableID int64, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	key := fmt.Sprintf("%d/%s", tableID, filepath.Base(path))
	_, err = m.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot to s3: %w", err)
	}
	return nil
}

// prune removes the oldest snapshots in dir until at most Keep remain.
func (m *Manager) prune(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	type snapshot struct {
		path string
		mod  time.Time
	}
	var snapshots []snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".csv") && !strings.HasSuffix(name, ".csv.enc") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, fmt.Errorf("stat snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot{path: filepath.Join(dir, name), mod: info.ModTime()})
	}

	if len(snapshots) <= m.cfg.Keep {
		return 0, nil
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].mod.Equal(snapshots[j].mod) {
			return snapshots[i].path < snapshots[j].path
		}
		return snapshots[i].mod.Before(snapshots[j].mod)
	})

	pruned := 0
	for _, s := range snapshots[:len(snapshots)-m.cfg.Keep] {
		if err := os.Remove(s.path); err != nil {
			return pruned, fmt.Errorf("remove old snapshot: %w", err)
		}
		m.logger.Debug("pruned old snapshot", "path", s.path)
		pruned++
	}
	return pruned, nil
}

// sanitizeTitle keeps letters, digits, spaces, underscores and hyphens and
// trims trailing spaces, so table titles are safe as path components.
func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Package backup copies the follow-up state document to S3-compatible
// storage, encrypted with a passphrase.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/shepherd/internal/store"
)

var (
	ErrNotConfigured = errors.New("backup not configured")
	ErrEmptySource   = errors.New("no follow-up state to back up")
)

const keyTimeFormat = "2006-01-02T150405Z"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds S3-compatible storage settings and the encryption passphrase.
type Config struct {
	Endpoint   string
	Bucket     string
	Region     string
	AccessKey  string
	SecretKey  string
	Prefix     string
	Passphrase string
}

// Object describes one stored backup.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Manager backs up and restores a store.Backend document.
type Manager struct {
	cfg    Config
	source store.Backend
	client s3Client
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func withClient(c s3Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

func NewManager(cfg Config, source store.Backend, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		source: source,
		now:    time.Now,
		logger: slog.Default(),
	}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		m.client = newS3Client(cfg)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newS3Client(cfg Config) *s3.Client {
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

// Configured reports whether a bucket and passphrase are available.
func (m *Manager) Configured() bool {
	return m.client != nil && m.cfg.Passphrase != ""
}

func (m *Manager) keyPrefix() string {
	p := strings.Trim(m.cfg.Prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// Run encrypts the current document and uploads it under a timestamped key.
func (m *Manager) Run(ctx context.Context) (Object, error) {
	if !m.Configured() {
		return Object{}, ErrNotConfigured
	}

	data, err := m.source.Read()
	if err != nil {
		return Object{}, fmt.Errorf("read follow-up state: %w", err)
	}
	if len(data) == 0 {
		return Object{}, ErrEmptySource
	}

	sealed, err := Encrypt(data, m.cfg.Passphrase)
	if err != nil {
		return Object{}, fmt.Errorf("encrypt: %w", err)
	}

	now := m.now().UTC()
	key := m.keyPrefix() + "followups-" + now.Format(keyTimeFormat) + ".json.enc"
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload to s3: %w", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", len(sealed))
	return Object{Key: key, Size: int64(len(sealed)), LastModified: now}, nil
}

// List returns stored backups, oldest first.
func (m *Manager) List(ctx context.Context) ([]Object, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(m.cfg.Bucket)}
	if p := m.keyPrefix(); p != "" {
		input.Prefix = aws.String(p)
	}

	var objects []Object
	pages := s3.NewListObjectsV2Paginator(m.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list backups: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json.enc") {
				continue
			}
			objects = append(objects, Object{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key < objects[j].Key
	})
	return objects, nil
}

// Restore downloads and decrypts a backup and overwrites the document with
// it. The decrypted document must pass store validation first.
func (m *Manager) Restore(ctx context.Context, key string) error {
	if !m.Configured() {
		return ErrNotConfigured
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", path.Base(key), err)
	}

	data, err := Decrypt(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}
	if err := store.ValidateDocument(data); err != nil {
		return fmt.Errorf("validate backup %s: %w", path.Base(key), err)
	}

	if err := m.source.Write(data); err != nil {
		return fmt.Errorf("write follow-up state: %w", err)
	}
	m.logger.Info("backup restored", "key", key)
	return nil
}

// Prune deletes backups older than retentionDays. Zero keeps everything.
func (m *Manager) Prune(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	objects, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	before := m.now().UTC().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, obj := range objects {
		if !obj.LastModified.Before(before) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.Bucket),
			Key:    aws.String(obj.Key),
		}); err != nil {
			m.logger.Warn("failed to delete backup", "key", obj.Key, "error", err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

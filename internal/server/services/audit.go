package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avolkovs/vaultshare/internal/common"
	sc "github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/repositories/repomanager"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AuditExport describes one finished export: where the archive landed and a
// short-lived download URL.
type AuditExport struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	EventCount  int       `json:"event_count"`
	GeneratedAt time.Time `json:"generated_at"`
}

// AuditService serves audit queries, per-share trails, summaries, and
// archive export to object storage.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config

	now func() time.Time
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		now:         time.Now,
	}
}

// Append records one externally observed event, such as a container access
// reported by the mount engine.
func (s *AuditService) Append(ctx context.Context, event *models.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	repo := s.repomanager.Audit(s.db)
	return repo.Append(ctx, event)
}

// Query returns one page of events matching filter, newest first, plus the
// total match count before pagination.
func (s *AuditService) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	repo := s.repomanager.Audit(s.db)
	return repo.Query(ctx, filter)
}

// Trail returns the full event history of one share in creation order. Only
// a party to the share may read its trail.
func (s *AuditService) Trail(ctx context.Context, actor Identity, shareID string) ([]models.AuditEvent, error) {
	shareRepo := s.repomanager.Shares(s.db)
	record, err := shareRepo.GetByID(ctx, shareID)
	if err != nil {
		return nil, translateNotFound(err)
	}
	if actor.Username != record.OwnerUsername && actor.Username != record.RecipientUsername {
		return nil, common.ErrInsufficientPermissions
	}
	repo := s.repomanager.Audit(s.db)
	return repo.TrailByShare(ctx, shareID)
}

// Summary aggregates per-event-type counts over filter's date range.
func (s *AuditService) Summary(ctx context.Context, filter models.AuditFilter) (*models.AuditSummary, error) {
	repo := s.repomanager.Audit(s.db)
	return repo.Summary(ctx, filter)
}

func (s *AuditService) getS3Client() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	}), nil
}

func exportStorageKey(now time.Time) string {
	return fmt.Sprintf("audit-exports/%d/%d/%d/%v.json", now.Year(), now.Month(), now.Day(), uuid.New())
}

// exportLimit caps the number of events one archive may carry.
const exportLimit = 10000

// Export serializes the events matching filter into one JSON archive,
// uploads it to the configured bucket, and returns a presigned download URL.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter) (*AuditExport, error) {
	filter.Limit = exportLimit
	filter.Offset = 0

	repo := s.repomanager.Audit(s.db)
	events, total, err := repo.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	archive := struct {
		GeneratedAt time.Time           `json:"generated_at"`
		Total       int                 `json:"total"`
		Events      []models.AuditEvent `json:"events"`
	}{GeneratedAt: now, Total: total, Events: events}

	body, err := json.Marshal(archive)
	if err != nil {
		return nil, err
	}

	client, err := s.getS3Client()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := exportStorageKey(now)
	contentType := "application/json"

	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
	}); err != nil {
		return nil, fmt.Errorf("upload export: %w", err)
	}

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return nil, err
	}

	return &AuditExport{
		Key:         key,
		URL:         req.URL,
		EventCount:  len(events),
		GeneratedAt: now,
	}, nil
}

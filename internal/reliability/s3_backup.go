// Package reliability handles snapshot backup to S3-compatible storage.
package reliability

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/config"
)

const backupPrefix = "snapshots/"

// BackupService uploads state snapshots to an S3-compatible bucket and
// restores the most recent one. Works against AWS S3, Cloudflare R2 and
// MinIO; anything that speaks the S3 API.
type BackupService struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	log        zerolog.Logger
}

// NewBackupService creates a backup service from the backup configuration.
func NewBackupService(ctx context.Context, cfg *config.BackupConfig, log zerolog.Logger) (*BackupService, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("backup target is not fully configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = &cfg.Endpoint
		// R2 and MinIO want path-style addressing.
		o.UsePathStyle = true
	})

	return &BackupService{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     cfg.Bucket,
		log:        log.With().Str("service", "s3_backup").Logger(),
	}, nil
}

// UploadSnapshot pushes the snapshot file under a timestamped key.
func (s *BackupService) UploadSnapshot(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	key := fmt.Sprintf("%sstate-%s.msgpack", backupPrefix, time.Now().UTC().Format("2006-01-02-150405"))

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	s.log.Info().Str("key", key).Msg("Snapshot uploaded")
	return nil
}

// RestoreLatest downloads the newest snapshot into the given file.
// Returns os.ErrNotExist when the bucket holds no snapshots.
func (s *BackupService) RestoreLatest(ctx context.Context, destPath string) error {
	key, err := s.latestKey(ctx)
	if err != nil {
		return err
	}

	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	_, err = s.downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to download snapshot %s: %w", key, err)
	}

	s.log.Info().Str("key", key).Str("path", destPath).Msg("Snapshot restored")
	return nil
}

// Prune deletes all but the newest keep backups.
func (s *BackupService) Prune(ctx context.Context, keep int) error {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) <= keep {
		return nil
	}

	// Newest first; everything past keep goes.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	for _, key := range keys[keep:] {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("failed to delete backup %s: %w", key, err)
		}
		s.log.Debug().Str("key", key).Msg("Pruned old backup")
	}

	return nil
}

func (s *BackupService) latestKey(ctx context.Context) (string, error) {
	keys, err := s.listKeys(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", os.ErrNotExist
	}

	// Timestamped keys sort chronologically.
	sort.Strings(keys)
	return keys[len(keys)-1], nil
}

func (s *BackupService) listKeys(ctx context.Context) ([]string, error) {
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(backupPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list backups: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	return keys, nil
}

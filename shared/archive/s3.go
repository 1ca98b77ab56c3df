// Package archive keeps a JSON copy of every exported invoice in S3.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/models"
)

// S3Archiver uploads invoice snapshots to <prefix>/<tenant>/<year>/<number>.json
type S3Archiver struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	log      *logrus.Entry
}

// NewS3Archiver creates an AWS session for the configured region
func NewS3Archiver(cfg *config.ArchiveConfig, log *logrus.Entry) (*S3Archiver, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewS3ArchiverWithUploader(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix, log), nil
}

func NewS3ArchiverWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string, log *logrus.Entry) *S3Archiver {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &S3Archiver{uploader: uploader, bucket: bucket, prefix: prefix, log: log}
}

// Key returns the object key of an invoice snapshot
func (a *S3Archiver) Key(invoice *models.Invoice) string {
	return path.Join(a.prefix, invoice.TenantID.String(), fmt.Sprintf("%d", invoice.CreatedAt.Year()), invoice.InvoiceNumber+".json")
}

// Archive uploads the invoice as indented JSON
func (a *S3Archiver) Archive(ctx context.Context, invoice *models.Invoice) error {
	body, err := json.MarshalIndent(invoice, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invoice: %w", err)
	}

	key := a.Key(invoice)
	out, err := a.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]*string{
			"invoice-number": aws.String(invoice.InvoiceNumber),
			"tenant-id":      aws.String(invoice.TenantID.String()),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload invoice %s: %w", invoice.InvoiceNumber, err)
	}

	a.log.WithFields(logrus.Fields{
		"invoice_number": invoice.InvoiceNumber,
		"location":       out.Location,
	}).Info("Invoice archived")
	return nil
}

package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/voice-agent-saas/shared/models"
)

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3manager.UploadOutput{Location: "s3://" + aws.StringValue(in.Bucket) + "/" + aws.StringValue(in.Key)}, nil
}

func testInvoice() *models.Invoice {
	return &models.Invoice{
		ID:            uuid.New(),
		TenantID:      uuid.MustParse("7f1c7a2e-4d55-4c1b-9a8e-0c9f3b1d2e11"),
		InvoiceNumber: "INV-2024-00007",
		GrossAmount:   decimal.RequireFromString("36.89"),
		Status:        models.InvoiceSent,
		CreatedAt:     time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestS3Archiver_Archive(t *testing.T) {
	up := &fakeUploader{}
	archiver := NewS3ArchiverWithUploader(up, "billing-archive", "invoices", nil)

	require.NoError(t, archiver.Archive(context.Background(), testInvoice()))

	require.NotNil(t, up.input)
	assert.Equal(t, "billing-archive", aws.StringValue(up.input.Bucket))
	assert.Equal(t, "invoices/7f1c7a2e-4d55-4c1b-9a8e-0c9f3b1d2e11/2024/INV-2024-00007.json", aws.StringValue(up.input.Key))
	assert.Equal(t, "application/json", aws.StringValue(up.input.ContentType))
	assert.Equal(t, "INV-2024-00007", aws.StringValue(up.input.Metadata["invoice-number"]))

	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(up.body, &stored))
	assert.Equal(t, "INV-2024-00007", stored["invoice_number"])
	assert.Equal(t, "36.89", stored["gross_amount"])
	assert.Equal(t, "sent", stored["status"])
}

func TestS3Archiver_UploadError(t *testing.T) {
	up := &fakeUploader{err: errors.New("AccessDenied")}
	archiver := NewS3ArchiverWithUploader(up, "billing-archive", "", nil)

	err := archiver.Archive(context.Background(), testInvoice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INV-2024-00007")
}

package bigquery

import (
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbtkit/pkg/errors"
)

func TestParseSnapshotTime(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "epoch milliseconds",
			value: "1717934400000", // 2024-06-09T12:00:00Z
			want:  time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339",
			value: "2024-06-08T09:30:00Z",
			want:  time.Date(2024, 6, 8, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "datetime without zone",
			value: "2024-06-08 09:30:00",
			want:  time.Date(2024, 6, 8, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "bare date",
			value: "2024-06-07",
			want:  time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "future point rejected",
			value:   "2024-06-11",
			wantErr: true,
		},
		{
			name:    "outside time travel window",
			value:   "2024-06-01",
			wantErr: true,
		},
		{
			name:    "garbage",
			value:   "last tuesday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSnapshotTime(tt.value, now)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestSnapshotDecorator(t *testing.T) {
	at := time.Date(2024, 6, 9, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "orders@1717934400000", SnapshotDecorator("orders", at))
}

func TestExpirationDays(t *testing.T) {
	assert.Nil(t, expirationDays(nil))
	assert.Nil(t, expirationDays(&bq.TimePartitioning{}))

	days := expirationDays(&bq.TimePartitioning{Expiration: 30 * 24 * time.Hour})
	require.NotNil(t, days)
	assert.Equal(t, 30, *days)
}

func TestFlattenSchema(t *testing.T) {
	schema := bq.Schema{
		{Name: "id", Type: bq.IntegerFieldType, Description: "primary key"},
		{Name: "payload", Type: bq.RecordFieldType, Schema: bq.Schema{
			{Name: "amount", Type: bq.NumericFieldType},
			{Name: "meta", Type: bq.RecordFieldType, Schema: bq.Schema{
				{Name: "source", Type: bq.StringFieldType},
			}},
		}},
		{Name: "created_at", Type: bq.TimestampFieldType},
	}

	columns := flattenSchema(schema, "")
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"id", "payload.amount", "payload.meta.source", "created_at"}, names)
	assert.Equal(t, "integer", columns[0].Type)
	assert.Equal(t, "primary key", columns[0].Description)
}

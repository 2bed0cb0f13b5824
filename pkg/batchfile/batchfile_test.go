package batchfile

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/bruin-data/staywarehouse/pkg/snapshot"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlBatch = `
batch_id: b-2024-01-02
ingested_at: 2024-01-02T10:00:00Z
hosts:
  - host_id: H1
    host_name: Alice
    host_since: 2019-05-01
    host_is_superhost: true
    host_response_rate: null
listings:
  - listing_id: L1
    host_id: H1
    neighborhood: Harlem
    amenities: [Wifi, Kitchen]
metrics:
  - listing_id: L1
    metric_date: 2024-01-01
    price: 100
    availability_365: 73
reviews:
  - review_id: R1
    listing_id: L1
    review_date: "2024-01-01"
`

const jsonBatch = `{
  "ingested_at": "2024-01-02T10:00:00.123456Z",
  "neighborhoods": [{"neighborhood_name": "Harlem", "city": null}],
  "property_types": [{"property_type_name": "Loft", "is_active": false}]
}`

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("yaml", func(t *testing.T) {
		t.Parallel()

		b, err := Decode("day2.yml", []byte(yamlBatch))
		require.NoError(t, err)

		assert.Equal(t, "b-2024-01-02", b.ID)
		assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), b.IngestedAt.UTC())

		require.Len(t, b.Hosts, 1)
		h := b.Hosts[0]
		assert.Equal(t, "Alice", *h.HostName)
		assert.Equal(t, snapshot.NewDate(2019, 5, 1), *h.HostSince)
		assert.True(t, *h.HostIsSuperhost)
		assert.Nil(t, h.HostResponseRate)

		require.Len(t, b.Listings, 1)
		assert.Equal(t, []string{"Wifi", "Kitchen"}, b.Listings[0].Amenities)

		require.Len(t, b.Metrics, 1)
		assert.Equal(t, snapshot.NewDate(2024, 1, 1), b.Metrics[0].MetricDate)
		assert.InDelta(t, 100.0, *b.Metrics[0].Price, 0.0001)
		assert.Equal(t, int64(73), *b.Metrics[0].Availability365)

		require.Len(t, b.Reviews, 1)
		assert.Equal(t, snapshot.NewDate(2024, 1, 1), b.Reviews[0].ReviewDate)
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()

		b, err := Decode("day2.json", []byte(jsonBatch))
		require.NoError(t, err)

		assert.Empty(t, b.ID)
		assert.Equal(t, 123456000, b.IngestedAt.Nanosecond())
		require.Len(t, b.Neighborhoods, 1)
		assert.Nil(t, b.Neighborhoods[0].City)
		require.Len(t, b.PropertyTypes, 1)
		assert.False(t, *b.PropertyTypes[0].IsActive)
	})
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name:    "missing ingested_at",
			file:    "b.json",
			content: `{"hosts": [{"host_id": "H1"}]}`,
			want:    []string{"ingested_at is required"},
		},
		{
			name:    "unknown member",
			file:    "b.json",
			content: `{"ingested_at": "2024-01-02T00:00:00Z", "hostz": []}`,
			want:    []string{"hostz"},
		},
		{
			name:    "empty natural key and wrong type",
			file:    "b.yaml",
			content: "ingested_at: 2024-01-02T00:00:00Z\nhosts:\n  - host_id: ''\nmetrics:\n  - listing_id: L1\n    metric_date: 2024-01-01\n    price: cheap\n",
			want:    []string{"hosts.0.host_id", "metrics.0.price"},
		},
		{
			name:    "listing without host",
			file:    "b.json",
			content: `{"ingested_at": "2024-01-02T00:00:00Z", "listings": [{"listing_id": "L1"}]}`,
			want:    []string{"host_id is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.file, []byte(tt.content))
			require.Error(t, err)

			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.file, schemaErr.File)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{name: "broken json", file: "b.json", content: `{"ingested_at":`, wantErr: "failed to parse JSON batch"},
		{name: "broken yaml", file: "b.yml", content: "hosts: [", wantErr: "failed to parse YAML batch"},
		{name: "not an object", file: "b.json", content: `[1, 2]`, wantErr: "must be an object"},
		{name: "unsupported extension", file: "b.csv", content: "a,b", wantErr: "unsupported batch file extension"},
		{name: "bad date", file: "b.json", content: `{"ingested_at": "2024-01-02T00:00:00Z", "reviews": [{"review_id": "R1", "listing_id": "L1", "review_date": "01/02/2024"}]}`, wantErr: "expected YYYY-MM-DD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.file, []byte(tt.content))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/batches/day2.yml", []byte(yamlBatch), 0o644))

	b, err := ReadFile(fs, "/batches/day2.yml")
	require.NoError(t, err)
	assert.Equal(t, "b-2024-01-02", b.ID)

	_, err = ReadFile(fs, "/batches/missing.yml")
	require.ErrorContains(t, err, "failed to read batch file")
}

func TestSchema(t *testing.T) {
	t.Parallel()

	s := Schema()
	assert.Equal(t, draft7, s.Version)
	assert.Contains(t, s.Required, "ingested_at")

	buf, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"hosts"`)
	assert.Contains(t, string(buf), `"additionalProperties":false`)
}

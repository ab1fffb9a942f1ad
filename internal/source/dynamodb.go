package source

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/luki/farmdash/internal/config"
	"github.com/luki/farmdash/internal/reading"
)

// DynamoDB scans a whole table. Numbers are decoded as exact decimal text and
// converted to float64; the result is sorted newest first and trimmed.
type DynamoDB struct {
	client dynamodb.ScanAPIClient
	table  string
	limit  int
	log    zerolog.Logger
}

// NewDynamoDB wraps an existing scan client.
func NewDynamoDB(client dynamodb.ScanAPIClient, table string, limit int, log zerolog.Logger) *DynamoDB {
	return &DynamoDB{client: client, table: table, limit: limit, log: log}
}

// NewDynamoDBFromConfig builds a client from the default AWS credential chain.
func NewDynamoDBFromConfig(ctx context.Context, cfg config.DynamoDBConfig, limit int, log zerolog.Logger) (*DynamoDB, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewDynamoDB(client, cfg.Table, limit, log), nil
}

func (d *DynamoDB) Name() string { return "dynamodb:" + d.table }

// Fetch reads every page of the table.
func (d *DynamoDB) Fetch(ctx context.Context) (Batch, error) {
	p := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName: aws.String(d.table),
	})

	var rows []map[string]any
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return Batch{}, fmt.Errorf("%w: scan %s: %v", ErrTransport, d.table, err)
		}

		var page []map[string]any
		err = attributevalue.UnmarshalListOfMapsWithOptions(out.Items, &page, func(o *attributevalue.DecoderOptions) {
			o.UseNumber = true
		})
		if err != nil {
			return Batch{}, fmt.Errorf("%w: decode %s items: %v", ErrDecode, d.table, err)
		}
		rows = append(rows, page...)
	}

	for _, row := range rows {
		decimalsToFloat(row)
	}

	b := normalize(rows, d.log)
	reading.SortNewestFirst(b.Readings)
	b.Readings = reading.Newest(b.Readings, d.limit)
	return b, nil
}

// decimalsToFloat replaces top-level DynamoDB numbers with float64 in place.
// Values that do not fit a float64 are left for the normaliser to reject.
func decimalsToFloat(row map[string]any) {
	for k, v := range row {
		n, ok := v.(attributevalue.Number)
		if !ok {
			continue
		}
		if f, err := n.Float64(); err == nil {
			row[k] = f
		}
	}
}

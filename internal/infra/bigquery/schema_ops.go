package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
)

// TableSchemaWithClient reads the column layout of datasetID.table.
func TableSchemaWithClient(ctx context.Context, client *bigquery.Client, datasetID, table string) ([]bq.ColumnSchema, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("TableSchemaWithClient: %w", err)
	}

	md, err := client.Dataset(datasetID).Table(table).Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("TableSchemaWithClient: reading metadata: %w", mapNotFound(err))
	}

	return columnsFromSchema(md.Schema), nil
}

func columnsFromSchema(schema bigquery.Schema) []bq.ColumnSchema {
	columns := make([]bq.ColumnSchema, 0, len(schema))
	for _, field := range schema {
		columns = append(columns, bq.ColumnSchema{
			Name: field.Name,
			Type: string(field.Type),
			Mode: fieldMode(field),
		})
	}
	return columns
}

func fieldMode(field *bigquery.FieldSchema) string {
	switch {
	case field.Repeated:
		return "REPEATED"
	case field.Required:
		return "REQUIRED"
	default:
		return "NULLABLE"
	}
}

package telemetry

import (
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterGormTracing adds otelgorm spans to every query on db. Query
// variables are never recorded since client records hold customer contact
// details.
func RegisterGormTracing(db *gorm.DB, dbSystem string, provider trace.TracerProvider, logger *zap.Logger) error {
	opts := []otelgorm.Option{
		otelgorm.WithDBName(dbSystem),
		otelgorm.WithoutQueryVariables(),
	}
	if provider != nil {
		opts = append(opts, otelgorm.WithTracerProvider(provider))
	}

	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return fmt.Errorf("failed to register otelgorm: %w", err)
	}

	logger.Debug("Database tracing enabled", zap.String("db_system", dbSystem))
	return nil
}

// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/uponlylabs/uponly-engine/internal/storage"
	"github.com/uponlylabs/uponly-engine/internal/storage/models"
)

// gormLogger adapts zap to gorm's logger.Interface.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// postgresStorage implements the Storage interface.
type postgresStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresStorage{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (s *postgresStorage) SaveOperation(ctx context.Context, op *models.Operation) error {
	if err := s.db.WithContext(ctx).Create(op).Error; err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

func (s *postgresStorage) GetOperation(ctx context.Context, id uint) (*models.Operation, error) {
	var op models.Operation
	if err := s.db.WithContext(ctx).First(&op, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get operation %d: %w", id, err)
	}
	return &op, nil
}

func (s *postgresStorage) ListOperations(ctx context.Context, user string, limit, offset int) ([]*models.Operation, error) {
	var ops []*models.Operation
	query := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if user != "" {
		query = query.Where("\"user\" = ?", user)
	}
	if err := query.Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

func (s *postgresStorage) RunMigrations() error {
	if err := s.db.AutoMigrate(&models.Operation{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *postgresStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

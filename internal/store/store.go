package store

import (
	"context"

	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Job() Job
	InitialMigration(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db  *gorm.DB
	job Job
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		job: NewJobStore(db),
		db:  db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) InitialMigration(ctx context.Context) error {
	ctx, err := s.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	if err := s.job.InitialMigration(ctx); err != nil {
		_, _ = Rollback(ctx)
		return err
	}

	_, err = Commit(ctx)
	return err
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/pressly/goose/v3"
)

func mustProvider(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, dir string) *goose.Provider {
	var fsys fs.FS
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	provider, err := migrate.NewProvider(sqlDB, fsys)
	if err != nil {
		exit(ctx, logg, "resource not working: goose", err)
	}
	return provider
}

func exit(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if err == nil {
		err = errors.New(msg)
	}
	logg.Error(ctx, msg, err)
	os.Exit(1)
}

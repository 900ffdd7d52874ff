package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/marr05/RAG-TO-AWS/internal/data/db"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

// openDatabase opens and migrates the SQL database. The job store choice picks the driver;
// otherwise DB_DRIVER decides.
func openDatabase(log *logger.Logger, cfg Config) (*gorm.DB, error) {
	dbCfg := db.ConfigFromEnv()
	switch cfg.JobStore {
	case JobStorePostgres:
		dbCfg.Driver = db.DriverPostgres
	case JobStoreSQLite:
		dbCfg.Driver = db.DriverSQLite
	}
	gdb, err := db.Open(log, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbCfg.Driver, err)
	}
	if err := db.AutoMigrateAll(gdb); err != nil {
		closeDatabase(gdb)
		return nil, fmt.Errorf("%s automigrate: %w", dbCfg.Driver, err)
	}
	return gdb, nil
}

func closeDatabase(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newRedisClient(log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (addr=%s): %w", cfg.RedisAddr, err)
	}
	log.Info("Connected to Redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return rdb, nil
}

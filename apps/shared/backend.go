// Package shared wires the storage and locking backends both binaries run on.
package shared

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/yarcoin/marketplace/core"
	"github.com/yarcoin/marketplace/core/bidding"
	"github.com/yarcoin/marketplace/core/student"
	"github.com/yarcoin/marketplace/core/teacher"
	"github.com/yarcoin/marketplace/core/user"
	"github.com/yarcoin/marketplace/services/lock"
	"github.com/yarcoin/marketplace/storage/database"
	"github.com/yarcoin/marketplace/storage/database/inmem"
	"github.com/yarcoin/marketplace/storage/database/postgres"
)

// Backend holds the repositories of the configured database engine along with the locker.
type Backend struct {
	Tx       core.Transactor
	Users    user.Repository
	Students student.Repository
	Teachers teacher.Repository
	Bids     bidding.Repository
	Locker   core.Locker

	// DB is nil with the memory engine.
	DB *sqlx.DB

	closers []func() error
}

// OpenBackend connects to the configured database engine, postgres being created & migrated
// when migrate is set, and to redis when an address is configured.
func OpenBackend(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (*Backend, error) {
	b := new(Backend)

	switch conf.Database.Engine {
	case core.EngineMemory:
		logger.Warn("using the in-memory database; data is lost on exit")
		db := inmemdb.Open()
		b.Tx = db
		b.Users = inmemdb.NewUserRepository(db)
		b.Students = inmemdb.NewStudentRepository(db)
		b.Teachers = inmemdb.NewTeacherRepository(db)
		b.Bids = inmemdb.NewBidRepository(db)

	case core.EnginePostgres:
		if migrate {
			if err := database.CreateIfNotExist(ctx, conf); err != nil {
				return nil, errors.Wrap(err, "creating database")
			}
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "opening database")
		}
		b.closers = append(b.closers, db.Close)
		if migrate {
			if err = database.Migrate(ctx, db); err != nil {
				_ = b.Close()
				return nil, errors.Wrap(err, "migrating database")
			}
		}

		store := pgrepos.NewStore(db, conf.Database.LockTimeout)
		b.DB = db
		b.Tx = store
		b.Users = pgrepos.NewUserRepository(store)
		b.Students = pgrepos.NewStudentRepository(store)
		b.Teachers = pgrepos.NewTeacherRepository(store)
		b.Bids = pgrepos.NewBidRepository(store)

	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	if conf.Redis.Addr == "" {
		b.Locker = lock.NewLocal(conf.Bidding.LockWait)
		return b, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	b.closers = append(b.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = b.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	b.Locker = lock.NewRedis(rdb, conf.Bidding.LockWait, conf.Bidding.LockTTL, logger)
	return b, nil
}

// Close releases the connections in reverse opening order.
func (b *Backend) Close() error {
	var err error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if cerr := b.closers[i](); cerr != nil && err == nil {
			err = cerr
		}
	}
	b.closers = nil
	return err
}

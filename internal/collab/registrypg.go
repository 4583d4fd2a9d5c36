package collab

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresRegistry is the shared room directory backed by postgres. Hosts
// that want their rooms discoverable across processes point ARENA_DB_DSN
// at the same database; everything else keeps working without it.
type PostgresRegistry struct {
	db *gorm.DB
}

// OpenPostgresRegistry connects and migrates the rooms table.
func OpenPostgresRegistry(dsn string) (*PostgresRegistry, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&RoomRecord{}); err != nil {
		return nil, err
	}
	return &PostgresRegistry{db: db}, nil
}

func (r *PostgresRegistry) Register(ctx context.Context, rec RoomRecord) error {
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *PostgresRegistry) UpdateStatus(ctx context.Context, roomID string, status RoomStatus) error {
	return r.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("room_id = ?", roomID).
		Update("status", status).Error
}

func (r *PostgresRegistry) UpdateRoster(ctx context.Context, roomID string, up RosterUpdate) error {
	fields := map[string]any{"player_count": up.PlayerCount}
	if up.Status != "" {
		fields["status"] = up.Status
	}
	return r.db.WithContext(ctx).Model(&RoomRecord{}).
		Where("room_id = ?", roomID).
		Updates(fields).Error
}

func (r *PostgresRegistry) Get(ctx context.Context, roomID string) (*RoomRecord, error) {
	var rec RoomRecord
	err := r.db.WithContext(ctx).First(&rec, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresRegistry) List(ctx context.Context, status RoomStatus) ([]RoomRecord, error) {
	var out []RoomRecord
	q := r.db.WithContext(ctx).Order("updated_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return out, q.Find(&out).Error
}

// Subscribe polls; postgres has no push channel the directory needs
// badly enough to justify LISTEN/NOTIFY plumbing here.
func (r *PostgresRegistry) Subscribe(status RoomStatus, fn func([]RoomRecord)) (func(), error) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			rooms, err := r.List(context.Background(), status)
			if err == nil {
				fn(rooms)
			}
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	}()
	return func() { close(done) }, nil
}

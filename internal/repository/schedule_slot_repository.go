package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-registrar-api/internal/models"
)

// ScheduleSlotRepository handles persistence of weekly meeting slots.
type ScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewScheduleSlotRepository constructs the repository.
func NewScheduleSlotRepository(db *sqlx.DB) *ScheduleSlotRepository {
	return &ScheduleSlotRepository{db: db}
}

const slotColumns = `id, section_id, room_id, day_of_week, start_minute, end_minute, location_type, created_at, updated_at`

// ListBySection returns the weekly meeting pattern of a section.
func (r *ScheduleSlotRepository) ListBySection(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots WHERE section_id = $1 ORDER BY day_of_week, start_minute`, slotColumns)
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section slots: %w", err)
	}
	return slots, nil
}

// FindByID returns a slot by its ID.
func (r *ScheduleSlotRepository) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedule_slots WHERE id = $1`, slotColumns)
	var slot models.ScheduleSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// Create persists a new slot.
func (r *ScheduleSlotRepository) Create(ctx context.Context, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	const query = `INSERT INTO schedule_slots (id, section_id, room_id, day_of_week, start_minute, end_minute, location_type)
        VALUES (:id, :section_id, :room_id, :day_of_week, :start_minute, :end_minute, :location_type)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create schedule slot: %w", err)
	}
	return nil
}

// Delete removes a slot.
func (r *ScheduleSlotRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM schedule_slots WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete schedule slot: %w", err)
	}
	return nil
}

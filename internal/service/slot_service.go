package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/pbl_scheduler/internal/clock"
	"github.com/Freeeeeet/pbl_scheduler/internal/model"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository"
	"github.com/Freeeeeet/pbl_scheduler/internal/subject"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// AllowedSlotDurations - допустимая длительность слота в минутах
	AllowedSlotDurations = []int{5, 10, 15}
	// AllowedBreakDurations - допустимый перерыв между слотами в минутах
	AllowedBreakDurations = []int{0, 5, 10, 15}
)

type SlotService struct {
	store  repository.Store
	clock  clock.Clock
	loc    *time.Location
	logger *zap.Logger
}

func NewSlotService(store repository.Store, clk clock.Clock, loc *time.Location, logger *zap.Logger) *SlotService {
	return &SlotService{
		store:  store,
		clock:  clk,
		loc:    loc,
		logger: logger,
	}
}

// SlotInput - параметры одиночного слота
type SlotInput struct {
	Subject string
	Start   time.Time
	End     time.Time
}

// BulkSlotInput - параметры автоматической нарезки окна на слоты
type BulkSlotInput struct {
	Subject       string
	WindowStart   time.Time
	WindowEnd     time.Time
	SlotDuration  int // минуты
	BreakDuration int // минуты
}

// DeleteTodayResult - итог удаления сегодняшних слотов
type DeleteTodayResult struct {
	Deleted int    `json:"deleted_count"`
	Skipped int    `json:"skipped_count"`
	Date    string `json:"date"`
}

// loadFaculty получает пользователя и проверяет что он преподаватель
func loadFaculty(ctx context.Context, repos repository.Repositories, facultyID uuid.UUID) (*model.User, error) {
	user, err := repos.Users().GetByID(ctx, facultyID)
	if err != nil {
		return nil, fmt.Errorf("get faculty: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.IsFaculty() {
		return nil, ErrFacultyOnly
	}
	return user, nil
}

// existingSubjects возвращает разрешённые предметы, по которым у преподавателя есть слоты
func existingSubjects(ctx context.Context, repos repository.Repositories, facultyID uuid.UUID) ([]string, error) {
	raw, err := repos.Slots().DistinctSubjects(ctx, facultyID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	subjects := []string{}
	for _, s := range raw {
		s = subject.Normalize(s)
		if !subject.IsAllowed(s) {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		subjects = append(subjects, s)
	}

	sort.Strings(subjects)
	return subjects, nil
}

// SetFacultySubject закрепляет предмет за преподавателем. Предмет задаётся один раз.
func (s *SlotService) SetFacultySubject(ctx context.Context, facultyID uuid.UUID, rawSubject string) (string, error) {
	requested := subject.Normalize(rawSubject)
	if requested == "" {
		return "", ErrSubjectRequired
	}
	if !subject.IsAllowed(requested) {
		return "", ErrInvalidSubject
	}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}

		faculty, err := loadFaculty(ctx, tx, facultyID)
		if err != nil {
			return err
		}

		if subject.Normalize(faculty.FacultySubject) != "" {
			return ErrSubjectAlreadySet
		}

		// Если слоты уже есть, предмет должен с ними совпадать
		existing, err := existingSubjects(ctx, tx, facultyID)
		if err != nil {
			return fmt.Errorf("get faculty subjects: %w", err)
		}
		if len(existing) > 1 {
			return ErrAmbiguousSubject
		}
		if len(existing) == 1 && existing[0] != requested {
			return ErrSubjectLockedBySlots
		}

		faculty.FacultySubject = requested
		faculty.UpdatedAt = s.clock.Now()
		if err := tx.Users().Update(ctx, faculty); err != nil {
			return fmt.Errorf("update faculty subject: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("Faculty subject configured",
		zap.String("faculty_id", facultyID.String()),
		zap.String("subject", requested),
	)

	return requested, nil
}

// GetFacultySubject возвращает закреплённый предмет. Для старых преподавателей
// предмет выводится из существующих слотов и сохраняется. Пустая строка - не задан.
func (s *SlotService) GetFacultySubject(ctx context.Context, facultyID uuid.UUID) (string, error) {
	var resolved string

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}

		faculty, err := loadFaculty(ctx, tx, facultyID)
		if err != nil {
			return err
		}

		if configured := subject.Normalize(faculty.FacultySubject); configured != "" {
			if !subject.IsAllowed(configured) {
				return withMessage(ErrInvalidSubject, "Invalid configured subject")
			}
			resolved = configured
			return nil
		}

		existing, err := existingSubjects(ctx, tx, facultyID)
		if err != nil {
			return fmt.Errorf("get faculty subjects: %w", err)
		}

		switch len(existing) {
		case 0:
			return nil
		case 1:
			resolved = existing[0]
			return s.backfillSubject(ctx, tx, faculty, resolved)
		default:
			return ErrAmbiguousSubject
		}
	})
	if err != nil {
		return "", err
	}

	return resolved, nil
}

func (s *SlotService) backfillSubject(ctx context.Context, repos repository.Repositories, faculty *model.User, subj string) error {
	faculty.FacultySubject = subj
	faculty.UpdatedAt = s.clock.Now()
	if err := repos.Users().Update(ctx, faculty); err != nil {
		return fmt.Errorf("backfill faculty subject: %w", err)
	}

	s.logger.Info("Faculty subject backfilled from slots",
		zap.String("faculty_id", faculty.ID.String()),
		zap.String("subject", subj),
	)
	return nil
}

// resolveSubject определяет предмет нового слота по правилу закреплённого предмета.
// Первый слот без настроенного предмета закрепляет запрошенный.
func (s *SlotService) resolveSubject(ctx context.Context, tx repository.Tx, faculty *model.User, rawRequested string) (string, error) {
	requested := subject.Normalize(rawRequested)
	if requested != "" && !subject.IsAllowed(requested) {
		return "", ErrInvalidSubject
	}

	if configured := subject.Normalize(faculty.FacultySubject); configured != "" {
		if !subject.IsAllowed(configured) {
			return "", withMessage(ErrInvalidSubject, "Invalid configured subject")
		}
		if requested != "" && requested != configured {
			return "", ErrSubjectFixed
		}
		return configured, nil
	}

	existing, err := existingSubjects(ctx, tx, faculty.ID)
	if err != nil {
		return "", fmt.Errorf("get faculty subjects: %w", err)
	}

	switch len(existing) {
	case 0:
		if requested == "" {
			return "", ErrSubjectNotConfigured
		}
		faculty.FacultySubject = requested
		faculty.UpdatedAt = s.clock.Now()
		if err := tx.Users().Update(ctx, faculty); err != nil {
			return "", fmt.Errorf("configure faculty subject: %w", err)
		}
		return requested, nil
	case 1:
		if err := s.backfillSubject(ctx, tx, faculty, existing[0]); err != nil {
			return "", err
		}
		if requested != "" && requested != existing[0] {
			return "", ErrSubjectFixed
		}
		return existing[0], nil
	default:
		return "", ErrAmbiguousSubject
	}
}

// CreateSlot создаёт одиночный слот
func (s *SlotService) CreateSlot(ctx context.Context, facultyID uuid.UUID, in SlotInput) (*model.Slot, error) {
	if !in.Start.Before(in.End) {
		return nil, ErrInvalidTimeRange
	}

	now := s.clock.Now()
	if !in.Start.After(now) {
		return nil, ErrStartInPast
	}

	var slot *model.Slot
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}

		faculty, err := loadFaculty(ctx, tx, facultyID)
		if err != nil {
			return err
		}

		subj, err := s.resolveSubject(ctx, tx, faculty, in.Subject)
		if err != nil {
			return err
		}

		overlap, err := tx.Slots().HasOverlap(ctx, facultyID, in.Start, in.End, uuid.Nil)
		if err != nil {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlap {
			return ErrSlotOverlap
		}

		slot = &model.Slot{
			FacultyID:   facultyID,
			Subject:     subj,
			StartTime:   in.Start,
			EndTime:     in.End,
			IsAvailable: true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Slots().Create(ctx, slot); err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("faculty_id", facultyID.String()),
		zap.String("subject", slot.Subject),
		zap.Time("start_time", slot.StartTime),
	)

	return slot, nil
}

// GenerateSlotTimes нарезает окно на интервалы длительностью slotDuration с
// перерывами breakDuration. Интервалы, выходящие за конец окна, отбрасываются.
func GenerateSlotTimes(windowStart, windowEnd time.Time, slotDuration, breakDuration time.Duration) [][2]time.Time {
	var out [][2]time.Time
	if slotDuration <= 0 || breakDuration < 0 {
		return out
	}

	for start := windowStart; ; {
		end := start.Add(slotDuration)
		if end.After(windowEnd) {
			break
		}
		out = append(out, [2]time.Time{start, end})
		start = end.Add(breakDuration)
	}
	return out
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// BulkCreateSlots создаёт серию слотов в одной транзакции. Кандидаты,
// пересекающиеся с существующими слотами, молча пропускаются.
func (s *SlotService) BulkCreateSlots(ctx context.Context, facultyID uuid.UUID, in BulkSlotInput) ([]*model.Slot, error) {
	if !containsInt(AllowedSlotDurations, in.SlotDuration) {
		return nil, ErrInvalidDuration
	}
	if !containsInt(AllowedBreakDurations, in.BreakDuration) {
		return nil, ErrInvalidBreak
	}
	if requested := subject.Normalize(in.Subject); requested != "" && !subject.IsAllowed(requested) {
		return nil, ErrInvalidSubject
	}
	if !in.WindowStart.Before(in.WindowEnd) {
		return nil, ErrInvalidTimeRange
	}

	slotDuration := time.Duration(in.SlotDuration) * time.Minute
	if in.WindowEnd.Sub(in.WindowStart) < slotDuration {
		return nil, withMessage(ErrWindowTooShort,
			fmt.Sprintf("Time range is too short for a %d-minute slot", in.SlotDuration))
	}

	now := s.clock.Now()
	if !in.WindowStart.After(now) {
		return nil, ErrStartInPast
	}

	candidates := GenerateSlotTimes(in.WindowStart, in.WindowEnd, slotDuration, time.Duration(in.BreakDuration)*time.Minute)

	var created []*model.Slot
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}

		faculty, err := loadFaculty(ctx, tx, facultyID)
		if err != nil {
			return err
		}

		subj, err := s.resolveSubject(ctx, tx, faculty, in.Subject)
		if err != nil {
			return err
		}

		created = nil
		skipped := 0
		for _, c := range candidates {
			overlap, err := tx.Slots().HasOverlap(ctx, facultyID, c[0], c[1], uuid.Nil)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if overlap {
				skipped++
				continue
			}

			slot := &model.Slot{
				FacultyID:   facultyID,
				Subject:     subj,
				StartTime:   c[0],
				EndTime:     c[1],
				IsAvailable: true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Slots().Create(ctx, slot); err != nil {
				return fmt.Errorf("create slot: %w", err)
			}
			created = append(created, slot)
		}

		if len(created) == 0 {
			return ErrNoSlotsGenerated
		}

		s.logger.Info("Slots generated",
			zap.String("faculty_id", facultyID.String()),
			zap.String("subject", subj),
			zap.Int("created", len(created)),
			zap.Int("skipped", skipped),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// DeleteSlot удаляет слот преподавателя, если у него нет истории бронирований
func (s *SlotService) DeleteSlot(ctx context.Context, facultyID, slotID uuid.UUID) error {
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.SlotLockKey(slotID)); err != nil {
			return err
		}

		slot, err := tx.Slots().GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return ErrSlotNotFound
		}
		if slot.FacultyID != facultyID {
			return ErrNotOwner
		}
		if slot.HasBookingHistory() {
			return ErrSlotHasHistory
		}

		if err := tx.Slots().Delete(ctx, slotID); err != nil {
			return fmt.Errorf("delete slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Slot deleted",
		zap.String("slot_id", slotID.String()),
		zap.String("faculty_id", facultyID.String()),
	)

	return nil
}

// DeleteTodaysSlots удаляет сегодняшние слоты преподавателя без истории бронирований.
// Если на сегодня есть подтверждённые бронирования, ничего не удаляется.
func (s *SlotService) DeleteTodaysSlots(ctx context.Context, facultyID uuid.UUID) (*DeleteTodayResult, error) {
	dayStart, dayEnd := dayBounds(s.clock.Now(), s.loc)
	result := &DeleteTodayResult{Date: dayStart.Format(time.DateOnly)}

	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}

		if _, err := loadFaculty(ctx, tx, facultyID); err != nil {
			return err
		}

		slots, err := tx.Slots().ListByFaculty(ctx, facultyID, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("get today's slots: %w", err)
		}

		// Блокируем слоты в стабильном порядке и перечитываем их состояние
		keys := make([]string, 0, len(slots))
		for _, slot := range slots {
			keys = append(keys, repository.SlotLockKey(slot.ID))
		}
		sort.Strings(keys)
		if err := tx.Lock(ctx, keys...); err != nil {
			return err
		}

		slots, err = tx.Slots().ListByFaculty(ctx, facultyID, dayStart, dayEnd)
		if err != nil {
			return fmt.Errorf("get today's slots: %w", err)
		}

		confirmed := 0
		for _, slot := range slots {
			if slot.Booking != nil && slot.Booking.Status == model.BookingStatusConfirmed {
				confirmed++
			}
		}
		if confirmed > 0 {
			e := withMessage(ErrTodaysBookings, fmt.Sprintf(
				"Cannot delete today's slots because you have %d confirmed booking(s). Cancel those bookings first.",
				confirmed,
			))
			e.Details = map[string]any{"confirmed_count": confirmed, "date": result.Date}
			return e
		}

		result.Deleted, result.Skipped = 0, 0
		for _, slot := range slots {
			if slot.HasBookingHistory() {
				result.Skipped++
				continue
			}
			if err := tx.Slots().Delete(ctx, slot.ID); err != nil {
				return fmt.Errorf("delete slot: %w", err)
			}
			result.Deleted++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Today's slots deleted",
		zap.String("faculty_id", facultyID.String()),
		zap.String("date", result.Date),
		zap.Int("deleted", result.Deleted),
		zap.Int("skipped", result.Skipped),
	)

	return result, nil
}

// ListFacultySlots возвращает слоты преподавателя с бронированиями.
// date ограничивает выборку одним днём, futureOnly - слотами в будущем.
func (s *SlotService) ListFacultySlots(ctx context.Context, facultyID uuid.UUID, date *time.Time, futureOnly bool) ([]*model.Slot, error) {
	if _, err := loadFaculty(ctx, s.store, facultyID); err != nil {
		return nil, err
	}

	from, to := time.Unix(0, 0).UTC(), time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if date != nil {
		from, to = dayBounds(*date, s.loc)
	}

	slots, err := s.store.Slots().ListByFaculty(ctx, facultyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get faculty slots: %w", err)
	}

	if !futureOnly {
		return slots, nil
	}

	now := s.clock.Now()
	future := make([]*model.Slot, 0, len(slots))
	for _, slot := range slots {
		if slot.StartTime.After(now) {
			future = append(future, slot)
		}
	}
	return future, nil
}

// SetAvailability переключает статус "свободен/занят" преподавателя
func (s *SlotService) SetAvailability(ctx context.Context, facultyID uuid.UUID, available bool) (bool, error) {
	var faculty *model.User
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.Lock(ctx, repository.FacultyLockKey(facultyID)); err != nil {
			return err
		}
		if _, err := loadFaculty(ctx, tx, facultyID); err != nil {
			return err
		}

		// Меняется только флаг, предмет и прочие поля не перезаписываются
		if err := tx.Users().SetAvailableForBooking(ctx, facultyID, available, s.clock.Now()); err != nil {
			return fmt.Errorf("update availability: %w", err)
		}

		var err error
		faculty, err = loadFaculty(ctx, tx, facultyID)
		return err
	})
	if err != nil {
		return false, err
	}

	s.logger.Info("Faculty availability updated",
		zap.String("faculty_id", facultyID.String()),
		zap.Bool("is_available", available),
	)

	return faculty.IsAvailableForBooking, nil
}

// GetAvailability возвращает статус "свободен/занят" преподавателя
func (s *SlotService) GetAvailability(ctx context.Context, facultyID uuid.UUID) (bool, error) {
	faculty, err := loadFaculty(ctx, s.store, facultyID)
	if err != nil {
		return false, err
	}
	return faculty.IsAvailableForBooking, nil
}

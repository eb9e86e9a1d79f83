package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Freeeeeet/pbl_scheduler/internal/service"
)

const facultySyncTimeout = 4 * time.Minute

// FacultySyncer синхронизирует преподавателей с партнёрским сервисом
type FacultySyncer interface {
	Sync(ctx context.Context, opts service.FacultySyncOptions) (*service.FacultySyncResult, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	cron     *cron.Cron
	syncer   FacultySyncer
	schedule string
	logger   *zap.Logger
}

// NewScheduler создаёт планировщик; пустое расписание отключает синхронизацию
func NewScheduler(syncer FacultySyncer, schedule string, logger *zap.Logger) (*Scheduler, error) {
	cl := newCronLogger(logger)
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		syncer:   syncer,
		schedule: schedule,
		logger:   logger,
	}
	if schedule == "" {
		return s, nil
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunFacultySync(context.Background()) }); err != nil {
		return nil, fmt.Errorf("add faculty sync job: %w", err)
	}
	return s, nil
}

// Start запускает фоновые задачи; при включённой синхронизации первый прогон идёт сразу
func (s *Scheduler) Start(ctx context.Context) {
	if s.schedule == "" {
		s.logger.Info("Faculty sync disabled")
		return
	}
	s.logger.Info("Starting background scheduler", zap.String("faculty_sync_cron", s.schedule))

	go s.RunFacultySync(ctx)
	s.cron.Start()
}

// Stop останавливает планировщик и ждёт завершения текущего прогона
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	<-s.cron.Stop().Done()
}

// RunFacultySync выполняет один прогон синхронизации; ошибки только логируются
func (s *Scheduler) RunFacultySync(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, facultySyncTimeout)
	defer cancel()

	res, err := s.syncer.Sync(ctx, service.FacultySyncOptions{})
	if err != nil {
		s.logger.Error("Faculty sync failed", zap.Error(err))
		return
	}
	s.logger.Info("Faculty sync completed",
		zap.Int("fetched", res.Fetched),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped))
}
